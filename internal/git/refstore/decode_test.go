package refstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/gitaly-refs/internal/git"
)

func TestDecodeReference(t *testing.T) {
	for _, tc := range []struct {
		desc        string
		content     string
		expectedRef git.Reference
		expectedErr bool
	}{
		{
			desc:        "peeled",
			content:     oidX.String(),
			expectedRef: git.NewReference("refs/heads/main", oidX),
		},
		{
			desc:        "peeled with trailing newline",
			content:     oidX.String() + "\n",
			expectedRef: git.NewReference("refs/heads/main", oidX),
		},
		{
			desc:        "symbolic",
			content:     "ref: refs/heads/dev",
			expectedRef: git.NewSymbolicReference("refs/heads/main", "refs/heads/dev"),
		},
		{
			desc:        "symbolic with trailing newline",
			content:     "ref: refs/heads/dev\n",
			expectedRef: git.NewSymbolicReference("refs/heads/main", "refs/heads/dev"),
		},
		{
			desc:        "abbreviated object ID",
			content:     oidX.String()[:10],
			expectedErr: true,
		},
		{
			desc:        "garbage",
			content:     "not a reference",
			expectedErr: true,
		},
		{
			desc:        "symbolic reference to invalid name",
			content:     "ref: refs/heads/a..b",
			expectedErr: true,
		},
		{
			desc:        "empty",
			content:     "",
			expectedErr: true,
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			ref, err := DecodeReference("refs/heads/main", []byte(tc.content))
			if tc.expectedErr {
				require.True(t, errors.Is(err, ErrMalformedReference), "unexpected error: %v", err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.expectedRef, ref)
		})
	}
}

func TestEncodeTarget(t *testing.T) {
	require.Equal(t, []byte(oidX.String()), EncodeTarget(git.NewPeeledTarget(oidX)))
	require.Equal(t, []byte("ref: refs/heads/dev"), EncodeTarget(git.NewSymbolicTarget("refs/heads/dev")))

	encoded := EncodeTarget(git.NewPeeledTarget(oidX))
	require.Len(t, encoded, git.ObjectIDHexLength)

	for _, target := range []git.Target{
		git.NewPeeledTarget(oidX),
		git.NewSymbolicTarget("refs/heads/dev"),
	} {
		reference, err := DecodeReference("refs/heads/main", EncodeTarget(target))
		require.NoError(t, err)
		require.Equal(t, target, reference.Target)
	}
}
