package git

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRefEdits_FirstDuplicate(t *testing.T) {
	target := NewPeeledTarget(ZeroOID)

	for _, tc := range []struct {
		desc          string
		edits         RefEdits
		expectedName  ReferenceName
		expectedFound bool
	}{
		{
			desc: "empty batch",
		},
		{
			desc: "distinct names",
			edits: RefEdits{
				NewUpdateEdit("refs/heads/a", target),
				NewDeleteEdit("refs/heads/b"),
			},
		},
		{
			desc: "single duplicate",
			edits: RefEdits{
				NewUpdateEdit("refs/heads/a", target),
				NewDeleteEdit("refs/heads/a"),
			},
			expectedName:  "refs/heads/a",
			expectedFound: true,
		},
		{
			desc: "first duplicate in batch order",
			edits: RefEdits{
				NewUpdateEdit("refs/heads/a", target),
				NewUpdateEdit("refs/heads/b", target),
				NewDeleteEdit("refs/heads/b"),
				NewDeleteEdit("refs/heads/a"),
			},
			expectedName:  "refs/heads/b",
			expectedFound: true,
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			name, found := tc.edits.FirstDuplicate()
			require.Equal(t, tc.expectedFound, found)
			require.Equal(t, tc.expectedName, name)
		})
	}
}

func TestChange_PreviousValue(t *testing.T) {
	previous := NewPeeledTarget(ZeroOID)

	require.Nil(t, NewUpdateEdit("refs/heads/a", previous).Change.PreviousValue())
	require.Nil(t, NewDeleteEdit("refs/heads/a").Change.PreviousValue())
	require.Equal(t, &previous, Update{Previous: &previous}.PreviousValue())
	require.Equal(t, &previous, Delete{Previous: &previous}.PreviousValue())
}
