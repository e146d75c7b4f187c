package refstore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/gitaly-refs/internal/git"
)

func TestStore_RefContents(t *testing.T) {
	store := setupStore(t)
	writeRef(t, store, "refs/heads/main", oidX.String()+"\n")
	writeRef(t, store, "refs/heads/feature/a", oidY.String())

	content, ok, err := store.RefContents("refs/heads/main")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(oidX.String()+"\n"), content)

	_, ok, err = store.RefContents("refs/heads/missing")
	require.NoError(t, err)
	require.False(t, ok)

	// Directories only hold nested references.
	_, ok, err = store.RefContents("refs/heads/feature")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_FindReference(t *testing.T) {
	store := setupStore(t)
	writeRef(t, store, "refs/heads/main", oidX.String()+"\n")
	writeRef(t, store, "refs/heads/broken", "garbage")

	reference, err := store.FindReference("refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, git.NewReference("refs/heads/main", oidX), reference)

	_, err = store.FindReference("refs/heads/missing")
	require.True(t, errors.Is(err, ErrReferenceNotFound), "unexpected error: %v", err)

	_, err = store.FindReference("refs/heads/../main")
	require.True(t, errors.Is(err, git.ErrInvalidReferenceName), "unexpected error: %v", err)

	_, err = store.FindReference("refs/heads/broken")
	var decodeErr *ReferenceDecodeError
	require.True(t, errors.As(err, &decodeErr), "unexpected error: %v", err)
}

func TestStore_ForEachReference(t *testing.T) {
	store := setupStore(t)
	writeRef(t, store, "refs/heads/main", oidX.String())
	writeRef(t, store, "refs/heads/feature/a", oidY.String())
	writeRef(t, store, "refs/heads/feature/b.lock", oidZ.String())
	writeRef(t, store, "refs/tags/v1.0.0", oidZ.String())
	writeRef(t, store, "HEAD", "ref: refs/heads/main")

	for _, tc := range []struct {
		desc     string
		pattern  string
		expected []git.ReferenceName
	}{
		{
			desc:     "all references",
			expected: []git.ReferenceName{"refs/heads/feature/a", "refs/heads/main", "refs/tags/v1.0.0"},
		},
		{
			desc:     "single level",
			pattern:  "refs/heads/*",
			expected: []git.ReferenceName{"refs/heads/main"},
		},
		{
			desc:     "any depth",
			pattern:  "refs/heads/**",
			expected: []git.ReferenceName{"refs/heads/feature/a", "refs/heads/main"},
		},
		{
			desc:     "alternatives",
			pattern:  "refs/{tags,heads}/{v*,main}",
			expected: []git.ReferenceName{"refs/heads/main", "refs/tags/v1.0.0"},
		},
		{
			desc:    "no match",
			pattern: "refs/remotes/**",
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			var names []git.ReferenceName
			require.NoError(t, store.ForEachReference(tc.pattern, func(reference git.Reference) error {
				names = append(names, reference.Name)
				return nil
			}))
			require.Equal(t, tc.expected, names)
		})
	}
}

func TestStore_ForEachReference_errors(t *testing.T) {
	t.Run("missing refs directory", func(t *testing.T) {
		store := setupStore(t)

		require.NoError(t, store.ForEachReference("", func(git.Reference) error {
			t.Fatal("unexpected reference")
			return nil
		}))
	})

	t.Run("invalid pattern", func(t *testing.T) {
		store := setupStore(t)

		require.Error(t, store.ForEachReference("refs/heads/[", func(git.Reference) error {
			return nil
		}))
	})

	t.Run("callback error stops iteration", func(t *testing.T) {
		store := setupStore(t)
		writeRef(t, store, "refs/heads/a", oidX.String())
		writeRef(t, store, "refs/heads/b", oidX.String())

		stop := errors.New("stop")
		var calls int
		err := store.ForEachReference("", func(git.Reference) error {
			calls++
			return stop
		})
		require.Equal(t, stop, err)
		require.Equal(t, 1, calls)
	})
}

func TestStore_RefPath(t *testing.T) {
	store := NewStore("/var/opt/repo.git/")
	require.Equal(t, "/var/opt/repo.git", store.Base())
	require.Equal(t, filepath.Join("/var/opt/repo.git", "refs", "heads", "main"), store.RefPath("refs/heads/main"))
	require.Equal(t, filepath.Join("/var/opt/repo.git", "logs", "HEAD"), store.ReflogPath("HEAD"))
}

func TestStore_ReadReflog(t *testing.T) {
	store := setupStore(t)

	entries, err := store.ReadReflog("refs/heads/main")
	require.NoError(t, err)
	require.Empty(t, entries)

	writeRef(t, store, "logs/refs/heads/main",
		git.ZeroOID.String()+" "+oidX.String()+" Jane Doe <jane@example.com> 1600000000 -0130\tclone: from origin\n"+
			"\n"+
			oidX.String()+" "+oidY.String()+" Jane Doe <jane@example.com> 1600000060 -0130\t\n",
	)

	entries, err = store.ReadReflog("refs/heads/main")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.Equal(t, git.ZeroOID, entries[0].OldOID)
	require.Equal(t, oidX, entries[0].NewOID)
	require.Equal(t, "clone: from origin", entries[0].Message)
	require.Equal(t, "Jane Doe", entries[0].Committer.Name)
	require.Equal(t, "jane@example.com", entries[0].Committer.Email)
	require.Equal(t, int64(1600000000), entries[0].Committer.When.Unix())
	_, offset := entries[0].Committer.When.Zone()
	require.Equal(t, -90*60, offset)

	require.Equal(t, "", entries[1].Message)
	require.Equal(t, int64(1600000060), entries[1].Committer.When.Unix())
}

func TestStore_ReadReflog_invalid(t *testing.T) {
	for _, tc := range []struct {
		desc string
		line string
	}{
		{desc: "missing fields", line: oidX.String() + "\tmessage"},
		{desc: "invalid old object ID", line: "1234 " + oidX.String() + " Jane <jane@example.com> 1 +0000\tmessage"},
		{desc: "missing email", line: oidX.String() + " " + oidY.String() + " Jane 1 +0000\tmessage"},
		{desc: "invalid timestamp", line: oidX.String() + " " + oidY.String() + " Jane <jane@example.com> soon +0000\tmessage"},
		{desc: "invalid timezone", line: oidX.String() + " " + oidY.String() + " Jane <jane@example.com> 1 CEST\tmessage"},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			store := setupStore(t)
			writeRef(t, store, "logs/HEAD", tc.line+"\n")

			_, err := store.ReadReflog("HEAD")
			require.Error(t, err)
		})
	}
}
