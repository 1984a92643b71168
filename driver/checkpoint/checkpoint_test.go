package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(dir, "run.checkpoint")

	fp := Fingerprint([]byte("dump bytes"), []byte("section layout"))
	st := &State{Fingerprint: fp, Completed: map[int]bool{}}
	st.MarkDone(0)
	st.MarkDone(2)
	require.NoError(t, Save(path, st))

	got, err := Load(path, fp)
	require.NoError(t, err)
	require.True(t, got.IsDone(0))
	require.True(t, got.IsDone(2))
	require.False(t, got.IsDone(1))
}

func TestLoadMissingFileReturnsFreshState(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(dir, "does-not-exist.checkpoint")

	fp := Fingerprint([]byte("dump"), []byte("layout"))
	st, err := Load(path, fp)
	require.NoError(t, err)
	require.Equal(t, fp, st.Fingerprint)
	require.False(t, st.IsDone(0))
}

func TestLoadFingerprintMismatchDiscardsCheckpoint(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(dir, "run.checkpoint")

	oldFP := Fingerprint([]byte("old dump"), []byte("old layout"))
	st := &State{Fingerprint: oldFP, Completed: map[int]bool{}}
	st.MarkDone(0)
	require.NoError(t, Save(path, st))

	newFP := Fingerprint([]byte("new dump"), []byte("new layout"))
	got, err := Load(path, newFP)
	require.NoError(t, err)
	require.Equal(t, newFP, got.Fingerprint)
	require.False(t, got.IsDone(0), "a checkpoint from a different run must never be applied")
}

func TestFingerprintDependsOnBothDumpAndLayout(t *testing.T) {
	base := Fingerprint([]byte("dump"), []byte("layout"))
	require.NotEqual(t, base, Fingerprint([]byte("different dump"), []byte("layout")))
	require.NotEqual(t, base, Fingerprint([]byte("dump"), []byte("different layout")))
}
