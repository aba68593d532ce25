package evidence_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testweaver/internal/evidence"
	"testweaver/internal/model"
)

func TestRecordRun_PrependsAndCaps(t *testing.T) {
	dir := t.TempDir()
	s := evidence.Load(filepath.Join(dir, "store.json"), 0.99, 0.95)

	for i := 0; i < 205; i++ {
		s.RecordRun("t1", i%2 == 0, "", "")
	}
	hist := s.GetHistory("t1")
	require.Len(t, hist, model.MaxHistoryEntries)
	assert.Equal(t, true, hist[0].Passed) // last recorded was i=204, 204%2==0 -> passed
}

func TestInvalidateEvidence(t *testing.T) {
	dir := t.TempDir()
	s := evidence.Load(filepath.Join(dir, "store.json"), 0.99, 0.95)
	s.RecordRun("t1", true, "c1", "h1")
	s.InvalidateEvidence("t1")
	assert.Empty(t, s.GetHistory("t1"))
	assert.Equal(t, model.LifecycleBurningIn, s.GetState("t1"))
}

func TestGetSameHashHistory_FiltersByHash(t *testing.T) {
	dir := t.TempDir()
	s := evidence.Load(filepath.Join(dir, "store.json"), 0.99, 0.95)
	s.RecordRun("t1", true, "c1", "H1")
	s.RecordRun("t1", true, "c2", "H2")
	s.RecordRun("t1", false, "c3", "H1")

	same := s.GetSameHashHistory("t1", "H1")
	require.Len(t, same, 2)
	for _, e := range same {
		assert.Equal(t, "H1", e.TargetHash)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	s := evidence.Load(path, 0.99, 0.95)
	s.RecordRun("t1", true, "c1", "H1")
	s.SetState("t1", model.LifecycleStable, false)
	require.NoError(t, s.Save())

	reloaded := evidence.Load(path, 0.99, 0.95)
	assert.Equal(t, model.LifecycleStable, reloaded.GetState("t1"))
	assert.Len(t, reloaded.GetHistory("t1"), 1)
}

func TestLoad_CorruptJSON_StartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))

	s := evidence.Load(path, 0.99, 0.95)
	assert.Equal(t, model.LifecycleStable, s.GetState("anything")) // default
	assert.Empty(t, s.Ids())
}
