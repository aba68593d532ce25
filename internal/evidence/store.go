// Package evidence implements the EvidenceStore: the sole owner of durable
// per-test lifecycle state and pass/fail history, keyed by the test's
// stationarity token ("target hash"). All mutations are persisted
// atomically (write-to-temp, fsync, rename, fsync parent directory), the
// same durability discipline the rest of this project's infrastructure
// uses for checkpoint state.
package evidence

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"testweaver/internal/model"
)

// Store is the persisted top-level document: one TestEntry per test id.
type Store struct {
	mu   sync.Mutex
	path string

	MinReliability float64
	Significance   float64

	tests map[model.TestId]*model.TestEntry
}

type document struct {
	Tests map[model.TestId]legacyTolerantEntry `json:"tests"`
}

// legacyTolerantEntry tolerates older document shapes (missing target_hash,
// missing history, or legacy scalar runs/passes counters) by decoding into
// permissive fields and deriving a model.TestEntry from whichever shape is
// present.
type legacyTolerantEntry struct {
	State       model.Lifecycle       `json:"state"`
	TargetHash  string                `json:"target_hash,omitempty"`
	History     []model.HistoryEntry  `json:"history,omitempty"`
	LastUpdated *time.Time            `json:"last_updated,omitempty"`
	LegacyRuns  *int                  `json:"runs,omitempty"`
	LegacyPasses *int                 `json:"passes,omitempty"`
}

func (e legacyTolerantEntry) toEntry() *model.TestEntry {
	entry := &model.TestEntry{
		State:      e.State,
		TargetHash: e.TargetHash,
		History:    e.History,
	}
	if entry.State == "" {
		entry.State = model.LifecycleNew
	}
	if e.LastUpdated != nil {
		entry.LastUpdated = *e.LastUpdated
	} else {
		entry.LastUpdated = time.Now().UTC()
	}
	if entry.History == nil {
		entry.History = []model.HistoryEntry{}
	}
	// Legacy scalar runs/passes (pre-history schema) are dropped: they carry
	// no commit/hash detail and are superseded by the next save.
	return entry
}

// Load parses the JSON document at path, attaching the statistical
// parameters used by downstream SPRT calls. On malformed JSON, it starts
// with an empty store (corruption recovery) rather than failing the run. A
// missing file is equivalent to an empty store.
func Load(path string, minReliability, significance float64) *Store {
	s := &Store{path: path, MinReliability: minReliability, Significance: significance, tests: map[model.TestId]*model.TestEntry{}}

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}

	var doc document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return s
	}

	for id, e := range doc.Tests {
		s.tests[id] = e.toEntry()
	}
	return s
}

// GetState returns the lifecycle state for id. Tests absent from the store
// default to stable for filtering purposes.
func (s *Store) GetState(id model.TestId) model.Lifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.tests[id]; ok {
		return e.State
	}
	return model.LifecycleStable
}

// SetState applies newState, updating LastUpdated. newState is stored as
// given; it is not checked against the five lifecycle values. If
// clearHistory is set, History is emptied but TargetHash is preserved.
func (s *Store) SetState(id model.TestId, newState model.Lifecycle, clearHistory bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(id)
	e.State = newState
	if clearHistory {
		e.History = nil
	}
	e.LastUpdated = time.Now().UTC()
}

// RecordRun prepends a HistoryEntry, capping at model.MaxHistoryEntries
// (oldest dropped). Auto-creates the entry with state=new if absent.
func (s *Store) RecordRun(id model.TestId, passed bool, commit, targetHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(id)
	e.History = append([]model.HistoryEntry{{Passed: passed, Commit: commit, TargetHash: targetHash}}, e.History...)
	if len(e.History) > model.MaxHistoryEntries {
		e.History = e.History[:model.MaxHistoryEntries]
	}
	e.LastUpdated = time.Now().UTC()
}

// GetHistory returns the full newest-first history for id.
func (s *Store) GetHistory(id model.TestId) []model.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tests[id]
	if !ok {
		return nil
	}
	out := make([]model.HistoryEntry, len(e.History))
	copy(out, e.History)
	return out
}

// GetSameHashHistory returns, newest-first, every entry of GetHistory(id)
// whose TargetHash equals h. Entries lacking a hash are excluded.
func (s *Store) GetSameHashHistory(id model.TestId, h string) []model.HistoryEntry {
	full := s.GetHistory(id)
	out := make([]model.HistoryEntry, 0, len(full))
	for _, e := range full {
		if e.TargetHash != "" && e.TargetHash == h {
			out = append(out, e)
		}
	}
	return out
}

// SetTargetHash updates the current hash, creating the entry if absent.
func (s *Store) SetTargetHash(id model.TestId, h string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(id)
	e.TargetHash = h
	e.LastUpdated = time.Now().UTC()
}

// GetTargetHash returns the current stored hash for id, if any.
func (s *Store) GetTargetHash(id model.TestId) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tests[id]
	if !ok || e.TargetHash == "" {
		return "", false
	}
	return e.TargetHash, true
}

// InvalidateEvidence clears history and transitions state to burning_in,
// retaining the TargetHash field (the caller typically overwrites it next).
func (s *Store) InvalidateEvidence(id model.TestId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(id)
	e.History = nil
	e.State = model.LifecycleBurningIn
	e.LastUpdated = time.Now().UTC()
}

// LastUpdated returns the stored LastUpdated timestamp for id, or the zero
// time if id is unknown to the store.
func (s *Store) LastUpdated(id model.TestId) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.tests[id]; ok {
		return e.LastUpdated
	}
	return time.Time{}
}

// Ids returns every test id currently known to the store, sorted.
func (s *Store) Ids() []model.TestId {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TestId, 0, len(s.tests))
	for id := range s.tests {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Store) entryLocked(id model.TestId) *model.TestEntry {
	e, ok := s.tests[id]
	if !ok {
		e = &model.TestEntry{State: model.LifecycleNew, History: []model.HistoryEntry{}}
		s.tests[id] = e
	}
	return e
}

// Save writes the document atomically: serialize to a temp file in the same
// directory, fsync it, rename over the final path, then fsync the parent
// directory. A crash between mutations never observes a half-written file —
// the last successful Save is authoritative.
func (s *Store) Save() error {
	s.mu.Lock()
	doc := document{Tests: make(map[model.TestId]legacyTolerantEntry, len(s.tests))}
	for id, e := range s.tests {
		hist := e.History
		if hist == nil {
			hist = []model.HistoryEntry{}
		}
		doc.Tests[id] = legacyTolerantEntry{State: e.State, TargetHash: e.TargetHash, History: hist, LastUpdated: &e.LastUpdated}
	}
	path := s.path
	s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return writeFileAtomicDurable(path, data, 0o644)
}

func writeFileAtomicDurable(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
