// Package events adapts the execution trace model to test orchestration:
// a canonically-ordered, deterministically-serialized log of the
// decisions a run made, hashed for cheap diffing between runs. Unlike a
// build cache's trace, events here are execution- and lifecycle-flavored
// rather than cache-flavored.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"
	"encoding/hex"
)

// Kind is the stable discriminator for an Event; values are part of the
// canonical bytes and must never be renamed once shipped.
type Kind string

const (
	KindTestExecuted          Kind = "TestExecuted"
	KindTestFailed            Kind = "TestFailed"
	KindTestSkipped           Kind = "TestSkipped"
	KindLifecycleTransitioned Kind = "LifecycleTransitioned"
	KindDeadlineDisabled      Kind = "DeadlineDisabled"
)

// Event is a single logical transition or decision made during a run. No
// timestamps, pointers, or other runtime-dependent values — only the
// logical facts needed to reconstruct "what happened."
type Event struct {
	Kind     Kind
	TestID   string
	OldState string
	Reason   string
}

// Log is the ordered collection of events for one run, canonicalized and
// hashed the same way ExecutionTrace is in the teacher's trace engine.
type Log struct {
	Events []Event
}

func kindOrder(k Kind) int {
	switch k {
	case KindTestExecuted:
		return 10
	case KindTestFailed:
		return 20
	case KindTestSkipped:
		return 30
	case KindLifecycleTransitioned:
		return 40
	case KindDeadlineDisabled:
		return 50
	default:
		return 1000
	}
}

// Canonicalize sorts events by (TestID, kindOrder, Reason, OldState),
// giving a total order independent of execution timing or concurrency.
func (l *Log) Canonicalize() {
	sort.SliceStable(l.Events, func(i, j int) bool {
		a, b := l.Events[i], l.Events[j]
		if a.TestID != b.TestID {
			return a.TestID < b.TestID
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		return a.OldState < b.OldState
	})
}

// Validate checks that every event carries a non-empty kind and a TestID.
func (l *Log) Validate() error {
	for i, e := range l.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.TestID == "" {
			return fmt.Errorf("events[%d].testId is required", i)
		}
	}
	return nil
}

// CanonicalJSON returns the canonical JSON encoding of a canonicalized copy
// of l, without mutating the caller's slice.
func (l Log) CanonicalJSON() ([]byte, error) {
	cp := Log{Events: make([]Event, len(l.Events))}
	copy(cp.Events, l.Events)
	cp.Canonicalize()
	if err := cp.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"events":[`)
	for i, e := range cp.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString(`]}`)
	return buf.Bytes(), nil
}

// Hash returns the hex-encoded blake3 digest of the log's canonical JSON,
// surfaced on the Report as events_hash.
func (l Log) Hash() (string, error) {
	b, err := l.CanonicalJSON()
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", errors.New("empty canonical encoding")
	}
	h := blake3.New()
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil)), nil
}
