package audit

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MemoryStore keeps events in process. It backs tests and can be failed on
// demand to exercise the recorder's error path.
type MemoryStore struct {
	mu     sync.Mutex
	events []*Event
	// FailWith, when set, is returned by every append.
	FailWith error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var errNilEvent = errors.New("audit: nil event")

func (s *MemoryStore) Append(ctx context.Context, e *Event) error {
	return s.AppendBatch(ctx, []*Event{e})
}

func (s *MemoryStore) AppendBatch(_ context.Context, evs []*Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	for _, e := range evs {
		if e == nil {
			return errNilEvent
		}
		cp := *e
		s.events = append(s.events, &cp)
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Event, 0)
	for _, e := range s.events {
		if f.ActorID != nil && (e.ActorID == nil || *e.ActorID != *f.ActorID) {
			continue
		}
		if f.ResourceType != "" && string(e.ResourceType) != f.ResourceType {
			continue
		}
		if f.ResourceID != "" && e.ResourceID != f.ResourceID {
			continue
		}
		if f.Before != "" && e.ID >= f.Before {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > f.limit() {
		out = out[:f.limit()]
	}
	return out, nil
}

// Events returns every stored event in insertion order.
func (s *MemoryStore) Events() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Event, len(s.events))
	copy(out, s.events)
	return out
}
