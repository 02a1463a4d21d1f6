package audit

import (
	"context"

	"github.com/ehr/careguard/internal/platform/policy"
)

// Spec describes the event produced by a successful mutation returning T.
type Spec[T any] struct {
	Action       string
	ResourceType policy.ResourceType
	ResourceID   func(T) string
	// Details should carry human-readable identifiers (numbers, titles,
	// emails) so the trail stays readable after the resource changes.
	Details func(T) map[string]any
}

func (s Spec[T]) event(v T) Event {
	ev := Event{Action: s.Action, ResourceType: s.ResourceType}
	if s.ResourceID != nil {
		ev.ResourceID = s.ResourceID(v)
	}
	if s.Details != nil {
		ev.Details = s.Details(v)
	}
	return ev
}

// Mutate runs fn and, only if it succeeds, records exactly one event built
// from its result. Services route every protected mutation through Mutate so
// no success path can skip the audit trail.
func Mutate[T any](ctx context.Context, rec *Recorder, spec Spec[T], fn func(ctx context.Context) (T, error)) (T, error) {
	out, err := fn(ctx)
	if err != nil {
		return out, err
	}
	rec.Record(ctx, spec.event(out))
	return out, nil
}

// MutateEach is Mutate for bulk operations: one event per returned item.
func MutateEach[T any](ctx context.Context, rec *Recorder, spec Spec[T], fn func(ctx context.Context) ([]T, error)) ([]T, error) {
	out, err := fn(ctx)
	if err != nil {
		return out, err
	}
	evs := make([]Event, 0, len(out))
	for _, v := range out {
		evs = append(evs, spec.event(v))
	}
	rec.RecordBatch(ctx, evs)
	return out, nil
}
