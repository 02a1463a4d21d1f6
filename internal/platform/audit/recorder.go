package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/careguard/internal/platform/auth"
	"github.com/ehr/careguard/internal/platform/telemetry"
)

type RecorderOptions struct {
	// Timeout bounds each store write. Zero means 3s.
	Timeout time.Duration
	Metrics *telemetry.Metrics
}

type Recorder struct {
	store   Store
	logger  zerolog.Logger
	timeout time.Duration
	metrics *telemetry.Metrics
	now     func() time.Time
}

func NewRecorder(store Store, logger zerolog.Logger, opts RecorderOptions) *Recorder {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return &Recorder{
		store:   store,
		logger:  logger,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

// Record writes one event. It never returns an error: failures are logged
// with the event and counted. The write uses its own deadline and survives
// cancellation of the request context.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	e := r.prepare(ctx, ev)
	r.emit(e)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.store.Append(wctx, e); err != nil {
		r.fail(err, e)
		return
	}
	r.metrics.ObserveAudit(true)
}

// RecordBatch writes one event per affected item in a single store call.
func (r *Recorder) RecordBatch(ctx context.Context, evs []Event) {
	if len(evs) == 0 {
		return
	}
	prepared := make([]*Event, 0, len(evs))
	for _, ev := range evs {
		e := r.prepare(ctx, ev)
		r.emit(e)
		prepared = append(prepared, e)
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.store.AppendBatch(wctx, prepared); err != nil {
		for _, e := range prepared {
			r.fail(err, e)
		}
		return
	}
	for range prepared {
		r.metrics.ObserveAudit(true)
	}
}

func (r *Recorder) prepare(ctx context.Context, ev Event) *Event {
	e := ev
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}
	if e.ID == "" {
		e.ID = newID(e.CreatedAt)
	}
	if e.ActorID == nil {
		if actor, ok := auth.ActorFromContext(ctx); ok {
			id := actor.ID
			e.ActorID = &id
		}
	}
	meta := MetaFromContext(ctx)
	if e.IPAddress == "" {
		e.IPAddress = meta.IPAddress
	}
	if e.UserAgent == "" {
		e.UserAgent = meta.UserAgent
	}
	if e.RequestID == "" {
		e.RequestID = meta.RequestID
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	return &e
}

func (r *Recorder) emit(e *Event) {
	l := r.logger.Info().
		Str("type", "audit").
		Str("audit_id", e.ID).
		Str("action", e.Action).
		Str("resource_type", string(e.ResourceType)).
		Str("resource_id", e.ResourceID).
		Str("request_id", e.RequestID)
	if e.ActorID != nil {
		l = l.Str("actor_id", e.ActorID.String())
	}
	l.Msg("audit_event")
}

func (r *Recorder) fail(err error, e *Event) {
	r.metrics.ObserveAudit(false)
	r.logger.Error().Err(err).
		Str("audit_id", e.ID).
		Str("action", e.Action).
		Str("resource_type", string(e.ResourceType)).
		Str("resource_id", e.ResourceID).
		Str("request_id", e.RequestID).
		Msg("failed to record audit event")
}
