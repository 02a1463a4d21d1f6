// Package guard resolves a protected resource and checks the caller's access
// to it in one step. Each check performs exactly one projection lookup and
// produces one of four outcomes; the projection is handed to the handler so
// it is never fetched twice.
package guard

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/policy"
	"github.com/ehr/careguard/internal/platform/telemetry"
)

// ProjectionStore loads the minimal access projection of a resource.
// Absence must be reported as an apperr not-found error.
type ProjectionStore interface {
	FetchProjection(ctx context.Context, rt policy.ResourceType, id uuid.UUID) (*policy.Resource, error)
}

type Outcome int

const (
	OutcomeAllowed Outcome = iota
	OutcomeNotFound
	OutcomeForbidden
	OutcomeLookupError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeForbidden:
		return "forbidden"
	default:
		return "lookup_error"
	}
}

// Result of a guarded check. Resource is set whenever the lookup succeeded,
// including forbidden outcomes.
type Result struct {
	Outcome      Outcome
	ResourceType policy.ResourceType
	Reason       string
	Resource     *policy.Resource
	Err          error
}

func (r Result) Allowed() bool { return r.Outcome == OutcomeAllowed }

// Error converts a non-allowed result into the apperr taxonomy. It returns
// nil for allowed results.
func (r Result) Error() error {
	switch r.Outcome {
	case OutcomeAllowed:
		return nil
	case OutcomeNotFound:
		return apperr.NotFound("%s not found", r.ResourceType)
	case OutcomeForbidden:
		return apperr.Forbidden("%s", r.Reason)
	default:
		return apperr.Infrastructure(r.Err, "%s lookup failed", r.ResourceType)
	}
}

type Options struct {
	// Timeout bounds each lookup. Zero means 3s.
	Timeout time.Duration
	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
}

type Guard struct {
	store   ProjectionStore
	ev      *policy.Evaluator
	timeout time.Duration
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

func New(store ProjectionStore, ev *policy.Evaluator, opts Options) *Guard {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return &Guard{
		store:   store,
		ev:      ev,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// Evaluator exposes the policy the guard applies.
func (g *Guard) Evaluator() *policy.Evaluator { return g.ev }

// Check loads rt/id and decides whether actor may perform action on it.
func (g *Guard) Check(ctx context.Context, actor policy.Actor, action policy.Action, rt policy.ResourceType, id uuid.UUID) Result {
	res, failed := g.lookup(ctx, rt, id)
	if failed != nil {
		return g.finish(actor, action, *failed)
	}
	d := g.ev.Evaluate(actor, action, *res)
	return g.finish(actor, action, decided(rt, res, d))
}

// CheckCreate loads the parent a new child will be created under and
// decides creation of child from the parent's owner and facility. The
// returned Resource is the parent.
func (g *Guard) CheckCreate(ctx context.Context, actor policy.Actor, child policy.ResourceType, parentType policy.ResourceType, parentID uuid.UUID) Result {
	return g.CheckChild(ctx, actor, policy.ActionCreate, child, parentType, parentID)
}

// CheckChild is CheckCreate for any action on the children of a parent.
func (g *Guard) CheckChild(ctx context.Context, actor policy.Actor, action policy.Action, child policy.ResourceType, parentType policy.ResourceType, parentID uuid.UUID) Result {
	res, failed := g.lookup(ctx, parentType, parentID)
	if failed != nil {
		return g.finish(actor, action, *failed)
	}
	d := g.ev.EvaluateChild(actor, action, child, *res)
	return g.finish(actor, action, decided(parentType, res, d))
}

func (g *Guard) lookup(ctx context.Context, rt policy.ResourceType, id uuid.UUID) (*policy.Resource, *Result) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := g.store.FetchProjection(ctx, rt, id)
	switch {
	case err == nil && res != nil:
		return res, nil
	case err == nil, errors.Is(err, apperr.ErrNotFound):
		return nil, &Result{Outcome: OutcomeNotFound, ResourceType: rt, Reason: "resource not found"}
	default:
		return nil, &Result{Outcome: OutcomeLookupError, ResourceType: rt, Reason: "lookup failed", Err: err}
	}
}

func decided(rt policy.ResourceType, res *policy.Resource, d policy.Decision) Result {
	out := OutcomeAllowed
	if !d.Allowed {
		out = OutcomeForbidden
	}
	return Result{Outcome: out, ResourceType: rt, Reason: d.Reason, Resource: res}
}

func (g *Guard) finish(actor policy.Actor, action policy.Action, r Result) Result {
	g.metrics.ObserveDecision(string(r.ResourceType), string(action), r.Outcome.String())

	var ev *zerolog.Event
	switch r.Outcome {
	case OutcomeAllowed:
		ev = g.logger.Debug()
	case OutcomeLookupError:
		ev = g.logger.Error().Err(r.Err)
	default:
		ev = g.logger.Info()
	}
	ev = ev.Str("actor_id", actor.ID.String()).
		Str("role", string(actor.Role)).
		Str("action", string(action)).
		Str("resource_type", string(r.ResourceType)).
		Str("outcome", r.Outcome.String()).
		Str("reason", r.Reason)
	if r.Resource != nil {
		ev = ev.Str("resource_id", r.Resource.ID.String())
	}
	ev.Msg("access decision")
	return r
}
