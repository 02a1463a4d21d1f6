package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/careguard/internal/platform/cache"
	"github.com/ehr/careguard/internal/platform/policy"
)

const actorPrefix = "auth:actor:"

// CachedActorSource memoizes ResolveActor for a short TTL. Cache failures
// fall through to the wrapped source.
type CachedActorSource struct {
	src    ActorSource
	cache  cache.Cache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedActorSource(src ActorSource, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *CachedActorSource {
	return &CachedActorSource{src: src, cache: c, ttl: ttl, logger: logger}
}

func (s *CachedActorSource) ResolveActor(ctx context.Context, userID uuid.UUID) (policy.Actor, error) {
	key := actorPrefix + userID.String()

	b, err := s.cache.Get(ctx, key)
	if err == nil {
		var a policy.Actor
		if jsonErr := json.Unmarshal(b, &a); jsonErr == nil {
			return a, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn().Err(err).Msg("actor cache read failed")
	}

	a, err := s.src.ResolveActor(ctx, userID)
	if err != nil {
		return policy.Actor{}, err
	}

	if b, err := json.Marshal(a); err == nil {
		if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
			s.logger.Warn().Err(err).Msg("actor cache write failed")
		}
	}
	return a, nil
}

// Invalidate drops the cached actor so the next request sees role or status
// changes immediately.
func (s *CachedActorSource) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return s.cache.Delete(ctx, actorPrefix+userID.String())
}
