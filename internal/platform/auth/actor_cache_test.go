package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/careguard/internal/platform/cache"
	"github.com/ehr/careguard/internal/platform/policy"
)

func TestCachedActorSource(t *testing.T) {
	ctx := context.Background()
	uid := uuid.New()
	src := &fakeActorSource{actors: map[uuid.UUID]policy.Actor{uid: {ID: uid, Role: policy.RoleStaff}}}
	cached := NewCachedActorSource(src, cache.NewMemory(), time.Minute, zerolog.Nop())

	for i := 0; i < 3; i++ {
		a, err := cached.ResolveActor(ctx, uid)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Role != policy.RoleStaff {
			t.Errorf("unexpected role %s", a.Role)
		}
	}
	if src.calls != 1 {
		t.Errorf("expected 1 directory lookup, got %d", src.calls)
	}

	src.actors[uid] = policy.Actor{ID: uid, Role: policy.RoleNurse}
	_ = cached.Invalidate(ctx, uid)

	a, _ := cached.ResolveActor(ctx, uid)
	if a.Role != policy.RoleNurse {
		t.Errorf("expected role change to be visible after invalidate, got %s", a.Role)
	}
}

func TestCachedActorSource_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	src := &fakeActorSource{actors: map[uuid.UUID]policy.Actor{}}
	cached := NewCachedActorSource(src, cache.NewMemory(), time.Minute, zerolog.Nop())

	uid := uuid.New()
	_, _ = cached.ResolveActor(ctx, uid)
	_, _ = cached.ResolveActor(ctx, uid)
	if src.calls != 2 {
		t.Errorf("expected failures to bypass the cache, got %d calls", src.calls)
	}
}
