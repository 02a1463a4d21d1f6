package auth

import (
	"context"
	"time"

	"github.com/ehr/careguard/internal/platform/cache"
)

const revokedPrefix = "auth:revoked:"

// RevocationList tracks revoked token IDs (jti) until the tokens would have
// expired anyway. It is backed by the shared cache so revocations are seen
// by every replica when Redis is configured.
type RevocationList struct {
	cache cache.Cache
	now   func() time.Time
}

func NewRevocationList(c cache.Cache) *RevocationList {
	return &RevocationList{cache: c, now: time.Now}
}

// Revoke blacklists jti until expiresAt. Already-expired tokens are ignored.
func (r *RevocationList) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.cache.Set(ctx, revokedPrefix+jti, []byte{1}, ttl)
}

func (r *RevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return r.cache.Exists(ctx, revokedPrefix+jti)
}
