// Package auth authenticates bearer tokens and resolves the caller into a
// policy.Actor. The token only proves identity; role and facility always
// come from the user directory so role changes and deactivation take
// effect without waiting for tokens to expire.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/policy"
)

// ActorSource resolves a token subject into the caller's current role and
// facility. Implementations return an apperr NotFound or Unauthorized error
// for unknown or inactive users.
type ActorSource interface {
	ResolveActor(ctx context.Context, userID uuid.UUID) (policy.Actor, error)
}

type Claims struct {
	jwt.RegisteredClaims
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey enables HS256 verification for development and tests.
	SigningKey []byte
	JWKS       JWKSOptions

	Actors      ActorSource
	Revocations *RevocationList
	Logger      zerolog.Logger
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	// Each mode accepts exactly one algorithm.
	var keyFunc func(context.Context) jwt.Keyfunc
	method := "RS256"
	if len(cfg.SigningKey) > 0 {
		method = "HS256"
		keyFunc = func(context.Context) jwt.Keyfunc {
			return func(*jwt.Token) (any, error) { return cfg.SigningKey, nil }
		}
	} else {
		keyFunc = NewJWKSCache(cfg.JWKSURL, cfg.JWKS).keyFunc
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := bearerToken(c.Request())
			if err != nil {
				return err
			}

			ctx := c.Request().Context()
			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, keyFunc(ctx), opts...)
			if errors.Is(err, errKeySetUnavailable) {
				return apperr.Infrastructure(err, "signing keys unavailable")
			}
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			if cfg.Revocations != nil && claims.ID != "" {
				revoked, err := cfg.Revocations.IsRevoked(ctx, claims.ID)
				if err != nil {
					return apperr.Infrastructure(err, "token revocation check failed")
				}
				if revoked {
					return echo.NewHTTPError(http.StatusUnauthorized, "token revoked")
				}
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
			}

			actor, err := cfg.Actors.ResolveActor(ctx, userID)
			if err != nil {
				switch apperr.KindOf(err) {
				case apperr.KindNotFound, apperr.KindUnauthorized:
					cfg.Logger.Info().Str("user_id", userID.String()).Msg("token subject not active")
					return echo.NewHTTPError(http.StatusUnauthorized, "user not found or inactive")
				default:
					return apperr.Infrastructure(err, "identity lookup failed")
				}
			}

			ctx = ContextWithActor(ctx, actor)
			ctx = contextWithClaims(ctx, claims)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("actor_id", actor.ID.String())

			return next(c)
		}
	}
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

// DevAuthMiddleware lets unauthenticated requests through as dev. Requests
// that do carry a bearer token still go through verify.
func DevAuthMiddleware(dev policy.Actor, verify echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		verified := verify(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" {
				return verified(c)
			}
			ctx := ContextWithActor(c.Request().Context(), dev)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("actor_id", dev.ID.String())
			return next(c)
		}
	}
}
