package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

var (
	errNoKid = errors.New("token has no kid header")
	// errUnknownKid is returned when the kid is not in the key set and the
	// set was refreshed too recently to fetch again.
	errUnknownKid = errors.New("signing key not found")
	// errKeySetUnavailable marks a failed fetch with no cached key to fall
	// back on. The middleware reports it as an infrastructure failure.
	errKeySetUnavailable = errors.New("signing key set unavailable")
)

// JWKSOptions tunes the key set cache. Zero values use the defaults.
type JWKSOptions struct {
	// TTL is how long a fetched key set is trusted. Default 5m.
	TTL time.Duration
	// MinRefresh is the minimum gap between two fetches, whatever the
	// outcome of the first. Default 30s.
	MinRefresh time.Duration
	Client     *http.Client
}

const (
	defaultJWKSTTL        = 5 * time.Minute
	defaultJWKSMinRefresh = 30 * time.Second
	jwksFetchTimeout      = 5 * time.Second
)

// jwk is one RSA entry of a JWKS document.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// JWKSCache holds the identity provider's RSA signing keys. A kid that is
// missing from the set triggers at most one fetch per MinRefresh, and
// concurrent misses share that fetch.
type JWKSCache struct {
	url        string
	ttl        time.Duration
	minRefresh time.Duration
	client     *http.Client
	group      singleflight.Group

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	attemptAt time.Time
}

func NewJWKSCache(url string, opts JWKSOptions) *JWKSCache {
	if opts.TTL <= 0 {
		opts.TTL = defaultJWKSTTL
	}
	if opts.MinRefresh <= 0 {
		opts.MinRefresh = defaultJWKSMinRefresh
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: jwksFetchTimeout}
	}
	return &JWKSCache{
		url:        url,
		ttl:        opts.TTL,
		minRefresh: opts.MinRefresh,
		client:     opts.Client,
		keys:       make(map[string]*rsa.PublicKey),
	}
}

// GetKey returns the public key for kid. A stale key is still served when
// a refresh is throttled or fails.
func (c *JWKSCache) GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	fresh := time.Since(c.fetchedAt) < c.ttl
	throttled := time.Since(c.attemptAt) < c.minRefresh
	c.mu.RUnlock()

	if ok && fresh {
		return key, nil
	}
	if throttled {
		if ok {
			return key, nil
		}
		return nil, fmt.Errorf("%w: kid %q", errUnknownKid, kid)
	}

	if err := c.refresh(ctx); err != nil {
		if ok {
			return key, nil
		}
		return nil, fmt.Errorf("%w: %v", errKeySetUnavailable, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if key, ok := c.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", errUnknownKid, kid)
}

// refresh fetches the key set once for all concurrent callers. The fetch
// outlives a cancelled caller so the others still get its result.
func (c *JWKSCache) refresh(ctx context.Context) error {
	ch := c.group.DoChan("jwks", func() (any, error) {
		c.mu.Lock()
		if time.Since(c.attemptAt) < c.minRefresh {
			c.mu.Unlock()
			return nil, nil
		}
		c.attemptAt = time.Now()
		c.mu.Unlock()

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jwksFetchTimeout)
		defer cancel()
		keys, err := c.fetch(fctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.keys = keys
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *JWKSCache) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decoding JWKS response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.rsaPublicKey()
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, errors.New("JWKS contains no usable RSA signing keys")
	}
	return keys, nil
}

func (k jwk) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil || len(nBytes) == 0 {
		return nil, fmt.Errorf("bad modulus for kid %q", k.Kid)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil || len(eBytes) == 0 || len(eBytes) > 4 {
		return nil, fmt.Errorf("bad exponent for kid %q", k.Kid)
	}
	e := new(big.Int).SetBytes(eBytes)
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(e.Int64())}, nil
}

// keyFunc binds the cache to one request's context.
func (c *JWKSCache) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errNoKid
		}
		return c.GetKey(ctx, kid)
	}
}
