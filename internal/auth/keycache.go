package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/sync/singleflight"

	"userservice/internal/metrics"
)

// maxJWKSBodySize bounds the certs response we are willing to read.
const maxJWKSBodySize = 1 << 20

// SigningKey is one RSA verification key published by the identity provider.
type SigningKey struct {
	KeyID     string
	KeyType   string
	Algorithm string // may be empty when the provider omits "alg"
	Use       string
	Key       *rsa.PublicKey
}

// KeyCache holds the provider's signing keys by key identifier.
//
// Keys are fetched lazily: a lookup miss downloads the whole key set and
// merges every usable RSA entry into the map. Cached keys never expire and are
// never replaced; the provider rotates identifiers instead of reusing them.
// The cache starts no goroutines of its own.
type KeyCache struct {
	jwksURL string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	keys map[string]*SigningKey

	fetches singleflight.Group
}

// KeyCacheOption configures a KeyCache.
type KeyCacheOption func(*KeyCache)

// WithHTTPClient sets the client used for certs requests.
func WithHTTPClient(client *http.Client) KeyCacheOption {
	return func(c *KeyCache) { c.client = client }
}

// WithFetchTimeout bounds each upstream fetch.
func WithFetchTimeout(d time.Duration) KeyCacheOption {
	return func(c *KeyCache) { c.timeout = d }
}

// WithKeyCacheLogger sets the logger.
func WithKeyCacheLogger(logger *slog.Logger) KeyCacheOption {
	return func(c *KeyCache) { c.logger = logger }
}

// WithKeyCacheMetrics records fetches and lookups.
func WithKeyCacheMetrics(m *metrics.Metrics) KeyCacheOption {
	return func(c *KeyCache) { c.metrics = m }
}

// NewKeyCache creates an empty cache for the given certs endpoint.
func NewKeyCache(jwksURL string, opts ...KeyCacheOption) *KeyCache {
	c := &KeyCache{
		jwksURL: jwksURL,
		client:  &http.Client{},
		timeout: 5 * time.Second,
		logger:  slog.Default(),
		keys:    make(map[string]*SigningKey),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetKey returns the key for kid, fetching the provider's key set on a miss.
// It returns ErrKeyNotFound when the key is absent after a fetch and
// ErrKeyFetchFailed when the key set could not be retrieved.
func (c *KeyCache) GetKey(ctx context.Context, kid string) (*SigningKey, error) {
	if key, ok := c.lookup(kid); ok {
		c.metrics.KeyLookup("hit")
		return key, nil
	}
	c.metrics.KeyLookup("miss")

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	key, ok := c.lookup(kid)
	if !ok {
		c.logger.Warn("signing key not in provider key set", "kid", kid, "cached_keys", c.Len())
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}
	return key, nil
}

// Len returns the number of cached keys.
func (c *KeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// Seed inserts keys directly, bypassing the provider.
func (c *KeyCache) Seed(keys ...*SigningKey) {
	c.merge(keys)
}

func (c *KeyCache) lookup(kid string) (*SigningKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[kid]
	return key, ok
}

// refresh fetches the key set and merges it. Concurrent misses share one
// upstream request; each caller still honours its own context.
func (c *KeyCache) refresh(ctx context.Context) error {
	ch := c.fetches.DoChan(c.jwksURL, func() (interface{}, error) {
		// Detached from the first caller so its cancellation does not fail the
		// other waiters; the fixed timeout still bounds the request.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		keys, err := c.fetch(fetchCtx)
		if err != nil {
			c.metrics.JWKSFetch("error")
			return nil, err
		}
		c.metrics.JWKSFetch("success")
		c.merge(keys)
		return len(keys), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrKeyFetchFailed, ctx.Err())
	}
}

// merge inserts keys whose identifiers are not cached yet.
func (c *KeyCache) merge(keys []*SigningKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if _, exists := c.keys[k.KeyID]; !exists {
			c.keys[k.KeyID] = k
		}
	}
}

// jwksEntry holds the members of a JWK we filter on before full parsing.
type jwksEntry struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDocument struct {
	Keys []json.RawMessage `json:"keys"`
}

// fetch downloads and parses the key set. No cache state is touched here.
func (c *KeyCache) fetch(ctx context.Context) ([]*SigningKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrKeyFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("key set fetch failed", "url", c.jwksURL, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrKeyFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("key set fetch returned non-success status",
			"url", c.jwksURL,
			"status", resp.StatusCode,
			"body", string(body),
		)
		return nil, fmt.Errorf("%w: unexpected status %d", ErrKeyFetchFailed, resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBodySize)).Decode(&doc); err != nil {
		c.logger.Error("key set body could not be decoded", "url", c.jwksURL, "error", err)
		return nil, fmt.Errorf("%w: decode key set: %w", ErrKeyFetchFailed, err)
	}

	keys := make([]*SigningKey, 0, len(doc.Keys))
	for _, raw := range doc.Keys {
		key, err := parseSigningKey(raw)
		if err != nil {
			c.logger.Warn("skipping unusable key set entry", "error", err)
			continue
		}
		if key != nil {
			keys = append(keys, key)
		}
	}

	c.logger.Info("key set fetched",
		"url", c.jwksURL,
		"entries", len(doc.Keys),
		"usable", len(keys),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return keys, nil
}

// parseSigningKey converts one JWK into a SigningKey. Entries that are not RSA
// or lack a modulus or exponent return (nil, nil).
func parseSigningKey(raw json.RawMessage) (*SigningKey, error) {
	var entry jwksEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	if entry.Kty != "RSA" || entry.N == "" || entry.E == "" {
		return nil, nil
	}
	if entry.Kid == "" {
		return nil, fmt.Errorf("RSA entry without kid")
	}

	parsed, err := jwk.ParseKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse kid %q: %w", entry.Kid, err)
	}
	var pub rsa.PublicKey
	if err := parsed.Raw(&pub); err != nil {
		return nil, fmt.Errorf("convert kid %q: %w", entry.Kid, err)
	}

	return &SigningKey{
		KeyID:     entry.Kid,
		KeyType:   entry.Kty,
		Algorithm: entry.Alg,
		Use:       entry.Use,
		Key:       &pub,
	}, nil
}
