package healcache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/glaciousm/intent-healer-sub001/api/schemas"
	"github.com/glaciousm/intent-healer-sub001/internal/config"
)

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		MaxSize:              3,
		TTL:                  time.Hour,
		MinConfidenceToCache: 0.8,
		MaxFailures:          3,
	}
}

func newTestCache(t *testing.T, cfg config.CacheConfig) (*Cache, *time.Time) {
	t.Helper()
	c := New(cfg, zap.NewNop())
	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }
	return c, &current
}

func loginKey() Key {
	return NewKey("https://app.example.com/login",
		schemas.LocatorInfo{Strategy: schemas.StrategyID, Value: "login-btn"},
		schemas.ActionClick)
}

func healedLocator() schemas.LocatorInfo {
	return schemas.LocatorInfo{Strategy: schemas.StrategyID, Value: "signin-btn"}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"query stripped", "https://x.example.com/page?a=1&b=2", "https://x.example.com/page"},
		{"fragment stripped", "https://x.example.com/page#section", "https://x.example.com/page"},
		{"numeric segment replaced", "https://x.example.com/users/123/profile", "https://x.example.com/users/{id}/profile"},
		{"multiple numeric segments", "https://x.example.com/orders/42/items/7", "https://x.example.com/orders/{id}/items/{id}"},
		{"host lowercased", "https://App.Example.COM/Login", "https://app.example.com/Login"},
		{"trailing slash trimmed", "https://x.example.com/page/", "https://x.example.com/page"},
		{"mixed segment kept", "https://x.example.com/v2/api", "https://x.example.com/v2/api"},
		{"unparseable returned trimmed", "  not a url  ", "not a url"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeURL(tc.in))
		})
	}
}

func TestNormalizeURLQueryVariantsShareKey(t *testing.T) {
	assert.Equal(t,
		NormalizeURL("https://x.example.com/page?a=1"),
		NormalizeURL("https://x.example.com/page"))
}

func TestKeyFingerprint(t *testing.T) {
	key := loginKey()
	assert.Equal(t, "https://app.example.com/login|ID=login-btn|CLICK", key.Fingerprint())
}

func TestCachePutGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t, testCacheConfig())

	c.Put(loginKey(), healedLocator(), 0.9, "renamed button")

	got, ok := c.Get(loginKey())
	require.True(t, ok)
	assert.Equal(t, healedLocator(), got.Locator)
	assert.Equal(t, 0.9, got.Confidence)
	assert.Equal(t, "renamed button", got.Reasoning)

	stats := c.GetStats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestCacheRejectsLowConfidence(t *testing.T) {
	c, _ := newTestCache(t, testCacheConfig())

	c.Put(loginKey(), healedLocator(), 0.79, "barely a guess")

	_, ok := c.Get(loginKey())
	assert.False(t, ok)
	assert.Equal(t, 0, c.GetStats().Size)
}

func TestCacheTTLExpiry(t *testing.T) {
	c, current := newTestCache(t, testCacheConfig())

	c.Put(loginKey(), healedLocator(), 0.9, "")

	*current = current.Add(59 * time.Minute)
	_, ok := c.Get(loginKey())
	assert.True(t, ok, "entry still inside TTL")

	*current = current.Add(2 * time.Minute)
	_, ok = c.Get(loginKey())
	assert.False(t, ok, "expired entry must miss")
	assert.Equal(t, 0, c.GetStats().Size, "expired entry must be evicted")
}

func TestCacheFailureEviction(t *testing.T) {
	c, _ := newTestCache(t, testCacheConfig())
	key := loginKey()

	c.Put(key, healedLocator(), 0.9, "")
	c.RecordFailure(key)
	c.RecordFailure(key)

	_, ok := c.Get(key)
	assert.True(t, ok, "two failures stay below the threshold")

	c.RecordFailure(key)
	_, ok = c.Get(key)
	assert.False(t, ok, "third failure retires the entry on the next read")
	assert.Equal(t, 0, c.GetStats().Size)
}

func TestCachePutResetsFailureCount(t *testing.T) {
	c, _ := newTestCache(t, testCacheConfig())
	key := loginKey()

	c.Put(key, healedLocator(), 0.9, "")
	c.RecordFailure(key)
	c.RecordFailure(key)
	c.RecordFailure(key)

	// A fresh accepted heal replaces the poisoned entry.
	c.Put(key, schemas.LocatorInfo{Strategy: schemas.StrategyCSS, Value: "button.signin"}, 0.95, "")

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "button.signin", got.Locator.Value)
}

func TestCacheLRUEviction(t *testing.T) {
	c, _ := newTestCache(t, testCacheConfig())

	keys := make([]Key, 4)
	for i := range keys {
		keys[i] = NewKey(fmt.Sprintf("https://app.example.com/page%d", i),
			schemas.LocatorInfo{Strategy: schemas.StrategyID, Value: "btn"},
			schemas.ActionClick)
	}

	c.Put(keys[0], healedLocator(), 0.9, "")
	c.Put(keys[1], healedLocator(), 0.9, "")
	c.Put(keys[2], healedLocator(), 0.9, "")

	// Touch key 0 so key 1 becomes the oldest.
	_, ok := c.Get(keys[0])
	require.True(t, ok)

	c.Put(keys[3], healedLocator(), 0.9, "")

	_, ok = c.Get(keys[1])
	assert.False(t, ok, "least-recently-used entry must be evicted")
	for _, i := range []int{0, 2, 3} {
		_, ok = c.Get(keys[i])
		assert.True(t, ok, "key %d should survive", i)
	}
}

func TestCacheInvalidateAndClear(t *testing.T) {
	c, _ := newTestCache(t, testCacheConfig())
	key := loginKey()

	c.Put(key, healedLocator(), 0.9, "")
	c.Invalidate(key)
	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Put(key, healedLocator(), 0.9, "")
	c.Clear()
	assert.Equal(t, 0, c.GetStats().Size)
}

func TestCacheHitRate(t *testing.T) {
	c, _ := newTestCache(t, testCacheConfig())

	c.Put(loginKey(), healedLocator(), 0.9, "")
	c.Get(loginKey())
	c.Get(NewKey("https://app.example.com/other",
		schemas.LocatorInfo{Strategy: schemas.StrategyID, Value: "x"}, schemas.ActionClick))

	stats := c.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}
