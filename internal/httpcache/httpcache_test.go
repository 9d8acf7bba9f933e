package httpcache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dcsp-io/dcsp/internal/httpcache"
)

func TestDeriveLifecycle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, httpcache.LifecycleInitializing, httpcache.DeriveLifecycle("valid", 30, 25, false, false, false))
	assert.Equal(t, httpcache.LifecycleLive, httpcache.DeriveLifecycle("valid", 30, 25, true, false, false))
	assert.Equal(t, httpcache.LifecycleStale, httpcache.DeriveLifecycle("valid", 30, 25, true, true, false))
	assert.Equal(t, httpcache.LifecycleStale, httpcache.DeriveLifecycle("valid", 30, 25, true, false, true))
	assert.Equal(t, httpcache.LifecycleEmptyValid, httpcache.DeriveLifecycle("unavailable", 0, 25, true, false, false))
	assert.Equal(t, httpcache.LifecycleUnavailable, httpcache.DeriveLifecycle("invalid", 5, 25, true, false, false))
}

func TestMapRead_LiveValidIsCacheEligible200(t *testing.T) {
	t.Parallel()

	m := httpcache.MapRead(httpcache.LifecycleLive, "valid", "", nil)
	assert.Equal(t, 200, m.HTTPStatus)
	assert.Equal(t, "public, max-age=300, s-maxage=900", m.CacheControl)
	assert.True(t, m.Eligible)
}

func TestMapRead_InitializingIs202NoStore(t *testing.T) {
	t.Parallel()

	m := httpcache.MapRead(httpcache.LifecycleInitializing, "valid", "", nil)
	assert.Equal(t, 202, m.HTTPStatus)
	assert.Equal(t, "no-store", m.CacheControl)
	assert.Equal(t, 30, m.RetryAfter)
	assert.False(t, m.Eligible)
}

func TestMapRead_StaleIs503(t *testing.T) {
	t.Parallel()

	m := httpcache.MapRead(httpcache.LifecycleStale, "valid", "", nil)
	assert.Equal(t, 503, m.HTTPStatus)
	assert.Equal(t, 60, m.RetryAfter)
	assert.False(t, m.Eligible)
}

func TestMapRead_EmptyValidIs204(t *testing.T) {
	t.Parallel()

	m := httpcache.MapRead(httpcache.LifecycleEmptyValid, "unavailable", "", nil)
	assert.Equal(t, 204, m.HTTPStatus)
	assert.Equal(t, "no-store", m.CacheControl)
}

// TestMapWrite_SchemaIncompatibleIs422 covers the write-reporting
// endpoint's branch (spec.md §4.9): a batch that fails schema validation
// at write time is never staged, so the attempt itself reports 422.
func TestMapWrite_SchemaIncompatibleIs422(t *testing.T) {
	t.Parallel()

	incompatible := false
	m := httpcache.MapWrite(httpcache.LifecycleLive, "valid", "3.0.0", &incompatible)
	assert.Equal(t, 422, m.HTTPStatus)
	assert.Equal(t, "no-store", m.CacheControl)
	assert.False(t, m.Eligible)
	assert.False(t, m.Renderability.Renderable)
	assert.Equal(t, httpcache.CompatIncompatible, m.Renderability.ConsumerCompatibility)
}

// TestMapRead_SchemaIncompatibleStaysLiveAndCacheEligible covers a
// dataset committed while compatible with an older active schema version:
// once the active schema moves on, Validated Read still serves 200 and
// cache-eligible -- schema drift surfaces only through Renderability,
// never as a 422, which is reserved for the write-reporting endpoint.
func TestMapRead_SchemaIncompatibleStaysLiveAndCacheEligible(t *testing.T) {
	t.Parallel()

	incompatible := false
	m := httpcache.MapRead(httpcache.LifecycleLive, "valid", "2.0.0", &incompatible)
	assert.Equal(t, 200, m.HTTPStatus)
	assert.Equal(t, "public, max-age=300, s-maxage=900", m.CacheControl)
	assert.True(t, m.Eligible)
	assert.False(t, m.Renderability.Renderable)
	assert.Equal(t, httpcache.CompatIncompatible, m.Renderability.ConsumerCompatibility)
}

func TestRenderability_NoSchemaDeclaredIsUnknownButRenderable(t *testing.T) {
	t.Parallel()

	m := httpcache.MapRead(httpcache.LifecycleLive, "valid", "", nil)
	assert.True(t, m.Renderability.Renderable)
	assert.Equal(t, httpcache.CompatUnknown, m.Renderability.ConsumerCompatibility)
}
