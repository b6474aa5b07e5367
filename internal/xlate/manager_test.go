package xlate

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renlocalizer/renlocalizer/internal/apperrors"
	"github.com/renlocalizer/renlocalizer/internal/cache"
	"github.com/renlocalizer/renlocalizer/internal/config"
	"github.com/renlocalizer/renlocalizer/internal/model"
)

// fakeAdapter is a deterministic, in-memory Adapter for exercising the
// manager without any network access. failUntil counts down per unique
// request text, then succeeds; calls records every TranslateSingle
// invocation for asserting dedup/retry behavior.
type fakeAdapter struct {
	engine   config.Engine
	fallback config.Engine

	mu        sync.Mutex
	calls     int32
	failUntil map[string]int
	refuse    map[string]bool
}

func newFakeAdapter(engine config.Engine) *fakeAdapter {
	return &fakeAdapter{engine: engine, failUntil: map[string]int{}, refuse: map[string]bool{}}
}

func (f *fakeAdapter) Engine() config.Engine         { return f.engine }
func (f *fakeAdapter) FallbackEngine() config.Engine { return f.fallback }

func (f *fakeAdapter) TranslateSingle(ctx context.Context, req model.TranslationRequest) model.TranslationResult {
	atomic.AddInt32(&f.calls, 1)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.refuse[req.Text] {
		return model.TranslationResult{
			OriginalText: req.Text,
			Success:      false,
			Error:        apperrors.NewTranslationError(apperrors.KindContentFiltered, "refused", nil),
			Metadata:     req.Metadata,
		}
	}

	if n := f.failUntil[req.Text]; n > 0 {
		f.failUntil[req.Text] = n - 1
		return model.TranslationResult{
			OriginalText: req.Text,
			Success:      false,
			Error:        apperrors.NewTranslationError(apperrors.KindTransient, "temporary", nil),
			Metadata:     req.Metadata,
		}
	}

	return model.TranslationResult{
		OriginalText:   req.Text,
		TranslatedText: strings.ToUpper(req.Text),
		Success:        true,
		Confidence:     1,
		Metadata:       req.Metadata,
	}
}

func (f *fakeAdapter) callCount() int { return int(atomic.LoadInt32(&f.calls)) }

func testManager(adapters ...Adapter) *Manager {
	cfg := config.TranslationConfig{
		MaxRetries:         2,
		MaxCharsPerRequest: 6000,
		AdaptInterval:      time.Hour, // effectively disabled for these tests
		ConcurrencyFloor:   4,
		ConcurrencyCap:     8,
	}
	return NewManager(cfg, cache.NewTranslationCache(100), adapters)
}

func req(text string, engine config.Engine) model.TranslationRequest {
	return model.TranslationRequest{
		Text: text, SourceLang: "english", TargetLang: "french", Engine: engine,
		Metadata: model.Metadata{OriginalText: text},
	}
}

func TestTranslateBatchCacheHitSkipsAdapter(t *testing.T) {
	adapter := newFakeAdapter(config.EngineWeb)
	m := testManager(adapter)

	results := m.TranslateBatch(context.Background(), []model.TranslationRequest{req("Hello", config.EngineWeb)})
	require.True(t, results[0].Success)
	assert.Equal(t, "HELLO", results[0].TranslatedText)
	assert.Equal(t, 1, adapter.callCount())

	// Second batch for the same text should come entirely from cache.
	results = m.TranslateBatch(context.Background(), []model.TranslationRequest{req("Hello", config.EngineWeb)})
	require.True(t, results[0].Success)
	assert.Equal(t, 1, adapter.callCount(), "adapter must not be called again on a cache hit")
}

func TestTranslateBatchDedupesIdenticalRequests(t *testing.T) {
	adapter := newFakeAdapter(config.EngineWeb)
	m := testManager(adapter)

	reqs := []model.TranslationRequest{
		req("Hi", config.EngineWeb),
		req("Hi", config.EngineWeb),
		req("Hi", config.EngineWeb),
	}
	results := m.TranslateBatch(context.Background(), reqs)

	assert.Equal(t, 1, adapter.callCount(), "three identical requests should dedupe to one adapter call")
	for _, r := range results {
		assert.True(t, r.Success)
		assert.Equal(t, "HI", r.TranslatedText)
	}
}

func TestTranslateBatchPreservesPerRequestMetadata(t *testing.T) {
	adapter := newFakeAdapter(config.EngineWeb)
	m := testManager(adapter)

	r1 := req("Hi", config.EngineWeb)
	r1.Metadata.LineNumber = 10
	r2 := req("Hi", config.EngineWeb)
	r2.Metadata.LineNumber = 20

	results := m.TranslateBatch(context.Background(), []model.TranslationRequest{r1, r2})
	assert.Equal(t, 10, results[0].Metadata.LineNumber)
	assert.Equal(t, 20, results[1].Metadata.LineNumber)
}

func TestTranslateBatchRetriesTransientFailures(t *testing.T) {
	adapter := newFakeAdapter(config.EngineWeb)
	adapter.failUntil["Hi"] = 2 // fails twice, succeeds on the third attempt

	m := testManager(adapter)
	results := m.TranslateBatch(context.Background(), []model.TranslationRequest{req("Hi", config.EngineWeb)})

	require.True(t, results[0].Success)
	assert.Equal(t, "HI", results[0].TranslatedText)
	assert.Equal(t, 3, adapter.callCount())
}

func TestTranslateBatchFailsAfterMaxRetries(t *testing.T) {
	adapter := newFakeAdapter(config.EngineWeb)
	adapter.failUntil["Hi"] = 10 // never succeeds within max_retries

	m := testManager(adapter)
	results := m.TranslateBatch(context.Background(), []model.TranslationRequest{req("Hi", config.EngineWeb)})

	require.False(t, results[0].Success)
	require.NotNil(t, results[0].Error)
	assert.Equal(t, apperrors.KindTransient, results[0].Error.Kind)
}

func TestTranslateBatchEscalatesContentFilteredToFallback(t *testing.T) {
	primary := newFakeAdapter(config.EngineLLMHosted)
	primary.fallback = config.EngineWeb
	primary.refuse["Hi"] = true

	fallback := newFakeAdapter(config.EngineWeb)

	m := testManager(primary, fallback)
	results := m.TranslateBatch(context.Background(), []model.TranslationRequest{req("Hi", config.EngineLLMHosted)})

	require.True(t, results[0].Success)
	assert.Equal(t, "HI", results[0].TranslatedText)
	assert.Equal(t, 1, fallback.callCount())
}

func TestTranslateBatchContentFilteredWithoutFallbackFails(t *testing.T) {
	primary := newFakeAdapter(config.EngineLLMHosted)
	primary.refuse["Hi"] = true

	m := testManager(primary)
	results := m.TranslateBatch(context.Background(), []model.TranslationRequest{req("Hi", config.EngineLLMHosted)})

	require.False(t, results[0].Success)
	require.NotNil(t, results[0].Error)
	assert.Equal(t, apperrors.KindContentFiltered, results[0].Error.Kind)
}

func TestTranslateBatchUnconfiguredEngineFails(t *testing.T) {
	m := testManager()
	results := m.TranslateBatch(context.Background(), []model.TranslationRequest{req("Hi", config.EngineAPIKey)})

	require.False(t, results[0].Success)
	require.NotNil(t, results[0].Error)
	assert.Equal(t, apperrors.KindFatal, results[0].Error.Kind)
}

func TestCharBoundedGroupsSplitsOnMaxChars(t *testing.T) {
	groups := []*group{
		{request: model.TranslationRequest{Text: strings.Repeat("a", 4000)}},
		{request: model.TranslationRequest{Text: strings.Repeat("b", 4000)}},
		{request: model.TranslationRequest{Text: "c"}},
	}
	batches := charBoundedGroups(groups, 6000)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 1)
	assert.Len(t, batches[1], 2)
}

func TestDedupePreservesFirstSeenOrder(t *testing.T) {
	reqs := []model.TranslationRequest{
		req("b", config.EngineWeb),
		req("a", config.EngineWeb),
		req("b", config.EngineWeb),
	}
	groups := dedupe(reqs)
	require.Len(t, groups, 2)
	assert.Equal(t, "b", groups[0].request.Text)
	assert.Equal(t, []int{0, 2}, groups[0].indices)
	assert.Equal(t, "a", groups[1].request.Text)
	assert.Equal(t, []int{1}, groups[1].indices)
}

func TestNextBackoffStaysWithinBounds(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := nextBackoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, backoffMax)
	}
}

func TestRetryableClassifiesErrorKinds(t *testing.T) {
	assert.True(t, retryable(apperrors.NewTranslationError(apperrors.KindTransient, "", nil)))
	assert.True(t, retryable(apperrors.NewTranslationError(apperrors.KindRateLimited, "", nil)))
	assert.False(t, retryable(apperrors.NewTranslationError(apperrors.KindContentFiltered, "", nil)))
	assert.False(t, retryable(apperrors.NewTranslationError(apperrors.KindStructural, "", nil)))
}

func TestAdaptiveControllerShrinksOnHighFailureRate(t *testing.T) {
	c := newAdaptiveController(4, 64, time.Hour)
	c.current = 32
	c.sem = nil // adaptLocked only touches current/sem under lock; nil is fine until replaced

	for i := 0; i < 25; i++ {
		c.Record(100*time.Millisecond, false)
	}
	// filled >= 20 triggers adaptLocked on the next Record via lastAdapt
	// being zero, so the loop above already adapted at least once.
	assert.Less(t, c.current, int64(32))
}

func TestAdaptiveControllerGrowsOnLowFailureAndLatency(t *testing.T) {
	c := newAdaptiveController(4, 64, time.Hour)
	for i := 0; i < 25; i++ {
		c.Record(10*time.Millisecond, true)
	}
	assert.Greater(t, c.current, int64(4))
}
