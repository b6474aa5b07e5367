package xlate

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/renlocalizer/renlocalizer/internal/apperrors"
	"github.com/renlocalizer/renlocalizer/internal/cache"
	"github.com/renlocalizer/renlocalizer/internal/config"
	"github.com/renlocalizer/renlocalizer/internal/model"
)

// Manager is the translation manager of spec.md §4.4: the single owner of
// caching, deduplication, retry/backoff, and adaptive concurrency across
// whichever Adapter a request names.
type Manager struct {
	cfg      config.TranslationConfig
	cache    *cache.TranslationCache
	adapters map[config.Engine]Adapter

	controller *adaptiveController
}

// NewManager builds a Manager over the given adapters, keyed by the engine
// each one serves (Adapter.Engine()).
func NewManager(cfg config.TranslationConfig, c *cache.TranslationCache, adapters []Adapter) *Manager {
	byEngine := make(map[config.Engine]Adapter, len(adapters))
	for _, a := range adapters {
		byEngine[a.Engine()] = a
	}
	return &Manager{
		cfg:        cfg,
		cache:      c,
		adapters:   byEngine,
		controller: newAdaptiveController(cfg.ConcurrencyFloor, cfg.ConcurrencyCap, cfg.AdaptInterval),
	}
}

// TranslateBatch is the manager's sole entry point: it resolves cache hits,
// deduplicates the remainder, dispatches through whichever adapter each
// request names (multi-query transport when available, bounded-concurrency
// singletons with retry otherwise), and returns one result per input
// request in the same order, with Metadata preserved per-request even when
// several requests shared one underlying translation.
func (m *Manager) TranslateBatch(ctx context.Context, reqs []model.TranslationRequest) []model.TranslationResult {
	results := make([]model.TranslationResult, len(reqs))
	pendingIdx := make([]int, 0, len(reqs))

	for i, r := range reqs {
		if m.cache != nil {
			if cached, ok := m.cache.Get(m.cacheKey(r)); ok {
				results[i] = model.TranslationResult{
					OriginalText:   r.Text,
					TranslatedText: cached,
					SourceLang:     r.SourceLang,
					TargetLang:     r.TargetLang,
					Engine:         r.Engine,
					Success:        true,
					Confidence:     1.0,
					Metadata:       r.Metadata,
				}
				continue
			}
		}
		pendingIdx = append(pendingIdx, i)
	}
	if len(pendingIdx) == 0 {
		return results
	}

	pending := make([]model.TranslationRequest, len(pendingIdx))
	for i, idx := range pendingIdx {
		pending[i] = reqs[idx]
	}
	groups := dedupe(pending)

	byEngine := make(map[config.Engine][]*group)
	for _, g := range groups {
		byEngine[g.request.Engine] = append(byEngine[g.request.Engine], g)
	}

	var wg sync.WaitGroup
	for engine, engineGroups := range byEngine {
		adapter, ok := m.adapters[engine]
		if !ok {
			for _, g := range engineGroups {
				m.fillFailure(results, reqs, pendingIdx, g, notConfiguredError(engine))
			}
			continue
		}
		wg.Add(1)
		go func(adapter Adapter, groups []*group) {
			defer wg.Done()
			m.dispatchEngine(ctx, adapter, groups, results, reqs, pendingIdx)
		}(adapter, engineGroups)
	}
	wg.Wait()

	return results
}

func notConfiguredError(engine config.Engine) *apperrors.TranslationError {
	return &apperrors.TranslationError{Kind: apperrors.KindFatal, Detail: "no adapter configured for engine " + string(engine)}
}

func (m *Manager) cacheKey(r model.TranslationRequest) cache.CacheKey {
	return cache.CacheKey{Engine: r.Engine, SourceLang: r.SourceLang, TargetLang: r.TargetLang, Text: r.Text}
}

// dispatchEngine routes groups through adapter: multi-query transport when
// the adapter supports it, bounded-concurrency retrying singletons
// otherwise.
func (m *Manager) dispatchEngine(ctx context.Context, adapter Adapter, groups []*group, results []model.TranslationResult, reqs []model.TranslationRequest, pendingIdx []int) {
	if mqa, ok := adapter.(MultiQueryAdapter); ok {
		batches := charBoundedGroups(groups, m.cfg.MaxCharsPerRequest)
		outcomes := dispatchMultiQuery(ctx, mqa, batches)
		var retrySingleton []*group
		for _, g := range groups {
			o := outcomes[g]
			if o.err != nil {
				retrySingleton = append(retrySingleton, g)
				continue
			}
			m.controller.Record(o.latency, true)
			m.recordSuccess(results, reqs, pendingIdx, g, o.text)
		}
		if len(retrySingleton) > 0 {
			m.dispatchSingletons(ctx, adapter, retrySingleton, results, reqs, pendingIdx)
		}
		return
	}
	m.dispatchSingletons(ctx, adapter, groups, results, reqs, pendingIdx)
}

func (m *Manager) dispatchSingletons(ctx context.Context, adapter Adapter, groups []*group, results []model.TranslationResult, reqs []model.TranslationRequest, pendingIdx []int) {
	var wg sync.WaitGroup
	for _, g := range groups {
		sem := m.controller.Semaphore()
		if err := sem.Acquire(ctx, 1); err != nil {
			m.fillFailure(results, reqs, pendingIdx, g, &apperrors.TranslationError{Kind: apperrors.KindTransient, Detail: "concurrency acquire", Cause: err})
			continue
		}
		wg.Add(1)
		go func(g *group, sem interface{ Release(int64) }) {
			defer wg.Done()
			defer sem.Release(1)
			m.retryGroup(ctx, adapter, g, results, reqs, pendingIdx)
		}(g, sem)
	}
	wg.Wait()
}

// retryGroup runs one representative request through adapter, retrying
// retryable failures up to max_retries times with backoff, and escalating
// to a fallback engine on a content-filtered refusal.
func (m *Manager) retryGroup(ctx context.Context, adapter Adapter, g *group, results []model.TranslationResult, reqs []model.TranslationRequest, pendingIdx []int) {
	maxRetries := m.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var last model.TranslationResult
retryLoop:
	for attempt := 0; attempt <= maxRetries; attempt++ {
		start := time.Now()
		last = adapter.TranslateSingle(ctx, g.request)
		elapsed := time.Since(start)
		m.controller.Record(elapsed, last.Success)

		if last.Success {
			m.recordSuccess(results, reqs, pendingIdx, g, last.TranslatedText)
			return
		}

		if last.Error != nil && last.Error.Kind == apperrors.KindContentFiltered {
			if fb, ok := adapter.(FallbackCapable); ok {
				if fallback, ok := m.adapters[fb.FallbackEngine()]; ok {
					log.Warnf("xlate: %s refused %q, escalating to fallback engine %s", adapter.Engine(), truncate(g.request.Text, 40), fb.FallbackEngine())
					fbResult := fallback.TranslateSingle(ctx, g.request)
					if fbResult.Success {
						m.recordSuccess(results, reqs, pendingIdx, g, fbResult.TranslatedText)
						return
					}
					last = fbResult
				}
			}
			break retryLoop
		}

		if !retryable(last.Error) || attempt == maxRetries {
			break retryLoop
		}
		select {
		case <-ctx.Done():
			break retryLoop
		case <-time.After(nextBackoff(attempt)):
		}
	}

	m.fillFailureResult(results, reqs, pendingIdx, g, last)
}

func (m *Manager) recordSuccess(results []model.TranslationResult, reqs []model.TranslationRequest, pendingIdx []int, g *group, translated string) {
	if m.cache != nil {
		m.cache.Set(m.cacheKey(g.request), translated)
	}
	for _, pi := range g.indices {
		origIdx := pendingIdx[pi]
		req := reqs[origIdx]
		results[origIdx] = model.TranslationResult{
			OriginalText:   req.Text,
			TranslatedText: translated,
			SourceLang:     req.SourceLang,
			TargetLang:     req.TargetLang,
			Engine:         req.Engine,
			Success:        true,
			Confidence:     0.9,
			Metadata:       req.Metadata,
		}
	}
}

func (m *Manager) fillFailure(results []model.TranslationResult, reqs []model.TranslationRequest, pendingIdx []int, g *group, te *apperrors.TranslationError) {
	for _, pi := range g.indices {
		origIdx := pendingIdx[pi]
		req := reqs[origIdx]
		results[origIdx] = model.TranslationResult{
			OriginalText: req.Text,
			SourceLang:   req.SourceLang,
			TargetLang:   req.TargetLang,
			Engine:       req.Engine,
			Success:      false,
			Error:        te,
			Metadata:     req.Metadata,
		}
	}
}

func (m *Manager) fillFailureResult(results []model.TranslationResult, reqs []model.TranslationRequest, pendingIdx []int, g *group, last model.TranslationResult) {
	for _, pi := range g.indices {
		origIdx := pendingIdx[pi]
		req := reqs[origIdx]
		r := last
		r.OriginalText = req.Text
		r.SourceLang = req.SourceLang
		r.TargetLang = req.TargetLang
		r.Engine = req.Engine
		r.Metadata = req.Metadata
		r.Success = false
		results[origIdx] = r
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
