// Package xlate is the translation manager: the single place that owns
// caching, deduplication, retry/backoff, and adaptive concurrency across
// whichever engine adapter is configured (spec.md §4.4 "the manager owns
// caching, deduplication, retry, and concurrency limits — adapters do
// not").
package xlate

import (
	"context"

	"github.com/renlocalizer/renlocalizer/internal/config"
	"github.com/renlocalizer/renlocalizer/internal/model"
)

// Adapter is the contract every translation backend implements. Adapters
// are intentionally dumb: no caching, no retry, no concurrency limiting —
// that is all the manager's job.
type Adapter interface {
	// Engine identifies which config.Engine this adapter serves.
	Engine() config.Engine
	// TranslateSingle translates exactly one request.
	TranslateSingle(ctx context.Context, req model.TranslationRequest) model.TranslationResult
}

// MultiQueryAdapter is an optional capability for adapters that can carry
// several texts in one wire call (spec.md §4.4 "Batched multi-query
// transport", notably the web-scraping engine). The manager type-asserts
// for this before falling back to bounded-concurrency singleton dispatch.
type MultiQueryAdapter interface {
	Adapter
	// TranslateMultiQuery sends all of texts in as few wire calls as
	// max_chars_per_request allows and returns one translation per input,
	// in the same order. A returned error means the whole group failed;
	// the manager then retries it as singletons.
	TranslateMultiQuery(ctx context.Context, sourceLang, targetLang string, texts []string) ([]string, error)
}

// FallbackCapable is implemented by LLM-backed adapters that can name a
// fallback engine to escalate to on a safety-filter refusal (spec.md §4.4
// "LLM-backed adapters ... On a safety-filter refusal, the adapter
// escalates to a user-configured fallback adapter").
type FallbackCapable interface {
	Adapter
	FallbackEngine() config.Engine
}
