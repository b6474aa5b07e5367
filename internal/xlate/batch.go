package xlate

import (
	"context"
	"errors"
	"sync"
	"time"
)

// multiQueryConcurrency is the "bounded-concurrency set of multi-query HTTP
// calls (default 8 in flight)" from spec.md §4.4.
const multiQueryConcurrency = 8

// charBoundedGroups slices groups into runs whose summed text length stays
// under maxChars (default ~6000, spec.md §4.4), the unit the manager hands
// a MultiQueryAdapter as one wire call. Grounded on the teacher's
// sdk/translator/batch.go worker-pool shape, generalized from a flat
// request list to char-bounded chunks.
func charBoundedGroups(groups []*group, maxChars int) [][]*group {
	if maxChars <= 0 {
		maxChars = 6000
	}
	var batches [][]*group
	var current []*group
	currentLen := 0
	for _, g := range groups {
		l := len(g.request.Text)
		if len(current) > 0 && currentLen+l > maxChars {
			batches = append(batches, current)
			current = nil
			currentLen = 0
		}
		current = append(current, g)
		currentLen += l
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// translateOutcome is one group's raw dispatch result, before it is turned
// into a model.TranslationResult and fanned out to every original index.
type translateOutcome struct {
	text    string
	err     error
	latency time.Duration
}

// dispatchMultiQuery sends each char-bounded batch through adapter with at
// most multiQueryConcurrency in flight, mirroring
// sdk/translator/BatchTranslator.TranslateBatch's channel-based worker pool
// and per-index result slot.
func dispatchMultiQuery(ctx context.Context, adapter MultiQueryAdapter, batches [][]*group) map[*group]translateOutcome {
	results := make(map[*group]translateOutcome)
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, multiQueryConcurrency)

	for _, batch := range batches {
		wg.Add(1)
		go func(batch []*group) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				for _, g := range batch {
					results[g] = translateOutcome{err: ctx.Err()}
				}
				mu.Unlock()
				return
			}

			texts := make([]string, len(batch))
			for i, g := range batch {
				texts[i] = g.request.Text
			}

			start := time.Now()
			translated, err := adapter.TranslateMultiQuery(ctx, batch[0].request.SourceLang, batch[0].request.TargetLang, texts)
			elapsed := time.Since(start)

			mu.Lock()
			defer mu.Unlock()
			if err != nil || len(translated) != len(texts) {
				if err == nil {
					err = errors.New("xlate: multi-query returned a mismatched item count")
				}
				for _, g := range batch {
					results[g] = translateOutcome{err: err, latency: elapsed}
				}
				return
			}
			for i, g := range batch {
				results[g] = translateOutcome{text: translated[i], latency: elapsed}
			}
		}(batch)
	}
	wg.Wait()
	return results
}
