package xlate

import (
	"github.com/renlocalizer/renlocalizer/internal/model"
)

// dedupKey groups requests that would produce an identical translation:
// same text under the same source/target/engine route (spec.md §4.4
// "Deduplication within a batch").
type dedupKey struct {
	text   string
	source string
	target string
	engine string
}

// group is one unique piece of work: the representative request plus every
// original batch index that shares its dedupKey, so the manager can fan a
// single translation result out to all of them.
type group struct {
	request model.TranslationRequest
	indices []int
}

// dedupe partitions reqs into representative groups, preserving the order
// in which each unique key first appears so downstream batching stays
// deterministic.
func dedupe(reqs []model.TranslationRequest) []*group {
	keyOrder := make([]dedupKey, 0, len(reqs))
	groups := make(map[dedupKey]*group, len(reqs))

	for i, r := range reqs {
		k := dedupKey{text: r.Text, source: r.SourceLang, target: r.TargetLang, engine: string(r.Engine)}
		g, ok := groups[k]
		if !ok {
			g = &group{request: r}
			groups[k] = g
			keyOrder = append(keyOrder, k)
		}
		g.indices = append(g.indices, i)
	}

	ordered := make([]*group, 0, len(keyOrder))
	for _, k := range keyOrder {
		ordered = append(ordered, groups[k])
	}
	return ordered
}
