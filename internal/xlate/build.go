package xlate

import (
	"github.com/renlocalizer/renlocalizer/internal/cache"
	"github.com/renlocalizer/renlocalizer/internal/config"
	"github.com/renlocalizer/renlocalizer/internal/proxypool"
	"github.com/renlocalizer/renlocalizer/internal/xlate/adapters"
)

// BuildManager wires every configured engine adapter into a Manager, the
// shape the pipeline orchestrator (C12) needs: one call with the loaded
// config, the shared cache, and the shared proxy pool, and a ready-to-use
// Manager comes back regardless of which engines the operator enabled.
func BuildManager(cfg *config.Config, c *cache.TranslationCache, pool *proxypool.Pool) (*Manager, error) {
	glossary, err := adapters.LoadGlossary(cfg.Translation.GlossaryPath)
	if err != nil {
		return nil, err
	}

	all := []Adapter{
		adapters.NewWebAdapter(pool, cfg.Translation.Timeout),
		adapters.NewAPIKeyAdapter(cfg.APIKeys.APIKey, cfg.Translation.Timeout),
		adapters.NewLocalLLMAdapter(cfg.Translation, glossary),
		adapters.NewLLMHostedAdapter(cfg.Translation, cfg.APIKeys, glossary),
	}

	return NewManager(cfg.Translation, c, all), nil
}
