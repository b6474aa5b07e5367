package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/renlocalizer/renlocalizer/internal/apperrors"
	"github.com/renlocalizer/renlocalizer/internal/config"
	"github.com/renlocalizer/renlocalizer/internal/model"
)

// deeplFreeEndpoint is the DeepL free-tier REST endpoint — the reference
// "paid API-key backend" spec.md §4.4 contrasts with the free web-scraping
// engine. Pro-tier keys (api-free.deepl.com vs. api.deepl.com) are
// distinguished by key suffix, matching DeepL's own documented convention.
const (
	deeplFreeEndpoint = "https://api-free.deepl.com/v2/translate"
	deeplProEndpoint  = "https://api.deepl.com/v2/translate"
)

// APIKeyAdapter is the generic paid-API backend: a single documented REST
// endpoint, authenticated with a static key, supporting a native multi-text
// batch request (DeepL accepts repeated `text` form fields in one call).
type APIKeyAdapter struct {
	apiKey  string
	client  *http.Client
	timeout time.Duration
	// endpointURL overrides the resolved DeepL endpoint when set; tests use
	// it to point at an httptest.Server instead of the real DeepL API.
	endpointURL string
}

// NewAPIKeyAdapter builds the API-key engine adapter from api_keys.api_key.
func NewAPIKeyAdapter(apiKey string, timeout time.Duration) *APIKeyAdapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &APIKeyAdapter{apiKey: apiKey, client: &http.Client{Timeout: timeout}, timeout: timeout}
}

func (a *APIKeyAdapter) Engine() config.Engine { return config.EngineAPIKey }

func (a *APIKeyAdapter) endpoint() string {
	if a.endpointURL != "" {
		return a.endpointURL
	}
	if strings.HasSuffix(a.apiKey, ":fx") {
		return deeplFreeEndpoint
	}
	return deeplProEndpoint
}

func (a *APIKeyAdapter) TranslateSingle(ctx context.Context, req model.TranslationRequest) model.TranslationResult {
	texts, err := a.call(ctx, req.SourceLang, req.TargetLang, []string{req.Text})
	if err != nil {
		return failure(req, toTranslationError(err))
	}
	if len(texts) != 1 {
		return failure(req, apperrors.NewTranslationError(apperrors.KindStructural, "unexpected segment count from api-key engine", nil))
	}
	return success(req, texts[0])
}

// TranslateMultiQuery sends every text as its own `text` form field in one
// request; DeepL returns translations in the same order, no delimiter
// wrapping needed.
func (a *APIKeyAdapter) TranslateMultiQuery(ctx context.Context, sourceLang, targetLang string, texts []string) ([]string, error) {
	return a.call(ctx, sourceLang, targetLang, texts)
}

func (a *APIKeyAdapter) call(ctx context.Context, sourceLang, targetLang string, texts []string) ([]string, error) {
	if a.apiKey == "" {
		return nil, apperrors.NewTranslationError(apperrors.KindFatal, "api-key engine configured without api_keys.api_key", nil)
	}

	form := url.Values{}
	for _, t := range texts {
		form.Add("text", t)
	}
	form.Set("source_lang", strings.ToUpper(sourceLang))
	form.Set("target_lang", strings.ToUpper(targetLang))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "DeepL-Auth-Key "+a.apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewTranslationError(apperrors.KindTransient, "api-key engine request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewTranslationError(apperrors.KindTransient, "api-key engine response read failed", err)
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return nil, apperrors.NewTranslationError(apperrors.KindRateLimited, "api-key engine: 429", nil)
	case http.StatusForbidden, http.StatusPaymentRequired:
		return nil, apperrors.NewTranslationError(apperrors.KindQuotaExceeded, fmt.Sprintf("api-key engine: status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewTranslationError(apperrors.KindTransient, fmt.Sprintf("api-key engine: status %d", resp.StatusCode), nil)
	}

	result := gjson.GetBytes(body, "translations")
	out := make([]string, 0, len(texts))
	result.ForEach(func(_, v gjson.Result) bool {
		out = append(out, v.Get("text").String())
		return true
	})
	if len(out) != len(texts) {
		return nil, apperrors.NewTranslationError(apperrors.KindStructural, "api-key engine returned mismatched segment count", nil)
	}
	return out, nil
}
