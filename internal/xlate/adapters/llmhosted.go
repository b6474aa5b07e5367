package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/renlocalizer/renlocalizer/internal/apperrors"
	"github.com/renlocalizer/renlocalizer/internal/config"
)

// hostedLLMTransport speaks an OpenAI-compatible chat-completion API to a
// hosted provider (OpenAI, or any compatible gateway named by
// openai_base_url) behind an OAuth2 client-credentials bearer token,
// refreshed transparently by oauth2.TokenSource — the same
// oauth2.Config/Client shape the teacher's kiro auth flow uses, generalized
// from a browser device flow to a machine-to-machine grant (spec.md §4.4
// "LLM-backed adapters").
type hostedLLMTransport struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	apiKey      string
	tokenSource oauth2.TokenSource
	client      *http.Client
}

func newHostedLLMTransport(cfg config.TranslationConfig, keys config.APIKeysConfig) *hostedLLMTransport {
	t := &hostedLLMTransport{
		baseURL:     cfg.OpenAIBaseURL,
		model:       cfg.OpenAIModel,
		temperature: cfg.AITemperature,
		maxTokens:   cfg.AIMaxTokens,
		apiKey:      keys.OpenAI,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
	if t.baseURL == "" {
		t.baseURL = "https://api.openai.com"
	}
	if strings.TrimSpace(keys.OAuthClientID) != "" && strings.TrimSpace(keys.OAuthTokenURL) != "" {
		ccConfig := &clientcredentials.Config{
			ClientID:     keys.OAuthClientID,
			ClientSecret: keys.OAuthClientSecret,
			TokenURL:     keys.OAuthTokenURL,
		}
		t.tokenSource = ccConfig.TokenSource(context.Background())
	}
	return t
}

func (t *hostedLLMTransport) authHeader(ctx context.Context) (string, error) {
	if t.tokenSource != nil {
		token, err := t.tokenSource.Token()
		if err != nil {
			return "", apperrors.NewTranslationError(apperrors.KindFatal, "hosted llm oauth2 token refresh failed", err)
		}
		return "Bearer " + token.AccessToken, nil
	}
	if t.apiKey != "" {
		return "Bearer " + t.apiKey, nil
	}
	return "", apperrors.NewTranslationError(apperrors.KindFatal, "hosted llm engine configured without api key or oauth credentials", nil)
}

func (t *hostedLLMTransport) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	auth, err := t.authHeader(ctx)
	if err != nil {
		return "", err
	}

	body := buildOpenAIChatBody(t.model, t.temperature, t.maxTokens, systemPrompt, userPrompt)
	endpoint := strings.TrimRight(t.baseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", auth)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return "", apperrors.NewTranslationError(apperrors.KindTransient, "hosted llm request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.NewTranslationError(apperrors.KindTransient, "hosted llm response read failed", err)
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return "", apperrors.NewTranslationError(apperrors.KindRateLimited, "hosted llm: 429", nil)
	case http.StatusPaymentRequired, http.StatusForbidden:
		return "", apperrors.NewTranslationError(apperrors.KindQuotaExceeded, fmt.Sprintf("hosted llm: status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewTranslationError(apperrors.KindTransient, fmt.Sprintf("hosted llm: status %d", resp.StatusCode), nil)
	}

	text, refused := extractOpenAIChatText(respBody)
	if refused {
		return "", apperrors.NewTranslationError(apperrors.KindContentFiltered, "hosted llm refused the request", nil)
	}
	return text, nil
}

// NewLLMHostedAdapter builds the hosted-LLM engine adapter. Its fallback
// engine is deliberately not itself: spec.md §4.4 names the web engine as
// the typical escalation target for a hosted LLM's safety-filter refusals.
func NewLLMHostedAdapter(cfg config.TranslationConfig, keys config.APIKeysConfig, glossary Glossary) *chatCompletionLLM {
	transport := newHostedLLMTransport(cfg, keys)
	fallback := cfg.AIFallbackEngine
	if fallback == "" {
		fallback = config.EngineWeb
	}
	return newChatCompletionLLM(config.EngineLLMHosted, fallback, transport, glossary, cfg.AISystemPrompt, cfg.AIMaxTokens)
}
