package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/renlocalizer/renlocalizer/internal/apperrors"
	"github.com/renlocalizer/renlocalizer/internal/config"
)

// localLLMTransport speaks an OpenAI-compatible chat-completion API to a
// locally hosted endpoint (e.g. Ollama, llama.cpp's server, LM Studio) —
// the local_llm_url/local_llm_model pair from spec.md §6.
type localLLMTransport struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

func (t *localLLMTransport) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body := buildOpenAIChatBody(t.model, t.temperature, t.maxTokens, systemPrompt, userPrompt)

	endpoint := strings.TrimRight(t.baseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return "", apperrors.NewTranslationError(apperrors.KindTransient, "local llm request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.NewTranslationError(apperrors.KindTransient, "local llm response read failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewTranslationError(apperrors.KindTransient, fmt.Sprintf("local llm: status %d", resp.StatusCode), nil)
	}

	text, refused := extractOpenAIChatText(respBody)
	if refused {
		return "", apperrors.NewTranslationError(apperrors.KindContentFiltered, "local llm refused the request", nil)
	}
	return text, nil
}

// NewLocalLLMAdapter builds the local-LLM engine adapter.
func NewLocalLLMAdapter(cfg config.TranslationConfig, glossary Glossary) *chatCompletionLLM {
	transport := &localLLMTransport{
		baseURL:     cfg.LocalLLMURL,
		model:       cfg.LocalLLMModel,
		temperature: cfg.AITemperature,
		maxTokens:   cfg.AIMaxTokens,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
	return newChatCompletionLLM(config.EngineLocalLLM, cfg.AIFallbackEngine, transport, glossary, cfg.AISystemPrompt, cfg.AIMaxTokens)
}
