package adapters

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/renlocalizer/renlocalizer/internal/apperrors"
	"github.com/renlocalizer/renlocalizer/internal/model"
)

func newTestLocalLLMAdapter(t *testing.T, handler http.HandlerFunc) (*chatCompletionLLM, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	transport := &localLLMTransport{baseURL: server.URL, model: "test-model", temperature: 0.3, maxTokens: 256, client: server.Client()}
	return newChatCompletionLLM("local-llm", "", transport, Glossary{}, "", 256), server.Close
}

func TestChatCompletionLLMTranslateSingle(t *testing.T) {
	a, closeFn := newTestLocalLLMAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Bonjour"},"finish_reason":"stop"}]}`))
	})
	defer closeFn()

	result := a.TranslateSingle(context.Background(), model.TranslationRequest{Text: "Hello", SourceLang: "english", TargetLang: "french"})
	require.True(t, result.Success)
	assert.Equal(t, "Bonjour", result.TranslatedText)
}

func TestChatCompletionLLMRefusalMapsToContentFiltered(t *testing.T) {
	a, closeFn := newTestLocalLLMAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""},"finish_reason":"content_filter"}]}`))
	})
	defer closeFn()

	result := a.TranslateSingle(context.Background(), model.TranslationRequest{Text: "Hello"})
	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, apperrors.KindContentFiltered, result.Error.Kind)
}

func TestChatCompletionLLMMultiQueryParsesDelimitedResponse(t *testing.T) {
	a, closeFn := newTestLocalLLMAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		resp := `{"choices":[{"message":{"content":"<r id=\"0\">Bonjour</r>\n<r id=\"1\">Au revoir</r>"},"finish_reason":"stop"}]}`
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resp))
	})
	defer closeFn()

	out, err := a.TranslateMultiQuery(context.Background(), "english", "french", []string{"Hello", "Goodbye"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bonjour", "Au revoir"}, out)
}

func TestChatCompletionLLMMultiQueryFallsBackBelowReturnThreshold(t *testing.T) {
	// Only 1 of 3 expected items returned (33% < 90% threshold).
	a, closeFn := newTestLocalLLMAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		resp := `{"choices":[{"message":{"content":"<r id=\"0\">Bonjour</r>"},"finish_reason":"stop"}]}`
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resp))
	})
	defer closeFn()

	_, err := a.TranslateMultiQuery(context.Background(), "english", "french", []string{"a", "b", "c"})
	require.Error(t, err)
}

func TestChatCompletionLLMSystemPromptIncludesGlossary(t *testing.T) {
	var captured string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured = gjson.GetBytes(body, "messages.0.content").String()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	transport := &localLLMTransport{baseURL: server.URL, model: "m", client: server.Client()}
	a := newChatCompletionLLM("local-llm", "", transport, Glossary{"hero": "héros"}, "", 0)

	a.TranslateSingle(context.Background(), model.TranslationRequest{Text: "hero", SourceLang: "english", TargetLang: "french"})
	assert.Contains(t, captured, "héros")
	assert.Contains(t, captured, "hero -> héros")
}
