package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renlocalizer/renlocalizer/internal/apperrors"
	"github.com/renlocalizer/renlocalizer/internal/model"
)

func newTestAPIKeyAdapter(t *testing.T, handler http.HandlerFunc) (*APIKeyAdapter, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	a := &APIKeyAdapter{apiKey: "test-key:fx", client: server.Client(), endpointURL: server.URL}
	return a, server.Close
}

func TestAPIKeyAdapterTranslateSingle(t *testing.T) {
	a, closeFn := newTestAPIKeyAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, []string{"Hello"}, r.Form["text"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"translations":[{"text":"Bonjour"}]}`))
	})
	defer closeFn()

	result := a.TranslateSingle(context.Background(), model.TranslationRequest{Text: "Hello", SourceLang: "english", TargetLang: "french"})
	require.True(t, result.Success)
	assert.Equal(t, "Bonjour", result.TranslatedText)
}

func TestAPIKeyAdapterTranslateMultiQuery(t *testing.T) {
	a, closeFn := newTestAPIKeyAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Len(t, r.Form["text"], 2)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"translations":[{"text":"Bonjour"},{"text":"Au revoir"}]}`))
	})
	defer closeFn()

	out, err := a.TranslateMultiQuery(context.Background(), "english", "french", []string{"Hello", "Goodbye"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bonjour", "Au revoir"}, out)
}

func TestAPIKeyAdapterRateLimitedMapsToKindRateLimited(t *testing.T) {
	a, closeFn := newTestAPIKeyAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer closeFn()

	result := a.TranslateSingle(context.Background(), model.TranslationRequest{Text: "Hello"})
	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, apperrors.KindRateLimited, result.Error.Kind)
}

func TestAPIKeyAdapterMissingKeyFails(t *testing.T) {
	a := NewAPIKeyAdapter("", time.Second)
	result := a.TranslateSingle(context.Background(), model.TranslationRequest{Text: "Hello"})
	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, apperrors.KindFatal, result.Error.Kind)
}
