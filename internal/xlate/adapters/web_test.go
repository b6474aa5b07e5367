package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renlocalizer/renlocalizer/internal/apperrors"
	"github.com/renlocalizer/renlocalizer/internal/model"
)

func newTestWebAdapter(t *testing.T, handler http.HandlerFunc) (*WebAdapter, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	a := &WebAdapter{endpointURL: server.URL, httpClient: server.Client()}
	return a, server.Close
}

func TestWebAdapterTranslateSingle(t *testing.T) {
	a, closeFn := newTestWebAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[["Bonjour","Hello",null,null,1]],null,"en"]`))
	})
	defer closeFn()

	result := a.TranslateSingle(context.Background(), model.TranslationRequest{Text: "Hello", SourceLang: "english", TargetLang: "french"})
	require.True(t, result.Success)
	assert.Equal(t, "Bonjour", result.TranslatedText)
}

func TestWebAdapterTranslateMultiQuerySplitsOnDelimiter(t *testing.T) {
	a, closeFn := newTestWebAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[["Bonjour\n\nAu revoir","Hello\n\nGoodbye",null,null,1]],null,"en"]`))
	})
	defer closeFn()

	out, err := a.TranslateMultiQuery(context.Background(), "english", "french", []string{"Hello", "Goodbye"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bonjour", "Au revoir"}, out)
}

func TestWebAdapterRateLimited(t *testing.T) {
	a, closeFn := newTestWebAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer closeFn()

	result := a.TranslateSingle(context.Background(), model.TranslationRequest{Text: "Hello"})
	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, apperrors.KindRateLimited, result.Error.Kind)
}

func TestLangCodeDefaultsToAutoOnEmpty(t *testing.T) {
	assert.Equal(t, "auto", langCode(""))
	assert.Equal(t, "french", langCode(" French "))
}

func TestSplitByOriginalLengthsMismatchIsStructuralError(t *testing.T) {
	_, err := splitByOriginalLengths("only one segment", []string{"a", "b"})
	require.Error(t, err)
	te, ok := err.(*apperrors.TranslationError)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindStructural, te.Kind)
}
