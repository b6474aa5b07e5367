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
	"github.com/renlocalizer/renlocalizer/internal/proxypool"
)

// googleTranslateEndpoint is the undocumented JSON endpoint behind
// translate.google.com's web UI — the "web-scraping Google engine" spec.md
// §4.4 names explicitly as the adapter that supports batched multi-query
// transport.
const googleTranslateEndpoint = "https://translate.googleapis.com/translate_a/single"

// WebAdapter scrapes Google Translate's public web endpoint. It has no API
// key and no documented rate limit, so it is both the default engine and
// the one most likely to need proxy rotation and a browser-matching TLS
// fingerprint to avoid being blocked.
type WebAdapter struct {
	pool    *proxypool.Pool
	timeout time.Duration
	// endpointURL overrides googleTranslateEndpoint when set; tests use it
	// to point at an httptest.Server instead of the real Google endpoint.
	endpointURL string
	// httpClient overrides the fingerprinted client when set, since
	// httptest servers don't speak the uTLS ClientHello.
	httpClient *http.Client
}

// NewWebAdapter builds a WebAdapter. pool may be nil, in which case every
// request dials directly with no proxy.
func NewWebAdapter(pool *proxypool.Pool, timeout time.Duration) *WebAdapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebAdapter{pool: pool, timeout: timeout}
}

func (a *WebAdapter) Engine() config.Engine { return config.EngineWeb }

func (a *WebAdapter) client() (*http.Client, model.ProxyInfo) {
	if a.httpClient != nil {
		return a.httpClient, model.ProxyInfo{}
	}
	var proxy model.ProxyInfo
	if a.pool != nil {
		if p, err := a.pool.Next(); err == nil {
			proxy = p
		}
	}
	return fingerprintedClient(proxy, a.timeout), proxy
}

func (a *WebAdapter) TranslateSingle(ctx context.Context, req model.TranslationRequest) model.TranslationResult {
	texts, err := a.call(ctx, req.SourceLang, req.TargetLang, []string{req.Text})
	if err != nil {
		return failure(req, toTranslationError(err))
	}
	if len(texts) != 1 {
		return failure(req, apperrors.NewTranslationError(apperrors.KindStructural, "unexpected segment count from web engine", nil))
	}
	return success(req, texts[0])
}

// TranslateMultiQuery joins the texts with the engine's batch delimiter
// ("\n\n") and maps the reply back to the requests by splitting it on the
// same delimiter. Segment lengths are not used for the mapping: a reply
// whose "\n\n" count differs from the input's is a structural error.
func (a *WebAdapter) TranslateMultiQuery(ctx context.Context, sourceLang, targetLang string, texts []string) ([]string, error) {
	return a.call(ctx, sourceLang, targetLang, texts)
}

func (a *WebAdapter) call(ctx context.Context, sourceLang, targetLang string, texts []string) ([]string, error) {
	client, proxy := a.client()
	joined := strings.Join(texts, "\n\n")

	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", langCode(sourceLang))
	q.Set("tl", langCode(targetLang))
	q.Set("dt", "t")
	q.Set("q", joined)

	endpoint := a.endpointURL
	if endpoint == "" {
		endpoint = googleTranslateEndpoint
	}
	reqURL := endpoint + "?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")

	start := time.Now()
	resp, err := client.Do(httpReq)
	elapsed := time.Since(start)
	if a.pool != nil && proxy.Host != "" {
		if err != nil || resp.StatusCode >= 500 {
			a.pool.MarkFailure(proxy)
		} else {
			a.pool.MarkSuccess(proxy, elapsed)
		}
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.NewTranslationError(apperrors.KindRateLimited, "google translate web: 429", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewTranslationError(apperrors.KindTransient, fmt.Sprintf("google translate web: status %d", resp.StatusCode), nil)
	}

	translated := parseSentences(body)
	return splitByOriginalLengths(translated, texts)
}

// parseSentences pulls every translated sentence fragment out of the
// engine's top-level JSON array (the first element is itself an array of
// [translated, original, ...] triples, one per sentence the engine split
// the input into — which rarely lines up 1:1 with "\n\n"-joined inputs).
func parseSentences(body []byte) string {
	root := gjson.ParseBytes(body)
	sentences := root.Get("0")
	var b strings.Builder
	sentences.ForEach(func(_, seg gjson.Result) bool {
		b.WriteString(seg.Get("0").String())
		return true
	})
	return b.String()
}

// splitByOriginalLengths maps one joined translated blob back to len(texts)
// segments by splitting on the "\n\n" delimiters the engine is expected to
// preserve. A single text gets the whole blob; when the delimiter count
// doesn't match it returns a structural error, and the manager then
// re-dispatches the group as singletons.
func splitByOriginalLengths(translated string, texts []string) ([]string, error) {
	if len(texts) == 1 {
		return []string{translated}, nil
	}
	parts := strings.Split(translated, "\n\n")
	if len(parts) != len(texts) {
		return nil, apperrors.NewTranslationError(apperrors.KindStructural, "web engine returned mismatched segment count", nil)
	}
	return parts, nil
}

func langCode(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return "auto"
	}
	return lang
}

func toTranslationError(err error) *apperrors.TranslationError {
	if te, ok := err.(*apperrors.TranslationError); ok {
		return te
	}
	return apperrors.NewTranslationError(apperrors.KindTransient, "web engine request failed", err)
}

func success(req model.TranslationRequest, text string) model.TranslationResult {
	return model.TranslationResult{
		OriginalText:   req.Text,
		TranslatedText: text,
		SourceLang:     req.SourceLang,
		TargetLang:     req.TargetLang,
		Engine:         req.Engine,
		Success:        true,
		Confidence:     0.85,
		Metadata:       req.Metadata,
	}
}

func failure(req model.TranslationRequest, te *apperrors.TranslationError) model.TranslationResult {
	return model.TranslationResult{
		OriginalText: req.Text,
		SourceLang:   req.SourceLang,
		TargetLang:   req.TargetLang,
		Engine:       req.Engine,
		Success:      false,
		Error:        te,
		Metadata:     req.Metadata,
	}
}
