package adapters

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/tiktoken-go/tokenizer"

	"github.com/renlocalizer/renlocalizer/internal/apperrors"
	"github.com/renlocalizer/renlocalizer/internal/config"
	"github.com/renlocalizer/renlocalizer/internal/model"
)

// delimTag wraps each text in a batch request, e.g. `<r id="3">hello</r>`,
// so the response can be parsed back into per-item translations by regex
// (spec.md §4.4 "wrap each input in a structural delimiter ... parse the
// response by regex").
var delimTag = regexp.MustCompile(`(?s)<r id="(\d+)">(.*?)</r>`)

// minBatchReturnRatio is the "fewer than 90% of expected items return"
// threshold spec.md §4.4 sets for falling back to singletons.
const minBatchReturnRatio = 0.9

// chatCompleter is the minimal transport a chatCompletionLLM needs: send a
// system+user prompt pair and get back the assistant's raw text, or an
// error already classified into an apperrors.ErrorKind (rate limit vs.
// content filter vs. transient).
type chatCompleter interface {
	complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// chatCompletionLLM implements xlate.Adapter, xlate.MultiQueryAdapter, and
// xlate.FallbackCapable on top of any chatCompleter, giving the local-LLM
// and hosted-LLM adapters (which differ only in how they reach the HTTP
// endpoint) one shared implementation of spec.md §4.4's LLM-backed
// adapter rules: system prompt construction, batch delimiter wrapping,
// 90%-return fallback, and content-filter escalation.
type chatCompletionLLM struct {
	engine         config.Engine
	fallbackEngine config.Engine
	transport      chatCompleter
	glossary       Glossary
	systemPrompt   string
	codec          tokenizer.Codec
	maxTokens      int
}

func newChatCompletionLLM(engine, fallbackEngine config.Engine, transport chatCompleter, glossary Glossary, systemPromptOverride string, maxTokens int) *chatCompletionLLM {
	codec, err := tokenizer.Get(tokenizer.O200kBase)
	if err != nil {
		codec = nil
	}
	return &chatCompletionLLM{
		engine:         engine,
		fallbackEngine: fallbackEngine,
		transport:      transport,
		glossary:       glossary,
		systemPrompt:   systemPromptOverride,
		codec:          codec,
		maxTokens:      maxTokens,
	}
}

func (a *chatCompletionLLM) Engine() config.Engine         { return a.engine }
func (a *chatCompletionLLM) FallbackEngine() config.Engine { return a.fallbackEngine }

func (a *chatCompletionLLM) buildSystemPrompt(sourceLang, targetLang string) string {
	if strings.TrimSpace(a.systemPrompt) != "" {
		return a.systemPrompt + "\n\n" + a.glossary.Prompt()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the user's text from %s to %s.\n", sourceLang, targetLang)
	b.WriteString("Preserve every token that looks like XRPYX<KIND><NN>XRPYX exactly as given — these stand in for game variables, text tags, or format specifiers and must never be translated, reordered, or altered.\n")
	b.WriteString("Return only the translation, no commentary.\n")
	b.WriteString(a.glossary.Prompt())
	return b.String()
}

func (a *chatCompletionLLM) TranslateSingle(ctx context.Context, req model.TranslationRequest) model.TranslationResult {
	system := a.buildSystemPrompt(req.SourceLang, req.TargetLang)
	out, err := a.transport.complete(ctx, system, req.Text)
	if err != nil {
		return failure(req, toTranslationError(err))
	}
	return success(req, strings.TrimSpace(out))
}

// TranslateMultiQuery sends texts as one delimiter-wrapped prompt and
// recovers per-item translations by regex. Falling below
// minBatchReturnRatio returns an error so the manager retries as
// singletons, per spec.md §4.4.
func (a *chatCompletionLLM) TranslateMultiQuery(ctx context.Context, sourceLang, targetLang string, texts []string) ([]string, error) {
	system := a.buildSystemPrompt(sourceLang, targetLang)
	var b strings.Builder
	b.WriteString("Translate each <r> element independently and return the same tags wrapping each translation, in order:\n")
	for i, t := range texts {
		fmt.Fprintf(&b, "<r id=\"%d\">%s</r>\n", i, t)
	}
	prompt := b.String()

	// A batch whose own prompt already eats the configured response budget
	// cannot fit a translated reply alongside it; fail fast so the manager
	// falls back to singletons instead of paying for a doomed round trip.
	if a.maxTokens > 0 && a.estimateTokens(prompt) > a.maxTokens {
		return nil, apperrors.NewTranslationError(apperrors.KindStructural, "llm batch prompt exceeds ai_max_tokens budget", nil)
	}

	out, err := a.transport.complete(ctx, system, prompt)
	if err != nil {
		return nil, err
	}

	matches := delimTag.FindAllStringSubmatch(out, -1)
	byID := make(map[string]string, len(matches))
	for _, m := range matches {
		byID[m[1]] = strings.TrimSpace(m[2])
	}

	if float64(len(matches)) < float64(len(texts))*minBatchReturnRatio {
		return nil, apperrors.NewTranslationError(apperrors.KindStructural, fmt.Sprintf("llm batch returned %d/%d items", len(matches), len(texts)), nil)
	}

	results := make([]string, len(texts))
	for i := range texts {
		v, ok := byID[fmt.Sprintf("%d", i)]
		if !ok {
			return nil, apperrors.NewTranslationError(apperrors.KindStructural, fmt.Sprintf("llm batch missing item %d", i), nil)
		}
		results[i] = v
	}
	return results, nil
}

// estimateTokens provides a best-effort token count for sizing
// ai_max_tokens/ai_batch_size, falling back to a chars/4 heuristic when the
// tokenizer codec failed to load.
func (a *chatCompletionLLM) estimateTokens(text string) int {
	if a.codec != nil {
		if _, ids, err := a.codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

// buildOpenAIChatBody constructs an OpenAI-compatible chat-completion
// request body with sjson, matching the teacher's preference for
// gjson/sjson over marshaling a fixed request struct.
func buildOpenAIChatBody(model string, temperature float64, maxTokens int, systemPrompt, userPrompt string) []byte {
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "model", model)
	body, _ = sjson.SetBytes(body, "temperature", temperature)
	if maxTokens > 0 {
		body, _ = sjson.SetBytes(body, "max_tokens", maxTokens)
	}
	body, _ = sjson.SetBytes(body, "messages.0.role", "system")
	body, _ = sjson.SetBytes(body, "messages.0.content", systemPrompt)
	body, _ = sjson.SetBytes(body, "messages.1.role", "user")
	body, _ = sjson.SetBytes(body, "messages.1.content", userPrompt)
	return body
}

// extractOpenAIChatText pulls the assistant message text and, when present,
// a refusal reason out of an OpenAI-compatible chat-completion response.
func extractOpenAIChatText(body []byte) (text string, refused bool) {
	root := gjson.ParseBytes(body)
	choice := root.Get("choices.0")
	if r := choice.Get("message.refusal"); r.Exists() && r.String() != "" {
		return "", true
	}
	if reason := choice.Get("finish_reason").String(); reason == "content_filter" {
		return "", true
	}
	return choice.Get("message.content").String(), false
}
