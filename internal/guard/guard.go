// Package guard protects Ren'Py syntax fragments — text tags, variables,
// printf placeholders — from mangling by a translation engine, and restores
// them afterward even when the engine has lowercased, spaced, or otherwise
// corrupted the protective tokens.
package guard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the category of fragment a token stands in for.
type Kind string

const (
	KindTag Kind = "TAG"
	KindVar Kind = "VAR"
	KindFmt Kind = "FMT"
	KindEsc Kind = "ESC"
)

const tokenDelim = "XRPYX"

// PlaceholderMap is an ordered mapping from opaque token to the original
// Ren'Py/Python fragment it replaced. Order matches discovery order in the
// source text.
type PlaceholderMap struct {
	entries []placeholderEntry
	byToken map[string]string
	counts  map[Kind]int
	// wrapOpen/wrapClose hold an outer tag pair removed by Protect; Restore
	// puts it back around the translated text.
	wrapOpen  string
	wrapClose string
}

type placeholderEntry struct {
	Token    string
	Kind     Kind
	Index    int
	Original string
}

func newPlaceholderMap() *PlaceholderMap {
	return &PlaceholderMap{
		byToken: make(map[string]string),
		counts:  make(map[Kind]int),
	}
}

func (m *PlaceholderMap) add(kind Kind, original string) string {
	index := m.counts[kind]
	m.counts[kind] = index + 1
	token := fmt.Sprintf("%s%s%02d%s", tokenDelim, kind, index, tokenDelim)
	m.entries = append(m.entries, placeholderEntry{Token: token, Kind: kind, Index: index, Original: original})
	m.byToken[token] = original
	return token
}

// Len reports how many fragments were protected.
func (m *PlaceholderMap) Len() int { return len(m.entries) }

// precompiled fragment matchers, checked in spec priority order.
var (
	// balanced-ish Ren'Py tag: {tagname=...}...{/tagname} or a bare {tag}
	tagPairRe  = regexp.MustCompile(`\{(/?)([a-zA-Z][a-zA-Z0-9_]*)(=[^{}]*)?\}`)
	varRe      = regexp.MustCompile(`\[[a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*|\[[^\[\]]+\])*!?[a-zA-Z]*\]`)
	printfRe   = regexp.MustCompile(`%\([a-zA-Z_][a-zA-Z0-9_]*\)[sdif]|%[sdif]`)
	braceFmtRe = regexp.MustCompile(`\{[a-zA-Z_][a-zA-Z0-9_]*\}|\{[0-9]+\}`)
)

// Protect replaces Ren'Py tags, variables, printf placeholders, and brace
// format fields with opaque resync tokens, returning the rewritten text and
// the map needed to restore it. Protect always succeeds.
func Protect(text string) (string, *PlaceholderMap) {
	pm := newPlaceholderMap()

	out, wrapper := stripOuterTagWrapper(text, pm)

	out = tagPairRe.ReplaceAllStringFunc(out, func(s string) string {
		return pm.add(KindTag, s)
	})
	out = varRe.ReplaceAllStringFunc(out, func(s string) string {
		return pm.add(KindVar, s)
	})
	out = printfRe.ReplaceAllStringFunc(out, func(s string) string {
		return pm.add(KindFmt, s)
	})
	out = braceFmtRe.ReplaceAllStringFunc(out, func(s string) string {
		if strings.Contains(s, tokenDelim) {
			return s
		}
		return pm.add(KindFmt, s)
	})

	if wrapper != nil {
		pm.wrapOpen, pm.wrapClose = wrapper.open, wrapper.close
	}
	return out, pm
}

type outerWrapper struct {
	open  string
	close string
}

// stripOuterTagWrapper removes a tag pair that wraps the string's entire
// visible content (e.g. "{i}Hello{/i}") so the wrapper itself never has to
// survive translation inline; Protect keeps it in the PlaceholderMap and
// Restore re-applies it.
func stripOuterTagWrapper(text string, pm *PlaceholderMap) (string, *outerWrapper) {
	open := tagPairRe.FindStringIndex(text)
	if open == nil || open[0] != 0 {
		return text, nil
	}
	openMatch := text[open[0]:open[1]]
	groups := tagPairRe.FindStringSubmatch(openMatch)
	if groups == nil || groups[1] != "" {
		return text, nil
	}
	name := groups[2]
	closeTag := "{/" + name + "}"
	if !strings.HasSuffix(text, closeTag) {
		return text, nil
	}
	inner := text[open[1] : len(text)-len(closeTag)]
	if strings.TrimSpace(inner) == "" {
		return text, nil
	}
	return inner, &outerWrapper{open: openMatch, close: closeTag}
}

// tokenPattern matches a well-formed token exactly.
var tokenPattern = regexp.MustCompile(tokenDelim + `([A-Z]+)(\d+)` + tokenDelim)

// corruptedTokenPatterns are tried in precedence order when an exact token
// match fails to account for engine-introduced mangling.
var (
	caseInsensitiveTokenRe = regexp.MustCompile(`(?i)` + tokenDelim + `([a-zA-Z]+)(\d+)` + tokenDelim)
	spacedTokenRe          = regexp.MustCompile(`(?i)` + tokenDelim + `\s*([a-zA-Z]+)\s*(\d+)\s*` + tokenDelim)
	droppedBoundaryRe      = regexp.MustCompile(`(?i)` + tokenDelim + `([a-zA-Z]+)(\d+)`)
	numericOnlyRe          = regexp.MustCompile(`\b(\d{1,2})\b`)
)

// Restore replaces every recognizable token in text with its original
// fragment, applying the healing precedence described in the syntax guard
// design when a token has been mangled by the translation engine. It never
// fails outright; unresolved tokens are left in place and their count is
// reported via the returned Report.
type Report struct {
	Restored   int
	Unresolved []string
}

func Restore(text string, pm *PlaceholderMap) (string, Report) {
	var report Report

	out := tokenPattern.ReplaceAllStringFunc(text, func(tok string) string {
		if orig, ok := pm.byToken[tok]; ok {
			report.Restored++
			return orig
		}
		return tok
	})

	out = caseInsensitiveTokenRe.ReplaceAllStringFunc(out, func(tok string) string {
		if orig, ok := lookupFolded(pm, tok); ok {
			report.Restored++
			return orig
		}
		return tok
	})

	out = spacedTokenRe.ReplaceAllStringFunc(out, func(tok string) string {
		if orig, ok := lookupFolded(pm, tok); ok {
			report.Restored++
			return orig
		}
		return tok
	})

	out = droppedBoundaryRe.ReplaceAllStringFunc(out, func(tok string) string {
		if orig, ok := lookupFolded(pm, tok); ok {
			report.Restored++
			return orig
		}
		return tok
	})

	out, numericReport := healNumericOnly(out, pm)
	report.Restored += numericReport.Restored

	out = healDoubledBrackets(out)
	out = pm.wrapOpen + out + pm.wrapClose

	report.Unresolved = validateIntegrity(out, pm)
	return out, report
}

// lookupFolded recovers a placeholder entry from a mangled token by
// case-folding kind+index and matching by suffix, per healing steps 1-3.
func lookupFolded(pm *PlaceholderMap, tok string) (string, bool) {
	var m []string
	switch {
	case caseInsensitiveTokenRe.MatchString(tok):
		m = caseInsensitiveTokenRe.FindStringSubmatch(tok)
	case spacedTokenRe.MatchString(tok):
		m = spacedTokenRe.FindStringSubmatch(tok)
	case droppedBoundaryRe.MatchString(tok):
		m = droppedBoundaryRe.FindStringSubmatch(tok)
	default:
		return "", false
	}
	if len(m) < 3 {
		return "", false
	}
	kind := Kind(strings.ToUpper(m[1]))
	index, err := strconv.Atoi(m[2])
	if err != nil {
		return "", false
	}
	for _, e := range pm.entries {
		if e.Kind == kind && e.Index == index {
			return e.Original, true
		}
	}
	return "", false
}

// healNumericOnly handles the case where only the digit group of a token
// survived (XRPYX and the kind letters were stripped entirely). It restores
// a bare index only when it unambiguously identifies a single protected
// fragment across all kinds; an index shared by more than one kind is left
// alone rather than guessed.
func healNumericOnly(text string, pm *PlaceholderMap) (string, Report) {
	var report Report
	if len(pm.entries) == 0 {
		return text, report
	}

	byIndex := make(map[int][]placeholderEntry)
	for _, e := range pm.entries {
		byIndex[e.Index] = append(byIndex[e.Index], e)
	}

	out := numericOnlyRe.ReplaceAllStringFunc(text, func(s string) string {
		idx, err := strconv.Atoi(s)
		if err != nil {
			return s
		}
		candidates := byIndex[idx]
		if len(candidates) != 1 {
			return s
		}
		report.Restored++
		return candidates[0].Original
	})
	return out, report
}

var doubledOpenBracket = regexp.MustCompile(`\[\s*(\[[^\[\]]+\])(?:\s*\])?`)
var doubledCloseBracket = regexp.MustCompile(`(\][^\[\]]*\])\s*\]`)

// healDoubledBrackets collapses a bracket fragment the engine wrapped in a
// second pair of brackets ("[ [name] ]" or "[ [name]") back to "[name]",
// and drops a stray closing bracket repeated after a "]...]" run.
func healDoubledBrackets(text string) string {
	text = doubledOpenBracket.ReplaceAllString(text, "$1")
	text = doubledCloseBracket.ReplaceAllString(text, "$1")
	return text
}

// ValidateIntegrity reports the tokens of protected fragments that are
// missing from candidate, counting a fragment as present when either its
// token or its original text appears — used for diagnostics only, never to
// reject a translation.
func ValidateIntegrity(candidate string, pm *PlaceholderMap) []string {
	return validateIntegrity(candidate, pm)
}

func validateIntegrity(candidate string, pm *PlaceholderMap) []string {
	var missing []string
	for _, e := range pm.entries {
		if !strings.Contains(candidate, e.Original) && !strings.Contains(candidate, e.Token) {
			missing = append(missing, e.Token)
		}
	}
	return missing
}
