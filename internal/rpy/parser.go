// Package rpy parses Ren'Py .rpy source files into TranslationEntry values
// using a line-oriented, indentation-aware classifier.
package rpy

import (
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/renlocalizer/renlocalizer/internal/config"
	"github.com/renlocalizer/renlocalizer/internal/model"
)

// linePattern pairs a compiled regex with the handler that turns a match
// into zero or more entries. Patterns are tried in order; the first match
// wins, mirroring the teacher's ordered dispatch-table idiom.
type linePattern struct {
	name    string
	re      *regexp.Regexp
	handler func(ctx *parseContext, line string, m []string) []rawEntry
}

type rawEntry struct {
	text      string
	entryType config.EntryType
	character string
}

var (
	dialogueRe = regexp.MustCompile(`^(\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s+"((?:[^"\\]|\\.)*)"\s*$`)
	narratorRe = regexp.MustCompile(`^(\s*)"((?:[^"\\]|\\.)*)"\s*$`)
	menuHeadRe = regexp.MustCompile(`^(\s*)menu\s*(\([^)]*\))?\s*:\s*$`)
	menuItemRe = regexp.MustCompile(`^(\s*)"((?:[^"\\]|\\.)*)"\s*(if\s+.+)?:\s*$`)
	screenRe   = regexp.MustCompile(`^(\s*)(?:text|label|tooltip|textbutton)\s+"((?:[^"\\]|\\.)*)"`)
	configRe   = regexp.MustCompile(`^(\s*)config\.([a-zA-Z_][a-zA-Z0-9_.]*)\s*=\s*"((?:[^"\\]|\\.)*)"\s*$`)
	guiRe      = regexp.MustCompile(`^(\s*)gui\.([a-zA-Z_][a-zA-Z0-9_.\[\]'"]*)\s*=\s*"((?:[^"\\]|\\.)*)"\s*$`)
	styleRe    = regexp.MustCompile(`^(\s*)style\.([a-zA-Z_][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)\s*=\s*"((?:[^"\\]|\\.)*)"\s*$`)
	functionRe = regexp.MustCompile(`^(\s*)\$?\s*renpy\.(input|notify)\(\s*"((?:[^"\\]|\\.)*)"`)
)

// allowedConfigNames whitelists config.* assignments worth translating, per
// spec.md §4.2 item 5 ("config.<whitelisted_name>").
var allowedConfigNames = map[string]bool{
	"name":                  true,
	"version_name":          true,
	"save_directory":        true,
	"window_title":          true,
	"menu_include_disabled": true,
}

func patterns() []linePattern {
	return []linePattern{
		{"dialogue", dialogueRe, handleDialogue},
		{"narrator", narratorRe, handleNarrator},
		{"menu_item", menuItemRe, handleMenuItem},
		{"screen", screenRe, handleScreen},
		{"config", configRe, handleConfig},
		{"gui", guiRe, handleGUI},
		{"style", styleRe, handleStyle},
		{"function", functionRe, handleFunction},
	}
}

type parseContext struct {
	filePath    string
	contextPath []string
	inMenu      bool
}

func handleDialogue(_ *parseContext, _ string, m []string) []rawEntry {
	return []rawEntry{{text: unescape(m[3]), entryType: config.EntryDialogue, character: m[2]}}
}

func handleNarrator(_ *parseContext, _ string, m []string) []rawEntry {
	return []rawEntry{{text: unescape(m[2]), entryType: config.EntryDialogue}}
}

func handleMenuItem(ctx *parseContext, _ string, m []string) []rawEntry {
	if !ctx.inMenu {
		return nil
	}
	return []rawEntry{{text: unescape(m[2]), entryType: config.EntryMenu}}
}

func handleScreen(_ *parseContext, _ string, m []string) []rawEntry {
	return []rawEntry{{text: unescape(m[2]), entryType: config.EntryUI}}
}

func handleConfig(_ *parseContext, _ string, m []string) []rawEntry {
	if !allowedConfigNames[m[2]] {
		return nil
	}
	return []rawEntry{{text: unescape(m[3]), entryType: config.EntryConfig}}
}

func handleGUI(_ *parseContext, _ string, m []string) []rawEntry {
	return []rawEntry{{text: unescape(m[3]), entryType: config.EntryGUI}}
}

func handleStyle(_ *parseContext, _ string, m []string) []rawEntry {
	return []rawEntry{{text: unescape(m[4]), entryType: config.EntryStyle}}
}

func handleFunction(_ *parseContext, _ string, m []string) []rawEntry {
	return []rawEntry{{text: unescape(m[3]), entryType: config.EntryFunction}}
}

// unescape resolves the small set of escapes Ren'Py allows inside a quoted
// string literal.
func unescape(s string) string {
	replacer := strings.NewReplacer(`\"`, `"`, `\'`, `'`, `\n`, "\n", `\t`, "\t")
	return replacer.Replace(s)
}

// ParseFile classifies every line of an .rpy file's content and returns the
// meaningful entries, after applying never-translate rules if rules is
// non-nil.
func ParseFile(filePath string, content string, rules *NeverTranslateRules) []model.TranslationEntry {
	lines := strings.Split(content, "\n")
	ctx := &parseContext{filePath: filePath}
	pats := patterns()

	var entries []model.TranslationEntry
	var labelStack []string

	for i, line := range lines {
		lineNo := i + 1

		if m := menuHeadRe.FindStringSubmatch(line); m != nil {
			ctx.inMenu = true
			continue
		}
		if trimmed := strings.TrimSpace(line); trimmed == "" {
			continue
		}
		if label := labelName(line); label != "" {
			labelStack = append(labelStack, label)
			ctx.contextPath = append([]string(nil), labelStack...)
		}

		for _, p := range pats {
			m := p.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			raws := p.handler(ctx, line, m)
			for _, r := range raws {
				if !IsMeaningful(r.text) {
					continue
				}
				if rules != nil && rules.Matches(r.text) {
					continue
				}
				entries = append(entries, model.TranslationEntry{
					OriginalText: r.text,
					FilePath:     filePath,
					LineNumber:   lineNo,
					EntryType:    r.entryType,
					Character:    r.character,
					ContextPath:  append([]string(nil), ctx.contextPath...),
					TranslationID: model.DeriveTranslationID(filePath, lineNo, r.text, ctx.contextPath),
				})
			}
			break
		}
	}

	return entries
}

var labelRe = regexp.MustCompile(`^\s*label\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)

func labelName(line string) string {
	m := labelRe.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return m[1]
}

// meaningfulness filters, per spec.md §4.2.
var (
	colorCodeRe    = regexp.MustCompile(`^#?[0-9a-fA-F]{3,8}$`)
	fontFileRe     = regexp.MustCompile(`(?i)\.(ttf|otf|woff2?)$`)
	percentOnlyRe  = regexp.MustCompile(`^-?\d+(\.\d+)?%$`)
	pureNumericRe  = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	versionLikeRe  = regexp.MustCompile(`^v?\d+\.\d+(\.\d+)*$`)
	technicalIDRe  = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)+$`)
	placeholderOnlyRe = regexp.MustCompile(`^(\[[^\]]+\]|\{[^}]+\}|\s)+$`)
)

// IsMeaningful applies the discard rules from spec.md §4.2: too short,
// color/font/percentage/pure-numeric patterns, technical identifiers, or
// entirely placeholder text are dropped. Version-like strings are retained
// even though they look numeric.
func IsMeaningful(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 {
		return false
	}
	if versionLikeRe.MatchString(trimmed) {
		return true
	}
	switch {
	case colorCodeRe.MatchString(trimmed),
		fontFileRe.MatchString(trimmed),
		percentOnlyRe.MatchString(trimmed),
		pureNumericRe.MatchString(trimmed),
		technicalIDRe.MatchString(trimmed),
		placeholderOnlyRe.MatchString(trimmed):
		return false
	}
	return true
}

// NeverTranslateRules holds a per-project rule set loaded from JSON: exact
// matches, substring matches, and regexes. Invalid regexes are logged and
// skipped rather than aborting the whole rule set.
type NeverTranslateRules struct {
	Exact    map[string]bool
	Contains []string
	Regexes  []*regexp.Regexp
}

// Matches reports whether text should be excluded from translation.
func (r *NeverTranslateRules) Matches(text string) bool {
	if r == nil {
		return false
	}
	if r.Exact[text] {
		return true
	}
	for _, c := range r.Contains {
		if strings.Contains(text, c) {
			return true
		}
	}
	for _, re := range r.Regexes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func compileRegexSkippingInvalid(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			log.Warnf("never-translate rule: skipping invalid regex %q: %v", p, err)
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}
