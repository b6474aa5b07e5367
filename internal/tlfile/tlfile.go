// Package tlfile parses and writes Ren'Py .rpy translation files: the
// `translate <lang> <id>:` dialogue blocks and `translate <lang> strings:`
// blocks that hold old/new string pairs.
package tlfile

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/renlocalizer/renlocalizer/internal/model"
)

var (
	blockHeaderRe = regexp.MustCompile(`^(\s*)translate\s+(\S+)\s+([a-zA-Z0-9_.]+)\s*:\s*$`)
	stringsHeaderRe = regexp.MustCompile(`^(\s*)translate\s+(\S+)\s+strings\s*:\s*$`)
	commentOrigRe = regexp.MustCompile(`^(\s*)#\s*(?:([a-zA-Z_][a-zA-Z0-9_]*)\s+)?"((?:[^"\\]|\\.)*)"\s*$`)
	speakerLineRe = regexp.MustCompile(`^(\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s+"((?:[^"\\]|\\.)*)"\s*$`)
	oldLineRe     = regexp.MustCompile(`^(\s*)old\s+"((?:[^"\\]|\\.)*)"\s*$`)
	newLineRe     = regexp.MustCompile(`^(\s*)new\s+"((?:[^"\\]|\\.)*)"\s*$`)
)

// ParseFile splits raw into its line buffer and the entries found inside
// `translate <lang> <id>:` and `translate <lang> strings:` blocks. Entries
// carry their line number so ApplyTranslation can mutate the matching line
// in place.
func ParseFile(path, raw string) model.TranslationFile {
	lines := strings.Split(raw, "\n")
	tf := model.TranslationFile{Path: path, Lines: lines}

	var pendingOriginal string
	var pendingSpeaker string
	var pendingOld string
	var blockID string
	inStringsBlock := false

	for i, line := range lines {
		lineNo := i + 1

		if m := blockHeaderRe.FindStringSubmatch(line); m != nil {
			blockID = m[3]
			inStringsBlock = false
			continue
		}
		if stringsHeaderRe.MatchString(line) {
			inStringsBlock = true
			blockID = ""
			continue
		}

		if inStringsBlock {
			if m := oldLineRe.FindStringSubmatch(line); m != nil {
				pendingOld = unescape(m[2])
				continue
			}
			if m := newLineRe.FindStringSubmatch(line); m != nil && pendingOld != "" {
				tf.Entries = append(tf.Entries, model.TranslationEntry{
					OriginalText:   pendingOld,
					TranslatedText: unescape(m[2]),
					FilePath:       path,
					LineNumber:     lineNo,
					BlockID:        "strings",
				})
				pendingOld = ""
				continue
			}
			continue
		}

		if m := commentOrigRe.FindStringSubmatch(line); m != nil {
			pendingOriginal = unescape(m[3])
			pendingSpeaker = m[2]
			continue
		}
		if m := speakerLineRe.FindStringSubmatch(line); m != nil && pendingOriginal != "" {
			tf.Entries = append(tf.Entries, model.TranslationEntry{
				OriginalText:   pendingOriginal,
				TranslatedText: unescape(m[3]),
				FilePath:       path,
				LineNumber:     lineNo,
				Character:      pendingSpeaker,
				BlockID:        blockID,
			})
			pendingOriginal = ""
			pendingSpeaker = ""
		}
	}

	return tf
}

func unescape(s string) string {
	replacer := strings.NewReplacer(`\"`, `"`, `\'`, `'`, `\n`, "\n", `\t`, "\t")
	return replacer.Replace(s)
}

func escape(s string) string {
	replacer := strings.NewReplacer(`"`, `\"`, "\n", `\n`, "\t", `\t`)
	return replacer.Replace(s)
}

// ApplyTranslation mutates the line at entry.LineNumber in-place with the
// translated text, preserving every other line's content untouched.
func ApplyTranslation(tf *model.TranslationFile, entry model.TranslationEntry, translated string) {
	idx := entry.LineNumber - 1
	if idx < 0 || idx >= len(tf.Lines) {
		return
	}
	if entry.BlockID == "strings" {
		tf.Lines[idx] = fmt.Sprintf(`%snew "%s"`, leadingSpace(tf.Lines[idx]), escape(translated))
		return
	}
	indent := leadingSpace(tf.Lines[idx])
	if entry.Character != "" {
		tf.Lines[idx] = fmt.Sprintf(`%s%s "%s"`, indent, entry.Character, escape(translated))
	} else {
		tf.Lines[idx] = fmt.Sprintf(`%s"%s"`, indent, escape(translated))
	}
}

func leadingSpace(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	return line[:len(line)-len(trimmed)]
}

// Render joins the (possibly mutated) line buffer back into file content.
func Render(tf model.TranslationFile) string {
	return strings.Join(tf.Lines, "\n")
}

// NewBlock builds the canonical three-line `translate <lang> <id>:`
// stanza for an entry that has no existing TL file yet, per spec.md §6's
// documented output shape.
func NewBlock(lang, blockID string, entry model.TranslationEntry, translated string) []string {
	indent := "    "
	lines := []string{
		fmt.Sprintf("translate %s %s:", lang, blockID),
	}
	commentLine := fmt.Sprintf(`%s# "%s"`, indent, escape(entry.OriginalText))
	if entry.Character != "" {
		commentLine = fmt.Sprintf(`%s# %s "%s"`, indent, entry.Character, escape(entry.OriginalText))
	}
	lines = append(lines, commentLine)
	if entry.Character != "" {
		lines = append(lines, fmt.Sprintf(`%s%s "%s"`, indent, entry.Character, escape(translated)))
	} else {
		lines = append(lines, fmt.Sprintf(`%s"%s"`, indent, escape(translated)))
	}
	return lines
}

// NewStringsBlock builds a `translate <lang> strings:` stanza holding one
// old/new pair per entry of pairs, used for UI strings harvested outside
// dialogue blocks.
func NewStringsBlock(lang string, pairs map[string]string) []string {
	lines := []string{fmt.Sprintf("translate %s strings:", lang)}
	for original, translated := range pairs {
		lines = append(lines,
			fmt.Sprintf(`    old "%s"`, escape(original)),
			fmt.Sprintf(`    new "%s"`, escape(translated)),
		)
	}
	return lines
}
