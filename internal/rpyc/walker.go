package rpyc

import (
	"regexp"
	"strings"

	"github.com/renlocalizer/renlocalizer/internal/config"
	"github.com/renlocalizer/renlocalizer/internal/model"
)

// walkFrame is one entry on the iterative walker's explicit stack: a node
// to visit plus the context path (enclosing labels/screens/menus) active at
// that point in the tree.
type walkFrame struct {
	node    any
	context []string
}

// Walk visits every node in the unpickled tree non-recursively, harvesting
// translatable strings with their best-effort line number and context path.
// filePath is attached to every emitted entry for provenance.
func Walk(root any, filePath string) []model.TranslationEntry {
	var entries []model.TranslationEntry
	stack := []walkFrame{{node: root}}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch n := frame.node.(type) {
		case *FakeObject:
			entries = append(entries, harvest(n, filePath, frame.context)...)
			nextContext := frame.context
			if label := contextLabel(n); label != "" {
				nextContext = append(append([]string(nil), frame.context...), label)
			}
			for _, arg := range n.Args {
				stack = append(stack, walkFrame{node: arg, context: nextContext})
			}
			if n.State != nil {
				stack = append(stack, walkFrame{node: n.State, context: nextContext})
			}
		case []any:
			for _, item := range n {
				stack = append(stack, walkFrame{node: item, context: frame.context})
			}
		case map[any]any:
			for _, v := range n {
				stack = append(stack, walkFrame{node: v, context: frame.context})
			}
		}
	}

	return entries
}

// contextLabel returns the name this node contributes to the context path,
// for node kinds that introduce a new scope (labels, screens, menus).
func contextLabel(n *FakeObject) string {
	switch n.Name {
	case "Label", "SLScreen", "Menu":
		if len(n.Args) > 0 {
			if s, ok := n.Args[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// nodeKindToEntryType maps a recognized renpy.ast/sl2 node kind to the
// TranslationEntry type it contributes, per spec.md §4.3.
var nodeKindToEntryType = map[string]config.EntryType{
	"Say":             config.EntryDialogue,
	"MenuItem":        config.EntryMenu,
	"SLDisplayable":   config.EntryUI,
	"TranslateString": config.EntryRPYMC,
}

// harvest extracts zero or more entries from a single recognized node,
// applying the heuristic string filter for harvested strings.
func harvest(n *FakeObject, filePath string, context []string) []model.TranslationEntry {
	entryType, recognized := nodeKindToEntryType[n.Name]
	if !recognized {
		return nil
	}

	var out []model.TranslationEntry
	var character string
	if n.Name == "Say" && len(n.Args) >= 2 {
		if who, ok := n.Args[0].(string); ok {
			character = who
		}
	}

	for _, arg := range n.Args {
		s, ok := arg.(string)
		if !ok || !looksHarvestable(s) {
			continue
		}
		out = append(out, model.TranslationEntry{
			OriginalText:  s,
			FilePath:      filePath,
			EntryType:     entryType,
			Character:     character,
			ContextPath:   append([]string(nil), context...),
			TranslationID: model.DeriveTranslationID(filePath, 0, s, context),
		})
	}
	return out
}

var (
	lowerUnderscoreIdentRe = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)
	uiWhitelist            = map[string]bool{
		"yes": true, "no": true, "back": true, "skip": true, "auto": true,
		"save": true, "load": true, "help": true, "on": true, "off": true,
	}
)

// looksHarvestable implements the heuristic filter from spec.md §4.3: short
// all-lowercase-with-underscores identifiers are treated as variable names
// and dropped, while mixed/Title-case strings, strings with spaces, and the
// small UI whitelist are retained.
func looksHarvestable(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	lower := strings.ToLower(trimmed)
	if uiWhitelist[lower] {
		return true
	}
	if strings.ContainsAny(trimmed, " \t") {
		return true
	}
	if lowerUnderscoreIdentRe.MatchString(trimmed) && len(trimmed) <= 32 {
		return false
	}
	return trimmed != strings.ToLower(trimmed) || len(trimmed) > 1
}
