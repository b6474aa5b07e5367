package adapters

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Glossary is a flat source-term → target-term map appended to LLM-backed
// adapters' system prompts (spec.md §4.4 "provides glossary pairs when
// configured").
type Glossary map[string]string

// LoadGlossary reads a glossary from a TOML file of `source = "target"`
// pairs. A missing path yields an empty glossary, not an error — mirroring
// internal/rpy.LoadNeverTranslateRules' "absent config is a no-op" shape.
func LoadGlossary(path string) (Glossary, error) {
	g := Glossary{}
	if strings.TrimSpace(path) == "" {
		return g, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return g, nil
		}
		return nil, err
	}
	if _, err := toml.Decode(string(raw), &g); err != nil {
		return nil, err
	}
	return g, nil
}

// Prompt renders the glossary as the line-per-pair block the system prompt
// builder appends after any user-supplied instructions.
func (g Glossary) Prompt() string {
	if len(g) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Glossary (always translate these terms exactly as given):\n")
	for source, target := range g {
		b.WriteString("- ")
		b.WriteString(source)
		b.WriteString(" -> ")
		b.WriteString(target)
		b.WriteString("\n")
	}
	return b.String()
}
