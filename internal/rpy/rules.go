package rpy

import (
	"os"

	"github.com/tidwall/gjson"
)

// LoadNeverTranslateRules reads a never-translate rule set from a JSON file
// shaped like:
//
//	{"exact": ["OK"], "contains": ["DEBUG:"], "regex": ["^v\\d+$"]}
//
// A missing path yields an empty (always-false) rule set, not an error.
func LoadNeverTranslateRules(path string) (*NeverTranslateRules, error) {
	rules := &NeverTranslateRules{Exact: map[string]bool{}}
	if path == "" {
		return rules, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rules, nil
		}
		return nil, err
	}
	if !gjson.ValidBytes(raw) {
		return rules, nil
	}

	parsed := gjson.ParseBytes(raw)
	parsed.Get("exact").ForEach(func(_, v gjson.Result) bool {
		rules.Exact[v.String()] = true
		return true
	})
	parsed.Get("contains").ForEach(func(_, v gjson.Result) bool {
		rules.Contains = append(rules.Contains, v.String())
		return true
	})

	var patterns []string
	parsed.Get("regex").ForEach(func(_, v gjson.Result) bool {
		patterns = append(patterns, v.String())
		return true
	})
	rules.Regexes = compileRegexSkippingInvalid(patterns)

	return rules, nil
}
