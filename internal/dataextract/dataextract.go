// Package dataextract harvests translatable strings from auxiliary JSON and
// YAML data files using key-based heuristics: values under keys that look
// like user-facing text are extracted, values under keys that look like
// identifiers or resource paths are not.
package dataextract

import (
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/renlocalizer/renlocalizer/internal/config"
	"github.com/renlocalizer/renlocalizer/internal/model"
	"github.com/renlocalizer/renlocalizer/internal/rpy"
)

// translatableKeyHints and skipKeyHints drive the key-based heuristic: a key
// containing one of the translatable hints (and none of the skip hints) has
// its string value considered for extraction.
var (
	translatableKeyHints = []string{"text", "label", "title", "description", "message", "name", "caption", "hint", "tooltip"}
	skipKeyHints         = []string{"id", "key", "path", "color", "icon", "url", "uri", "file", "image", "sprite", "sound", "font", "class", "type"}
)

func keyLooksTranslatable(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range skipKeyHints {
		if strings.Contains(lower, s) {
			return false
		}
	}
	for _, t := range translatableKeyHints {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// ExtractJSON walks a JSON document and emits an entry for every string
// value reached through a translatable-looking key path.
func ExtractJSON(filePath string, content []byte) []model.TranslationEntry {
	if !gjson.ValidBytes(content) {
		return nil
	}
	var entries []model.TranslationEntry
	walkJSON(gjson.ParseBytes(content), "", filePath, &entries)
	return entries
}

func walkJSON(v gjson.Result, keyPath, filePath string, out *[]model.TranslationEntry) {
	switch {
	case v.IsObject():
		v.ForEach(func(k, val gjson.Result) bool {
			childPath := k.String()
			if keyPath != "" {
				childPath = keyPath + "." + k.String()
			}
			if val.Type == gjson.String && keyLooksTranslatable(k.String()) && rpy.IsMeaningful(val.String()) {
				*out = append(*out, newEntry(filePath, val.String(), childPath))
			} else {
				walkJSON(val, childPath, filePath, out)
			}
			return true
		})
	case v.IsArray():
		v.ForEach(func(_, val gjson.Result) bool {
			walkJSON(val, keyPath, filePath, out)
			return true
		})
	}
}

// ExtractYAML walks a YAML document the same way, using the generic
// yaml.Node tree so key names are available alongside values.
func ExtractYAML(filePath string, content []byte) ([]model.TranslationEntry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}
	var entries []model.TranslationEntry
	if len(doc.Content) > 0 {
		walkYAML(doc.Content[0], "", filePath, &entries)
	}
	return entries, nil
}

func walkYAML(node *yaml.Node, keyPath, filePath string, out *[]model.TranslationEntry) {
	if node == nil {
		return
	}
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			valNode := node.Content[i+1]
			childPath := keyNode.Value
			if keyPath != "" {
				childPath = keyPath + "." + keyNode.Value
			}
			if valNode.Kind == yaml.ScalarNode && valNode.Tag == "!!str" &&
				keyLooksTranslatable(keyNode.Value) && rpy.IsMeaningful(valNode.Value) {
				*out = append(*out, newEntry(filePath, valNode.Value, childPath))
			} else {
				walkYAML(valNode, childPath, filePath, out)
			}
		}
	case yaml.SequenceNode:
		for _, child := range node.Content {
			walkYAML(child, keyPath, filePath, out)
		}
	}
}

func newEntry(filePath, text, keyPath string) model.TranslationEntry {
	return model.TranslationEntry{
		OriginalText:  text,
		FilePath:      filePath,
		EntryType:     config.EntryString,
		ContextPath:   []string{keyPath},
		TranslationID: model.DeriveTranslationID(filePath, 0, text, []string{keyPath}),
	}
}
