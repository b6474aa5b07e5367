// Package runtimehook implements C13: emitting the single .rpy file that
// forces a Ren'Py game to run in the translated language at load time,
// independent of whether the player ever opens the in-game language menu.
package runtimehook

import (
	"bytes"
	"fmt"
	"path/filepath"
	"text/template"

	"github.com/renlocalizer/renlocalizer/internal/encoding"
)

// FileName is the hook's on-disk name. The zzz_ prefix makes Ren'Py load it
// after the project's own config, per spec.md §4.7.
const FileName = "zzz_renlocalizer_runtime.rpy"

// Options parameterizes the emitted hook.
type Options struct {
	Language string
	// SwitchKey is the keybinding that toggles back to the original
	// language, e.g. "shift_L". Defaults to "shift_L" when empty.
	SwitchKey string
}

var hookTemplate = template.Must(template.New("runtimehook").Parse(`init -100 python:
    config.language = "{{.Language}}"

init 1501 python:
    def _renlocalizer_translate(s):
        try:
            return renpy.translate_string(s)
        except Exception:
            try:
                return renpy.translation.translate_string(s)
            except Exception:
                return s

    def _renlocalizer_say_menu_filter(s):
        try:
            return _renlocalizer_translate(s)
        except Exception:
            return s

    def _renlocalizer_replace_text(s):
        try:
            return _renlocalizer_translate(s)
        except Exception:
            return s

    config.say_menu_text_filter = _renlocalizer_say_menu_filter
    config.replace_text = _renlocalizer_replace_text

    def _renlocalizer_switch_language():
        if _preferences.language == "{{.Language}}":
            _preferences.language = None
        else:
            _preferences.language = "{{.Language}}"
        renpy.restart_interaction()

    config.underlay.append(renpy.Keymap(**{"{{.SwitchKeyBinding}}": _renlocalizer_switch_language}))
`))

// Render produces the hook file's contents, normalized to the UTF-8-BOM,
// LF-ending form every RenLocalizer output file uses.
func Render(opts Options) ([]byte, error) {
	if opts.Language == "" {
		return nil, fmt.Errorf("runtimehook: language is required")
	}
	if opts.SwitchKey == "" {
		opts.SwitchKey = "shift_L"
	}

	data := struct {
		Language         string
		SwitchKeyBinding string
	}{Language: opts.Language, SwitchKeyBinding: opts.SwitchKey}

	var buf bytes.Buffer
	if err := hookTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("runtimehook: render: %w", err)
	}
	return encoding.Normalize(buf.String()), nil
}

// Write renders the hook and atomically writes it to gameDir/FileName,
// replacing any prior version — spec.md §4.5's SAVING stage requires this.
func Write(gameDir string, opts Options) error {
	body, err := Render(opts)
	if err != nil {
		return err
	}
	return encoding.WriteFileAtomic(filepath.Join(gameDir, FileName), body, 0o644)
}
