// Package obfuscate protects SAVING-stage output from casual copying
// (SPEC_FULL.md §12, a dropped-feature supplement pulled from
// src/utils/translation_crypto.py in original_source/). It offers the same
// two modes the Python original did: a dependency-free base64 rewrite of a
// TL file's strings behind a small Ren'Py-side decoder, and a
// passphrase-derived AES-256-GCM blob for callers who want real
// confidentiality rather than just obscurity. Neither mode is on by
// default; internal/config's ObfuscationMode gates which one a run uses.
package obfuscate

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// obfuscationInit is injected once at the top of a file that had any line
// rewritten, and decodes _rl_deobf(...) calls back to plain text at load
// time. It is intentionally not real cryptography — it only deters casual
// reading of a shipped TL file.
const obfuscationInit = `init -999 python:
    import base64 as _b64
    def _rl_deobf(s):
        try:
            return _b64.b64decode(s.encode("ascii")).decode("utf-8")
        except Exception:
            return s`

var (
	newLineRE      = regexp.MustCompile(`^(\s+new\s+)"(.*)"(\s*)$`)
	dialogueLineRE = regexp.MustCompile(`^(\s+(\w+)\s+)"(.*)"(\s*)$`)
	deobfCallRE    = regexp.MustCompile(`\[_rl_deobf\('([A-Za-z0-9+/=]+)'\)\]|_rl_deobf\('([A-Za-z0-9+/=]+)'\)`)
)

// renpyKeywords excludes statement lines ("if ...", "menu:", etc.) that the
// dialogue-line pattern would otherwise false-match as `speaker "text"`.
var renpyKeywords = map[string]bool{
	"if": true, "elif": true, "else": true, "while": true, "for": true,
	"return": true, "pass": true, "python": true, "init": true, "define": true,
	"default": true, "label": true, "jump": true, "call": true, "scene": true,
	"show": true, "hide": true, "with": true, "play": true, "stop": true,
	"queue": true, "menu": true, "translate": true, "style": true,
	"screen": true, "transform": true,
}

// Base64RPY rewrites every `new "..."` line and bare dialogue-line string in
// content to a base64-encoded `_rl_deobf(...)` call, prepending the decoder
// init block if anything was rewritten. Lines already carrying an
// `_rl_deobf` call (re-obfuscating previously obfuscated output) are left
// untouched.
func Base64RPY(content string) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	needInit := false

	for _, line := range lines {
		if m := newLineRE.FindStringSubmatch(line); m != nil && strings.TrimSpace(m[2]) != "" {
			encoded := base64.StdEncoding.EncodeToString([]byte(m[2]))
			out = append(out, fmt.Sprintf(`%s"_rl_deobf('%s')"%s`, m[1], encoded, m[3]))
			needInit = true
			continue
		}

		if m := dialogueLineRE.FindStringSubmatch(line); m != nil {
			trimmed := strings.TrimSpace(line)
			speaker, text, suffix := m[2], m[3], m[4]
			if strings.TrimSpace(text) != "" &&
				!strings.HasPrefix(text, "_rl_deobf") &&
				!renpyKeywords[strings.ToLower(speaker)] &&
				!strings.HasPrefix(trimmed, "old ") &&
				!strings.HasPrefix(trimmed, "new ") {
				encoded := base64.StdEncoding.EncodeToString([]byte(text))
				out = append(out, fmt.Sprintf(`%s"[_rl_deobf('%s')]"%s`, m[1], encoded, suffix))
				needInit = true
				continue
			}
		}

		out = append(out, line)
	}

	if !needInit {
		return content
	}
	return obfuscationInit + "\n\n\n" + strings.Join(out, "\n")
}

// DeobfuscateBase64RPY reverses Base64RPY, for tooling that needs to inspect
// or re-edit an obfuscated file.
func DeobfuscateBase64RPY(content string) string {
	result := deobfCallRE.ReplaceAllStringFunc(content, func(match string) string {
		sub := deobfCallRE.FindStringSubmatch(match)
		encoded := sub[1]
		if encoded == "" {
			encoded = sub[2]
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return match
		}
		return string(decoded)
	})
	for _, sep := range []string{"\n\n\n", "\n\n", "\n"} {
		if strings.HasPrefix(result, obfuscationInit+sep) {
			return strings.TrimPrefix(result, obfuscationInit+sep)
		}
	}
	return strings.TrimPrefix(result, obfuscationInit)
}

const (
	saltSize   = 16
	nonceSize  = 12
	pbkdf2Iter = 100_000
	aesKeySize = 32
)

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iter, aesKeySize, sha256.New)
}

// EncryptTranslations encrypts a flat original->translated map with a
// passphrase-derived AES-256-GCM key, laying salt, nonce and ciphertext out
// back to back so DecryptTranslations can split them apart again, and
// renders a Ren'Py loader script that decrypts the blob at startup —
// mirroring translation_crypto.py's (.rlenc, loader .rpy) pair.
func EncryptTranslations(pairs map[string]string, passphrase, encFileName string) (blob []byte, loaderRPY string, err error) {
	payload, err := json.Marshal(pairs)
	if err != nil {
		return nil, "", err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, "", err
	}

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, "", err
	}
	ciphertext := gcm.Seal(nil, nonce, payload, nil)

	var buf bytes.Buffer
	buf.Write(salt)
	buf.Write(nonce)
	buf.Write(ciphertext)

	return buf.Bytes(), renderLoader(encFileName, passphrase), nil
}

// DecryptTranslations reverses EncryptTranslations.
func DecryptTranslations(blob []byte, passphrase string) (map[string]string, error) {
	if len(blob) < saltSize+nonceSize {
		return nil, errors.New("obfuscate: encrypted blob too short")
	}
	salt, nonce, ciphertext := blob[:saltSize], blob[saltSize:saltSize+nonceSize], blob[saltSize+nonceSize:]

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	payload, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("obfuscate: decryption failed, wrong passphrase or corrupted data: %w", err)
	}

	var pairs map[string]string
	if err := json.Unmarshal(payload, &pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

// loaderTemplate is rendered once per run with the concrete .rlenc filename
// and a hex-encoded passphrase; `%%d` stays a literal Python `%d` in the
// generated script's own format string.
const loaderTemplate = `# Auto-generated by RenLocalizer -- Encrypted Translation Loader
# This file loads translations from %s
# Do NOT edit manually.

init -998 python:
    import json, hashlib, os

    def _rl_decrypt_translations():
        _enc_path = os.path.join(config.gamedir, "%s")
        if not os.path.exists(_enc_path):
            return

        with open(_enc_path, "rb") as _f:
            _salt = _f.read(%d)
            _nonce = _f.read(%d)
            _ct = _f.read()

        _passphrase = bytes.fromhex("%s")
        _key = hashlib.pbkdf2_hmac("sha256", _passphrase, _salt, %d)

        try:
            from cryptography.hazmat.primitives.ciphers.aead import AESGCM as _AESGCM
            _aesgcm = _AESGCM(_key)
            _payload = _aesgcm.decrypt(_nonce, _ct, None)
            _translations = json.loads(_payload)
            if not hasattr(store, "_rl_translations"):
                store._rl_translations = {}
            store._rl_translations.update(_translations)
            renpy.notify("Encrypted translations loaded (%%d entries)" %% len(_translations))
        except ImportError:
            renpy.notify("cryptography package required for encrypted translations")
        except Exception as _e:
            renpy.notify("Translation decryption error: " + str(_e))

    _rl_decrypt_translations()
`

func renderLoader(encFileName, passphrase string) string {
	return fmt.Sprintf(loaderTemplate, encFileName, encFileName, saltSize, nonceSize,
		hex.EncodeToString([]byte(passphrase)), pbkdf2Iter)
}
