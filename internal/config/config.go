// Package config loads and validates RenLocalizer's configuration: the
// translation engine options, API keys, and proxy behavior consumed by the
// pipeline orchestrator and the translation manager.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Engine identifies a translation backend.
type Engine string

const (
	EngineWeb       Engine = "web"        // free web-scraping backend (e.g. Google Translate web UI)
	EngineAPIKey    Engine = "api-key"    // paid API-key backend (e.g. DeepL, Azure)
	EngineLocalLLM  Engine = "local-llm"  // locally hosted chat-completion endpoint
	EngineLLMHosted Engine = "llm-hosted" // hosted LLM chat-completion API
)

// EntryType mirrors internal/rpy's classification and gates translation by
// the translate_dialogue|menu|ui|config|gui|style|functions config knobs.
type EntryType string

const (
	EntryDialogue EntryType = "dialogue"
	EntryMenu     EntryType = "menu"
	EntryUI       EntryType = "ui"
	EntryConfig   EntryType = "config"
	EntryGUI      EntryType = "gui"
	EntryStyle    EntryType = "style"
	EntryFunction EntryType = "function"
	// EntryString and EntryRPYMC tag entries harvested by the data extractor
	// and the RPYC/RPYMC reader respectively; neither is gated by a
	// translate_* toggle (TypeEnabled defaults to true for both).
	EntryString EntryType = "string"
	EntryRPYMC  EntryType = "rpymc"
)

// Config is the root configuration object, shaped after spec.md §6.
type Config struct {
	Translation TranslationConfig `yaml:"translation"`
	APIKeys     APIKeysConfig     `yaml:"api_keys"`
	Proxy       ProxyConfig       `yaml:"proxy"`
}

// TranslationConfig groups the "translation" config surface from spec.md §6.
type TranslationConfig struct {
	SourceLang string `yaml:"source_lang"`
	TargetLang string `yaml:"target_lang"`
	Engine     Engine `yaml:"engine"`

	MaxConcurrentThreads int           `yaml:"max_concurrent_threads"`
	RequestDelay         time.Duration `yaml:"request_delay"`
	MaxBatchSize         int           `yaml:"max_batch_size"`
	MaxRetries           int           `yaml:"max_retries"`
	Timeout              time.Duration `yaml:"timeout"`
	MaxCharsPerRequest   int           `yaml:"max_chars_per_request"`
	UseMultiEndpoint     bool          `yaml:"use_multi_endpoint"`

	GlossaryPath           string `yaml:"glossary_path"`
	NeverTranslateRulesPath string `yaml:"never_translate_rules_path"`

	TranslateDialogue bool `yaml:"translate_dialogue"`
	TranslateMenu     bool `yaml:"translate_menu"`
	TranslateUI       bool `yaml:"translate_ui"`
	TranslateConfig   bool `yaml:"translate_config"`
	TranslateGUI      bool `yaml:"translate_gui"`
	TranslateStyle    bool `yaml:"translate_style"`
	TranslateFunctions bool `yaml:"translate_functions"`

	// EnableFuzzyMatch is deprecated: parsed and validated but has no effect.
	// See SPEC_FULL.md §13 (Open Question decisions).
	EnableFuzzyMatch bool `yaml:"enable_fuzzy_match"`

	EnableDeepScan   bool `yaml:"enable_deep_scan"`
	EnableRPYCReader bool `yaml:"enable_rpyc_reader"`
	// AutoExtractRPA gates the UNRPA stage's archive extraction (spec.md
	// §4.5): when true and .rpa archives are present, they are unpacked
	// before stub generation; when false, the pipeline treats archives as
	// opaque and relies on whatever .rpy/.rpyc already exists on disk.
	AutoExtractRPA bool `yaml:"auto_extract_rpa"`

	OpenAIModel    string `yaml:"openai_model"`
	OpenAIBaseURL  string `yaml:"openai_base_url"`
	GeminiModel    string `yaml:"gemini_model"`
	GeminiSafetyLevel string `yaml:"gemini_safety_level"`
	LocalLLMModel  string `yaml:"local_llm_model"`
	LocalLLMURL    string `yaml:"local_llm_url"`

	AITemperature   float64 `yaml:"ai_temperature"`
	AIMaxTokens     int     `yaml:"ai_max_tokens"`
	AIBatchSize     int     `yaml:"ai_batch_size"`
	AIConcurrency   int     `yaml:"ai_concurrency"`
	AISystemPrompt  string  `yaml:"ai_system_prompt"`
	AIFallbackEngine Engine `yaml:"ai_fallback_engine"`

	ForceRuntimeTranslation bool `yaml:"force_runtime_translation"`
	AutoGenerateHook        bool `yaml:"auto_generate_hook"`

	UseGlobalCache bool   `yaml:"use_global_cache"`
	CachePath      string `yaml:"cache_path"`

	// AdaptInterval controls how often the adaptive concurrency controller
	// re-evaluates its window (spec.md §4.4). Defaults to 10s.
	AdaptInterval time.Duration `yaml:"adapt_interval"`
	// ConcurrencyFloor / ConcurrencyCap bound the adaptive controller.
	ConcurrencyFloor int `yaml:"concurrency_floor"`
	ConcurrencyCap   int `yaml:"concurrency_cap"`

	// ObfuscationMode protects the SAVING stage's written TL output from
	// casual copying (SPEC_FULL.md §12): "none" (default), "base64" (inline
	// _rl_deobf init block, no extra runtime dependency), or "aes" (a
	// passphrase-derived AES-256-GCM blob plus a loader .rpy).
	ObfuscationMode       ObfuscationMode `yaml:"obfuscation_mode"`
	ObfuscationPassphrase string          `yaml:"obfuscation_passphrase"`

	// UnrpaFallbackBinary names an external `unrpa` executable (e.g. the
	// Python `unrpa` CLI, invoked as `<binary> --path <dir> <archive>`) that
	// the UNRPA stage shells out to when the built-in RPA-3.0 reader fails
	// to parse an archive — covering index/header variants the native
	// reader doesn't recognize. Empty disables the fallback.
	UnrpaFallbackBinary string `yaml:"unrpa_fallback_binary"`
}

// ObfuscationMode selects how (or whether) SAVING-stage output is obscured
// before being written to disk.
type ObfuscationMode string

const (
	ObfuscationNone   ObfuscationMode = "none"
	ObfuscationBase64 ObfuscationMode = "base64"
	ObfuscationAES    ObfuscationMode = "aes"
)

// APIKeysConfig holds one key per backend that requires one.
type APIKeysConfig struct {
	APIKey      string `yaml:"api_key"`
	OpenAI      string `yaml:"openai"`
	Gemini      string `yaml:"gemini"`
	LLMHosted   string `yaml:"llm_hosted"`
	OAuthClientID     string `yaml:"oauth_client_id"`
	OAuthClientSecret string `yaml:"oauth_client_secret"`
	OAuthTokenURL     string `yaml:"oauth_token_url"`
}

// ProxyConfig groups the "proxy" config surface from spec.md §6.
type ProxyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	AutoRotate        bool          `yaml:"auto_rotate"`
	UpdateInterval    time.Duration `yaml:"update_interval"`
	MaxFailures       int           `yaml:"max_failures"`
	PersonalProxyURL  string        `yaml:"personal_proxy_url"`
	ManualProxies     []string      `yaml:"manual_proxies"`
	// SourceURLs lists free-proxy-list pages to scrape when no personal or
	// manual proxy is configured and auto_rotate is enabled. Empty disables
	// auto-fetch; the pool then only ever serves manual_proxies, if any.
	SourceURLs []string `yaml:"source_urls"`
}

// Default returns a Config populated with the defaults documented in spec.md.
func Default() *Config {
	return &Config{
		Translation: TranslationConfig{
			SourceLang:           "english",
			TargetLang:           "english",
			Engine:               EngineWeb,
			MaxConcurrentThreads: 4,
			MaxBatchSize:         50,
			MaxRetries:           3,
			Timeout:              15 * time.Second,
			MaxCharsPerRequest:   6000,
			TranslateDialogue:    true,
			TranslateMenu:        true,
			TranslateUI:          true,
			AutoGenerateHook:     true,
			AutoExtractRPA:       true,
			UseGlobalCache:       true,
			CachePath:            filepath.Join(".renlocalizer", "cache.json"),
			AdaptInterval:        10 * time.Second,
			ConcurrencyFloor:     4,
			ConcurrencyCap:       512,
			AIBatchSize:          20,
			AIConcurrency:        8,
			AIMaxTokens:          2048,
			AITemperature:        0.3,
			ObfuscationMode:      ObfuscationNone,
		},
		Proxy: ProxyConfig{
			UpdateInterval: 10 * time.Minute,
			MaxFailures:    5,
		},
	}
}

// Load reads a YAML config file at path, overlays a sibling ".env" file (if
// present) onto the process environment, then fills in any fields still at
// their zero value with defaults.
func Load(path string) (*Config, error) {
	if envPath := filepath.Join(filepath.Dir(path), ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			log.WithError(err).Warn("config: failed to load .env overlay")
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	cfg.fillDefaults()
	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// applyEnvOverrides lets API keys come from the environment instead of the
// YAML file, so secrets need not be committed alongside the config.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RENLOCALIZER_API_KEY"); v != "" {
		c.APIKeys.APIKey = v
	}
	if v := os.Getenv("RENLOCALIZER_OPENAI_KEY"); v != "" {
		c.APIKeys.OpenAI = v
	}
	if v := os.Getenv("RENLOCALIZER_GEMINI_KEY"); v != "" {
		c.APIKeys.Gemini = v
	}
	if v := os.Getenv("RENLOCALIZER_LLM_HOSTED_KEY"); v != "" {
		c.APIKeys.LLMHosted = v
	}
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.Translation.MaxConcurrentThreads <= 0 {
		c.Translation.MaxConcurrentThreads = def.Translation.MaxConcurrentThreads
	}
	if c.Translation.MaxBatchSize <= 0 {
		c.Translation.MaxBatchSize = def.Translation.MaxBatchSize
	}
	if c.Translation.MaxRetries <= 0 {
		c.Translation.MaxRetries = def.Translation.MaxRetries
	}
	if c.Translation.Timeout <= 0 {
		c.Translation.Timeout = def.Translation.Timeout
	}
	if c.Translation.MaxCharsPerRequest <= 0 {
		c.Translation.MaxCharsPerRequest = def.Translation.MaxCharsPerRequest
	}
	if c.Translation.AdaptInterval <= 0 {
		c.Translation.AdaptInterval = def.Translation.AdaptInterval
	}
	if c.Translation.ConcurrencyFloor <= 0 {
		c.Translation.ConcurrencyFloor = def.Translation.ConcurrencyFloor
	}
	if c.Translation.ConcurrencyCap <= 0 {
		c.Translation.ConcurrencyCap = def.Translation.ConcurrencyCap
	}
	if c.Translation.CachePath == "" {
		c.Translation.CachePath = def.Translation.CachePath
	}
	if c.Proxy.UpdateInterval <= 0 {
		c.Proxy.UpdateInterval = def.Proxy.UpdateInterval
	}
	if c.Proxy.MaxFailures <= 0 {
		c.Proxy.MaxFailures = def.Proxy.MaxFailures
	}
	if c.Translation.ObfuscationMode == "" {
		c.Translation.ObfuscationMode = def.Translation.ObfuscationMode
	}
}

// Validate catches configuration mistakes that would otherwise surface deep
// inside the pipeline as a confusing fatal error. It is a supplemented
// feature (SPEC_FULL.md §12), returning a plain error; the pipeline converts
// a non-nil result into a fatal PipelineResult per spec.md §7.
func (c *Config) Validate() error {
	var problems []string

	if strings.EqualFold(c.Translation.SourceLang, c.Translation.TargetLang) {
		problems = append(problems, "source_lang and target_lang must differ")
	}
	if c.Translation.TargetLang == "" {
		problems = append(problems, "target_lang is required")
	}

	switch c.Translation.Engine {
	case EngineWeb:
		// no required key
	case EngineAPIKey:
		if c.APIKeys.APIKey == "" {
			problems = append(problems, "engine api-key requires api_keys.api_key")
		}
	case EngineLocalLLM:
		if c.Translation.LocalLLMURL == "" {
			problems = append(problems, "engine local-llm requires translation.local_llm_url")
		}
	case EngineLLMHosted:
		if c.APIKeys.OpenAI == "" && c.APIKeys.Gemini == "" && c.APIKeys.LLMHosted == "" {
			problems = append(problems, "engine llm-hosted requires an api_keys entry")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown engine %q", c.Translation.Engine))
	}

	if info, err := os.Stat(c.Translation.CachePath); err == nil && info.IsDir() {
		problems = append(problems, fmt.Sprintf("cache_path %q is a directory, expected a file", c.Translation.CachePath))
	}

	if c.Translation.EnableFuzzyMatch {
		log.Warn("config: enable_fuzzy_match is deprecated and has no effect (see SPEC_FULL.md open questions)")
	}

	switch c.Translation.ObfuscationMode {
	case ObfuscationNone, ObfuscationBase64:
		// no extra requirement
	case ObfuscationAES:
		if c.Translation.ObfuscationPassphrase == "" {
			problems = append(problems, "obfuscation_mode aes requires translation.obfuscation_passphrase")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown obfuscation_mode %q", c.Translation.ObfuscationMode))
	}

	if len(problems) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// TypeEnabled reports whether entries of the given type should be translated,
// per the translate_dialogue|menu|ui|config|gui|style|functions filters.
func (c *TranslationConfig) TypeEnabled(t EntryType) bool {
	switch t {
	case EntryDialogue:
		return c.TranslateDialogue
	case EntryMenu:
		return c.TranslateMenu
	case EntryUI:
		return c.TranslateUI
	case EntryConfig:
		return c.TranslateConfig
	case EntryGUI:
		return c.TranslateGUI
	case EntryStyle:
		return c.TranslateStyle
	case EntryFunction:
		return c.TranslateFunctions
	default:
		return true
	}
}
