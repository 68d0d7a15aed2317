package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/voxbridge-ai/voxbridge/pkg/audio"
)

// Load reads the YAML configuration file at path, applies defaults, and
// returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.STT.Provider != "soniox" {
		errs = append(errs, fmt.Errorf("stt.provider %q is not supported; only soniox is built in", cfg.STT.Provider))
	}
	if cfg.STT.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("stt.sample_rate %d must be positive", cfg.STT.SampleRate))
	}

	if cfg.LLM.Primary.Model == "" {
		errs = append(errs, errors.New("llm.primary.model is required"))
	}
	if cfg.LLM.Secondary != nil && cfg.LLM.Secondary.Model == "" {
		errs = append(errs, errors.New("llm.secondary.model is required when a secondary backend is configured"))
	}
	if t := cfg.LLM.TemperatureOrDefault(); t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0, 2]", t))
	}
	if cfg.LLM.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens %d must be positive", cfg.LLM.MaxTokens))
	}

	if cfg.TTS.Provider != "elevenlabs" {
		errs = append(errs, fmt.Errorf("tts.provider %q is not supported; only elevenlabs is built in", cfg.TTS.Provider))
	}
	if cfg.TTS.Voice == "" {
		errs = append(errs, errors.New("tts.voice is required"))
	}
	if _, err := audio.ParseFormat(cfg.TTS.OutputFormat); err != nil {
		errs = append(errs, fmt.Errorf("tts.output_format: %w", err))
	}
	if cfg.TTS.FadeInMs < 0 {
		errs = append(errs, fmt.Errorf("tts.fade_in_ms %d must not be negative", cfg.TTS.FadeInMs))
	}

	if cfg.Conversation.SilenceTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("conversation.silence_timeout_ms %d must be positive", cfg.Conversation.SilenceTimeoutMs))
	}

	for name, rate := range map[string]float64{
		"costs.stt_per_minute":    cfg.Costs.STTPerMinute,
		"costs.llm_input_per_1k":  cfg.Costs.LLMInputPer1K,
		"costs.llm_output_per_1k": cfg.Costs.LLMOutputPer1K,
		"costs.tts_per_1k_chars":  cfg.Costs.TTSPer1KChars,
	} {
		if rate < 0 {
			errs = append(errs, fmt.Errorf("%s %.4f must not be negative", name, rate))
		}
	}

	if cfg.KnowledgeBase.BaseURL != "" && cfg.KnowledgeBase.KBID == "" {
		errs = append(errs, errors.New("knowledge_base.kb_id is required when a base_url is configured"))
	}
	switch cfg.KnowledgeBase.SearchType {
	case "text", "image", "hybrid":
	default:
		errs = append(errs, fmt.Errorf("knowledge_base.search_type %q is invalid; valid values: text, image, hybrid", cfg.KnowledgeBase.SearchType))
	}

	for i, tool := range cfg.Agent.Tools {
		if _, ok := tool["name"]; !ok {
			if fn, nested := tool["function"].(map[string]any); !nested || fn["name"] == nil {
				errs = append(errs, fmt.Errorf("agent.tools[%d] is missing a name", i))
			}
		}
	}

	return errors.Join(errs...)
}
