// Package config provides the configuration schema and loader for the
// Voxbridge server.
package config

// LogLevel controls log verbosity for the Voxbridge server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Voxbridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Agent         AgentConfig         `yaml:"agent"`
	STT           STTConfig           `yaml:"stt"`
	LLM           LLMConfig           `yaml:"llm"`
	TTS           TTSConfig           `yaml:"tts"`
	Conversation  ConversationConfig  `yaml:"conversation"`
	Costs         CostsConfig         `yaml:"costs"`
	KnowledgeBase KnowledgeBaseConfig `yaml:"knowledge_base"`
	TranscriptLog TranscriptLogConfig `yaml:"transcript_log"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the gateway listens on (e.g., ":8085").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AgentConfig is the agent identity and conversational content delivered to
// every session.
type AgentConfig struct {
	// TenantID and AgentID are carried on every outward event envelope and
	// transcript row.
	TenantID string `yaml:"tenant_id"`
	AgentID  string `yaml:"agent_id"`

	// SystemPrompt is the head system message, kept outside the rolling
	// history window.
	SystemPrompt string `yaml:"system_prompt"`

	// Greeting, when set, is spoken as the opening agent turn.
	Greeting string `yaml:"greeting"`

	// Tools are the tool definitions offered to the model. Each entry is
	// normalised into {name, description, parameters}; the three common
	// nesting shapes are accepted.
	Tools []map[string]any `yaml:"tools"`
}

// STTConfig configures the streaming recognizer.
type STTConfig struct {
	// Provider names the recognizer backend. Only "soniox" is built in.
	Provider string `yaml:"provider"`

	// APIKey authenticates against the recognizer. Usually injected from
	// the environment rather than written in the file.
	APIKey string `yaml:"api_key"`

	// Model is the recognizer model identifier.
	Model string `yaml:"model"`

	// LanguageHints biases recognition toward the listed language tags.
	LanguageHints []string `yaml:"language_hints"`

	// SampleRate of the inbound telephony audio. Default 8000.
	SampleRate int `yaml:"sample_rate"`

	// AudioFormat in the recognizer's vocabulary. Default "mulaw".
	AudioFormat string `yaml:"audio_format"`

	// EnableEndpointDetection asks for endpoint markers. Default true.
	EnableEndpointDetection *bool `yaml:"enable_endpoint_detection"`

	// EnableInterim asks for non-final tokens. Default true.
	EnableInterim *bool `yaml:"enable_interim"`
}

// BackendConfig identifies one completion backend.
type BackendConfig struct {
	// APIKey authenticates against the backend.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint, allowing any
	// OpenAI-compatible server.
	BaseURL string `yaml:"base_url"`

	// Model is the completion model identifier.
	Model string `yaml:"model"`
}

// LLMConfig configures turn generation.
type LLMConfig struct {
	// Primary is the first-choice backend.
	Primary BackendConfig `yaml:"primary"`

	// Secondary, when set, is tried once after a primary failure.
	Secondary *BackendConfig `yaml:"secondary"`

	// Temperature for sampling. Default 0.7.
	Temperature *float64 `yaml:"temperature"`

	// MaxTokens caps each completion. Default 1024.
	MaxTokens int `yaml:"max_tokens"`
}

// TTSConfig configures speech synthesis.
type TTSConfig struct {
	// Provider names the synthesis backend. Only "elevenlabs" is built in.
	Provider string `yaml:"provider"`

	// APIKey authenticates against the synthesizer.
	APIKey string `yaml:"api_key"`

	// Voice is the synthesis voice identifier.
	Voice string `yaml:"voice"`

	// Model is the synthesis model identifier. Optional.
	Model string `yaml:"model"`

	// OutputFormat selects the backend output codec, e.g. "ULAW_8000_8",
	// "PCM_22050_16", "MP3_22050_128". Default "ULAW_8000_8".
	OutputFormat string `yaml:"output_format"`

	// FadeInMs is the start-of-utterance gain ramp length. Default 200.
	FadeInMs int `yaml:"fade_in_ms"`

	// ResampleDownshift enables naive decimation when the output rate is an
	// integer multiple of the telephony rate. Default false.
	ResampleDownshift bool `yaml:"resample_downshift"`
}

// ConversationConfig configures turn-taking.
type ConversationConfig struct {
	// SilenceTimeoutMs bounds caller inactivity. Default 30000.
	SilenceTimeoutMs int `yaml:"silence_timeout_ms"`

	// BargeIn allows the caller to interrupt the agent. Default true.
	BargeIn *bool `yaml:"barge_in"`
}

// CostsConfig is the billing rate card.
type CostsConfig struct {
	STTPerMinute   float64 `yaml:"stt_per_minute"`
	LLMInputPer1K  float64 `yaml:"llm_input_per_1k"`
	LLMOutputPer1K float64 `yaml:"llm_output_per_1k"`
	TTSPer1KChars  float64 `yaml:"tts_per_1k_chars"`
}

// KnowledgeBaseConfig points at the external retrieval service backing the
// knowledge_base_search tool. Empty BaseURL disables the built-in resolver;
// a configured BaseURL requires KBID.
type KnowledgeBaseConfig struct {
	BaseURL    string `yaml:"base_url"`
	KBID       string `yaml:"kb_id"`
	APIKey     string `yaml:"api_key"`
	SearchType string `yaml:"search_type"`
	MaxResults int    `yaml:"max_results"`
}

// TranscriptLogConfig configures transcript persistence. Empty DSN disables
// logging.
type TranscriptLogConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// boolOrDefault dereferences an optional flag.
func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// EndpointDetectionEnabled resolves the optional flag, default true.
func (c STTConfig) EndpointDetectionEnabled() bool {
	return boolOrDefault(c.EnableEndpointDetection, true)
}

// InterimEnabled resolves the optional flag, default true.
func (c STTConfig) InterimEnabled() bool {
	return boolOrDefault(c.EnableInterim, true)
}

// BargeInEnabled resolves the optional flag, default true.
func (c ConversationConfig) BargeInEnabled() bool {
	return boolOrDefault(c.BargeIn, true)
}

// TemperatureOrDefault resolves the optional temperature, default 0.7.
func (c LLMConfig) TemperatureOrDefault() float64 {
	if c.Temperature == nil {
		return 0.7
	}
	return *c.Temperature
}

// applyDefaults fills unset scalar fields in place.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8085"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.STT.Provider == "" {
		cfg.STT.Provider = "soniox"
	}
	if cfg.STT.Model == "" {
		cfg.STT.Model = "stt-rt-preview"
	}
	if cfg.STT.SampleRate == 0 {
		cfg.STT.SampleRate = 8000
	}
	if cfg.STT.AudioFormat == "" {
		cfg.STT.AudioFormat = "mulaw"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.TTS.Provider == "" {
		cfg.TTS.Provider = "elevenlabs"
	}
	if cfg.TTS.OutputFormat == "" {
		cfg.TTS.OutputFormat = "ULAW_8000_8"
	}
	if cfg.TTS.FadeInMs == 0 {
		cfg.TTS.FadeInMs = 200
	}
	if cfg.Conversation.SilenceTimeoutMs == 0 {
		cfg.Conversation.SilenceTimeoutMs = 30000
	}
	if cfg.KnowledgeBase.MaxResults == 0 {
		cfg.KnowledgeBase.MaxResults = 3
	}
	if cfg.KnowledgeBase.SearchType == "" {
		cfg.KnowledgeBase.SearchType = "text"
	}
}
