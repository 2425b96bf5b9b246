package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Default constants shared by the providers.
const (
	AudioFilePrefix     = "rtvoice_"
	DefaultKillTime     = 7 * time.Second
	ESpeakFemaleSuffix  = "+f3"
	DefaultMaryURL      = "http://mary.dfki.de"
	DefaultMaryPort     = 59125
	DefaultCleanupEvery = 5 * time.Second
	// MinAudioFileSize is the size a generated file must exceed to be valid.
	MinAudioFileSize = 1024
)

// Config contains all dispatcher and provider options.
type Config struct {
	// Provider selection
	CustomMode     bool   `yaml:"custom_mode" env:"RTVOICE_CUSTOM_MODE" envDefault:"false"`
	CustomProvider string `yaml:"custom_provider" env:"RTVOICE_CUSTOM_PROVIDER" envDefault:"openai"`
	MaryMode       bool   `yaml:"mary_mode" env:"RTVOICE_MARY_MODE" envDefault:"false"`
	MaryFallback   bool   `yaml:"mary_fallback" env:"RTVOICE_MARY_FALLBACK" envDefault:"true"`
	ESpeakMode     bool   `yaml:"espeak_mode" env:"RTVOICE_ESPEAK_MODE" envDefault:"false"`

	// Request handling
	AutoClearTags   bool          `yaml:"auto_clear_tags" env:"RTVOICE_AUTO_CLEAR_TAGS" envDefault:"false"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"RTVOICE_CLEANUP_INTERVAL" envDefault:"5s"`

	Audio   AudioConfig   `yaml:"audio"`
	Process ProcessConfig `yaml:"process"`
	Windows WindowsConfig `yaml:"windows"`
	MacOS   MacOSConfig   `yaml:"macos"`
	ESpeak  ESpeakConfig  `yaml:"espeak"`
	Mary    MaryConfig    `yaml:"mary"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Piper   PiperConfig   `yaml:"piper"`
	GTTS    GTTSConfig    `yaml:"gtts"`
	Mock    MockConfig    `yaml:"mock"`
}

// AudioConfig controls generated audio files.
type AudioConfig struct {
	// Path is the directory for generated files. Empty uses the temp dir.
	Path          string `yaml:"path" env:"RTVOICE_AUDIO_PATH"`
	AutoDelete    bool   `yaml:"auto_delete" env:"RTVOICE_AUDIO_AUTO_DELETE" envDefault:"true"`
	DeleteOnStart bool   `yaml:"delete_on_start" env:"RTVOICE_AUDIO_DELETE_ON_START" envDefault:"false"`
}

// ProcessConfig controls spawned synthesizer processes.
type ProcessConfig struct {
	KillTimeout time.Duration `yaml:"kill_timeout" env:"RTVOICE_PROCESS_KILL_TIMEOUT" envDefault:"7s"`
}

// WindowsConfig contains Windows wrapper settings.
type WindowsConfig struct {
	Binary string `yaml:"binary" env:"RTVOICE_WINDOWS_BINARY" envDefault:"RTVoiceTTSWrapper.exe"`
}

// MacOSConfig contains macOS `say` settings.
type MacOSConfig struct {
	Binary string `yaml:"binary" env:"RTVOICE_MACOS_BINARY" envDefault:"say"`
}

// ESpeakConfig contains eSpeak settings.
type ESpeakConfig struct {
	// Binary is the eSpeak executable. Empty picks espeak-ng or espeak from PATH.
	Binary   string         `yaml:"binary" env:"RTVOICE_ESPEAK_BINARY"`
	DataPath string         `yaml:"data_path" env:"RTVOICE_ESPEAK_DATA_PATH"`
	Modifier ESpeakModifier `yaml:"modifier" env:"RTVOICE_ESPEAK_MODIFIER"`
}

// MaryConfig contains MaryTTS server settings.
type MaryConfig struct {
	URL               string        `yaml:"url" env:"RTVOICE_MARY_URL" envDefault:"http://mary.dfki.de"`
	Port              int           `yaml:"port" env:"RTVOICE_MARY_PORT" envDefault:"59125"`
	User              string        `yaml:"user" env:"RTVOICE_MARY_USER"`
	Password          string        `yaml:"password" env:"RTVOICE_MARY_PASSWORD"`
	Type              MaryType      `yaml:"type" env:"RTVOICE_MARY_TYPE" envDefault:"RAWMARYXML"`
	Timeout           time.Duration `yaml:"timeout" env:"RTVOICE_MARY_TIMEOUT" envDefault:"30s"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"RTVOICE_MARY_REQUESTS_PER_MINUTE" envDefault:"60"`
	CheckConnectivity bool          `yaml:"check_connectivity" env:"RTVOICE_MARY_CHECK_CONNECTIVITY" envDefault:"true"`
	CacheDir          string        `yaml:"cache_dir" env:"RTVOICE_MARY_CACHE_DIR"`
	CacheTTL          time.Duration `yaml:"cache_ttl" env:"RTVOICE_MARY_CACHE_TTL" envDefault:"24h"`
}

// BridgeConfig contains the mobile companion bridge settings.
type BridgeConfig struct {
	URL          string        `yaml:"url" env:"RTVOICE_BRIDGE_URL" envDefault:"ws://127.0.0.1:5187/rtvoice"`
	PollInterval time.Duration `yaml:"poll_interval" env:"RTVOICE_BRIDGE_POLL_INTERVAL" envDefault:"100ms"`
}

// OpenAIConfig contains the OpenAI speech settings.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL string `yaml:"base_url" env:"RTVOICE_OPENAI_BASE_URL"`
	Model   string `yaml:"model" env:"RTVOICE_OPENAI_MODEL" envDefault:"tts-1"`
	Voice   string `yaml:"voice" env:"RTVOICE_OPENAI_VOICE" envDefault:"alloy"`
}

// PiperConfig contains the settings of the Piper neural voices.
type PiperConfig struct {
	Binary string `yaml:"binary" env:"RTVOICE_PIPER_BINARY" envDefault:"piper"`
	// ModelDir holds the .onnx models, each next to its .onnx.json config.
	ModelDir string `yaml:"model_dir" env:"RTVOICE_PIPER_MODEL_DIR"`
	// DefaultModel is the voice name used when a request has no voice.
	DefaultModel string `yaml:"default_model" env:"RTVOICE_PIPER_DEFAULT_MODEL" envDefault:"en_US-lessac-medium"`
}

// GTTSConfig contains the Google Translate speech settings.
type GTTSConfig struct {
	Binary            string `yaml:"binary" env:"RTVOICE_GTTS_BINARY" envDefault:"gtts-cli"`
	TLD               string `yaml:"tld" env:"RTVOICE_GTTS_TLD" envDefault:"com"`
	RequestsPerMinute int    `yaml:"requests_per_minute" env:"RTVOICE_GTTS_REQUESTS_PER_MINUTE" envDefault:"50"`
}

// MockConfig contains mock provider settings for testing.
type MockConfig struct {
	WordDelay  time.Duration `yaml:"word_delay" env:"RTVOICE_MOCK_WORD_DELAY" envDefault:"50ms"`
	SampleRate int           `yaml:"sample_rate" env:"RTVOICE_MOCK_SAMPLE_RATE" envDefault:"22050"`
	Native     bool          `yaml:"native" env:"RTVOICE_MOCK_NATIVE" envDefault:"true"`
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		CustomProvider:  "openai",
		MaryFallback:    true,
		CleanupInterval: DefaultCleanupEvery,
		Audio: AudioConfig{
			AutoDelete: true,
		},
		Process: ProcessConfig{KillTimeout: DefaultKillTime},
		Windows: WindowsConfig{Binary: "RTVoiceTTSWrapper.exe"},
		MacOS:   MacOSConfig{Binary: "say"},
		Mary:    DefaultMaryConfig(),
		Bridge: BridgeConfig{
			URL:          "ws://127.0.0.1:5187/rtvoice",
			PollInterval: 100 * time.Millisecond,
		},
		OpenAI: OpenAIConfig{Model: "tts-1", Voice: "alloy"},
		Piper:  PiperConfig{Binary: "piper", DefaultModel: "en_US-lessac-medium"},
		GTTS:   GTTSConfig{Binary: "gtts-cli", TLD: "com", RequestsPerMinute: 50},
		Mock: MockConfig{
			WordDelay:  50 * time.Millisecond,
			SampleRate: 22050,
			Native:     true,
		},
	}
}

// DefaultMaryConfig returns default MaryTTS configuration.
func DefaultMaryConfig() MaryConfig {
	return MaryConfig{
		URL:               DefaultMaryURL,
		Port:              DefaultMaryPort,
		Type:              MaryRawXML,
		Timeout:           30 * time.Second,
		RequestsPerMinute: 60,
		CheckConnectivity: true,
		CacheTTL:          24 * time.Hour,
	}
}

// AudioPath returns the directory for generated files.
func (c *Config) AudioPath() string {
	if c.Audio.Path != "" {
		return c.Audio.Path
	}
	return filepath.Join(os.TempDir(), "rtvoice")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("%w: cleanup_interval must be positive, got %v", ErrInvalidConfig, c.CleanupInterval)
	}
	if c.Process.KillTimeout < time.Second {
		return fmt.Errorf("%w: process kill_timeout must be at least 1 second, got %v", ErrInvalidConfig, c.Process.KillTimeout)
	}
	if err := c.Mary.Validate(); err != nil {
		return fmt.Errorf("mary config: %w", err)
	}
	if _, err := ParseESpeakModifier(string(c.ESpeak.Modifier)); err != nil {
		return fmt.Errorf("espeak config: %w: %v", ErrInvalidConfig, err)
	}
	if c.Bridge.PollInterval <= 0 {
		return fmt.Errorf("%w: bridge poll_interval must be positive, got %v", ErrInvalidConfig, c.Bridge.PollInterval)
	}
	if c.GTTS.RequestsPerMinute < 1 {
		return fmt.Errorf("%w: gtts requests_per_minute must be positive, got %d", ErrInvalidConfig, c.GTTS.RequestsPerMinute)
	}
	if c.Mock.SampleRate < 8000 || c.Mock.SampleRate > 48000 {
		return fmt.Errorf("%w: mock sample_rate must be between 8000 and 48000, got %d", ErrInvalidConfig, c.Mock.SampleRate)
	}
	return nil
}

// Validate checks if the MaryTTS configuration is valid.
func (c *MaryConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: url cannot be empty", ErrInvalidConfig)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidConfig, c.Port)
	}
	if _, err := ParseMaryType(string(c.Type)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.RequestsPerMinute < 1 {
		return fmt.Errorf("%w: requests_per_minute must be positive, got %d", ErrInvalidConfig, c.RequestsPerMinute)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("%w: timeout must be at least 1 second, got %v", ErrInvalidConfig, c.Timeout)
	}
	return nil
}
