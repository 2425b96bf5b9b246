package tts

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// ConfigFromEnv returns the defaults overridden by RTVOICE_* variables.
func ConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return DefaultConfig(), fmt.Errorf("error parsing environment: %w", err)
	}
	if m, err := ParseESpeakModifier(string(cfg.ESpeak.Modifier)); err == nil {
		cfg.ESpeak.Modifier = m
	}
	return cfg, nil
}

// LoadConfigFromViper loads configuration from the "tts" tree of v, on top
// of the environment and defaults.
func LoadConfigFromViper(v *viper.Viper) (Config, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return cfg, err
	}

	if v.IsSet("tts.custom_mode") {
		cfg.CustomMode = v.GetBool("tts.custom_mode")
	}
	if v.IsSet("tts.custom_provider") {
		cfg.CustomProvider = v.GetString("tts.custom_provider")
	}
	if v.IsSet("tts.mary_mode") {
		cfg.MaryMode = v.GetBool("tts.mary_mode")
	}
	if v.IsSet("tts.mary_fallback") {
		cfg.MaryFallback = v.GetBool("tts.mary_fallback")
	}
	if v.IsSet("tts.espeak_mode") {
		cfg.ESpeakMode = v.GetBool("tts.espeak_mode")
	}
	if v.IsSet("tts.auto_clear_tags") {
		cfg.AutoClearTags = v.GetBool("tts.auto_clear_tags")
	}
	if v.IsSet("tts.cleanup_interval") {
		cfg.CleanupInterval = getDuration(v, "tts.cleanup_interval", cfg.CleanupInterval)
	}

	cfg.Audio = loadAudioConfig(v, cfg.Audio)
	if v.IsSet("tts.process.kill_timeout") {
		cfg.Process.KillTimeout = getDuration(v, "tts.process.kill_timeout", cfg.Process.KillTimeout)
	}
	if v.IsSet("tts.windows.binary") {
		cfg.Windows.Binary = v.GetString("tts.windows.binary")
	}
	if v.IsSet("tts.macos.binary") {
		cfg.MacOS.Binary = v.GetString("tts.macos.binary")
	}
	cfg.ESpeak = loadESpeakConfig(v, cfg.ESpeak)
	cfg.Mary = loadMaryConfig(v, cfg.Mary)
	if v.IsSet("tts.bridge.url") {
		cfg.Bridge.URL = v.GetString("tts.bridge.url")
	}
	if v.IsSet("tts.bridge.poll_interval") {
		cfg.Bridge.PollInterval = getDuration(v, "tts.bridge.poll_interval", cfg.Bridge.PollInterval)
	}
	cfg.OpenAI = loadOpenAIConfig(v, cfg.OpenAI)
	cfg.Piper = loadPiperConfig(v, cfg.Piper)
	cfg.GTTS = loadGTTSConfig(v, cfg.GTTS)
	cfg.Mock = loadMockConfig(v, cfg.Mock)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid TTS configuration: %w", err)
	}
	return cfg, nil
}

func loadAudioConfig(v *viper.Viper, cfg AudioConfig) AudioConfig {
	if v.IsSet("tts.audio.path") {
		cfg.Path = expandPath(v.GetString("tts.audio.path"))
	}
	if v.IsSet("tts.audio.auto_delete") {
		cfg.AutoDelete = v.GetBool("tts.audio.auto_delete")
	}
	if v.IsSet("tts.audio.delete_on_start") {
		cfg.DeleteOnStart = v.GetBool("tts.audio.delete_on_start")
	}
	return cfg
}

func loadESpeakConfig(v *viper.Viper, cfg ESpeakConfig) ESpeakConfig {
	if v.IsSet("tts.espeak.binary") {
		cfg.Binary = expandPath(v.GetString("tts.espeak.binary"))
	}
	if v.IsSet("tts.espeak.data_path") {
		cfg.DataPath = expandPath(v.GetString("tts.espeak.data_path"))
	}
	if v.IsSet("tts.espeak.modifier") {
		if m, err := ParseESpeakModifier(v.GetString("tts.espeak.modifier")); err == nil {
			cfg.Modifier = m
		} else {
			cfg.Modifier = ESpeakModifier(v.GetString("tts.espeak.modifier"))
		}
	}
	return cfg
}

func loadMaryConfig(v *viper.Viper, cfg MaryConfig) MaryConfig {
	if v.IsSet("tts.mary.url") {
		cfg.URL = v.GetString("tts.mary.url")
	}
	if v.IsSet("tts.mary.port") {
		cfg.Port = v.GetInt("tts.mary.port")
	}
	if v.IsSet("tts.mary.user") {
		cfg.User = v.GetString("tts.mary.user")
	}
	if v.IsSet("tts.mary.password") {
		cfg.Password = v.GetString("tts.mary.password")
	}
	if v.IsSet("tts.mary.type") {
		if t, err := ParseMaryType(v.GetString("tts.mary.type")); err == nil {
			cfg.Type = t
		} else {
			cfg.Type = MaryType(v.GetString("tts.mary.type"))
		}
	}
	if v.IsSet("tts.mary.timeout") {
		cfg.Timeout = getDuration(v, "tts.mary.timeout", cfg.Timeout)
	}
	if v.IsSet("tts.mary.requests_per_minute") {
		cfg.RequestsPerMinute = v.GetInt("tts.mary.requests_per_minute")
	}
	if v.IsSet("tts.mary.check_connectivity") {
		cfg.CheckConnectivity = v.GetBool("tts.mary.check_connectivity")
	}
	if v.IsSet("tts.mary.cache_dir") {
		cfg.CacheDir = expandPath(v.GetString("tts.mary.cache_dir"))
	}
	if v.IsSet("tts.mary.cache_ttl") {
		cfg.CacheTTL = getDuration(v, "tts.mary.cache_ttl", cfg.CacheTTL)
	}
	return cfg
}

func loadOpenAIConfig(v *viper.Viper, cfg OpenAIConfig) OpenAIConfig {
	if v.IsSet("tts.openai.api_key") {
		cfg.APIKey = v.GetString("tts.openai.api_key")
	}
	if v.IsSet("tts.openai.base_url") {
		cfg.BaseURL = v.GetString("tts.openai.base_url")
	}
	if v.IsSet("tts.openai.model") {
		cfg.Model = v.GetString("tts.openai.model")
	}
	if v.IsSet("tts.openai.voice") {
		cfg.Voice = v.GetString("tts.openai.voice")
	}
	return cfg
}

func loadPiperConfig(v *viper.Viper, cfg PiperConfig) PiperConfig {
	if v.IsSet("tts.piper.binary") {
		cfg.Binary = expandPath(v.GetString("tts.piper.binary"))
	}
	if v.IsSet("tts.piper.model_dir") {
		cfg.ModelDir = expandPath(v.GetString("tts.piper.model_dir"))
	}
	if v.IsSet("tts.piper.default_model") {
		cfg.DefaultModel = v.GetString("tts.piper.default_model")
	}
	return cfg
}

func loadGTTSConfig(v *viper.Viper, cfg GTTSConfig) GTTSConfig {
	if v.IsSet("tts.gtts.binary") {
		cfg.Binary = expandPath(v.GetString("tts.gtts.binary"))
	}
	if v.IsSet("tts.gtts.tld") {
		cfg.TLD = v.GetString("tts.gtts.tld")
	}
	if v.IsSet("tts.gtts.requests_per_minute") {
		cfg.RequestsPerMinute = v.GetInt("tts.gtts.requests_per_minute")
	}
	return cfg
}

func loadMockConfig(v *viper.Viper, cfg MockConfig) MockConfig {
	if v.IsSet("tts.mock.word_delay") {
		cfg.WordDelay = getDuration(v, "tts.mock.word_delay", cfg.WordDelay)
	}
	if v.IsSet("tts.mock.sample_rate") {
		cfg.SampleRate = v.GetInt("tts.mock.sample_rate")
	}
	if v.IsSet("tts.mock.native") {
		cfg.Native = v.GetBool("tts.mock.native")
	}
	return cfg
}

// getDuration accepts both duration strings and plain seconds.
func getDuration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(v.GetString(key)); err == nil {
		return d
	}
	if secs := v.GetFloat64(key); secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

func expandPath(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}

// SetDefaults registers the environment-aware defaults with v so that
// config files and flags can be merged onto them.
func SetDefaults(v *viper.Viper) {
	cfg, _ := ConfigFromEnv()
	v.SetDefault("tts.custom_mode", cfg.CustomMode)
	v.SetDefault("tts.custom_provider", cfg.CustomProvider)
	v.SetDefault("tts.mary_mode", cfg.MaryMode)
	v.SetDefault("tts.mary_fallback", cfg.MaryFallback)
	v.SetDefault("tts.espeak_mode", cfg.ESpeakMode)
	v.SetDefault("tts.auto_clear_tags", cfg.AutoClearTags)
	v.SetDefault("tts.cleanup_interval", cfg.CleanupInterval.String())
	v.SetDefault("tts.audio.auto_delete", cfg.Audio.AutoDelete)
	v.SetDefault("tts.process.kill_timeout", cfg.Process.KillTimeout.String())
	v.SetDefault("tts.mary.url", cfg.Mary.URL)
	v.SetDefault("tts.mary.port", cfg.Mary.Port)
	v.SetDefault("tts.mary.type", string(cfg.Mary.Type))
}
