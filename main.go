// Package main provides the entry point for the rtvoice CLI application.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/rtvoice/internal/audio"
	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool
	logFile    string
	mockAudio  bool

	// closeLog is set by setupLog once the flags are parsed.
	closeLog = func() error { return nil }

	rootCmd = &cobra.Command{
		Use:   "rtvoice",
		Short: "Speak text with the voices of your platform",
		Long: paragraph(
			fmt.Sprintf("\nSpeak text with the %s of your platform, a MaryTTS server or OpenAI.", keyword("voices")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	debug = viper.GetBool("debug")
	logFile = viper.GetString("log_file")

	closer, err := setupLog(logFile, debug)
	if err != nil {
		return err
	}
	closeLog = closer

	if _, err := loadConfig(); err != nil {
		return err
	}
	return nil
}

// loadConfig merges defaults, environment and the config file into a
// dispatcher configuration.
func loadConfig() (tts.Config, error) {
	cfg, err := tts.LoadConfigFromViper(viper.GetViper())
	if err != nil {
		return cfg, err
	}
	if cfg.Mary.CacheDir == "" {
		if dir, err := gap.NewScope(gap.User, "rtvoice").CacheDir(); err == nil {
			cfg.Mary.CacheDir = filepath.Join(dir, "voices")
		}
	}
	return cfg, nil
}

// newSpeaker creates a dispatcher with every built-in provider and an
// audio output. The returned function closes both.
func newSpeaker(cfg tts.Config, opts ...tts.Option) (*tts.Speaker, func(), error) {
	ctxType := audio.ContextAuto
	if mockAudio {
		ctxType = audio.ContextMock
	}
	audioCtx, err := audio.NewContext(ctxType)
	if err != nil {
		log.Warn("Audio output unavailable, using silent playback", "error", err)
		audioCtx = audio.NewMockContext()
	}

	opts = append([]tts.Option{
		tts.WithRegistry(engines.DefaultRegistry()),
		tts.WithSinkFactory(audio.NewSinkFactory(audioCtx)),
		tts.WithLogger(log.Default()),
	}, opts...)

	s, err := tts.New(cfg, opts...)
	if err != nil {
		_ = audioCtx.Close()
		return nil, nil, fmt.Errorf("unable to create speaker: %w", err)
	}
	return s, func() {
		if err := s.Close(); err != nil {
			log.Debug("Error closing speaker", "error", err)
		}
		_ = audioCtx.Close()
	}, nil
}

func main() {
	err := rootCmd.Execute()
	_ = closeLog()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", configFile, "config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log debug output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")
	rootCmd.PersistentFlags().BoolVar(&mockAudio, "mock-audio", false, "play generated audio silently")

	// Config bindings
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))

	tts.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(speakCmd, generateCmd, voicesCmd, serveCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	// A .env next to the working directory feeds the RTVOICE_ variables.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Could not parse .env file", "err", err)
	}

	scope := gap.NewScope(gap.User, "rtvoice")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "rtvoice")}, dirs...)
	}

	if c := os.Getenv("RTVOICE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("rtvoice")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("rtvoice")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		configFile = used
		return
	}

	configFile = filepath.Join(dirs[0], "rtvoice.yml")
}
