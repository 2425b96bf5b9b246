package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# log debug output
debug: false
# write logs to a file instead of stderr
# log_file: "~/.cache/rtvoice/rtvoice.log"

tts:
  # use the custom provider instead of the platform one
  custom_mode: false
  # custom provider: openai, openai+mary, piper, gtts or mock
  custom_provider: "openai"
  # always use a MaryTTS server
  mary_mode: false
  # use MaryTTS on platforms without a built-in synthesizer
  mary_fallback: true
  # use eSpeak on Windows and macOS
  espeak_mode: false
  # remove markup tags before speaking
  auto_clear_tags: false
  cleanup_interval: "5s"

  audio:
    # directory for generated files (default: temp dir)
    # path: "~/rtvoice"
    auto_delete: true
    delete_on_start: false

  process:
    kill_timeout: "7s"

  espeak:
    # binary: "espeak-ng"
    # data_path: "/usr/share/espeak-ng-data"
    # none, m1-m6, f1-f4, croak or whisper
    modifier: "none"

  mary:
    url: "http://mary.dfki.de"
    port: 59125
    # user: ""
    # password: ""
    # RAWMARYXML, EMOTIONML, SSML or TEXT
    type: "RAWMARYXML"
    timeout: "30s"
    requests_per_minute: 60
    check_connectivity: true
    cache_ttl: "24h"

  bridge:
    # websocket of the Android or iOS companion app
    url: "ws://127.0.0.1:5187/rtvoice"
    poll_interval: "100ms"

  openai:
    # api_key: "sk-..."
    model: "tts-1"
    voice: "alloy"

  # Piper neural voices: every .onnx model needs its .onnx.json next to it
  piper:
    binary: "piper"
    # model_dir: "~/.local/share/piper"
    default_model: "en_US-lessac-medium"

  # Google Translate voices through gtts-cli
  gtts:
    binary: "gtts-cli"
    tld: "com"
    requests_per_minute: 50

  mock:
    word_delay: "50ms"
`

var (
	configPrint bool
	configPath  bool

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Edit the rtvoice config file",
		Long: paragraph(fmt.Sprintf("\n%s the rtvoice config file with $EDITOR. "+
			"A missing file is created with the defaults first.", keyword("Edit"))),
		Example: paragraph("rtvoice config\nrtvoice config --config path/to/config.yml\nrtvoice config --print > rtvoice.yml"),
		Args:    cobra.NoArgs,
		RunE:    runConfig,
	}
)

func runConfig(cmd *cobra.Command, _ []string) error {
	switch {
	case configPrint:
		_, err := fmt.Fprint(cmd.OutOrStdout(), defaultConfig)
		return err
	case configPath:
		_, err := fmt.Fprintln(cmd.OutOrStdout(), configFile)
		return err
	}

	path := configFile
	if path == "" {
		path = viper.ConfigFileUsed()
	}
	created, err := writeDefaultConfig(path)
	if err != nil {
		return err
	}
	if created {
		log.Info("Created config file", "path", path)
	}

	c, err := editor.Cmd("rtvoice", path)
	if err != nil {
		return fmt.Errorf("unable to set config file: %w", err)
	}
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("unable to run editor: %w", err)
	}
	fmt.Println("Wrote config file to:", path)
	return nil
}

// writeDefaultConfig creates path with the default config unless it
// exists. Only YAML files are accepted.
func writeDefaultConfig(path string) (bool, error) {
	if path == "" {
		return false, errors.New("no config file location")
	}
	if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
		return false, fmt.Errorf("%q is not a supported configuration type: use .yaml or .yml", ext)
	}

	_, err := os.Stat(path)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, fs.ErrNotExist):
		return false, fmt.Errorf("unable to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("unable to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0o600); err != nil {
		return false, fmt.Errorf("unable to write config file: %w", err)
	}
	return true, nil
}

func init() {
	configCmd.Flags().BoolVar(&configPrint, "print", false, "print the default config instead of editing")
	configCmd.Flags().BoolVar(&configPath, "path", false, "print the config file location")
}
