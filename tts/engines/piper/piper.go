// Package piper speaks with the Piper neural voices. Every request starts a
// fresh piper process that reads the text from stdin and writes a WAV file.
package piper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dgnsrekt/rtvoice/internal/platform"
	"github.com/dgnsrekt/rtvoice/internal/process"
	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/base"
)

// MaxTextLength is the longest text sent to a single process.
const MaxTextLength = 5000

const (
	modelExt  = ".onnx"
	configExt = ".onnx.json"
)

// ModelConfig is the part of a model's .onnx.json that describes the voice.
type ModelConfig struct {
	Dataset string `json:"dataset"`
	Audio   struct {
		SampleRate int    `json:"sample_rate"`
		Quality    string `json:"quality"`
	} `json:"audio"`
	Language struct {
		Code           string `json:"code"`
		NameEnglish    string `json:"name_english"`
		CountryEnglish string `json:"country_english"`
	} `json:"language"`
	NumSpeakers  int            `json:"num_speakers"`
	SpeakerIDMap map[string]int `json:"speaker_id_map"`
}

// Provider runs piper for every request.
type Provider struct {
	*base.Base
}

// New creates the provider. The model directory is scanned on
// RefreshVoices.
func New(env tts.Env) (*Provider, error) {
	caps := tts.Capabilities{
		AudioFileExtension: ".wav",
		AudioFileType:      tts.AudioWAV,
		DefaultVoiceName:   env.Config.Piper.DefaultModel,
		MaxTextLength:      MaxTextLength,
		Speak:              true,
		PlatformSupported:  platform.IsDesktop(env.GOOS),
	}
	return &Provider{Base: base.New(tts.ProviderPiper, env, caps)}, nil
}

// Factory is the registry constructor.
func Factory(env tts.Env) (tts.Provider, error) {
	return New(env)
}

// RefreshVoices lists the models of the model directory.
func (p *Provider) RefreshVoices(context.Context) error {
	dir := p.Config().Piper.ModelDir
	if dir == "" {
		return fmt.Errorf("%w: piper model_dir is not set", tts.ErrInvalidConfig)
	}
	voices, err := ScanModels(dir)
	if err != nil {
		return fmt.Errorf("could not get any voices: %w", err)
	}
	p.SetVoices(voices)
	return nil
}

// ScanModels returns a voice per model in dir, or one per speaker for
// multi-speaker models. Models without a readable config are skipped.
func ScanModels(dir string) ([]tts.Voice, error) {
	models, err := filepath.Glob(filepath.Join(dir, "*"+modelExt))
	if err != nil {
		return nil, err
	}
	var voices []tts.Voice
	for _, model := range models {
		cfg, err := ReadModelConfig(model)
		if err != nil {
			continue
		}
		voices = append(voices, modelVoices(model, cfg)...)
	}
	return voices, nil
}

// ReadModelConfig reads the config that belongs to model.
func ReadModelConfig(model string) (ModelConfig, error) {
	var cfg ModelConfig
	b, err := os.ReadFile(strings.TrimSuffix(model, modelExt) + configExt)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid model config: %w", err)
	}
	return cfg, nil
}

func modelVoices(model string, cfg ModelConfig) []tts.Voice {
	name := strings.TrimSuffix(filepath.Base(model), modelExt)
	desc := strings.TrimSpace(fmt.Sprintf("Piper %s %s", cfg.Language.NameEnglish, cfg.Language.CountryEnglish))
	if cfg.Audio.Quality != "" {
		desc += " (" + cfg.Audio.Quality + ")"
	}
	opts := []tts.VoiceOption{tts.WithVendor("Piper"), tts.WithSampleRate(cfg.Audio.SampleRate)}

	if cfg.NumSpeakers <= 1 || len(cfg.SpeakerIDMap) == 0 {
		return []tts.Voice{tts.NewVoice(name, desc, tts.GenderUnknown, "unknown", cfg.Language.Code,
			append(opts, tts.WithIdentifier(model))...)}
	}

	speakers := make([]string, 0, len(cfg.SpeakerIDMap))
	for s := range cfg.SpeakerIDMap {
		speakers = append(speakers, s)
	}
	sort.Strings(speakers)
	voices := make([]tts.Voice, 0, len(speakers))
	for _, s := range speakers {
		id := model + "#" + strconv.Itoa(cfg.SpeakerIDMap[s])
		voices = append(voices, tts.NewVoice(name+" "+s, desc, tts.GenderUnknown, "unknown", cfg.Language.Code,
			append(opts, tts.WithIdentifier(id))...))
	}
	return voices
}

// SplitIdentifier returns the model path and speaker id of a voice
// identifier. The speaker is empty for single-speaker models.
func SplitIdentifier(id string) (model, speaker string) {
	i := strings.LastIndex(id, "#")
	if i < 0 {
		return id, ""
	}
	if _, err := strconv.Atoi(id[i+1:]); err != nil {
		return id, ""
	}
	return id[:i], id[i+1:]
}

// model resolves the model of w: the identifier of its voice, a catalog
// voice with the default name, or a model file named after the default.
func (p *Provider) model(w *tts.Wrapper) (string, string, error) {
	if v := w.Voice(); v != nil && strings.Contains(v.Identifier, modelExt) {
		model, speaker := SplitIdentifier(v.Identifier)
		return model, speaker, nil
	}
	name := p.VoiceName(w)
	for _, v := range p.Voices() {
		if strings.EqualFold(v.Name, name) {
			model, speaker := SplitIdentifier(v.Identifier)
			return model, speaker, nil
		}
	}
	if dir := p.Config().Piper.ModelDir; dir != "" {
		model := filepath.Join(dir, name+modelExt)
		if _, err := os.Stat(model); err == nil {
			return model, "", nil
		}
	}
	return "", "", fmt.Errorf("%w: no piper model for voice %q", tts.ErrVoiceNotFound, name)
}

// LengthScale maps a rate factor to the piper length scale. Slower speech
// has a larger scale.
func LengthScale(rate float64) float64 {
	if rate <= 0 {
		return 1
	}
	return 1 / rate
}

func (p *Provider) args(model, speaker string, w *tts.Wrapper, file string) []string {
	args := []string{"--model", model, "--output_file", file}
	if speaker != "" {
		args = append(args, "--speaker", speaker)
	}
	if scale := LengthScale(w.Rate()); scale != 1 {
		args = append(args, "--length_scale", strconv.FormatFloat(scale, 'f', 2, 64))
	}
	return args
}

// SpeakNative is not available: piper only writes files.
func (p *Provider) SpeakNative(context.Context, *tts.Wrapper) error {
	return p.Unsupported("speak native")
}

// Speak renders a WAV file and plays it through the request sink.
func (p *Provider) Speak(ctx context.Context, w *tts.Wrapper) error {
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	file, err := p.toFile(ctx, w)
	if err != nil {
		return err
	}
	return p.Play(ctx, w, file, false)
}

// Generate renders a WAV file to the output file of w.
func (p *Provider) Generate(ctx context.Context, w *tts.Wrapper) error {
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	file, err := p.toFile(ctx, w)
	if err != nil {
		return err
	}
	return p.Process(w, file)
}

func (p *Provider) toFile(ctx context.Context, w *tts.Wrapper) (string, error) {
	model, speaker, err := p.model(w)
	if err != nil {
		return "", err
	}
	file, err := p.AudioFile(w.UID())
	if err != nil {
		return "", err
	}
	p.Emitter().AudioGenerationStart(w)
	cmd := process.Command{
		Name:  p.Config().Piper.Binary,
		Args:  p.args(model, speaker, w, file),
		Stdin: w.Text(),
	}
	result, err := p.Procs.Run(ctx, w.UID(), cmd)
	if err != nil {
		return "", err
	}
	if !result.Success() {
		return "", fmt.Errorf("could not generate the text: %s\nExit code: %d\n%s", w, result.ExitCode, result.Stderr)
	}
	return file, nil
}
