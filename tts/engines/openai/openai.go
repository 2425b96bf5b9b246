// Package openai synthesizes speech with the OpenAI audio API.
package openai

import (
	"context"
	"fmt"
	"io"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/base"
)

// Speed limits of the speech endpoint.
const (
	MinSpeed = 0.25
	MaxSpeed = 4.0
)

// Catalog returns the fixed voices of the speech endpoint.
func Catalog() []tts.Voice {
	voices := []struct {
		id, name string
		gender   tts.Gender
	}{
		{"alloy", "Alloy", tts.GenderUnknown},
		{"echo", "Echo", tts.GenderMale},
		{"fable", "Fable", tts.GenderUnknown},
		{"onyx", "Onyx", tts.GenderMale},
		{"nova", "Nova", tts.GenderFemale},
		{"shimmer", "Shimmer", tts.GenderFemale},
	}
	out := make([]tts.Voice, 0, len(voices))
	for _, v := range voices {
		out = append(out, tts.NewVoice(v.name, "OpenAI voice: "+v.name, v.gender, "unknown", "en",
			tts.WithIdentifier(v.id), tts.WithVendor("OpenAI"), tts.WithSampleRate(24000)))
	}
	return out
}

// Provider requests WAV audio from the speech endpoint. It cannot speak
// natively.
type Provider struct {
	*base.Base
	client *openai.Client
}

// New creates the provider. An API key is required.
func New(env tts.Env) (*Provider, error) {
	cfg := env.Config.OpenAI
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api_key is not set", tts.ErrInvalidConfig)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	caps := tts.Capabilities{
		AudioFileExtension: ".wav",
		AudioFileType:      tts.AudioWAV,
		DefaultVoiceName:   defaultVoice(cfg.Voice),
		MaxTextLength:      4096,
		Speak:              true,
		PlatformSupported:  true,
		Online:             true,
		VoicesAtDesignTime: true,
	}
	return &Provider{
		Base:   base.New(tts.ProviderOpenAI, env, caps),
		client: openai.NewClientWithConfig(clientCfg),
	}, nil
}

// Factory is the registry constructor.
func Factory(env tts.Env) (tts.Provider, error) {
	return New(env)
}

// defaultVoice returns the catalog name for the configured voice id.
func defaultVoice(id string) string {
	for _, v := range Catalog() {
		if v.Identifier == id {
			return v.Name
		}
	}
	return "Alloy"
}

// RefreshVoices publishes the fixed catalog.
func (p *Provider) RefreshVoices(context.Context) error {
	p.SetVoices(Catalog())
	return nil
}

// SpeakNative is not available for OpenAI.
func (p *Provider) SpeakNative(context.Context, *tts.Wrapper) error {
	return p.Unsupported("speak native")
}

// Speak downloads the audio and plays it through the request sink.
func (p *Provider) Speak(ctx context.Context, w *tts.Wrapper) error {
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	file, err := p.synthesize(ctx, w)
	if err != nil {
		return err
	}
	return p.Play(ctx, w, file, false)
}

// Generate downloads the audio to the output file of w.
func (p *Provider) Generate(ctx context.Context, w *tts.Wrapper) error {
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	file, err := p.synthesize(ctx, w)
	if err != nil {
		return err
	}
	return p.Process(w, file)
}

// Request builds the speech request for w.
func (p *Provider) Request(w *tts.Wrapper) openai.CreateSpeechRequest {
	return openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.Config().OpenAI.Model),
		Input:          w.Text(),
		Voice:          openai.SpeechVoice(p.voiceID(w)),
		ResponseFormat: openai.SpeechResponseFormatWav,
		Speed:          Speed(w.Rate()),
	}
}

// voiceID resolves the request voice to an endpoint voice id.
func (p *Provider) voiceID(w *tts.Wrapper) string {
	if v := w.Voice(); v != nil && v.Identifier != "" {
		return v.Identifier
	}
	name := p.VoiceName(w)
	for _, v := range Catalog() {
		if v.Name == name || v.Identifier == name {
			return v.Identifier
		}
	}
	return p.Config().OpenAI.Voice
}

// Speed clamps a rate to the range of the endpoint.
func Speed(rate float64) float64 {
	return min(max(rate, MinSpeed), MaxSpeed)
}

func (p *Provider) synthesize(ctx context.Context, w *tts.Wrapper) (string, error) {
	file, err := p.AudioFile(w.UID())
	if err != nil {
		return "", err
	}
	p.Emitter().AudioGenerationStart(w)

	resp, err := p.client.CreateSpeech(ctx, p.Request(w))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", tts.NewTTSError(fmt.Errorf("OpenAI TTS synthesis failed: %w", err), p.Name(), "generate")
	}
	defer resp.Close()

	f, err := os.Create(file)
	if err != nil {
		return "", fmt.Errorf("failed to create audio file: %w", err)
	}
	if _, err := io.Copy(f, resp); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to read TTS response: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}
	return file, nil
}
