// Package gtts speaks with Google Translate through gtts-cli. The service
// returns MP3 audio and throttles clients that send too many requests.
package gtts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgnsrekt/rtvoice/internal/platform"
	"github.com/dgnsrekt/rtvoice/internal/process"
	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/base"
)

// MaxTextLength is the longest text sent in one request.
const MaxTextLength = 5000

// SlowRate is the rate below which the slow voice is used.
const SlowRate = 0.75

// DefaultLanguage is the language of requests without a voice.
const DefaultLanguage = "en"

var languages = []struct {
	code, name string
}{
	{"ar", "Arabic"},
	{"cs", "Czech"},
	{"da", "Danish"},
	{"de", "German"},
	{"el", "Greek"},
	{"en", "English"},
	{"es", "Spanish"},
	{"fi", "Finnish"},
	{"fr", "French"},
	{"hi", "Hindi"},
	{"it", "Italian"},
	{"ja", "Japanese"},
	{"ko", "Korean"},
	{"nl", "Dutch"},
	{"pl", "Polish"},
	{"pt", "Portuguese"},
	{"ru", "Russian"},
	{"sv", "Swedish"},
	{"tr", "Turkish"},
	{"uk", "Ukrainian"},
	{"zh-CN", "Chinese (Mandarin)"},
	{"zh-TW", "Chinese (Taiwan)"},
}

// Catalog returns a voice per supported language.
func Catalog() []tts.Voice {
	out := make([]tts.Voice, 0, len(languages))
	for _, l := range languages {
		out = append(out, tts.NewVoice("Google "+l.name, "Google Translate voice: "+l.name, tts.GenderUnknown,
			"unknown", l.code, tts.WithIdentifier(l.code), tts.WithVendor("Google"), tts.WithSampleRate(24000)))
	}
	return out
}

// Provider runs gtts-cli for every request.
type Provider struct {
	*base.Base
	limiter *rate.Limiter
}

// New creates the provider.
func New(env tts.Env) (*Provider, error) {
	rpm := env.Config.GTTS.RequestsPerMinute
	if rpm < 1 {
		return nil, fmt.Errorf("%w: gtts requests_per_minute must be positive, got %d", tts.ErrInvalidConfig, rpm)
	}
	caps := tts.Capabilities{
		AudioFileExtension: ".mp3",
		AudioFileType:      tts.AudioMP3,
		DefaultVoiceName:   "Google English",
		MaxTextLength:      MaxTextLength,
		Speak:              true,
		PlatformSupported:  platform.IsDesktop(env.GOOS),
		Online:             true,
		VoicesAtDesignTime: true,
	}
	return &Provider{
		Base:    base.New(tts.ProviderGTTS, env, caps),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}, nil
}

// Factory is the registry constructor.
func Factory(env tts.Env) (tts.Provider, error) {
	return New(env)
}

// RefreshVoices publishes the fixed catalog.
func (p *Provider) RefreshVoices(context.Context) error {
	p.SetVoices(Catalog())
	return nil
}

// Language returns the gTTS language code for w.
func (p *Provider) Language(w *tts.Wrapper) string {
	v := w.Voice()
	if v == nil {
		return DefaultLanguage
	}
	if v.Identifier != "" {
		return v.Identifier
	}
	if v.Culture != "" {
		return strings.SplitN(v.Culture, "-", 2)[0]
	}
	return DefaultLanguage
}

func (p *Provider) args(w *tts.Wrapper, file string) []string {
	args := []string{"-", "--lang", p.Language(w), "--output", file}
	if tld := p.Config().GTTS.TLD; tld != "" && tld != "com" {
		args = append(args, "--tld", tld)
	}
	if w.Rate() < SlowRate {
		args = append(args, "--slow")
	}
	return args
}

// SpeakNative is not available for gTTS.
func (p *Provider) SpeakNative(context.Context, *tts.Wrapper) error {
	return p.Unsupported("speak native")
}

// Speak downloads the MP3 and plays it through the request sink.
func (p *Provider) Speak(ctx context.Context, w *tts.Wrapper) error {
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	file, err := p.toFile(ctx, w)
	if err != nil {
		return err
	}
	return p.Play(ctx, w, file, false)
}

// Generate downloads the MP3 to the output file of w.
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
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	file, err := p.AudioFile(w.UID())
	if err != nil {
		return "", err
	}
	p.Emitter().AudioGenerationStart(w)
	cmd := process.Command{
		Name:  p.Config().GTTS.Binary,
		Args:  p.args(w, file),
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
