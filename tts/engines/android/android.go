// Package android drives the Android speech engine through the companion
// bridge. The engine reports no progress; requests poll isWorking until
// it is idle.
package android

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/rtvoice/internal/bridge"
	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/base"
)

// DefaultPollInterval is used when the configured interval is not positive.
const DefaultPollInterval = 100 * time.Millisecond

// Provider speaks through the Android TextToSpeech engine.
type Provider struct {
	*base.Base

	client      *bridge.Client
	initialized atomic.Bool

	mu sync.Mutex
	// native is the uid of the utterance last handed to the engine.
	native string
}

// New creates the provider. The bridge connects on the first request.
func New(env tts.Env) (*Provider, error) {
	caps := tts.Capabilities{
		AudioFileExtension: ".wav",
		AudioFileType:      tts.AudioWAV,
		DefaultVoiceName:   "English (United States)",
		MaxTextLength:      3999,
		SpeakNative:        true,
		Speak:              true,
		PlatformSupported:  env.GOOS == "android",
		Polling:            true,
	}
	b := base.New(tts.ProviderAndroid, env, caps)
	return &Provider{
		Base:   b,
		client: bridge.New(env.Config.Bridge.URL, b.Logger),
	}, nil
}

// Factory is the registry constructor.
func Factory(env tts.Env) (tts.Provider, error) {
	return New(env)
}

type speakParams struct {
	Text       string  `json:"text"`
	Rate       float64 `json:"rate"`
	Pitch      float64 `json:"pitch"`
	Volume     float64 `json:"volume,omitempty"`
	Voice      string  `json:"voice"`
	OutputFile string  `json:"outputFile,omitempty"`
}

// RefreshVoices asks the engine for its voices once it is initialized.
func (p *Provider) RefreshVoices(ctx context.Context) error {
	if err := p.waitInitialized(ctx); err != nil {
		return err
	}
	var raw []string
	if err := p.client.Call(ctx, "getVoices", nil, &raw); err != nil {
		return fmt.Errorf("could not get any voices: %w", err)
	}
	p.SetVoices(ParseVoices(raw))
	return nil
}

// ParseVoices reads "name;culture" entries. Names carrying "#male" or
// "#female" get that gender.
func ParseVoices(raw []string) []tts.Voice {
	voices := make([]tts.Voice, 0, len(raw))
	for _, entry := range raw {
		name, culture, ok := strings.Cut(entry, ";")
		if !ok || name == "" {
			continue
		}
		gender := tts.GenderUnknown
		switch {
		case strings.Contains(name, "#female"):
			gender = tts.GenderFemale
		case strings.Contains(name, "#male"):
			gender = tts.GenderMale
		}
		voices = append(voices, tts.NewVoice(name, "Android voice: "+entry, gender, "unknown", culture))
	}
	return voices
}

// SpeakNative speaks on the device and returns when the engine is idle.
func (p *Provider) SpeakNative(ctx context.Context, w *tts.Wrapper) error {
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	if err := p.waitInitialized(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.native = w.UID()
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		if p.native == w.UID() {
			p.native = ""
		}
		p.mu.Unlock()
	}()

	p.Emitter().SpeakStart(w)
	params := speakParams{
		Text:   w.Text(),
		Rate:   w.Rate(),
		Pitch:  w.Pitch(),
		Volume: w.Volume(),
		Voice:  p.VoiceName(w),
	}
	if err := p.client.Call(ctx, "speakNative", params, nil); err != nil {
		return p.bridgeErr(ctx, "speak", err)
	}
	if err := p.waitIdle(ctx); err != nil {
		return err
	}
	p.Emitter().SpeakComplete(w)
	return nil
}

// Speak synthesizes to a file on the device and plays it through the
// request sink.
func (p *Provider) Speak(ctx context.Context, w *tts.Wrapper) error {
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	file, err := p.toFile(ctx, w)
	if err != nil {
		return err
	}
	return p.Play(ctx, w, file, false)
}

// Generate synthesizes to the output file of w.
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
	if err := p.waitInitialized(ctx); err != nil {
		return "", err
	}
	file, err := p.AudioFile(w.UID())
	if err != nil {
		return "", err
	}
	params := speakParams{
		Text:       w.Text(),
		Rate:       w.Rate(),
		Pitch:      w.Pitch(),
		Voice:      p.VoiceName(w),
		OutputFile: file,
	}
	if err := p.client.Call(ctx, "speak", params, nil); err != nil {
		return "", p.bridgeErr(ctx, "generate", err)
	}
	p.Emitter().AudioGenerationStart(w)
	if err := p.waitIdle(ctx); err != nil {
		return "", err
	}
	return file, nil
}

// Silence stops the engine and cancels every request.
func (p *Provider) Silence() {
	p.stop()
	p.Base.Silence()
}

// SilenceUID cancels uid. The engine is stopped only when uid is the
// utterance it is speaking.
func (p *Provider) SilenceUID(uid string) {
	p.mu.Lock()
	speaking := uid != "" && p.native == uid
	p.mu.Unlock()
	if speaking {
		p.stop()
	}
	p.Base.SilenceUID(uid)
}

// Close shuts the engine down and closes the bridge.
func (p *Provider) Close() error {
	p.Base.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if p.initialized.Load() {
		if err := p.client.Notify(ctx, "shutdown", nil); err != nil {
			p.Logger.Debug("shutdown failed", "err", err)
		}
	}
	return p.client.Close()
}

func (p *Provider) stop() {
	if !p.initialized.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.client.Notify(ctx, "stopNative", nil); err != nil {
		p.Logger.Debug("stop failed", "err", err)
	}
}

// waitInitialized polls isInitialized until the engine reports ready.
func (p *Provider) waitInitialized(ctx context.Context) error {
	if p.initialized.Load() {
		return nil
	}
	err := p.poll(ctx, "isInitialized", true)
	if err == nil {
		p.initialized.Store(true)
	}
	return err
}

// waitIdle polls isWorking until the engine is done.
func (p *Provider) waitIdle(ctx context.Context) error {
	return p.poll(ctx, "isWorking", false)
}

func (p *Provider) poll(ctx context.Context, method string, want bool) error {
	interval := p.Config().Bridge.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		var got bool
		if err := p.client.Call(ctx, method, nil, &got); err != nil {
			return p.bridgeErr(ctx, method, err)
		}
		if got == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Provider) bridgeErr(ctx context.Context, action string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return tts.NewTTSError(err, p.Name(), action)
}
