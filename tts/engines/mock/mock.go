// Package mock provides a deterministic speech provider for tests and demos.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/dgnsrekt/rtvoice/internal/audio"
	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/base"
)

// Provider fires the same events as a real provider without a synthesizer.
// Native speech walks the words with a fixed delay; Speak and Generate
// write silent WAV files as long as the words would take.
type Provider struct {
	*base.Base

	mu           sync.Mutex
	delay        time.Duration // Simulated processing delay
	shouldFail   bool
	failureError error
	callCount    int
}

// New creates a mock provider.
func New(env tts.Env) (*Provider, error) {
	caps := tts.Capabilities{
		AudioFileExtension: ".wav",
		AudioFileType:      tts.AudioWAV,
		DefaultVoiceName:   "Mock Voice 1",
		MaxTextLength:      32000,
		SpeakNative:        env.Config.Mock.Native,
		Speak:              true,
		PlatformSupported:  true,
		VoicesAtDesignTime: true,
	}
	return &Provider{Base: base.New(tts.ProviderMock, env, caps)}, nil
}

// Factory is the registry constructor.
func Factory(env tts.Env) (tts.Provider, error) {
	return New(env)
}

// Catalog returns the voices of the mock provider.
func Catalog() []tts.Voice {
	return []tts.Voice{
		tts.NewVoice("Mock Voice 1", "Neutral test voice", tts.GenderUnknown, "", "en-US", tts.WithIdentifier("mock-voice-1"), tts.WithVendor("rtvoice")),
		tts.NewVoice("Mock Voice 2", "Female test voice", tts.GenderFemale, "", "en-GB", tts.WithIdentifier("mock-voice-2"), tts.WithVendor("rtvoice")),
		tts.NewVoice("Mock Voice 3", "Male test voice", tts.GenderMale, "", "en-US", tts.WithIdentifier("mock-voice-3"), tts.WithVendor("rtvoice")),
	}
}

// RefreshVoices publishes the fixed catalog.
func (p *Provider) RefreshVoices(ctx context.Context) error {
	if err := p.call(ctx); err != nil {
		return err
	}
	p.SetVoices(Catalog())
	return nil
}

// SpeakNative fires CurrentWord for every word, WordDelay apart.
func (p *Provider) SpeakNative(ctx context.Context, w *tts.Wrapper) error {
	if err := p.call(ctx); err != nil {
		return err
	}
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	words := tts.SplitWords(w.Text())
	delay := p.wordDelay(w)
	w.SetSpeechTime(time.Duration(len(words)) * delay)

	p.Emitter().SpeakStart(w)
	for i := range words {
		p.Emitter().CurrentWord(w, words, i)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.Emitter().SpeakComplete(w)
	return nil
}

// Speak writes a silent clip and plays it through the request sink.
func (p *Provider) Speak(ctx context.Context, w *tts.Wrapper) error {
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	file, err := p.generate(ctx, w)
	if err != nil {
		return err
	}
	return p.Play(ctx, w, file, false)
}

// Generate writes a silent clip to the output file of w.
func (p *Provider) Generate(ctx context.Context, w *tts.Wrapper) error {
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	file, err := p.generate(ctx, w)
	if err != nil {
		return err
	}
	return p.Process(w, file)
}

func (p *Provider) generate(ctx context.Context, w *tts.Wrapper) (string, error) {
	if err := p.call(ctx); err != nil {
		return "", err
	}
	p.Emitter().AudioGenerationStart(w)

	file, err := p.AudioFile(w.UID())
	if err != nil {
		return "", err
	}
	rate := p.Config().Mock.SampleRate
	words := len(tts.SplitWords(w.Text()))
	d := max(time.Duration(words)*p.wordDelay(w), 100*time.Millisecond)
	clip := &tts.Clip{
		SampleRate: rate,
		Channels:   1,
		PCM:        audio.Silence(d.Seconds(), audio.Format{SampleRate: rate, Channels: 1}),
	}
	if err := audio.WriteWAVFile(file, clip); err != nil {
		return "", err
	}
	return file, nil
}

// wordDelay scales the configured delay by the request rate.
func (p *Provider) wordDelay(w *tts.Wrapper) time.Duration {
	d := p.Config().Mock.WordDelay
	if r := w.Rate(); r > 0 {
		d = time.Duration(float64(d) / r)
	}
	return d
}

// call counts the request, waits the simulated delay and returns the
// configured failure.
func (p *Provider) call(ctx context.Context) error {
	p.mu.Lock()
	p.callCount++
	delay, fail, failErr := p.delay, p.shouldFail, p.failureError
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return failErr
	}
	return nil
}

// Test control methods

// SetDelay sets the simulated processing delay.
func (p *Provider) SetDelay(delay time.Duration) {
	p.mu.Lock()
	p.delay = delay
	p.mu.Unlock()
}

// SetFailure makes every following request fail with err.
func (p *Provider) SetFailure(err error) {
	p.mu.Lock()
	p.shouldFail = true
	p.failureError = err
	p.mu.Unlock()
}

// ClearFailure resets the provider to normal operation.
func (p *Provider) ClearFailure() {
	p.mu.Lock()
	p.shouldFail = false
	p.failureError = nil
	p.mu.Unlock()
}

// CallCount returns the number of requests handled.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCount
}
