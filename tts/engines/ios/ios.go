// Package ios drives AVSpeechSynthesizer through the companion bridge.
//
// The synthesizer reports voices, spoken words and its state through
// callbacks that carry no request id, so the provider runs one utterance
// at a time; a second request waits until the first one is done.
package ios

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/rtvoice/internal/bridge"
	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/base"
)

// DefaultVoice is used when a request names no voice.
const DefaultVoice = "Daniel"

// ErrGenerateUnsupported is returned by Generate.
var ErrGenerateUnsupported = errors.New("generate is not supported on iOS")

// Provider speaks through the iOS speech synthesizer.
type Provider struct {
	*base.Base

	client *bridge.Client

	// speaking serializes utterances. It is a channel so waiting honors
	// the request context.
	speaking chan struct{}

	mu      sync.Mutex
	current *utterance
	// voicesC is set while RefreshVoices waits for the voice list.
	voicesC chan voiceList
}

type voiceList struct {
	voices []tts.Voice
	err    error
}

// utterance is the request the synthesizer callbacks refer to.
type utterance struct {
	w     *tts.Wrapper
	words []string
	index int
	done  chan struct{}
	once  sync.Once
	// silenced is set when the utterance was stopped on request.
	silenced atomic.Bool
}

func (u *utterance) finish() {
	u.once.Do(func() { close(u.done) })
}

// New creates the provider and registers the synthesizer callbacks.
func New(env tts.Env) (*Provider, error) {
	caps := tts.Capabilities{
		AudioFileExtension: ".wav",
		AudioFileType:      tts.AudioWAV,
		DefaultVoiceName:   DefaultVoice,
		MaxTextLength:      256000,
		SpeakNative:        true,
		PlatformSupported:  env.GOOS == "ios",
	}
	b := base.New(tts.ProviderIOS, env, caps)
	p := &Provider{
		Base:     b,
		client:   bridge.New(env.Config.Bridge.URL, b.Logger),
		speaking: make(chan struct{}, 1),
	}
	p.client.Handle("setVoices", p.onVoices)
	p.client.Handle("setState", p.onState)
	p.client.Handle("wordSpoken", p.onWord)
	return p, nil
}

// Factory is the registry constructor.
func Factory(env tts.Env) (tts.Provider, error) {
	return New(env)
}

// RefreshVoices requests the voice list and waits for the setVoices
// callback.
func (p *Provider) RefreshVoices(ctx context.Context) error {
	listC := make(chan voiceList, 1)
	p.mu.Lock()
	p.voicesC = listC
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		if p.voicesC == listC {
			p.voicesC = nil
		}
		p.mu.Unlock()
	}()

	if err := p.client.Notify(ctx, "getVoices", nil); err != nil {
		return fmt.Errorf("could not get any voices: %w", err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case list := <-listC:
		if list.err != nil {
			return fmt.Errorf("could not get any voices: %w", list.err)
		}
		p.SetVoices(list.voices)
		return nil
	}
}

// ParseVoices reads the comma separated "identifier,name,culture"
// triplets sent by the synthesizer. A list that does not split into
// triplets is rejected.
func ParseVoices(text string) ([]tts.Voice, error) {
	var parts []string
	for _, s := range strings.Split(text, ",") {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts)%3 != 0 {
		return nil, fmt.Errorf("voice list has %d fields, not a multiple of 3", len(parts))
	}
	voices := make([]tts.Voice, 0, len(parts)/3)
	for i := 0; i < len(parts); i += 3 {
		id, name, culture := parts[i], parts[i+1], parts[i+2]
		voices = append(voices, tts.NewVoice(name, "iOS voice: "+name+" "+culture,
			tts.AppleVoiceNameToGender(name), "unknown", culture,
			tts.WithIdentifier(id), tts.WithVendor("Apple")))
	}
	return voices, nil
}

// SpeakNative speaks w once the previous utterance is done. Word events
// come from the wordSpoken callback.
func (p *Provider) SpeakNative(ctx context.Context, w *tts.Wrapper) error {
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	select {
	case p.speaking <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.speaking }()

	u := &utterance{
		w:     w,
		words: tts.SplitWords(tts.CleanText(w.Text(), tts.CleanOptions{ClearSpaces: true, ClearLineEndings: true})),
		done:  make(chan struct{}),
	}
	p.mu.Lock()
	p.current = u
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.current = nil
		p.mu.Unlock()
	}()

	p.Emitter().SpeakStart(w)
	params := map[string]any{
		"id":     p.voiceID(w),
		"text":   w.Text(),
		"rate":   Rate(w.Rate()),
		"pitch":  w.Pitch(),
		"volume": w.Volume(),
	}
	if err := p.client.Call(ctx, "speak", params, nil); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return tts.NewTTSError(err, p.Name(), "speak")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-u.done:
	}
	if u.silenced.Load() {
		return context.Canceled
	}
	p.Logger.Debug("text spoken", "uid", w.UID())
	p.Emitter().SpeakComplete(w)
	return nil
}

// Speak has no file output on iOS, so it speaks natively with the
// generation events the sink path would send.
func (p *Provider) Speak(ctx context.Context, w *tts.Wrapper) error {
	p.Emitter().AudioGenerationStart(w)
	p.Emitter().AudioGenerationComplete(w)
	return p.SpeakNative(ctx, w)
}

// Generate always fails.
func (p *Provider) Generate(context.Context, *tts.Wrapper) error {
	return tts.NewTTSError(ErrGenerateUnsupported, p.Name(), "generate")
}

// Silence stops the synthesizer and cancels every request.
func (p *Provider) Silence() {
	p.interrupt("")
	p.Base.Silence()
}

// SilenceUID cancels the request uid. The synthesizer is only stopped
// when uid is the utterance being spoken; queued requests keep waiting.
func (p *Provider) SilenceUID(uid string) {
	if uid == "" {
		return
	}
	p.interrupt(uid)
	p.Base.SilenceUID(uid)
}

// Close stops speech and closes the bridge.
func (p *Provider) Close() error {
	p.interrupt("")
	p.Base.Close()
	return p.client.Close()
}

// interrupt stops the current utterance when it belongs to uid, or any
// utterance when uid is empty, and waits for the synthesizer to confirm.
// The confirmation must not finish the next utterance.
func (p *Provider) interrupt(uid string) {
	p.mu.Lock()
	u := p.current
	p.mu.Unlock()
	if u == nil || (uid != "" && u.w.UID() != uid) {
		return
	}
	u.silenced.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.client.Notify(ctx, "stop", nil); err != nil {
		p.Logger.Debug("stop failed", "err", err)
		return
	}
	select {
	case <-u.done:
	case <-ctx.Done():
		p.Logger.Debug("stop not confirmed", "uid", u.w.UID())
	}
}

// voiceID returns the synthesizer identifier of the request voice, or of
// the default voice when the request has none.
func (p *Provider) voiceID(w *tts.Wrapper) string {
	if v := w.Voice(); v != nil && v.Identifier != "" {
		return v.Identifier
	}
	for _, v := range p.Voices() {
		if v.Name == DefaultVoice {
			return v.Identifier
		}
	}
	return ""
}

// Rate slows rates above 1 down, since the synthesizer is already fast at
// twice its normal rate.
func Rate(rate float64) float64 {
	if rate > 1 {
		return 1 + (rate-1)*0.25
	}
	return rate
}

func (p *Provider) onVoices(params json.RawMessage) {
	var text string
	if err := json.Unmarshal(params, &text); err != nil {
		p.Logger.Warn("invalid voice list", "err", err)
		return
	}
	voices, err := ParseVoices(text)

	p.mu.Lock()
	listC := p.voicesC
	p.voicesC = nil
	p.mu.Unlock()
	if listC != nil {
		listC <- voiceList{voices, err}
		return
	}
	if err != nil {
		p.Logger.Warn("invalid voice list", "err", err)
		return
	}
	p.SetVoices(voices)
}

func (p *Provider) onState(params json.RawMessage) {
	var state string
	if err := json.Unmarshal(params, &state); err != nil {
		return
	}
	if state == "Start" {
		return
	}
	p.mu.Lock()
	u := p.current
	p.mu.Unlock()
	if u != nil {
		u.finish()
	}
}

func (p *Provider) onWord(json.RawMessage) {
	p.mu.Lock()
	u := p.current
	var idx int
	if u != nil {
		idx = u.index
		u.index++
	}
	p.mu.Unlock()
	if u == nil || idx >= len(u.words) {
		return
	}
	p.Emitter().CurrentWord(u.w, u.words, idx)
}
