package tts

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/xid"
)

// Wrapper is a single synthesis request. Its uid correlates every event
// fired for the request and targets scoped cancellation.
type Wrapper struct {
	uid     string
	created time.Time

	mu               sync.RWMutex
	text             string
	voice            *Voice
	rate             float64
	pitch            float64
	volume           float64
	sink             Sink
	speakImmediately bool
	outputFile       string
	forceSSML        bool
	speechTime       time.Duration
}

// WrapperOption configures a Wrapper at construction.
type WrapperOption func(*Wrapper)

// WithUID uses an explicit uid instead of a generated one.
func WithUID(uid string) WrapperOption {
	return func(w *Wrapper) {
		if uid != "" {
			w.uid = uid
		}
	}
}

// WithVoice sets the voice. A nil voice selects the provider default.
func WithVoice(v *Voice) WrapperOption {
	return func(w *Wrapper) { w.voice = v }
}

// WithRate sets the speech rate, clamped to [0,3].
func WithRate(rate float64) WrapperOption {
	return func(w *Wrapper) { w.rate = clamp(rate, 0, 3) }
}

// WithPitch sets the pitch, clamped to [0,2].
func WithPitch(pitch float64) WrapperOption {
	return func(w *Wrapper) { w.pitch = clamp(pitch, 0, 2) }
}

// WithVolume sets the volume, clamped to [0,1].
func WithVolume(volume float64) WrapperOption {
	return func(w *Wrapper) { w.volume = clamp(volume, 0, 1) }
}

// WithSink routes the generated audio through sink.
func WithSink(s Sink) WrapperOption {
	return func(w *Wrapper) { w.sink = s }
}

// WithSpeakImmediately controls whether generated audio is played right away.
func WithSpeakImmediately(b bool) WrapperOption {
	return func(w *Wrapper) { w.speakImmediately = b }
}

// WithOutputFile requests a copy of the generated audio at path. The
// provider's file extension is appended.
func WithOutputFile(path string) WrapperOption {
	return func(w *Wrapper) { w.outputFile = path }
}

// WithForceSSML toggles SSML wrapping on providers that support it.
func WithForceSSML(b bool) WrapperOption {
	return func(w *Wrapper) { w.forceSSML = b }
}

// NewWrapper creates a request for text.
func NewWrapper(text string, opts ...WrapperOption) *Wrapper {
	w := &Wrapper{
		uid:              xid.New().String(),
		created:          time.Now(),
		text:             text,
		rate:             1,
		pitch:            1,
		volume:           1,
		speakImmediately: true,
		forceSSML:        true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// UID returns the request id.
func (w *Wrapper) UID() string { return w.uid }

// Created returns the construction time.
func (w *Wrapper) Created() time.Time { return w.created }

// Text returns the request text.
func (w *Wrapper) Text() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.text
}

// SetText replaces the request text.
func (w *Wrapper) SetText(text string) {
	w.mu.Lock()
	w.text = text
	w.mu.Unlock()
}

// Voice returns the requested voice or nil.
func (w *Wrapper) Voice() *Voice {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.voice
}

// SetVoice sets the requested voice.
func (w *Wrapper) SetVoice(v *Voice) {
	w.mu.Lock()
	w.voice = v
	w.mu.Unlock()
}

// Rate returns the speech rate in [0,3].
func (w *Wrapper) Rate() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.rate
}

// SetRate sets the speech rate, clamped to [0,3].
func (w *Wrapper) SetRate(rate float64) {
	w.mu.Lock()
	w.rate = clamp(rate, 0, 3)
	w.mu.Unlock()
}

// Pitch returns the pitch in [0,2].
func (w *Wrapper) Pitch() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pitch
}

// SetPitch sets the pitch, clamped to [0,2].
func (w *Wrapper) SetPitch(pitch float64) {
	w.mu.Lock()
	w.pitch = clamp(pitch, 0, 2)
	w.mu.Unlock()
}

// Volume returns the volume in [0,1].
func (w *Wrapper) Volume() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.volume
}

// SetVolume sets the volume, clamped to [0,1].
func (w *Wrapper) SetVolume(volume float64) {
	w.mu.Lock()
	w.volume = clamp(volume, 0, 1)
	w.mu.Unlock()
}

// Sink returns the audio sink of the request or nil.
func (w *Wrapper) Sink() Sink {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.sink
}

// SetSink sets the audio sink.
func (w *Wrapper) SetSink(s Sink) {
	w.mu.Lock()
	w.sink = s
	w.mu.Unlock()
}

// SpeakImmediately reports whether generated audio is played right away.
func (w *Wrapper) SpeakImmediately() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.speakImmediately
}

// SetSpeakImmediately sets the playback flag.
func (w *Wrapper) SetSpeakImmediately(b bool) {
	w.mu.Lock()
	w.speakImmediately = b
	w.mu.Unlock()
}

// OutputFile returns the requested output path.
func (w *Wrapper) OutputFile() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.outputFile
}

// SetOutputFile sets the output path.
func (w *Wrapper) SetOutputFile(path string) {
	w.mu.Lock()
	w.outputFile = path
	w.mu.Unlock()
}

// ForceSSML reports whether SSML wrapping is requested.
func (w *Wrapper) ForceSSML() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.forceSSML
}

// SpeechTime returns the duration of the generated audio, if known.
func (w *Wrapper) SpeechTime() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.speechTime
}

// SetSpeechTime records the duration of the generated audio.
func (w *Wrapper) SetSpeechTime(d time.Duration) {
	w.mu.Lock()
	w.speechTime = d
	w.mu.Unlock()
}

// String renders every field of the request for logs.
func (w *Wrapper) String() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	voice := "<default>"
	if w.voice != nil {
		voice = w.voice.String()
	}
	return fmt.Sprintf("Uid=%s, Text=%q, Voice=%s, Rate=%.2f, Pitch=%.2f, Volume=%.2f, SpeakImmediately=%t, OutputFile=%q, ForceSSML=%t, Created=%s",
		w.uid, w.text, voice, w.rate, w.pitch, w.volume, w.speakImmediately, w.outputFile, w.forceSSML, w.created.Format(time.RFC3339))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo || math.IsNaN(v) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
