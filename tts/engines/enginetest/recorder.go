// Package enginetest provides helpers for provider tests.
package enginetest

import (
	"sync"

	"github.com/dgnsrekt/rtvoice/internal/audio"
	"github.com/dgnsrekt/rtvoice/tts"
)

// Recorder is a tts.Emitter that records the events it receives.
type Recorder struct {
	mu       sync.Mutex
	events   []string
	words    []string
	phonemes []string
	visemes  []string
	voices   []tts.Voice
	warnings []error
	ready    chan struct{}
	once     sync.Once
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{ready: make(chan struct{})}
}

func (r *Recorder) add(name string) {
	r.mu.Lock()
	r.events = append(r.events, name)
	r.mu.Unlock()
}

// Events returns the names of the recorded events in order.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Count returns how often the event name was recorded.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == name {
			n++
		}
	}
	return n
}

// Words returns the words of the CurrentWord events.
func (r *Recorder) Words() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.words...)
}

// Phonemes returns the recorded phonemes.
func (r *Recorder) Phonemes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.phonemes...)
}

// Visemes returns the recorded visemes.
func (r *Recorder) Visemes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.visemes...)
}

// Voices returns the catalog of the last VoicesReady event.
func (r *Recorder) Voices() []tts.Voice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.voices
}

// Warnings returns the recorded warnings.
func (r *Recorder) Warnings() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.warnings...)
}

// VoicesReadyC is closed on the first VoicesReady event.
func (r *Recorder) VoicesReadyC() <-chan struct{} {
	return r.ready
}

func (r *Recorder) VoicesReady(voices []tts.Voice) {
	r.mu.Lock()
	r.voices = voices
	r.mu.Unlock()
	r.add("VoicesReady")
	r.once.Do(func() { close(r.ready) })
}

func (r *Recorder) SpeakStart(*tts.Wrapper)    { r.add("SpeakStart") }
func (r *Recorder) SpeakComplete(*tts.Wrapper) { r.add("SpeakComplete") }

func (r *Recorder) CurrentWord(_ *tts.Wrapper, words []string, index int) {
	r.mu.Lock()
	if index >= 0 && index < len(words) {
		r.words = append(r.words, words[index])
	}
	r.mu.Unlock()
	r.add("CurrentWord")
}

func (r *Recorder) CurrentPhoneme(_ *tts.Wrapper, phoneme string) {
	r.mu.Lock()
	r.phonemes = append(r.phonemes, phoneme)
	r.mu.Unlock()
	r.add("CurrentPhoneme")
}

func (r *Recorder) CurrentViseme(_ *tts.Wrapper, viseme string) {
	r.mu.Lock()
	r.visemes = append(r.visemes, viseme)
	r.mu.Unlock()
	r.add("CurrentViseme")
}

func (r *Recorder) AudioGenerationStart(*tts.Wrapper)    { r.add("AudioGenerationStart") }
func (r *Recorder) AudioGenerationComplete(*tts.Wrapper) { r.add("AudioGenerationComplete") }

func (r *Recorder) Warn(_ *tts.Wrapper, err error) {
	r.mu.Lock()
	r.warnings = append(r.warnings, err)
	r.mu.Unlock()
	r.add("Warn")
}

// Env returns a provider environment that records into r and writes audio
// files to dir.
func Env(r *Recorder, dir, goos string) tts.Env {
	cfg := tts.DefaultConfig()
	cfg.Audio.Path = dir
	return tts.Env{Config: cfg, Emitter: r, GOOS: goos}
}

// WriteWAV writes seconds of silence at 22050 Hz mono to path.
func WriteWAV(path string, seconds float64) error {
	clip := &tts.Clip{
		SampleRate: audio.SampleRate,
		Channels:   1,
		PCM:        audio.Silence(seconds, audio.Format{SampleRate: audio.SampleRate, Channels: 1}),
	}
	return audio.WriteWAVFile(path, clip)
}
