package tts

import (
	"context"
	"sync"
	"time"
)

// Clip is decoded audio: signed 16-bit little endian interleaved PCM.
type Clip struct {
	Path       string
	SampleRate int
	Channels   int
	PCM        []byte
}

// Duration returns the playback length of the clip.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.PCM) / (2 * c.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Sink is an audio output destination. Providers attach the generated clip
// and, when the request asks for it, play it.
type Sink interface {
	// SetClip attaches audio to the sink. A nil clip detaches it.
	SetClip(clip *Clip)
	// Clip returns the attached audio.
	Clip() *Clip
	// Play plays the attached clip and blocks until it finished, was
	// stopped, or ctx was cancelled.
	Play(ctx context.Context) error
	// Stop ends playback. Play returns without error.
	Stop()
	// Pause pauses playback. A sink paused before Play starts the next
	// clip paused.
	Pause()
	UnPause()
	SetMute(muted bool)
	SetVolume(volume float64)
	// IsPlaying reports whether the clip is playing or paused mid-way.
	IsPlaying() bool
	Close() error
}

// SinkFactory allocates sinks the dispatcher owns.
type SinkFactory func() Sink

// TimedSink is a Sink without an audio device. Playback lasts as long as
// the clip and honours pause and stop.
type TimedSink struct {
	mu      sync.Mutex
	clip    *Clip
	playing bool
	paused  bool
	held    bool
	muted   bool
	volume  float64
	stop    chan struct{}
	resume  chan struct{}
}

// NewTimedSink creates a TimedSink.
func NewTimedSink() *TimedSink {
	return &TimedSink{volume: 1}
}

// SetClip implements Sink.
func (s *TimedSink) SetClip(clip *Clip) {
	s.mu.Lock()
	s.clip = clip
	s.mu.Unlock()
}

// Clip implements Sink.
func (s *TimedSink) Clip() *Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clip
}

// Play implements Sink.
func (s *TimedSink) Play(ctx context.Context) error {
	s.mu.Lock()
	if s.playing {
		s.stopLocked()
	}
	remaining := s.clip.Duration()
	stop := make(chan struct{})
	s.stop = stop
	s.playing = true
	s.paused = s.held
	if s.held {
		s.resume = make(chan struct{})
		s.held = false
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.stop == stop {
			s.playing = false
			s.paused = false
			s.stop = nil
		}
		s.mu.Unlock()
	}()

	for remaining > 0 {
		s.mu.Lock()
		paused, resume := s.paused, s.resume
		s.mu.Unlock()

		if paused {
			select {
			case <-resume:
				continue
			case <-stop:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		start := time.Now()
		step := min(remaining, 20*time.Millisecond)
		select {
		case <-time.After(step):
			remaining -= time.Since(start)
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stop implements Sink.
func (s *TimedSink) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
}

func (s *TimedSink) stopLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.playing = false
	s.paused = false
}

// Pause implements Sink.
func (s *TimedSink) Pause() {
	s.mu.Lock()
	switch {
	case !s.playing:
		s.held = true
	case !s.paused:
		s.paused = true
		s.resume = make(chan struct{})
	}
	s.mu.Unlock()
}

// UnPause implements Sink.
func (s *TimedSink) UnPause() {
	s.mu.Lock()
	s.held = false
	if s.paused {
		s.paused = false
		close(s.resume)
	}
	s.mu.Unlock()
}

// SetMute implements Sink.
func (s *TimedSink) SetMute(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
}

// Muted reports the mute flag.
func (s *TimedSink) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// SetVolume implements Sink.
func (s *TimedSink) SetVolume(volume float64) {
	s.mu.Lock()
	s.volume = clamp(volume, 0, 1)
	s.mu.Unlock()
}

// IsPlaying implements Sink.
func (s *TimedSink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// IsPaused reports whether playback is paused.
func (s *TimedSink) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused || s.held
}

// Close implements Sink.
func (s *TimedSink) Close() error {
	s.Stop()
	return nil
}
