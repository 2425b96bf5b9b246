package audio

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/rtvoice/tts"
)

const pollInterval = 20 * time.Millisecond

// Source is a tts.Sink that plays clips through a Context.
type Source struct {
	ctx Context

	mu     sync.Mutex
	clip   *tts.Clip
	player Player
	paused bool
	// held is a pause requested before playback started.
	held   bool
	muted  bool
	volume float64
	stop   chan struct{}
	closed bool
}

// NewSource creates a source playing through ctx.
func NewSource(ctx Context) *Source {
	return &Source{ctx: ctx, volume: 1}
}

// NewSinkFactory returns a tts.SinkFactory allocating sources on ctx.
func NewSinkFactory(ctx Context) tts.SinkFactory {
	return func() tts.Sink { return NewSource(ctx) }
}

// SetClip implements tts.Sink.
func (s *Source) SetClip(clip *tts.Clip) {
	s.mu.Lock()
	s.clip = clip
	s.mu.Unlock()
}

// Clip implements tts.Sink.
func (s *Source) Clip() *tts.Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clip
}

// Play implements tts.Sink.
func (s *Source) Play(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("audio source is closed")
	}
	s.stopLocked()
	clip := s.clip
	s.mu.Unlock()

	if clip == nil {
		return fmt.Errorf("no clip to play")
	}
	pcm, err := Convert(clip, Format{SampleRate: s.ctx.SampleRate(), Channels: s.ctx.ChannelCount()})
	if err != nil {
		return fmt.Errorf("error converting clip: %w", err)
	}
	player, err := s.ctx.NewPlayer(bytes.NewReader(pcm))
	if err != nil {
		return fmt.Errorf("error creating player: %w", err)
	}

	stop := make(chan struct{})
	s.mu.Lock()
	s.player = player
	s.stop = stop
	s.paused = s.held
	s.held = false
	player.SetVolume(s.effectiveVolumeLocked())
	if !s.paused {
		player.Play()
	}
	s.mu.Unlock()

	log.Debug("Playing clip", "path", clip.Path, "duration", clip.Duration())
	defer s.release(player)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.mu.Lock()
			paused := s.paused
			s.mu.Unlock()
			if !paused && !player.IsPlaying() {
				return nil
			}
		}
	}
}

func (s *Source) release(player Player) {
	s.mu.Lock()
	if s.player == player {
		s.player = nil
		s.stop = nil
		s.paused = false
	}
	s.mu.Unlock()
	_ = player.Close()
}

// Stop implements tts.Sink.
func (s *Source) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
}

func (s *Source) stopLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	if s.player != nil {
		s.player.Pause()
	}
	s.paused = false
}

// Pause implements tts.Sink.
func (s *Source) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.player == nil:
		s.held = true
	case !s.paused:
		s.player.Pause()
		s.paused = true
	}
}

// UnPause implements tts.Sink.
func (s *Source) UnPause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = false
	if s.player != nil && s.paused {
		s.player.Play()
		s.paused = false
	}
}

// SetMute implements tts.Sink.
func (s *Source) SetMute(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
	if s.player != nil {
		s.player.SetVolume(s.effectiveVolumeLocked())
	}
}

// SetVolume implements tts.Sink.
func (s *Source) SetVolume(volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = max(0, min(1, volume))
	if s.player != nil {
		s.player.SetVolume(s.effectiveVolumeLocked())
	}
}

func (s *Source) effectiveVolumeLocked() float64 {
	if s.muted {
		return 0
	}
	return s.volume
}

// IsPlaying implements tts.Sink.
func (s *Source) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player != nil
}

// IsPaused reports whether playback is paused.
func (s *Source) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused || s.held
}

// Close implements tts.Sink.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.closed = true
	return nil
}
