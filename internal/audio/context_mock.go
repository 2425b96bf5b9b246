package audio

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// MockContext implements Context without an audio device. Its players
// report playing for as long as their data would take to play.
type MockContext struct {
	mu      sync.Mutex
	ready   bool
	players []*MockPlayer

	// PlayersCreated and PlayersClosed count player lifecycles for tests.
	PlayersCreated int
	PlayersClosed  int
}

// NewMockContext creates a ready mock context.
func NewMockContext() *MockContext {
	log.Debug("Creating mock audio context")
	return &MockContext{ready: true}
}

// NewPlayer implements Context.
func (mc *MockContext) NewPlayer(r io.Reader) (Player, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if !mc.ready {
		return nil, fmt.Errorf("mock audio context not ready")
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}
	bytesPerSecond := float64(SampleRate * BytesPerSample * Channels)
	p := &MockPlayer{
		context:  mc,
		reader:   bytes.NewReader(data),
		duration: time.Duration(float64(len(data)) / bytesPerSecond * float64(time.Second)),
		volume:   1,
	}
	mc.players = append(mc.players, p)
	mc.PlayersCreated++
	return p, nil
}

// Close implements Context and closes every player.
func (mc *MockContext) Close() error {
	mc.mu.Lock()
	players := mc.players
	mc.players = nil
	mc.ready = false
	mc.mu.Unlock()

	for _, p := range players {
		_ = p.Close()
	}
	return nil
}

// IsReady implements Context.
func (mc *MockContext) IsReady() bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.ready
}

// SampleRate implements Context.
func (mc *MockContext) SampleRate() int { return SampleRate }

// ChannelCount implements Context.
func (mc *MockContext) ChannelCount() int { return Channels }

// Created returns the number of players created.
func (mc *MockContext) Created() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.PlayersCreated
}

// Closed returns the number of players closed.
func (mc *MockContext) Closed() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.PlayersClosed
}

// MockPlayer simulates playback timing.
type MockPlayer struct {
	context  *MockContext
	reader   *bytes.Reader
	duration time.Duration

	mu      sync.Mutex
	started time.Time
	elapsed time.Duration // played before the last pause
	playing bool
	closed  bool
	volume  float64

	PlayCount  int
	PauseCount int
}

// Play implements Player.
func (m *MockPlayer) Play() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.playing {
		return
	}
	m.playing = true
	m.started = time.Now()
	m.PlayCount++
}

// Pause implements Player.
func (m *MockPlayer) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.playing {
		return
	}
	m.elapsed += time.Since(m.started)
	m.playing = false
	m.PauseCount++
}

// IsPlaying implements Player.
func (m *MockPlayer) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.playing {
		return false
	}
	if m.elapsed+time.Since(m.started) >= m.duration {
		m.playing = false
		m.elapsed = m.duration
	}
	return m.playing
}

// Position returns how much of the stream has been played.
func (m *MockPlayer) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos := m.elapsed
	if m.playing {
		pos += time.Since(m.started)
	}
	return min(pos, m.duration)
}

// Duration returns the length of the stream.
func (m *MockPlayer) Duration() time.Duration {
	return m.duration
}

// Close implements Player.
func (m *MockPlayer) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.playing = false
	m.mu.Unlock()

	m.context.mu.Lock()
	m.context.PlayersClosed++
	m.context.mu.Unlock()
	return nil
}

// SetVolume implements Player.
func (m *MockPlayer) SetVolume(volume float64) {
	m.mu.Lock()
	m.volume = volume
	m.mu.Unlock()
}

// Volume implements Player.
func (m *MockPlayer) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}
