package audio

import (
	"io"
)

// Output format of every context.
const (
	// SampleRate is the playback sample rate in Hz.
	SampleRate = 22050
	// Channels is the number of playback channels (1 = mono).
	Channels = 1
	// BitDepth is the bit depth per sample.
	BitDepth = 16
	// BytesPerSample is the number of bytes per sample.
	BytesPerSample = BitDepth / 8
)

// Context creates players for PCM streams in the output format.
type Context interface {
	// NewPlayer creates a player reading signed 16-bit little endian PCM.
	NewPlayer(r io.Reader) (Player, error)
	// Close releases the context.
	Close() error
	IsReady() bool
	SampleRate() int
	ChannelCount() int
}

// Player plays one PCM stream.
type Player interface {
	// Play starts or resumes playback.
	Play()
	Pause()
	// IsPlaying reports whether samples are still being played.
	IsPlaying() bool
	Close() error
	// SetVolume sets the playback volume (0.0 to 1.0).
	SetVolume(volume float64)
	Volume() float64
}

// ContextType selects the context NewContext creates.
type ContextType int

const (
	// ContextProduction uses real audio hardware via oto.
	ContextProduction ContextType = iota
	// ContextMock plays nothing and only simulates timing.
	ContextMock
	// ContextAuto picks production unless the platform suggests mock.
	ContextAuto
)

func (t ContextType) String() string {
	switch t {
	case ContextProduction:
		return "production"
	case ContextMock:
		return "mock"
	case ContextAuto:
		return "auto"
	}
	return "unknown"
}
