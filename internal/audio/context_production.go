//go:build !nocgo

package audio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/rtvoice/internal/platform"
)

// ProductionContext plays audio through oto.
type ProductionContext struct {
	mu      sync.Mutex
	context *oto.Context
	ready   bool
}

// NewProductionContext creates an oto context, retrying on platforms whose
// audio daemons may still be starting.
func NewProductionContext(info *platform.Info) (*ProductionContext, error) {
	maxRetries := 1
	retryDelay := 100 * time.Millisecond
	switch info.OS {
	case platform.Darwin:
		// CoreAudio can race during initialization
		maxRetries = 3
		retryDelay = 200 * time.Millisecond
	case platform.Windows:
		maxRetries = 2
		retryDelay = 150 * time.Millisecond
	case platform.Linux:
		if info.AudioSubsystem == platform.AudioPulseAudio {
			maxRetries = 2
		}
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			log.Debug("Retrying audio context initialization", "attempt", i+1, "of", maxRetries)
			time.Sleep(retryDelay)
		}
		pc := &ProductionContext{}
		if err := pc.initialize(info); err != nil {
			lastErr = err
			log.Debug("Audio context initialization failed", "attempt", i+1, "error", err)
			continue
		}
		log.Debug("Production audio context initialized", "attempt", i+1)
		return pc, nil
	}
	return nil, fmt.Errorf("failed to initialize audio context after %d attempts: %w", maxRetries, lastErr)
}

func (pc *ProductionContext) initialize(info *platform.Info) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	options := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(info.BufferSize()) * time.Millisecond,
	}
	log.Debug("Initializing audio context",
		"platform", info.OS,
		"audio_subsystem", info.AudioSubsystem,
		"sample_rate", options.SampleRate,
		"buffer_size", options.BufferSize)

	context, readyChan, err := oto.NewContext(options)
	if err != nil {
		return fmt.Errorf("failed to create audio context: %w", err)
	}

	readyTimeout := 5 * time.Second
	if info.OS == platform.Darwin {
		readyTimeout = 10 * time.Second
	}
	select {
	case <-readyChan:
		pc.context = context
		pc.ready = true
	case <-time.After(readyTimeout):
		return fmt.Errorf("audio context initialization timeout after %v", readyTimeout)
	}
	return nil
}

// NewPlayer implements Context.
func (pc *ProductionContext) NewPlayer(r io.Reader) (Player, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if !pc.ready || pc.context == nil {
		return nil, fmt.Errorf("audio context not ready")
	}
	return &productionPlayer{player: pc.context.NewPlayer(r), volume: 1}, nil
}

// Close implements Context. oto contexts live until the process exits.
func (pc *ProductionContext) Close() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.ready = false
	pc.context = nil
	return nil
}

// IsReady implements Context.
func (pc *ProductionContext) IsReady() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.ready
}

// SampleRate implements Context.
func (pc *ProductionContext) SampleRate() int { return SampleRate }

// ChannelCount implements Context.
func (pc *ProductionContext) ChannelCount() int { return Channels }

type productionPlayer struct {
	mu     sync.Mutex
	player *oto.Player
	volume float64
}

func (p *productionPlayer) Play()           { p.player.Play() }
func (p *productionPlayer) Pause()          { p.player.Pause() }
func (p *productionPlayer) IsPlaying() bool { return p.player.IsPlaying() }
func (p *productionPlayer) Close() error    { return p.player.Close() }

func (p *productionPlayer) SetVolume(volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	p.player.SetVolume(volume)
}

func (p *productionPlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}
