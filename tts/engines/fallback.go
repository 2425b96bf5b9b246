package engines

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/rtvoice/tts"
)

// Fallback wraps a primary provider with automatic fallback to a secondary
// provider when the primary fails consistently.
type Fallback struct {
	name        string
	primary     tts.Provider
	fallback    tts.Provider
	maxFailures int
	logger      *log.Logger

	mu            sync.RWMutex
	failures      int
	usingFallback bool
}

// NewFallback creates a provider that switches to fallback after
// maxFailures consecutive primary failures. A nil primary starts on the
// fallback.
func NewFallback(name string, primary, fallback tts.Provider, maxFailures int, logger *log.Logger) *Fallback {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Fallback{
		name:          name,
		primary:       primary,
		fallback:      fallback,
		maxFailures:   max(maxFailures, 1),
		logger:        logger,
		usingFallback: primary == nil,
	}
}

// FallbackFactory builds both providers. If the primary cannot be created
// the provider starts on the fallback.
func FallbackFactory(name string, primary, fallback tts.Factory, maxFailures int) tts.Factory {
	return func(env tts.Env) (tts.Provider, error) {
		p, primaryErr := primary(env)
		if primaryErr != nil {
			if env.Logger != nil {
				env.Logger.Warn("Primary provider unavailable, using fallback", "error", primaryErr)
			}
			p = nil
		}
		f, fallbackErr := fallback(env)
		if fallbackErr != nil {
			if primaryErr != nil {
				return nil, fmt.Errorf("both providers failed: primary=%v, fallback=%w", primaryErr, fallbackErr)
			}
			return p, nil
		}
		return NewFallback(name, p, f, maxFailures, env.Logger), nil
	}
}

// Name returns the registry name.
func (f *Fallback) Name() string { return f.name }

func (f *Fallback) active() tts.Provider {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.usingFallback {
		return f.fallback
	}
	return f.primary
}

// Capabilities returns the capabilities of the active provider.
func (f *Fallback) Capabilities() tts.Capabilities { return f.active().Capabilities() }

// Voices returns the catalog of the active provider.
func (f *Fallback) Voices() []tts.Voice { return f.active().Voices() }

// Cultures returns the cultures of the active provider.
func (f *Fallback) Cultures() []string { return f.active().Cultures() }

// RefreshVoices refreshes the active provider, counting a failure of the
// primary.
func (f *Fallback) RefreshVoices(ctx context.Context) error {
	return f.run(ctx, func(p tts.Provider) error { return p.RefreshVoices(ctx) })
}

func (f *Fallback) SpeakNative(ctx context.Context, w *tts.Wrapper) error {
	return f.run(ctx, func(p tts.Provider) error { return p.SpeakNative(ctx, w) })
}

func (f *Fallback) Speak(ctx context.Context, w *tts.Wrapper) error {
	return f.run(ctx, func(p tts.Provider) error { return p.Speak(ctx, w) })
}

func (f *Fallback) Generate(ctx context.Context, w *tts.Wrapper) error {
	return f.run(ctx, func(p tts.Provider) error { return p.Generate(ctx, w) })
}

// run calls op on the active provider. After maxFailures consecutive
// primary failures it switches to the fallback and retries there.
// Cancellations are not failures.
func (f *Fallback) run(ctx context.Context, op func(tts.Provider) error) error {
	f.mu.RLock()
	using := f.usingFallback
	f.mu.RUnlock()
	if using {
		return op(f.fallback)
	}

	err := op(f.primary)
	if err == nil {
		f.mu.Lock()
		if f.failures > 0 {
			f.logger.Info("Primary provider recovered", "failures", f.failures)
			f.failures = 0
		}
		f.mu.Unlock()
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return err
	}

	f.mu.Lock()
	f.failures++
	failures := f.failures
	switched := failures >= f.maxFailures
	if switched {
		f.usingFallback = true
	}
	f.mu.Unlock()

	f.logger.Warn("Primary provider failed", "attempt", failures, "max", f.maxFailures, "error", err)
	if !switched {
		return err
	}
	f.logger.Warn("Switching to fallback provider", "provider", f.fallback.Name())
	if err := op(f.fallback); err != nil {
		return fmt.Errorf("both providers failed: %w", err)
	}
	return nil
}

// Silence stops both providers.
func (f *Fallback) Silence() {
	if f.primary != nil {
		f.primary.Silence()
	}
	f.fallback.Silence()
}

// SilenceUID stops uid on both providers.
func (f *Fallback) SilenceUID(uid string) {
	if f.primary != nil {
		f.primary.SilenceUID(uid)
	}
	f.fallback.SilenceUID(uid)
}

// Reconfigure hands cfg to the providers that accept it.
func (f *Fallback) Reconfigure(cfg tts.Config) {
	for _, p := range []tts.Provider{f.primary, f.fallback} {
		if rc, ok := p.(tts.Reconfigurable); ok {
			rc.Reconfigure(cfg)
		}
	}
}

// Close closes both providers.
func (f *Fallback) Close() error {
	var errs []error
	if f.primary != nil {
		if err := f.primary.Close(); err != nil {
			errs = append(errs, fmt.Errorf("primary close: %w", err))
		}
	}
	if err := f.fallback.Close(); err != nil {
		errs = append(errs, fmt.Errorf("fallback close: %w", err))
	}
	return errors.Join(errs...)
}

// Reset goes back to the primary provider.
func (f *Fallback) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.primary == nil {
		return
	}
	f.failures = 0
	f.usingFallback = false
	f.logger.Info("Reset to primary provider")
}

// Status describes the active provider.
func (f *Fallback) Status() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.usingFallback {
		return fmt.Sprintf("Using fallback provider (primary failed %d times)", f.failures)
	}
	return fmt.Sprintf("Using primary provider (failures: %d/%d)", f.failures, f.maxFailures)
}
