package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgnsrekt/rtvoice/internal/platform"
)

// Registry names of the built-in providers.
const (
	ProviderWindows = "windows"
	ProviderMacOS   = "macos"
	ProviderESpeak  = "espeak"
	ProviderMary    = "mary"
	ProviderAndroid = "android"
	ProviderIOS     = "ios"
	ProviderOpenAI  = "openai"
	ProviderPiper   = "piper"
	ProviderGTTS    = "gtts"
	ProviderMock    = "mock"
)

// platformProviders is the native provider per GOOS.
var platformProviders = map[string]struct {
	name string
	kind ProviderKind
}{
	"windows": {ProviderWindows, KindWindows},
	"darwin":  {ProviderMacOS, KindMacOS},
	"linux":   {ProviderESpeak, KindLinux},
	"android": {ProviderAndroid, KindAndroid},
	"ios":     {ProviderIOS, KindIOS},
}

// Reconfigurable providers accept settings that do not require a new
// provider instance.
type Reconfigurable interface {
	Reconfigure(cfg Config)
}

// ReloadProvider silences all requests, replaces the active provider with
// a freshly selected one and fires ProviderChange. It returns
// ErrNoValidProvider when nothing can serve this platform.
func (s *Speaker) ReloadProvider() error {
	s.Silence()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNoProvider
	}
	old, oldBinding := s.provider, s.binding
	s.provider, s.binding, s.kind = nil, nil, KindNone
	s.voicesReady = false
	cfg := s.cfg
	s.mu.Unlock()

	if oldBinding != nil {
		oldBinding.active.Store(false)
	}
	if old != nil {
		if err := old.Close(); err != nil {
			s.logger.Warn("closing previous provider", "provider", old.Name(), "error", err)
		}
	}

	b := &binding{s: s}
	b.active.Store(true)
	p, kind, err := s.selectProvider(cfg, b)
	if err != nil {
		b.active.Store(false)
		s.fail(nil, "", "select provider", err)
		return err
	}
	b.provider = p.Name()

	s.mu.Lock()
	s.provider, s.binding, s.kind = p, b, kind
	s.mu.Unlock()

	s.logger.Info("provider selected", "provider", p.Name(), "kind", kind, "goos", s.goos)
	s.bus.Publish(Event{Kind: EventProviderChange, Provider: p.Name()})

	if s.syncDiscovery {
		s.discover(p)
	} else {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.discover(p)
		}()
	}
	return nil
}

func (s *Speaker) discover(p Provider) {
	err := p.RefreshVoices(s.ctx)
	if err == nil || errors.Is(err, context.Canceled) || s.ctx.Err() != nil {
		return
	}
	s.fail(nil, p.Name(), "refresh voices", err)
}

// selectProvider applies the selection order: custom, MaryTTS, forced
// eSpeak, then the platform table.
func (s *Speaker) selectProvider(cfg Config, emitter Emitter) (Provider, ProviderKind, error) {
	env := Env{Config: cfg, Emitter: emitter, GOOS: s.goos}
	create := func(name string) (Provider, error) {
		env.Logger = s.logger.WithPrefix(name)
		return s.registry.Create(name, env)
	}

	if cfg.CustomMode && cfg.CustomProvider != "" {
		p, err := create(cfg.CustomProvider)
		switch {
		case err != nil:
			s.logger.Warn("custom provider unavailable", "provider", cfg.CustomProvider, "error", err)
		case !p.Capabilities().PlatformSupported:
			s.logger.Warn("custom provider does not support this platform", "provider", p.Name(), "goos", s.goos)
			_ = p.Close()
		default:
			return p, KindCustom, nil
		}
	}

	if cfg.MaryMode || (!platform.HasBuiltInTTS(s.goos) && cfg.MaryFallback) {
		p, err := create(ProviderMary)
		if err == nil {
			return p, KindMary, nil
		}
		s.logger.Warn("MaryTTS provider unavailable", "error", err)
	}

	if cfg.ESpeakMode && platform.IsDesktop(s.goos) {
		p, err := create(ProviderESpeak)
		if err == nil {
			return p, KindLinux, nil
		}
		s.logger.Warn("eSpeak provider unavailable", "error", err)
	}

	if entry, ok := platformProviders[s.goos]; ok {
		p, err := create(entry.name)
		if err == nil {
			return p, entry.kind, nil
		}
		return nil, KindNone, fmt.Errorf("%w: %v", ErrNoValidProvider, err)
	}
	return nil, KindNone, fmt.Errorf("%w for %s", ErrNoValidProvider, s.goos)
}

// ApplyConfig switches to cfg. Changes that affect provider selection or
// construction trigger ReloadProvider; the rest is handed to the active
// provider when it is Reconfigurable.
func (s *Speaker) ApplyConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	p := s.provider
	s.mu.Unlock()

	if needsReload(old, cfg) {
		return s.ReloadProvider()
	}
	if rc, ok := p.(Reconfigurable); ok && old != cfg {
		rc.Reconfigure(cfg)
	}
	return nil
}

// needsReload compares the configs without the settings a running
// provider picks up on its own.
func needsReload(a, b Config) bool {
	for _, c := range []*Config{&a, &b} {
		c.AutoClearTags = false
		c.CleanupInterval = 0
		c.Mary.Type = ""
		c.ESpeak.Modifier = ""
		c.Audio = AudioConfig{}
	}
	return a != b
}

func (s *Speaker) update(fn func(*Config)) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	fn(&cfg)
	return s.ApplyConfig(cfg)
}

// SetCustomProvider selects the registry name used in custom mode.
func (s *Speaker) SetCustomProvider(name string) error {
	return s.update(func(c *Config) { c.CustomProvider = name })
}

// SetCustomMode toggles the custom provider.
func (s *Speaker) SetCustomMode(enabled bool) error {
	return s.update(func(c *Config) { c.CustomMode = enabled })
}

// SetMaryMode toggles the MaryTTS provider.
func (s *Speaker) SetMaryMode(enabled bool) error {
	return s.update(func(c *Config) { c.MaryMode = enabled })
}

// SetESpeakMode forces eSpeak on desktop platforms.
func (s *Speaker) SetESpeakMode(enabled bool) error {
	return s.update(func(c *Config) { c.ESpeakMode = enabled })
}

// SetMaryServer changes the MaryTTS endpoint and credentials.
func (s *Speaker) SetMaryServer(url string, port int, user, password string) error {
	return s.update(func(c *Config) {
		c.Mary.URL, c.Mary.Port = url, port
		c.Mary.User, c.Mary.Password = user, password
	})
}

// SetMaryType changes the MaryTTS input type without a reload.
func (s *Speaker) SetMaryType(t MaryType) error {
	return s.update(func(c *Config) { c.Mary.Type = t })
}

// SetESpeakModifier changes the eSpeak voice variant without a reload.
func (s *Speaker) SetESpeakModifier(m ESpeakModifier) error {
	return s.update(func(c *Config) { c.ESpeak.Modifier = m })
}

// SetAutoClearTags toggles tag removal from submitted text.
func (s *Speaker) SetAutoClearTags(enabled bool) error {
	return s.update(func(c *Config) { c.AutoClearTags = enabled })
}
