package tts

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
)

// Provider is a speech backend. SpeakNative, Speak and Generate block until
// the request has finished. A cancelled context aborts the request and the
// operation returns ctx.Err(); any other error is reported to subscribers
// as ErrorInfo by the dispatcher.
type Provider interface {
	// Name returns the registry name of the provider.
	Name() string
	Capabilities() Capabilities
	// Voices returns the cached catalog sorted by name.
	Voices() []Voice
	// Cultures returns the distinct cultures of Voices, ascending.
	Cultures() []string
	// RefreshVoices queries the backend for its catalog and fires VoicesReady.
	RefreshVoices(ctx context.Context) error

	SpeakNative(ctx context.Context, w *Wrapper) error
	Speak(ctx context.Context, w *Wrapper) error
	Generate(ctx context.Context, w *Wrapper) error

	// Silence stops every request of the provider.
	Silence()
	// SilenceUID stops one request.
	SilenceUID(uid string)
	Close() error
}

// Capabilities describes what a provider can do on the current host.
type Capabilities struct {
	AudioFileExtension string
	AudioFileType      AudioType
	DefaultVoiceName   string
	MaxTextLength      int
	SpeakNative        bool
	Speak              bool
	PlatformSupported  bool
	SSML               bool
	Online             bool
	Polling            bool
	VoicesAtDesignTime bool
}

// AudioType is the container format of generated files.
type AudioType string

// Audio container formats.
const (
	AudioWAV     AudioType = "wav"
	AudioAIFF    AudioType = "aiff"
	AudioMP3     AudioType = "mp3"
	AudioUnknown AudioType = "unknown"
)

// Emitter receives the lifecycle events of a provider.
type Emitter interface {
	VoicesReady(voices []Voice)
	SpeakStart(w *Wrapper)
	SpeakComplete(w *Wrapper)
	CurrentWord(w *Wrapper, words []string, index int)
	CurrentPhoneme(w *Wrapper, phoneme string)
	CurrentViseme(w *Wrapper, viseme string)
	AudioGenerationStart(w *Wrapper)
	AudioGenerationComplete(w *Wrapper)
	// Warn reports a failure that does not end the request.
	Warn(w *Wrapper, err error)
}

// Env is passed to provider factories.
type Env struct {
	Config  Config
	Emitter Emitter
	Logger  *log.Logger
	// GOOS is the platform the dispatcher selects for.
	GOOS string
}

// Factory constructs a provider. It must not block on discovery.
type Factory func(env Env) (Provider, error)

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrProviderExists, name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is Register that panics on duplicates.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Create builds the provider registered under name.
func (r *Registry) Create(name string, env Env) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return f(env)
}

// SortVoices sorts voices by name.
func SortVoices(voices []Voice) {
	sort.SliceStable(voices, func(i, j int) bool { return voices[i].Name < voices[j].Name })
}

// CulturesOf returns the distinct cultures of voices, ascending.
func CulturesOf(voices []Voice) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range voices {
		if v.Culture == "" || seen[v.Culture] {
			continue
		}
		seen[v.Culture] = true
		out = append(out, v.Culture)
	}
	sort.Strings(out)
	return out
}
