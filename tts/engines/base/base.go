// Package base holds the plumbing shared by the speech providers: the
// voice catalog, request tracking for Silence, generated file handling and
// playback through the request sink.
package base

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/rtvoice/internal/audio"
	"github.com/dgnsrekt/rtvoice/internal/process"
	"github.com/dgnsrekt/rtvoice/tts"
)

// Base implements the catalog and cancellation parts of tts.Provider.
// Providers embed it and add SpeakNative, Speak, Generate and
// RefreshVoices.
type Base struct {
	name    string
	caps    tts.Capabilities
	emitter tts.Emitter
	goos    string

	Logger *log.Logger
	// Procs runs the synthesizer processes of the provider.
	Procs *process.Manager

	mu      sync.RWMutex
	cfg     tts.Config
	voices  []tts.Voice
	cancels map[string]context.CancelFunc
	closed  bool
}

// New creates the shared part of the provider called name.
func New(name string, env tts.Env, caps tts.Capabilities) *Base {
	logger := env.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	goos := env.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	return &Base{
		name:    name,
		caps:    caps,
		emitter: env.Emitter,
		goos:    goos,
		Logger:  logger,
		Procs:   process.NewManager(env.Config.Process.KillTimeout, logger),
		cfg:     env.Config,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Name returns the registry name.
func (b *Base) Name() string { return b.name }

// Capabilities returns what the provider can do.
func (b *Base) Capabilities() tts.Capabilities { return b.caps }

// GOOS returns the platform the provider was created for.
func (b *Base) GOOS() string { return b.goos }

// Emitter returns the event sink of the provider. It is never nil.
func (b *Base) Emitter() tts.Emitter {
	if b.emitter == nil {
		return nopEmitter{}
	}
	return b.emitter
}

// Config returns the current configuration.
func (b *Base) Config() tts.Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// Reconfigure applies settings that take effect on the next request.
func (b *Base) Reconfigure(cfg tts.Config) {
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
	b.Logger.Debug("provider reconfigured", "provider", b.name)
}

// Voices returns a copy of the catalog sorted by name.
func (b *Base) Voices() []tts.Voice {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]tts.Voice, len(b.voices))
	copy(out, b.voices)
	return out
}

// Cultures returns the distinct cultures of the catalog.
func (b *Base) Cultures() []string {
	return tts.CulturesOf(b.Voices())
}

// SetVoices replaces the catalog and fires VoicesReady.
func (b *Base) SetVoices(voices []tts.Voice) {
	sorted := make([]tts.Voice, len(voices))
	copy(sorted, voices)
	tts.SortVoices(sorted)

	b.mu.Lock()
	b.voices = sorted
	b.mu.Unlock()

	b.Logger.Debug("voices ready", "provider", b.name, "count", len(sorted))
	out := make([]tts.Voice, len(sorted))
	copy(out, sorted)
	b.Emitter().VoicesReady(out)
}

// Track derives a context for the request uid that Silence and SilenceUID
// cancel. The returned func must be called when the request ends.
func (b *Base) Track(ctx context.Context, uid string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		return ctx, func() {}
	}
	b.cancels[uid] = cancel
	b.mu.Unlock()

	return ctx, func() {
		b.mu.Lock()
		delete(b.cancels, uid)
		b.mu.Unlock()
		cancel()
	}
}

// Silence stops every running request of the provider.
func (b *Base) Silence() {
	b.mu.Lock()
	cancels := b.cancels
	b.cancels = make(map[string]context.CancelFunc)
	b.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if n := b.Procs.KillAll(); n > 0 {
		b.Logger.Debug("killed processes", "provider", b.name, "count", n)
	}
}

// SilenceUID stops the request uid. Unknown uids are ignored.
func (b *Base) SilenceUID(uid string) {
	if uid == "" {
		return
	}
	b.mu.Lock()
	cancel, ok := b.cancels[uid]
	delete(b.cancels, uid)
	b.mu.Unlock()

	if ok {
		cancel()
	}
	b.Procs.Kill(uid)
}

// Close silences the provider. Later requests are cancelled immediately.
func (b *Base) Close() error {
	b.Silence()
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// VoiceName returns the voice name of w, or the default voice when the
// request has none.
func (b *Base) VoiceName(w *tts.Wrapper) string {
	if v := w.Voice(); v != nil && v.Name != "" {
		return v.Name
	}
	return b.caps.DefaultVoiceName
}

// VoiceID returns the backend identifier of the voice of w, falling back to
// VoiceName.
func (b *Base) VoiceID(w *tts.Wrapper) string {
	if v := w.Voice(); v != nil && v.Identifier != "" {
		return v.Identifier
	}
	return b.VoiceName(w)
}

// Unsupported returns the error for an operation the provider cannot do.
func (b *Base) Unsupported(op string) error {
	return tts.NewTTSError(fmt.Errorf("%w: %s", tts.ErrNotSupported, op), b.name, op)
}

// AudioFile returns the path of the generated file for uid and makes sure
// its directory exists.
func (b *Base) AudioFile(uid string) (string, error) {
	cfg := b.Config()
	dir := cfg.AudioPath()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating audio directory: %w", err)
	}
	return tts.AudioFileName(dir, uid, b.caps.AudioFileExtension), nil
}

// CheckAudioFile verifies that the generated file is large enough to hold
// audio.
func (b *Base) CheckAudioFile(file string) error {
	info, err := os.Stat(file)
	if err != nil {
		return fmt.Errorf("%w: %v", tts.ErrInvalidAudioFile, err)
	}
	if info.Size() <= tts.MinAudioFileSize {
		return fmt.Errorf("%w: %s has %d bytes", tts.ErrInvalidAudioFile, file, info.Size())
	}
	return nil
}

// Play loads the generated file into the sink of w and, for native
// requests or when the request asks for it, plays it between SpeakStart
// and SpeakComplete. AudioGenerationComplete fires for non-native
// requests once the file is ready.
func (b *Base) Play(ctx context.Context, w *tts.Wrapper, file string, native bool) error {
	sink := w.Sink()
	if sink == nil {
		return fmt.Errorf("%w: %s", tts.ErrNoSink, w.UID())
	}
	if err := b.CheckAudioFile(file); err != nil {
		return err
	}
	clip, err := audio.LoadClip(file)
	if err != nil {
		return fmt.Errorf("could not load the audio file: %w", err)
	}
	w.SetSpeechTime(clip.Duration())
	b.Logger.Debug("text generated", "uid", w.UID(), "file", file, "duration", clip.Duration())

	b.finishFile(w, file)
	if !native {
		b.Emitter().AudioGenerationComplete(w)
	}

	sink.SetClip(clip)
	if !native && !w.SpeakImmediately() {
		return nil
	}

	b.Emitter().SpeakStart(w)
	if err := sink.Play(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.Logger.Debug("text spoken", "uid", w.UID())
	b.Emitter().SpeakComplete(w)
	return nil
}

// Process finishes a Generate request: it checks the file, copies it to
// the requested output file and fires AudioGenerationComplete.
func (b *Base) Process(w *tts.Wrapper, file string) error {
	if err := b.CheckAudioFile(file); err != nil {
		return err
	}
	b.Logger.Debug("text generated", "uid", w.UID(), "file", file)
	b.finishFile(w, file)
	b.Emitter().AudioGenerationComplete(w)
	return nil
}

// finishFile copies file to the output file of w and removes it when
// automatic deletion is on. Windows keeps generated files. Failures are
// reported as warnings.
func (b *Base) finishFile(w *tts.Wrapper, file string) {
	cfg := b.Config()

	if out := w.OutputFile(); out != "" {
		ext := b.caps.AudioFileExtension
		if !strings.HasSuffix(out, ext) {
			out += ext
			w.SetOutputFile(out)
		}
		if err := copyFile(file, out); err != nil {
			b.Emitter().Warn(w, fmt.Errorf("could not copy %q to %q: %w", file, out, err))
		}
	}

	if cfg.Audio.AutoDelete && b.goos != "windows" {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			b.Emitter().Warn(w, fmt.Errorf("could not delete file %q: %w", file, err))
		}
		return
	}
	if w.OutputFile() == "" {
		w.SetOutputFile(file)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

type nopEmitter struct{}

func (nopEmitter) VoicesReady([]tts.Voice)                 {}
func (nopEmitter) SpeakStart(*tts.Wrapper)                 {}
func (nopEmitter) SpeakComplete(*tts.Wrapper)              {}
func (nopEmitter) CurrentWord(*tts.Wrapper, []string, int) {}
func (nopEmitter) CurrentPhoneme(*tts.Wrapper, string)     {}
func (nopEmitter) CurrentViseme(*tts.Wrapper, string)      {}
func (nopEmitter) AudioGenerationStart(*tts.Wrapper)       {}
func (nopEmitter) AudioGenerationComplete(*tts.Wrapper)    {}
func (nopEmitter) Warn(*tts.Wrapper, error)                {}
