package tts

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Speaker owns the active provider, tracks in-flight requests by uid and
// publishes their lifecycle events. Submissions return the uid right away;
// the work runs on its own goroutine.
type Speaker struct {
	mu sync.Mutex

	cfg           Config
	registry      *Registry
	bus           *Bus
	logger        *log.Logger
	goos          string
	sinkFactory   SinkFactory
	cleanupEvery  time.Duration
	syncDiscovery bool

	provider Provider
	kind     ProviderKind
	binding  *binding

	genericSinks  map[string]Sink
	providedSinks map[string]Sink
	requests      map[string]*request
	// clips marks generic sinks owned by PlayClip.
	clips         map[string]bool

	speechCount int
	busyCount   int
	paused      bool
	muted       bool
	voicesReady bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// request is the dispatcher's record of one accepted submission.
type request struct {
	wrapper  *Wrapper
	cancel   context.CancelFunc
	busy     bool
	speaking bool
	finished bool
}

// Option configures a Speaker.
type Option func(*Speaker)

// WithRegistry sets the provider registry. Without it no provider can be
// constructed.
func WithRegistry(r *Registry) Option {
	return func(s *Speaker) { s.registry = r }
}

// WithSinkFactory sets how the dispatcher allocates sinks for requests
// that did not bring one.
func WithSinkFactory(f SinkFactory) Option {
	return func(s *Speaker) { s.sinkFactory = f }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Speaker) { s.logger = l }
}

// WithGOOS overrides the platform used for provider selection.
func WithGOOS(goos string) Option {
	return func(s *Speaker) { s.goos = goos }
}

// WithCleanupInterval overrides how often finished generic sinks are released.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *Speaker) { s.cleanupEvery = d }
}

// WithSynchronousDiscovery makes provider construction wait for the voice
// catalog instead of loading it in the background.
func WithSynchronousDiscovery() Option {
	return func(s *Speaker) { s.syncDiscovery = true }
}

// New creates a Speaker and selects a provider for the platform. A missing
// provider is not an error: requests then fail with ErrNoProvider.
func New(cfg Config, opts ...Option) (*Speaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Speaker{
		cfg:           cfg,
		registry:      NewRegistry(),
		bus:           NewBus(),
		logger:        log.Default(),
		goos:          runtime.GOOS,
		sinkFactory:   func() Sink { return NewTimedSink() },
		cleanupEvery:  cfg.CleanupInterval,
		genericSinks:  make(map[string]Sink),
		providedSinks: make(map[string]Sink),
		requests:      make(map[string]*request),
		clips:         make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Audio.DeleteOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if _, err := s.DeleteAudioFiles(ctx); err != nil {
				s.logger.Warn("could not delete audio files", "error", err)
			}
		}()
	}

	if err := s.ReloadProvider(); err != nil {
		s.logger.Error("no TTS provider available", "error", err)
	}

	s.wg.Add(1)
	go s.cleanupLoop()

	return s, nil
}

// Events returns the event bus.
func (s *Speaker) Events() *Bus {
	return s.bus
}

// Config returns a copy of the current configuration.
func (s *Speaker) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SpeakNative speaks text on the device. Providers without native speech
// generate a file and play it through an allocated sink instead.
func (s *Speaker) SpeakNative(text string, opts ...WrapperOption) string {
	return s.SpeakNativeWrapper(NewWrapper(text, opts...))
}

// SpeakNativeWrapper is SpeakNative for a prepared request.
func (s *Speaker) SpeakNativeWrapper(w *Wrapper) string {
	return s.submit(w, modeNative)
}

// Speak generates audio for text and plays it through the request's sink,
// allocating one when none was given.
func (s *Speaker) Speak(text string, opts ...WrapperOption) string {
	return s.SpeakWrapper(NewWrapper(text, opts...))
}

// SpeakWrapper is Speak for a prepared request.
func (s *Speaker) SpeakWrapper(w *Wrapper) string {
	return s.submit(w, modeSpeak)
}

// Generate writes audio for text to outputFile without playing it.
func (s *Speaker) Generate(text, outputFile string, opts ...WrapperOption) string {
	opts = append(opts, WithOutputFile(outputFile), WithSpeakImmediately(false))
	return s.GenerateWrapper(NewWrapper(text, opts...))
}

// GenerateWrapper is Generate for a prepared request.
func (s *Speaker) GenerateWrapper(w *Wrapper) string {
	return s.submit(w, modeGenerate)
}

// SpeakMarkedWords replays the clip already attached to the request's sink
// while a silent native speak of the same text produces word events.
func (s *Speaker) SpeakMarkedWords(w *Wrapper) string {
	if w == nil {
		s.reportInvalid(nil, ErrNilWrapper)
		return ""
	}
	sink := w.Sink()
	if sink == nil || sink.Clip() == nil {
		s.reportInvalid(w, fmt.Errorf("%w: the sink needs a clip, speak the text first", ErrNoSink))
		return w.UID()
	}
	w.SetSpeakImmediately(true)

	s.mu.Lock()
	kind := s.kind
	s.mu.Unlock()

	// macOS and MaryTTS would speak the text a second time.
	if kind != KindMacOS && kind != KindMary {
		w.SetVolume(0)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			select {
			case <-time.After(100 * time.Millisecond):
			case <-s.ctx.Done():
				return
			}
			if err := sink.Play(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("replay failed", "uid", w.UID(), "error", err)
			}
		}()
	}
	return s.submit(w, modeNative)
}

type mode int

const (
	modeNative mode = iota
	modeSpeak
	modeGenerate
)

func (m mode) action() string {
	switch m {
	case modeNative:
		return "speak native"
	case modeSpeak:
		return "speak"
	default:
		return "generate"
	}
}

func (s *Speaker) submit(w *Wrapper, m mode) string {
	if w == nil {
		s.reportInvalid(nil, ErrNilWrapper)
		return ""
	}

	s.mu.Lock()
	if s.closed || s.provider == nil {
		s.mu.Unlock()
		s.reportInvalid(w, ErrNoProvider)
		return w.UID()
	}
	p := s.provider
	caps := p.Capabilities()

	maxLen := caps.MaxTextLength
	if caps.Online {
		maxLen = 0
	}
	text, warning := Normalize(w.Text(), maxLen, s.cfg.AutoClearTags)
	if warning != "" {
		s.logger.Warn(warning, "uid", w.UID(), "provider", p.Name())
	}
	if caps.Online && len([]rune(text)) > OnlineTextWarnLength {
		s.logger.Warn("text is very long and may be rejected by the server", "uid", w.UID(), "length", len([]rune(text)))
	}
	if text == "" {
		s.mu.Unlock()
		s.reportInvalid(w, ErrEmptyText)
		return w.UID()
	}
	w.SetText(text)

	var op func(context.Context, *Wrapper) error
	switch m {
	case modeNative:
		switch {
		case caps.SpeakNative:
			op = p.SpeakNative
		case caps.Speak:
			s.attachSinkLocked(w, true)
			w.SetSpeakImmediately(true)
			op = p.Speak
		}
	case modeSpeak:
		switch {
		case caps.Speak:
			if s.attachSinkLocked(w, true) && w.OutputFile() == "" {
				w.SetSpeakImmediately(true)
			}
			op = p.Speak
		case caps.SpeakNative:
			op = p.SpeakNative
		}
	case modeGenerate:
		if w.OutputFile() == "" {
			s.mu.Unlock()
			s.reportInvalid(w, ErrNoOutputFile)
			return w.UID()
		}
		op = p.Generate
	}
	if op == nil {
		s.mu.Unlock()
		s.fail(w, p.Name(), m.action(), ErrNotSupported)
		return w.UID()
	}

	if _, dup := s.requests[w.UID()]; dup {
		s.mu.Unlock()
		s.reportInvalid(w, fmt.Errorf("request %s is already running", w.UID()))
		return w.UID()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	r := &request{wrapper: w, cancel: cancel, busy: true}
	s.requests[w.UID()] = r
	s.busyCount++
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Debug("request accepted", "uid", w.UID(), "provider", p.Name(), "action", m.action())

	go s.run(ctx, r, p.Name(), m, op)
	return w.UID()
}

// attachSinkLocked makes sure w has a tracked sink. It reports whether the
// sink was allocated by the dispatcher.
func (s *Speaker) attachSinkLocked(w *Wrapper, allocate bool) bool {
	uid := w.UID()
	if sink := w.Sink(); sink != nil {
		if _, ok := s.providedSinks[uid]; !ok {
			s.providedSinks[uid] = sink
		}
		sink.SetMute(s.muted)
		if s.paused {
			sink.Pause()
		}
		return false
	}
	if !allocate || s.sinkFactory == nil {
		return false
	}
	sink := s.sinkFactory()
	sink.SetMute(s.muted)
	if s.paused {
		sink.Pause()
	}
	w.SetSink(sink)
	s.genericSinks[uid] = sink
	return true
}

func (s *Speaker) run(ctx context.Context, r *request, provider string, m mode, op func(context.Context, *Wrapper) error) {
	defer s.wg.Done()
	w := r.wrapper

	start := time.Now()
	err := op(ctx, w)
	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		s.fail(w, provider, m.action(), err)
	}
	s.finish(w.UID())
	s.logger.Debug("request finished", "uid", w.UID(), "took", time.Since(start), "error", err)
}

// finish releases whatever the request still holds.
func (s *Speaker) finish(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[uid]
	if !ok {
		return
	}
	s.releaseLocked(r)
	r.finished = true
	r.cancel()
	delete(s.requests, uid)
}

func (s *Speaker) releaseLocked(r *request) {
	if r.speaking {
		r.speaking = false
		s.speechCount = max(0, s.speechCount-1)
	}
	if r.busy {
		r.busy = false
		s.busyCount = max(0, s.busyCount-1)
	}
}

func (s *Speaker) fail(w *Wrapper, provider, action string, err error) {
	var te *TTSError
	if !errors.As(err, &te) {
		te = NewTTSError(err, provider, action)
	}
	if te.UID == "" && w != nil {
		te.UID = w.UID()
	}
	s.logger.Error("request failed", "uid", te.UID, "provider", provider, "error", err)
	s.bus.Publish(Event{Kind: EventErrorInfo, Wrapper: w, Err: te})
}

func (s *Speaker) reportInvalid(w *Wrapper, err error) {
	s.mu.Lock()
	name := ""
	if s.provider != nil {
		name = s.provider.Name()
	}
	s.mu.Unlock()
	s.fail(w, name, "submit", err)
}

// Silence stops every request, every tracked sink and the provider, and
// resets the counters.
func (s *Speaker) Silence() {
	s.mu.Lock()
	p := s.provider
	for uid, r := range s.requests {
		r.cancel()
		r.finished = true
		delete(s.requests, uid)
	}
	generic := s.genericSinks
	s.genericSinks = make(map[string]Sink)
	provided := make([]Sink, 0, len(s.providedSinks))
	for _, sink := range s.providedSinks {
		provided = append(provided, sink)
	}
	s.speechCount = 0
	s.busyCount = 0
	s.mu.Unlock()

	if p != nil {
		p.Silence()
	}
	for uid, sink := range generic {
		sink.Stop()
		if err := sink.Close(); err != nil {
			s.logger.Debug("closing sink", "uid", uid, "error", err)
		}
	}
	for _, sink := range provided {
		sink.Stop()
	}
}

// SilenceUID stops one request. Other requests are not affected.
func (s *Speaker) SilenceUID(uid string) {
	if uid == "" {
		s.Silence()
		return
	}

	s.mu.Lock()
	p := s.provider
	if r, ok := s.requests[uid]; ok {
		r.cancel()
		s.releaseLocked(r)
		r.finished = true
		delete(s.requests, uid)
	}
	sink, generic := s.genericSinks[uid]
	if generic {
		delete(s.genericSinks, uid)
	} else if sink = s.providedSinks[uid]; sink != nil {
		delete(s.providedSinks, uid)
	}
	s.mu.Unlock()

	if sink != nil {
		sink.Stop()
		if generic {
			_ = sink.Close()
		}
	}
	if p != nil {
		p.SilenceUID(uid)
	}
}

// sinksFor returns the sink of uid, or every tracked sink for an empty uid.
func (s *Speaker) sinksFor(uid string) []Sink {
	if uid != "" {
		if sink, ok := s.genericSinks[uid]; ok {
			return []Sink{sink}
		}
		if sink, ok := s.providedSinks[uid]; ok {
			return []Sink{sink}
		}
		s.logger.Debug("no sink for uid", "uid", uid)
		return nil
	}
	sinks := make([]Sink, 0, len(s.genericSinks)+len(s.providedSinks))
	for _, sink := range s.genericSinks {
		sinks = append(sinks, sink)
	}
	for _, sink := range s.providedSinks {
		sinks = append(sinks, sink)
	}
	return sinks
}

// Pause pauses the sink of uid, or every sink for an empty uid.
func (s *Speaker) Pause(uid string) {
	s.mu.Lock()
	if uid == "" {
		s.paused = true
	}
	sinks := s.sinksFor(uid)
	s.mu.Unlock()
	for _, sink := range sinks {
		sink.Pause()
	}
}

// UnPause resumes the sink of uid, or every sink for an empty uid.
func (s *Speaker) UnPause(uid string) {
	s.mu.Lock()
	if uid == "" {
		s.paused = false
	}
	sinks := s.sinksFor(uid)
	s.mu.Unlock()
	for _, sink := range sinks {
		sink.UnPause()
	}
}

// PauseOrUnPause toggles the pause state.
func (s *Speaker) PauseOrUnPause(uid string) {
	if s.IsPaused() {
		s.UnPause(uid)
	} else {
		s.Pause(uid)
	}
}

// Mute mutes the sink of uid, or every sink for an empty uid.
func (s *Speaker) Mute(uid string) {
	s.setMute(uid, true)
}

// UnMute unmutes the sink of uid, or every sink for an empty uid.
func (s *Speaker) UnMute(uid string) {
	s.setMute(uid, false)
}

// MuteOrUnMute toggles the mute state.
func (s *Speaker) MuteOrUnMute(uid string) {
	if s.IsMuted() {
		s.UnMute(uid)
	} else {
		s.Mute(uid)
	}
}

func (s *Speaker) setMute(uid string, muted bool) {
	s.mu.Lock()
	if uid == "" {
		s.muted = muted
	}
	sinks := s.sinksFor(uid)
	s.mu.Unlock()
	for _, sink := range sinks {
		sink.SetMute(muted)
	}
}

// Cleanup releases dispatcher-allocated sinks of finished requests and
// stops tracking caller sinks of finished requests.
func (s *Speaker) Cleanup() {
	s.mu.Lock()
	var released []Sink
	for uid, sink := range s.genericSinks {
		if s.runningLocked(uid) || s.clips[uid] || sink.IsPlaying() {
			continue
		}
		released = append(released, sink)
		delete(s.genericSinks, uid)
	}
	for uid, sink := range s.providedSinks {
		if s.runningLocked(uid) || sink.IsPlaying() {
			continue
		}
		delete(s.providedSinks, uid)
	}
	s.mu.Unlock()

	for _, sink := range released {
		if err := sink.Close(); err != nil {
			s.logger.Debug("closing sink", "error", err)
		}
	}
	if len(released) > 0 {
		s.logger.Debug("released idle sinks", "count", len(released))
	}
}

func (s *Speaker) runningLocked(uid string) bool {
	r, ok := s.requests[uid]
	return ok && !r.finished
}

func (s *Speaker) cleanupLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

// SinkCount returns the number of tracked generic and provided sinks.
func (s *Speaker) SinkCount() (generic, provided int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.genericSinks), len(s.providedSinks)
}

// SpeechCount returns the number of requests currently producing audio.
func (s *Speaker) SpeechCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speechCount
}

// BusyCount returns the number of requests currently doing any work.
func (s *Speaker) BusyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busyCount
}

// IsSpeaking reports whether any request is producing audio.
func (s *Speaker) IsSpeaking() bool { return s.SpeechCount() > 0 }

// IsBusy reports whether any request is in flight.
func (s *Speaker) IsBusy() bool { return s.BusyCount() > 0 }

// IsPaused reports the global pause state.
func (s *Speaker) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// IsMuted reports the global mute state.
func (s *Speaker) IsMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// AreVoicesReady reports whether the active provider has loaded its voices.
func (s *Speaker) AreVoicesReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voicesReady
}

// IsTTSAvailable reports whether a provider is active.
func (s *Speaker) IsTTSAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider != nil
}

// ProviderName returns the registry name of the active provider.
func (s *Speaker) ProviderName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

// Kind returns the family of the active provider.
func (s *Speaker) Kind() ProviderKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

func (s *Speaker) activeProvider() Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

// Voices returns the voices of the active provider, sorted by name.
func (s *Speaker) Voices() []Voice {
	if p := s.activeProvider(); p != nil {
		return p.Voices()
	}
	return nil
}

// Cultures returns the distinct cultures of the active provider.
func (s *Speaker) Cultures() []string {
	if p := s.activeProvider(); p != nil {
		return p.Cultures()
	}
	return nil
}

// fallbackCapabilities are reported while no provider is active.
var fallbackCapabilities = Capabilities{
	AudioFileExtension: ".wav",
	AudioFileType:      AudioWAV,
	MaxTextLength:      3999,
	Polling:            true,
}

// Capabilities returns the capabilities of the active provider.
func (s *Speaker) Capabilities() Capabilities {
	if p := s.activeProvider(); p != nil {
		return p.Capabilities()
	}
	return fallbackCapabilities
}

// AudioFileExtension returns the extension of generated files.
func (s *Speaker) AudioFileExtension() string { return s.Capabilities().AudioFileExtension }

// MaxTextLength returns the longest text the provider accepts.
func (s *Speaker) MaxTextLength() int { return s.Capabilities().MaxTextLength }

// IsSpeakNativeSupported reports whether the provider speaks on the device.
func (s *Speaker) IsSpeakNativeSupported() bool { return s.Capabilities().SpeakNative }

// IsSpeakSupported reports whether the provider generates audio files.
func (s *Speaker) IsSpeakSupported() bool { return s.Capabilities().Speak }

// IsSSMLSupported reports whether the provider understands SSML.
func (s *Speaker) IsSSMLSupported() bool { return s.Capabilities().SSML }

// IsOnline reports whether the provider is a remote service.
func (s *Speaker) IsOnline() bool { return s.Capabilities().Online }

// ApproximateSpeechLength estimates the duration of text at rate for the
// active provider.
func (s *Speaker) ApproximateSpeechLength(text string, rate, wordsPerMinute, timeFactor float64) time.Duration {
	return ApproximateSpeechLength(text, rate, wordsPerMinute, timeFactor, s.Kind() == KindWindows)
}

// Close silences everything, stops the background work and closes the
// provider.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Silence()
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	p, b := s.provider, s.binding
	s.provider, s.binding = nil, nil
	for uid, sink := range s.providedSinks {
		delete(s.providedSinks, uid)
		sink.Stop()
	}
	s.mu.Unlock()

	if b != nil {
		b.active.Store(false)
	}
	if p != nil {
		return p.Close()
	}
	return nil
}

// binding forwards provider events to the Speaker until the provider is
// replaced.
type binding struct {
	s        *Speaker
	provider string
	active   atomic.Bool
}

func (b *binding) VoicesReady(voices []Voice) {
	if !b.active.Load() {
		return
	}
	b.s.mu.Lock()
	b.s.voicesReady = true
	b.s.mu.Unlock()
	b.s.bus.Publish(Event{Kind: EventVoicesReady, Voices: voices, Provider: b.provider})
}

// tracked returns the live request of w, or nil when the event must be dropped.
func (b *binding) trackedLocked(w *Wrapper) *request {
	if !b.active.Load() || w == nil {
		return nil
	}
	r, ok := b.s.requests[w.UID()]
	if !ok || r.finished {
		return nil
	}
	return r
}

// forward publishes a progress event. Progress outside SpeakStart and
// SpeakComplete is dropped.
func (b *binding) forward(w *Wrapper, e Event) {
	b.s.mu.Lock()
	r := b.trackedLocked(w)
	speaking := r != nil && r.speaking
	b.s.mu.Unlock()
	if !speaking {
		return
	}
	e.Wrapper = w
	b.s.bus.Publish(e)
}

func (b *binding) SpeakStart(w *Wrapper) {
	b.s.mu.Lock()
	r := b.trackedLocked(w)
	if r != nil && !r.speaking {
		r.speaking = true
		b.s.speechCount++
	}
	b.s.mu.Unlock()
	if r == nil {
		return
	}
	b.s.bus.Publish(Event{Kind: EventSpeakStart, Wrapper: w})
}

func (b *binding) SpeakComplete(w *Wrapper) {
	b.s.mu.Lock()
	r := b.trackedLocked(w)
	if r != nil {
		b.s.releaseLocked(r)
		r.finished = true
	}
	b.s.mu.Unlock()
	if r == nil {
		return
	}
	b.s.bus.Publish(Event{Kind: EventSpeakComplete, Wrapper: w})
}

func (b *binding) CurrentWord(w *Wrapper, words []string, index int) {
	b.forward(w, Event{Kind: EventCurrentWord, Words: words, Index: index})
}

func (b *binding) CurrentPhoneme(w *Wrapper, phoneme string) {
	b.forward(w, Event{Kind: EventCurrentPhoneme, Phoneme: phoneme})
}

func (b *binding) CurrentViseme(w *Wrapper, viseme string) {
	b.forward(w, Event{Kind: EventCurrentViseme, Viseme: viseme})
}

func (b *binding) AudioGenerationStart(w *Wrapper) {
	b.forward(w, Event{Kind: EventAudioGenerationStart})
}

func (b *binding) AudioGenerationComplete(w *Wrapper) {
	b.forward(w, Event{Kind: EventAudioGenerationComplete})
}

func (b *binding) Warn(w *Wrapper, err error) {
	if !b.active.Load() {
		return
	}
	uid := ""
	if w != nil {
		uid = w.UID()
	}
	b.s.logger.Warn("provider warning", "provider", b.provider, "uid", uid, "error", err)
}
