package tts

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

// fakeProvider records calls and emits a scripted event sequence.
type fakeProvider struct {
	name   string
	caps   Capabilities
	voices []Voice
	emit   Emitter

	err            error
	hold           bool
	doubleComplete bool
	earlyWord      bool

	mu       sync.Mutex
	release  map[string]chan struct{}
	silenced []string
	closed   bool
}

func newFakeProvider(name string, env Env) *fakeProvider {
	return &fakeProvider{
		name: name,
		emit: env.Emitter,
		caps: Capabilities{
			AudioFileExtension: ".wav",
			AudioFileType:      AudioWAV,
			MaxTextLength:      100,
			SpeakNative:        true,
			Speak:              true,
			PlatformSupported:  true,
		},
		voices: []Voice{
			NewVoice("Alice", "", GenderFemale, "", "en-US"),
			NewVoice("Bob", "", GenderMale, "", "en-GB"),
			NewVoice("Claire", "", GenderFemale, "", "fr-FR"),
		},
		release: make(map[string]chan struct{}),
	}
}

func (f *fakeProvider) Name() string               { return f.name }
func (f *fakeProvider) Capabilities() Capabilities { return f.caps }
func (f *fakeProvider) Voices() []Voice            { return f.voices }
func (f *fakeProvider) Cultures() []string         { return CulturesOf(f.voices) }

func (f *fakeProvider) RefreshVoices(ctx context.Context) error {
	f.emit.VoicesReady(f.voices)
	return nil
}

func (f *fakeProvider) gate(uid string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.release[uid]
	if !ok {
		ch = make(chan struct{})
		f.release[uid] = ch
	}
	return ch
}

func (f *fakeProvider) finish(uid string) {
	close(f.gate(uid))
}

func (f *fakeProvider) speak(ctx context.Context, w *Wrapper) error {
	words := SplitWords(w.Text())
	if f.earlyWord {
		f.emit.CurrentWord(w, words, 0)
	}
	f.emit.SpeakStart(w)
	for i := range words {
		f.emit.CurrentWord(w, words, i)
	}
	if f.hold {
		select {
		case <-f.gate(w.UID()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if sink := w.Sink(); sink != nil && w.SpeakImmediately() {
		if err := sink.Play(ctx); err != nil {
			return err
		}
	}
	f.emit.SpeakComplete(w)
	if f.doubleComplete {
		f.emit.SpeakComplete(w)
	}
	return nil
}

func (f *fakeProvider) SpeakNative(ctx context.Context, w *Wrapper) error {
	if f.err != nil {
		return f.err
	}
	return f.speak(ctx, w)
}

func (f *fakeProvider) generate(w *Wrapper) {
	f.emit.AudioGenerationStart(w)
	if sink := w.Sink(); sink != nil {
		sink.SetClip(&Clip{SampleRate: 1000, Channels: 1, PCM: make([]byte, 20)})
	}
	f.emit.AudioGenerationComplete(w)
}

func (f *fakeProvider) Speak(ctx context.Context, w *Wrapper) error {
	if f.err != nil {
		return f.err
	}
	f.generate(w)
	return f.speak(ctx, w)
}

func (f *fakeProvider) Generate(ctx context.Context, w *Wrapper) error {
	if f.err != nil {
		return f.err
	}
	f.generate(w)
	return nil
}

func (f *fakeProvider) Silence() {}

func (f *fakeProvider) SilenceUID(uid string) {
	f.mu.Lock()
	f.silenced = append(f.silenced, uid)
	f.mu.Unlock()
}

func (f *fakeProvider) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// newTestSpeaker builds a Speaker whose custom provider is a fakeProvider
// adjusted by setup.
func newTestSpeaker(t *testing.T, setup func(*fakeProvider)) (*Speaker, *fakeProvider) {
	t.Helper()

	var fake *fakeProvider
	reg := NewRegistry()
	reg.MustRegister("fake", func(env Env) (Provider, error) {
		fake = newFakeProvider("fake", env)
		if setup != nil {
			setup(fake)
		}
		return fake, nil
	})

	cfg := DefaultConfig()
	cfg.CustomMode = true
	cfg.CustomProvider = "fake"
	cfg.Audio.Path = t.TempDir()

	s, err := New(cfg,
		WithRegistry(reg),
		WithLogger(quietLogger()),
		WithGOOS("linux"),
		WithSynchronousDiscovery(),
		WithCleanupInterval(time.Hour),
	)
	if err != nil {
		t.Fatalf("Failed to create speaker: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, fake
}

// waitFor reads events until one of kind for uid arrives.
func waitFor(t *testing.T, ch <-chan Event, kind EventKind, uid string) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Kind == kind && e.UID() == uid {
				return e
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for %s of %s", kind, uid)
			return Event{}
		}
	}
}

// collect gathers the events of uid until its terminal event.
func collect(t *testing.T, ch <-chan Event, uid string) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.UID() != uid {
				continue
			}
			events = append(events, e)
			if e.Kind == EventSpeakComplete || e.Kind == EventErrorInfo {
				return events
			}
		case <-timeout:
			t.Fatalf("Timed out collecting events of %s, got %d", uid, len(events))
			return events
		}
	}
}

func kindsOf(events []Event) []EventKind {
	kinds := make([]EventKind, 0, len(events))
	for _, e := range events {
		if e.Kind == EventCurrentWord {
			continue
		}
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func waitIdle(t *testing.T, s *Speaker) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.BusyCount() > 0 || s.SpeechCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected idle speaker, busy=%d speech=%d", s.BusyCount(), s.SpeechCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSpeakEventOrder(t *testing.T) {
	s, _ := newTestSpeaker(t, nil)
	ch, cancel := s.Events().Channel(64)
	defer cancel()

	uid := s.Speak("Hello")
	if uid == "" {
		t.Fatal("Expected a uid")
	}

	events := collect(t, ch, uid)
	want := []EventKind{EventAudioGenerationStart, EventAudioGenerationComplete, EventSpeakStart, EventSpeakComplete}
	got := kindsOf(events)
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	for _, e := range events {
		if e.Wrapper.Text() != "Hello" {
			t.Errorf("Expected text 'Hello' on %s, got %q", e.Kind, e.Wrapper.Text())
		}
	}

	waitIdle(t, s)
}

func TestWordEventsBetweenStartAndComplete(t *testing.T) {
	s, _ := newTestSpeaker(t, nil)
	ch, cancel := s.Events().Channel(64)
	defer cancel()

	uid := s.SpeakNative("one two three")
	events := collect(t, ch, uid)

	started := false
	words := 0
	for _, e := range events {
		switch e.Kind {
		case EventSpeakStart:
			started = true
		case EventCurrentWord:
			if !started {
				t.Error("Word event before SpeakStart")
			}
			if e.Words[e.Index] == "" {
				t.Errorf("Empty word at index %d", e.Index)
			}
			words++
		}
	}
	if words != 3 {
		t.Errorf("Expected 3 word events, got %d", words)
	}
}

func TestWordEventsBeforeSpeakStartDropped(t *testing.T) {
	s, _ := newTestSpeaker(t, func(f *fakeProvider) { f.earlyWord = true })
	ch, cancel := s.Events().Channel(64)
	defer cancel()

	uid := s.SpeakNative("one two three")
	events := collect(t, ch, uid)

	var kinds []EventKind
	for _, e := range events {
		if e.Kind == EventSpeakStart || e.Kind == EventCurrentWord || e.Kind == EventSpeakComplete {
			kinds = append(kinds, e.Kind)
		}
	}
	want := []EventKind{EventSpeakStart, EventCurrentWord, EventCurrentWord, EventCurrentWord, EventSpeakComplete}
	if len(kinds) != len(want) {
		t.Fatalf("Expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, kinds)
			break
		}
	}
}

func TestSilenceUIDStopsOneRequest(t *testing.T) {
	s, fake := newTestSpeaker(t, func(f *fakeProvider) { f.hold = true })
	ch, cancel := s.Events().Channel(64)
	defer cancel()

	a := s.SpeakNative("first request")
	b := s.SpeakNative("second request")

	deadline := time.Now().Add(2 * time.Second)
	for s.SpeechCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected 2 speaking requests, got %d", s.SpeechCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if s.BusyCount() != 2 {
		t.Fatalf("Expected 2 busy requests, got %d", s.BusyCount())
	}

	s.SilenceUID(a)
	fake.finish(b)

	waitFor(t, ch, EventSpeakComplete, b)
	waitIdle(t, s)

	// Drain what is left and make sure a never completed.
	time.Sleep(20 * time.Millisecond)
	for {
		select {
		case e := <-ch:
			if e.UID() == a && (e.Kind == EventSpeakComplete || e.Kind == EventErrorInfo) {
				t.Errorf("Unexpected %s for silenced request", e.Kind)
			}
			continue
		default:
		}
		break
	}

	fake.mu.Lock()
	silenced := fake.silenced
	fake.mu.Unlock()
	if len(silenced) != 1 || silenced[0] != a {
		t.Errorf("Expected provider to silence %s, got %v", a, silenced)
	}
}

func TestSpeakNativeFallback(t *testing.T) {
	s, _ := newTestSpeaker(t, func(f *fakeProvider) { f.caps.SpeakNative = false })
	ch, cancel := s.Events().Channel(64)
	defer cancel()

	w := NewWrapper("fallback text", WithSpeakImmediately(false))
	uid := s.SpeakNativeWrapper(w)

	got := kindsOf(collect(t, ch, uid))
	if got[len(got)-2] != EventSpeakStart || got[len(got)-1] != EventSpeakComplete {
		t.Errorf("Expected SpeakStart and SpeakComplete, got %v", got)
	}
	if !w.SpeakImmediately() {
		t.Error("Fallback should force speaking immediately")
	}
	if w.Sink() == nil {
		t.Fatal("Expected an allocated sink")
	}

	waitIdle(t, s)
	if generic, _ := s.SinkCount(); generic != 1 {
		t.Errorf("Expected 1 generic sink before cleanup, got %d", generic)
	}
	s.Cleanup()
	if generic, _ := s.SinkCount(); generic != 0 {
		t.Errorf("Expected sinks to be released, got %d", generic)
	}
}

func TestProvidedSinkIsTrackedNotClosed(t *testing.T) {
	s, _ := newTestSpeaker(t, nil)
	ch, cancel := s.Events().Channel(64)
	defer cancel()

	sink := NewTimedSink()
	uid := s.Speak("with my sink", WithSink(sink))
	collect(t, ch, uid)
	waitIdle(t, s)

	if sink.Clip() == nil {
		t.Error("Expected the clip on the provided sink")
	}
	if _, provided := s.SinkCount(); provided != 1 {
		t.Errorf("Expected 1 provided sink, got %d", provided)
	}
	s.Cleanup()
	if _, provided := s.SinkCount(); provided != 0 {
		t.Errorf("Expected provided sink to be untracked, got %d", provided)
	}
}

func TestProviderErrorReported(t *testing.T) {
	boom := errors.New("exit code 2")
	s, _ := newTestSpeaker(t, func(f *fakeProvider) { f.err = boom })
	ch, cancel := s.Events().Channel(64)
	defer cancel()

	uid := s.Speak("will fail")
	e := waitFor(t, ch, EventErrorInfo, uid)
	if !errors.Is(e.Err, boom) {
		t.Errorf("Expected %v, got %v", boom, e.Err)
	}
	var te *TTSError
	if !errors.As(e.Err, &te) || te.UID != uid || te.Provider != "fake" {
		t.Errorf("Expected TTSError for fake/%s, got %#v", uid, e.Err)
	}
	waitIdle(t, s)
}

func TestCountersNeverNegative(t *testing.T) {
	s, _ := newTestSpeaker(t, func(f *fakeProvider) { f.doubleComplete = true })
	ch, cancel := s.Events().Channel(64)
	defer cancel()

	uid := s.SpeakNative("twice")
	waitFor(t, ch, EventSpeakComplete, uid)
	waitIdle(t, s)

	s.Silence()
	if s.SpeechCount() != 0 || s.BusyCount() != 0 {
		t.Errorf("Expected zero counters, got speech=%d busy=%d", s.SpeechCount(), s.BusyCount())
	}

	completes := 1
	time.Sleep(20 * time.Millisecond)
	for {
		select {
		case e := <-ch:
			if e.Kind == EventSpeakComplete && e.UID() == uid {
				completes++
			}
			continue
		default:
		}
		break
	}
	if completes != 1 {
		t.Errorf("Expected one SpeakComplete, got %d", completes)
	}
}

func TestInvalidRequests(t *testing.T) {
	s, _ := newTestSpeaker(t, nil)
	ch, cancel := s.Events().Channel(64, EventErrorInfo)
	defer cancel()

	tests := []struct {
		name   string
		submit func() string
		want   error
	}{
		{"empty text", func() string { return s.Speak("   ") }, ErrEmptyText},
		{"generate without file", func() string { return s.GenerateWrapper(NewWrapper("text")) }, ErrNoOutputFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uid := tt.submit()
			if uid == "" {
				t.Fatal("Expected a uid")
			}
			e := waitFor(t, ch, EventErrorInfo, uid)
			if !errors.Is(e.Err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, e.Err)
			}
		})
	}

	t.Run("nil wrapper", func(t *testing.T) {
		if uid := s.SpeakWrapper(nil); uid != "" {
			t.Errorf("Expected empty uid, got %s", uid)
		}
		e := <-ch
		if !errors.Is(e.Err, ErrNilWrapper) || e.Wrapper != nil {
			t.Errorf("Expected nil wrapper error, got %v", e.Err)
		}
	})

	if s.BusyCount() != 0 {
		t.Errorf("Rejected requests must not count as busy, got %d", s.BusyCount())
	}
}

func TestTextIsNormalizedOnce(t *testing.T) {
	s, _ := newTestSpeaker(t, nil)
	ch, cancel := s.Events().Channel(64)
	defer cancel()

	long := ""
	for i := 0; i < 30; i++ {
		long += "word  "
	}
	w := NewWrapper("<b>" + long + "</b>")
	if err := s.SetAutoClearTags(true); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	uid := s.SpeakNativeWrapper(w)
	collect(t, ch, uid)

	if got := len([]rune(w.Text())); got != 100 {
		t.Errorf("Expected text truncated to 100 runes, got %d", got)
	}
	if w.Text()[0] == '<' {
		t.Errorf("Expected tags to be removed, got %q", w.Text()[:10])
	}
}

func TestGenerate(t *testing.T) {
	s, _ := newTestSpeaker(t, nil)
	ch, cancel := s.Events().Channel(64)
	defer cancel()

	uid := s.Generate("save me", "/tmp/out")
	e := waitFor(t, ch, EventAudioGenerationComplete, uid)
	if e.Wrapper.OutputFile() != "/tmp/out" {
		t.Errorf("Expected output file /tmp/out, got %s", e.Wrapper.OutputFile())
	}
	if e.Wrapper.SpeakImmediately() {
		t.Error("Generate must not speak")
	}
	waitIdle(t, s)
}

func TestPauseAndMute(t *testing.T) {
	s, fake := newTestSpeaker(t, func(f *fakeProvider) { f.hold = true })
	ch, cancel := s.Events().Channel(64)
	defer cancel()

	sink := NewTimedSink()
	uid := s.Speak("pause me", WithSink(sink))
	waitFor(t, ch, EventSpeakStart, uid)

	s.Mute("")
	if !s.IsMuted() || !sink.Muted() {
		t.Error("Expected global mute to reach the sink")
	}
	s.UnMute(uid)
	if sink.Muted() {
		t.Error("Expected scoped unmute")
	}
	if !s.IsMuted() {
		t.Error("Scoped unmute must not change the global flag")
	}

	s.PauseOrUnPause("")
	if !s.IsPaused() {
		t.Error("Expected paused")
	}
	s.PauseOrUnPause("")
	if s.IsPaused() {
		t.Error("Expected unpaused")
	}

	fake.finish(uid)
	waitFor(t, ch, EventSpeakComplete, uid)
}

func TestGlobalPauseHoldsNewRequests(t *testing.T) {
	s, _ := newTestSpeaker(t, nil)
	ch, cancel := s.Events().Channel(64)
	defer cancel()

	s.Pause("")
	sink := NewTimedSink()
	uid := s.Speak("held back", WithSink(sink))
	waitFor(t, ch, EventSpeakStart, uid)

	if !sink.IsPaused() {
		t.Error("Expected the new sink to start paused")
	}
	time.Sleep(100 * time.Millisecond)
	if !s.IsSpeaking() {
		t.Error("Expected the request to wait while paused")
	}

	s.UnPause("")
	waitFor(t, ch, EventSpeakComplete, uid)
}

func TestNoProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaryFallback = false

	s, err := New(cfg, WithLogger(quietLogger()), WithGOOS("plan9"), WithCleanupInterval(time.Hour))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer s.Close()

	if s.IsTTSAvailable() {
		t.Error("Expected no provider")
	}
	if s.AudioFileExtension() != ".wav" || s.MaxTextLength() != 3999 {
		t.Errorf("Expected fallback capabilities, got %+v", s.Capabilities())
	}

	ch, cancel := s.Events().Channel(8)
	defer cancel()
	uid := s.Speak("nobody listens")
	e := waitFor(t, ch, EventErrorInfo, uid)
	if !errors.Is(e.Err, ErrNoProvider) {
		t.Errorf("Expected ErrNoProvider, got %v", e.Err)
	}
	if !errors.Is(s.ReloadProvider(), ErrNoValidProvider) {
		t.Error("Expected ErrNoValidProvider from reload")
	}
}

func TestProviderSelection(t *testing.T) {
	tests := []struct {
		name   string
		goos   string
		modify func(*Config)
		want   string
		kind   ProviderKind
	}{
		{"windows", "windows", nil, ProviderWindows, KindWindows},
		{"darwin", "darwin", nil, ProviderMacOS, KindMacOS},
		{"linux", "linux", nil, ProviderESpeak, KindLinux},
		{"android", "android", nil, ProviderAndroid, KindAndroid},
		{"ios", "ios", nil, ProviderIOS, KindIOS},
		{"unknown falls back to mary", "plan9", nil, ProviderMary, KindMary},
		{"mary mode", "windows", func(c *Config) { c.MaryMode = true }, ProviderMary, KindMary},
		{"espeak forced", "darwin", func(c *Config) { c.ESpeakMode = true }, ProviderESpeak, KindLinux},
		{"espeak ignored on ios", "ios", func(c *Config) { c.ESpeakMode = true }, ProviderIOS, KindIOS},
		{"custom first", "windows", func(c *Config) {
			c.CustomMode = true
			c.CustomProvider = "fake"
			c.MaryMode = true
		}, "fake", KindCustom},
		{"unsupported custom skipped", "linux", func(c *Config) {
			c.CustomMode = true
			c.CustomProvider = "unsupported"
		}, ProviderESpeak, KindLinux},
	}

	reg := NewRegistry()
	for _, name := range []string{ProviderWindows, ProviderMacOS, ProviderESpeak, ProviderMary, ProviderAndroid, ProviderIOS, "fake"} {
		name := name
		reg.MustRegister(name, func(env Env) (Provider, error) { return newFakeProvider(name, env), nil })
	}
	reg.MustRegister("unsupported", func(env Env) (Provider, error) {
		f := newFakeProvider("unsupported", env)
		f.caps.PlatformSupported = false
		return f, nil
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.modify != nil {
				tt.modify(&cfg)
			}
			s, err := New(cfg, WithRegistry(reg), WithGOOS(tt.goos), WithLogger(quietLogger()),
				WithSynchronousDiscovery(), WithCleanupInterval(time.Hour))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			defer s.Close()

			if s.ProviderName() != tt.want {
				t.Errorf("Expected provider %s, got %s", tt.want, s.ProviderName())
			}
			if s.Kind() != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, s.Kind())
			}
			if !s.AreVoicesReady() {
				t.Error("Expected voices to be ready after synchronous discovery")
			}
		})
	}
}

func TestReloadOnConfigChange(t *testing.T) {
	s, first := newTestSpeaker(t, nil)
	ch, cancel := s.Events().Channel(16, EventProviderChange)
	defer cancel()

	if err := s.SetMaryType(MarySSML); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	select {
	case e := <-ch:
		t.Errorf("Mary type change must not reload, got %s", e.Provider)
	case <-time.After(20 * time.Millisecond):
	}

	if err := s.SetMaryMode(true); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	select {
	case e := <-ch:
		if e.Provider != "fake" {
			t.Errorf("Expected fake provider to stay selected, got %s", e.Provider)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected ProviderChange")
	}

	first.mu.Lock()
	closed := first.closed
	first.mu.Unlock()
	if !closed {
		t.Error("Expected previous provider to be closed")
	}
}

func TestVoiceQueries(t *testing.T) {
	s, _ := newTestSpeaker(t, nil)

	if got := s.VoicesForCulture("en", false); len(got) != 2 {
		t.Errorf("Expected 2 English voices, got %d", len(got))
	}
	if got := s.VoicesForCulture("en_us", false); len(got) != 1 || got[0].Name != "Alice" {
		t.Errorf("Expected Alice for en_us, got %v", got)
	}
	if got := s.VoicesForGender(GenderFemale, "", false); len(got) != 2 {
		t.Errorf("Expected 2 female voices, got %d", len(got))
	}
	if got := s.VoicesForGender(GenderMale, "fr", false); len(got) != 0 {
		t.Errorf("Expected no male French voice, got %v", got)
	}
	if got := s.VoicesForGender(GenderMale, "zz", true); len(got) != 1 {
		t.Errorf("Expected fuzzy match to fall back to all voices, got %v", got)
	}

	if v := s.VoiceForCulture("zz-ZZ", 0, "fr", false); v == nil || v.Name != "Claire" {
		t.Errorf("Expected fallback voice Claire, got %v", v)
	}
	if v := s.VoiceForCulture("zz-ZZ", 0, "", false); v != nil {
		t.Errorf("Expected nil without fallback, got %v", v)
	}
	if v := s.VoiceForCulture("en", 5, "", false); v != nil {
		t.Errorf("Expected nil for out of range index, got %v", v)
	}
	if v := s.VoiceForGender(GenderMale, "", 0, "", false); v == nil || v.Name != "Bob" {
		t.Errorf("Expected Bob, got %v", v)
	}

	if v := s.VoiceForName("ali", false); v == nil || v.Name != "Alice" {
		t.Errorf("Expected Alice for partial name, got %v", v)
	}
	if s.IsVoiceForNameAvailable("ali", true) {
		t.Error("Exact match must not match a partial name")
	}
	if !s.IsVoiceForNameAvailable("BOB", true) {
		t.Error("Exact match should ignore case")
	}
	if !s.IsVoiceForCultureAvailable("fr") || s.IsVoiceForCultureAvailable("de") {
		t.Error("Unexpected culture availability")
	}
	if !s.IsVoiceForGenderAvailable(GenderMale, "en") {
		t.Error("Expected a male English voice")
	}

	if got := s.Cultures(); len(got) != 3 || got[0] != "en-GB" {
		t.Errorf("Expected sorted cultures, got %v", got)
	}
	if got := s.SearchVoices("clr"); len(got) != 1 || got[0].Name != "Claire" {
		t.Errorf("Expected fuzzy search to find Claire, got %v", got)
	}
}

func TestApproximateSpeechLengthQuantizesOnWindows(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(ProviderWindows, func(env Env) (Provider, error) { return newFakeProvider(ProviderWindows, env), nil })
	s, err := New(DefaultConfig(), WithRegistry(reg), WithGOOS("windows"), WithLogger(quietLogger()), WithCleanupInterval(time.Hour))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer s.Close()

	text := "one two three four five six"
	got := s.ApproximateSpeechLength(text, 1.1, DefaultWordsPerMinute, DefaultTimeFactor)
	want := ApproximateSpeechLength(text, 1.14, DefaultWordsPerMinute, DefaultTimeFactor, false)
	if got != want {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
