package ios

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/dgnsrekt/rtvoice/internal/bridge/bridgetest"
	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/enginetest"
)

const voicesFixture = "com.apple.voice.compact.en-GB.Daniel,Daniel,en-GB,com.apple.voice.compact.en-US.Samantha,Samantha,en-US,"

// synthesizer answers bridge calls like the iOS companion app. Utterances
// finish immediately unless hold is set, in which case the first one
// waits for an explicit setState push.
type synthesizer struct {
	srv    *bridgetest.Server
	hold   bool
	speaks atomic.Int32
	voices string
}

func (s *synthesizer) handle(method string, params json.RawMessage) (any, error) {
	switch method {
	case "getVoices":
		return nil, s.srv.Push("setVoices", s.voices)
	case "speak":
		n := s.speaks.Add(1)
		if s.hold && n == 1 {
			return nil, nil
		}
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if err := s.srv.Push("setState", "Start"); err != nil {
			return nil, err
		}
		for range tts.SplitWords(p.Text) {
			if err := s.srv.Push("wordSpoken", nil); err != nil {
				return nil, err
			}
		}
		return nil, s.srv.Push("setState", "Finish")
	case "stop":
		return nil, s.srv.Push("setState", "Cancel")
	}
	return nil, errors.New("unknown method")
}

func newProvider(t *testing.T, synth *synthesizer) (*Provider, *enginetest.Recorder) {
	t.Helper()
	if synth.voices == "" {
		synth.voices = voicesFixture
	}
	synth.srv = bridgetest.NewServer(synth.handle)
	t.Cleanup(synth.srv.Close)

	rec := enginetest.NewRecorder()
	env := enginetest.Env(rec, t.TempDir(), "ios")
	env.Config.Bridge.URL = synth.srv.URL()
	p, err := New(env)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	return p, rec
}

func TestParseVoices(t *testing.T) {
	is := is.New(t)

	voices, err := ParseVoices(voicesFixture)
	is.NoErr(err)
	is.Equal(len(voices), 2)
	is.Equal(voices[0].Name, "Daniel")
	is.Equal(voices[0].Identifier, "com.apple.voice.compact.en-GB.Daniel")
	is.Equal(voices[0].Gender, tts.GenderMale)
	is.Equal(voices[1].Gender, tts.GenderFemale)
	is.Equal(voices[1].Vendor, "Apple")

	_, err = ParseVoices("a,b")
	is.True(err != nil)
}

func TestRate(t *testing.T) {
	tests := []struct {
		rate, want float64
	}{
		{0.5, 0.5},
		{1, 1},
		{2, 1.25},
		{3, 1.5},
	}
	for _, tt := range tests {
		if got := Rate(tt.rate); got != tt.want {
			t.Errorf("Rate(%v): expected %v, got %v", tt.rate, tt.want, got)
		}
	}
}

func TestRefreshVoices(t *testing.T) {
	p, rec := newProvider(t, &synthesizer{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.RefreshVoices(ctx); err != nil {
		t.Fatalf("RefreshVoices failed: %v", err)
	}
	if len(p.Voices()) != 2 || rec.Count("VoicesReady") != 1 {
		t.Errorf("Expected 2 voices and VoicesReady, got %v and %v", p.Voices(), rec.Events())
	}
	if got := p.voiceID(tts.NewWrapper("x")); got != "com.apple.voice.compact.en-GB.Daniel" {
		t.Errorf("Expected the default voice identifier, got %q", got)
	}
}

func TestRefreshVoicesInvalidList(t *testing.T) {
	p, _ := newProvider(t, &synthesizer{voices: "a,b"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.RefreshVoices(ctx); err == nil {
		t.Error("Expected an error for a broken voice list")
	}
}

func TestSpeakNativeWordCallbacks(t *testing.T) {
	p, rec := newProvider(t, &synthesizer{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.SpeakNative(ctx, tts.NewWrapper("hello brave new world")); err != nil {
		t.Fatalf("SpeakNative failed: %v", err)
	}
	if want := []string{"hello", "brave", "new", "world"}; !reflect.DeepEqual(rec.Words(), want) {
		t.Errorf("Expected words %v, got %v", want, rec.Words())
	}
	if rec.Count("SpeakStart") != 1 || rec.Count("SpeakComplete") != 1 {
		t.Errorf("Expected one SpeakStart and SpeakComplete, got %v", rec.Events())
	}
}

func TestSpeakNativeSerializes(t *testing.T) {
	synth := &synthesizer{hold: true}
	p, rec := newProvider(t, synth)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := make(chan error, 1)
	second := make(chan error, 1)
	go func() { first <- p.SpeakNative(ctx, tts.NewWrapper("first")) }()
	waitFor(t, func() bool { return synth.speaks.Load() == 1 })
	go func() { second <- p.SpeakNative(ctx, tts.NewWrapper("second")) }()

	time.Sleep(50 * time.Millisecond)
	if n := synth.speaks.Load(); n != 1 {
		t.Fatalf("Expected the second request to wait, got %d speak calls", n)
	}

	if err := synth.srv.Push("setState", "Finish"); err != nil {
		t.Fatal(err)
	}
	for _, c := range []chan error{first, second} {
		if err := <-c; err != nil {
			t.Errorf("SpeakNative failed: %v", err)
		}
	}
	if rec.Count("SpeakComplete") != 2 {
		t.Errorf("Expected two SpeakComplete events, got %v", rec.Events())
	}
}

func TestSilenceUIDKeepsQueuedRequest(t *testing.T) {
	synth := &synthesizer{hold: true}
	p, rec := newProvider(t, synth)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := tts.NewWrapper("first")
	b := tts.NewWrapper("second one")
	first := make(chan error, 1)
	second := make(chan error, 1)
	go func() { first <- p.SpeakNative(ctx, a) }()
	waitFor(t, func() bool { return synth.speaks.Load() == 1 })
	go func() { second <- p.SpeakNative(ctx, b) }()
	time.Sleep(50 * time.Millisecond)

	p.SilenceUID(a.UID())

	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected the silenced request to be cancelled, got %v", err)
	}
	if err := <-second; err != nil {
		t.Errorf("Expected the queued request to be spoken, got %v", err)
	}
	if n := synth.speaks.Load(); n != 2 {
		t.Errorf("Expected 2 speak calls, got %d", n)
	}
	if rec.Count("SpeakComplete") != 1 {
		t.Errorf("Expected one SpeakComplete, got %v", rec.Events())
	}
	if want := []string{"second", "one"}; !reflect.DeepEqual(rec.Words(), want) {
		t.Errorf("Expected words %v, got %v", want, rec.Words())
	}
}

func TestSilenceUIDUnknownLeavesSynthesizer(t *testing.T) {
	synth := &synthesizer{hold: true}
	p, _ := newProvider(t, synth)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.SpeakNative(ctx, tts.NewWrapper("first")) }()
	waitFor(t, func() bool { return synth.speaks.Load() == 1 })

	p.SilenceUID("someone-else")
	for _, c := range synth.srv.Calls() {
		if c == "stop" {
			t.Fatalf("Expected no stop call, got %v", synth.srv.Calls())
		}
	}

	if err := synth.srv.Push("setState", "Finish"); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Errorf("SpeakNative failed: %v", err)
	}
}

func TestGenerateUnsupported(t *testing.T) {
	p, _ := newProvider(t, &synthesizer{})
	err := p.Generate(context.Background(), tts.NewWrapper("hello"))
	if !errors.Is(err, ErrGenerateUnsupported) {
		t.Errorf("Expected ErrGenerateUnsupported, got %v", err)
	}
	if p.Capabilities().Speak {
		t.Error("Expected no file based speak")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
