package android

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/dgnsrekt/rtvoice/internal/bridge/bridgetest"
	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/enginetest"
)

// fakeEngine is an Android engine that is busy for a number of polls after
// each utterance.
type fakeEngine struct {
	busyPolls int32
	busy      atomic.Int32
	fixture   string
	hang      bool
}

func (e *fakeEngine) handle(method string, params json.RawMessage) (any, error) {
	switch method {
	case "isInitialized":
		return true, nil
	case "getVoices":
		return []string{
			"en-us-x-sfg#female_1-local;en-US",
			"de-de-x-nfh#male_2-local;de-DE",
			"broken",
		}, nil
	case "isWorking":
		if e.hang {
			return true, nil
		}
		return e.busy.Add(-1) >= 0, nil
	case "speakNative":
		e.busy.Store(e.busyPolls)
		return nil, nil
	case "speak":
		var p speakParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(e.fixture)
		if err != nil {
			return nil, err
		}
		e.busy.Store(e.busyPolls)
		return nil, os.WriteFile(p.OutputFile, data, 0o644)
	case "stopNative", "shutdown":
		return nil, nil
	}
	return nil, errors.New("unknown method")
}

func newProvider(t *testing.T, engine *fakeEngine) (*Provider, *enginetest.Recorder, *bridgetest.Server) {
	t.Helper()
	dir := t.TempDir()
	engine.fixture = filepath.Join(dir, "fixture.wav")
	if err := enginetest.WriteWAV(engine.fixture, 0.1); err != nil {
		t.Fatal(err)
	}
	srv := bridgetest.NewServer(engine.handle)
	t.Cleanup(srv.Close)

	rec := enginetest.NewRecorder()
	env := enginetest.Env(rec, dir, "android")
	env.Config.Bridge.URL = srv.URL()
	env.Config.Bridge.PollInterval = 5 * time.Millisecond
	p, err := New(env)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	return p, rec, srv
}

func TestParseVoices(t *testing.T) {
	is := is.New(t)
	voices := ParseVoices([]string{"a#female;en-US", "b#male;de-DE", "c;fr-FR", "nope"})

	is.Equal(len(voices), 3)
	is.Equal(voices[0].Gender, tts.GenderFemale)
	is.Equal(voices[1].Gender, tts.GenderMale)
	is.Equal(voices[1].Culture, "de-DE")
	is.Equal(voices[2].Gender, tts.GenderUnknown)
	is.Equal(voices[2].Description, "Android voice: c;fr-FR")
}

func TestRefreshVoices(t *testing.T) {
	p, rec, _ := newProvider(t, &fakeEngine{})

	if err := p.RefreshVoices(context.Background()); err != nil {
		t.Fatalf("RefreshVoices failed: %v", err)
	}
	if len(p.Voices()) != 2 {
		t.Fatalf("Expected 2 voices, got %d", len(p.Voices()))
	}
	if rec.Count("VoicesReady") != 1 {
		t.Error("Expected VoicesReady")
	}
}

func TestSpeakNativePollsUntilIdle(t *testing.T) {
	p, rec, srv := newProvider(t, &fakeEngine{busyPolls: 3})

	if err := p.SpeakNative(context.Background(), tts.NewWrapper("hello")); err != nil {
		t.Fatalf("SpeakNative failed: %v", err)
	}
	if want := []string{"SpeakStart", "SpeakComplete"}; !reflect.DeepEqual(rec.Events(), want) {
		t.Errorf("Expected events %v, got %v", want, rec.Events())
	}

	polls := 0
	for _, c := range srv.Calls() {
		if c == "isWorking" {
			polls++
		}
	}
	if polls != 4 {
		t.Errorf("Expected 4 isWorking polls, got %d", polls)
	}
}

func TestSpeakPlaysDeviceFile(t *testing.T) {
	p, rec, _ := newProvider(t, &fakeEngine{busyPolls: 1})

	w := tts.NewWrapper("hello", tts.WithSink(tts.NewTimedSink()))
	if err := p.Speak(context.Background(), w); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	want := []string{"AudioGenerationStart", "AudioGenerationComplete", "SpeakStart", "SpeakComplete"}
	if !reflect.DeepEqual(rec.Events(), want) {
		t.Errorf("Expected events %v, got %v", want, rec.Events())
	}
}

func TestSilenceStopsEngine(t *testing.T) {
	p, rec, srv := newProvider(t, &fakeEngine{hang: true})
	w := tts.NewWrapper("a very long text")

	errc := make(chan error, 1)
	go func() { errc <- p.SpeakNative(context.Background(), w) }()

	deadline := time.After(2 * time.Second)
	for rec.Count("SpeakStart") == 0 {
		select {
		case <-deadline:
			t.Fatal("SpeakNative never started")
		case <-time.After(5 * time.Millisecond):
		}
	}
	p.SilenceUID(w.UID())

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SpeakNative did not stop")
	}
	if rec.Count("SpeakComplete") != 0 {
		t.Error("Expected no SpeakComplete after silence")
	}

	deadline = time.After(2 * time.Second)
	for !called(srv, "stopNative") {
		select {
		case <-deadline:
			t.Fatal("Expected stopNative on the bridge")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSilenceUIDOtherRequestKeepsEngine(t *testing.T) {
	p, rec, srv := newProvider(t, &fakeEngine{hang: true})
	w := tts.NewWrapper("a very long text")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- p.SpeakNative(ctx, w) }()

	deadline := time.After(2 * time.Second)
	for rec.Count("SpeakStart") == 0 {
		select {
		case <-deadline:
			t.Fatal("SpeakNative never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	p.SilenceUID("another-request")
	time.Sleep(50 * time.Millisecond)
	if called(srv, "stopNative") {
		t.Error("Expected the engine to keep speaking")
	}
	select {
	case err := <-errc:
		t.Fatalf("SpeakNative returned early: %v", err)
	default:
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func called(srv *bridgetest.Server, method string) bool {
	for _, c := range srv.Calls() {
		if c == method {
			return true
		}
	}
	return false
}
