package mock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/enginetest"
)

func newTestProvider(t *testing.T) (*Provider, *enginetest.Recorder, string) {
	t.Helper()
	dir := t.TempDir()
	rec := enginetest.NewRecorder()
	env := enginetest.Env(rec, dir, "linux")
	env.Config.Mock.WordDelay = 5 * time.Millisecond
	p, err := New(env)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, rec, dir
}

// TestRefreshVoices tests voice listing.
func TestRefreshVoices(t *testing.T) {
	p, rec, _ := newTestProvider(t)

	if err := p.RefreshVoices(context.Background()); err != nil {
		t.Fatalf("RefreshVoices failed: %v", err)
	}
	if len(p.Voices()) != 3 {
		t.Errorf("Expected 3 voices, got %d", len(p.Voices()))
	}
	if len(rec.Voices()) != 3 {
		t.Errorf("Expected VoicesReady with 3 voices, got %d", len(rec.Voices()))
	}
	if want := []string{"en-GB", "en-US"}; !reflect.DeepEqual(p.Cultures(), want) {
		t.Errorf("Expected cultures %v, got %v", want, p.Cultures())
	}
}

// TestSpeakNative tests the word events of native speech.
func TestSpeakNative(t *testing.T) {
	p, rec, _ := newTestProvider(t)
	w := tts.NewWrapper("hello brave new world")

	if err := p.SpeakNative(context.Background(), w); err != nil {
		t.Fatalf("SpeakNative failed: %v", err)
	}
	if want := []string{"hello", "brave", "new", "world"}; !reflect.DeepEqual(rec.Words(), want) {
		t.Errorf("Expected words %v, got %v", want, rec.Words())
	}
	events := rec.Events()
	if events[0] != "SpeakStart" || events[len(events)-1] != "SpeakComplete" {
		t.Errorf("Expected SpeakStart first and SpeakComplete last, got %v", events)
	}
}

func TestSpeakNativeSilenced(t *testing.T) {
	p, rec, _ := newTestProvider(t)
	cfg := p.Config()
	cfg.Mock.WordDelay = time.Second
	p.Reconfigure(cfg)
	w := tts.NewWrapper("one two three")

	errc := make(chan error, 1)
	go func() { errc <- p.SpeakNative(context.Background(), w) }()

	time.Sleep(50 * time.Millisecond)
	p.SilenceUID(w.UID())

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SpeakNative did not return after SilenceUID")
	}
	if rec.Count("SpeakComplete") != 0 {
		t.Error("Expected no SpeakComplete after silence")
	}
}

// TestSpeak tests playback of the generated clip.
func TestSpeak(t *testing.T) {
	p, rec, dir := newTestProvider(t)
	sink := tts.NewTimedSink()
	w := tts.NewWrapper("hello world", tts.WithSink(sink))

	if err := p.Speak(context.Background(), w); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	want := []string{"AudioGenerationStart", "AudioGenerationComplete", "SpeakStart", "SpeakComplete"}
	if got := rec.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected events %v, got %v", want, got)
	}
	if sink.Clip() == nil {
		t.Error("Expected a clip on the sink")
	}
	if _, err := os.Stat(tts.AudioFileName(dir, w.UID(), ".wav")); !os.IsNotExist(err) {
		t.Errorf("Expected the generated file to be deleted, got %v", err)
	}
}

// TestGenerate tests writing the output file.
func TestGenerate(t *testing.T) {
	p, rec, dir := newTestProvider(t)
	out := filepath.Join(dir, "hello")
	w := tts.NewWrapper("hello", tts.WithOutputFile(out))

	if err := p.Generate(context.Background(), w); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	info, err := os.Stat(out + ".wav")
	if err != nil {
		t.Fatalf("Expected output file: %v", err)
	}
	if info.Size() <= tts.MinAudioFileSize {
		t.Errorf("Expected a valid audio file, got %d bytes", info.Size())
	}
	if rec.Count("SpeakStart") != 0 {
		t.Error("Generate should not speak")
	}
}

// TestFailure tests error injection.
func TestFailure(t *testing.T) {
	p, _, _ := newTestProvider(t)

	testError := errors.New("test error")
	p.SetFailure(testError)

	err := p.SpeakNative(context.Background(), tts.NewWrapper("test"))
	if err != testError {
		t.Errorf("Expected injected error, got %v", err)
	}

	p.ClearFailure()
	if err := p.SpeakNative(context.Background(), tts.NewWrapper("test")); err != nil {
		t.Errorf("Unexpected error after clearing failure: %v", err)
	}
	if p.CallCount() != 2 {
		t.Errorf("Expected 2 calls, got %d", p.CallCount())
	}
}

// TestCapabilities tests capability reporting.
func TestCapabilities(t *testing.T) {
	p, _, _ := newTestProvider(t)
	caps := p.Capabilities()

	if !caps.SpeakNative || !caps.Speak {
		t.Error("Mock provider should support native and file speech")
	}
	if caps.AudioFileExtension != ".wav" {
		t.Errorf("Expected .wav, got %s", caps.AudioFileExtension)
	}
	if caps.Online {
		t.Error("Mock provider should not require network")
	}
	if p.Name() != tts.ProviderMock {
		t.Errorf("Expected name %q, got %q", tts.ProviderMock, p.Name())
	}
}
