package base

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/enginetest"
)

func newTestBase(t *testing.T, goos string) (*Base, *enginetest.Recorder, string) {
	t.Helper()
	dir := t.TempDir()
	rec := enginetest.NewRecorder()
	b := New("test", enginetest.Env(rec, dir, goos), tts.Capabilities{
		AudioFileExtension: ".wav",
		AudioFileType:      tts.AudioWAV,
		DefaultVoiceName:   "Default",
	})
	return b, rec, dir
}

func generated(t *testing.T, b *Base, w *tts.Wrapper, seconds float64) string {
	t.Helper()
	file, err := b.AudioFile(w.UID())
	if err != nil {
		t.Fatalf("AudioFile failed: %v", err)
	}
	if err := enginetest.WriteWAV(file, seconds); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}
	return file
}

func TestSetVoices(t *testing.T) {
	b, rec, _ := newTestBase(t, "linux")

	b.SetVoices([]tts.Voice{
		tts.NewVoice("Zira", "", tts.GenderFemale, "", "en-US"),
		tts.NewVoice("Anna", "", tts.GenderFemale, "", "de-DE"),
		tts.NewVoice("David", "", tts.GenderMale, "", "en-US"),
	})

	var names []string
	for _, v := range b.Voices() {
		names = append(names, v.Name)
	}
	if want := []string{"Anna", "David", "Zira"}; !reflect.DeepEqual(names, want) {
		t.Errorf("Expected voices %v, got %v", want, names)
	}
	if want := []string{"de-DE", "en-US"}; !reflect.DeepEqual(b.Cultures(), want) {
		t.Errorf("Expected cultures %v, got %v", want, b.Cultures())
	}
	if rec.Count("VoicesReady") != 1 {
		t.Errorf("Expected one VoicesReady event, got %d", rec.Count("VoicesReady"))
	}
}

func TestPlay(t *testing.T) {
	tests := []struct {
		name      string
		native    bool
		immediate bool
		want      []string
	}{
		{"speak", false, true, []string{"AudioGenerationComplete", "SpeakStart", "SpeakComplete"}},
		{"speak later", false, false, []string{"AudioGenerationComplete"}},
		{"native", true, false, []string{"SpeakStart", "SpeakComplete"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, rec, _ := newTestBase(t, "linux")
			sink := tts.NewTimedSink()
			w := tts.NewWrapper("hello", tts.WithSink(sink), tts.WithSpeakImmediately(tt.immediate))
			file := generated(t, b, w, 0.1)

			if err := b.Play(context.Background(), w, file, tt.native); err != nil {
				t.Fatalf("Play failed: %v", err)
			}
			if got := rec.Events(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected events %v, got %v", tt.want, got)
			}
			if sink.Clip() == nil {
				t.Error("Expected the clip to be attached to the sink")
			}
			if d := w.SpeechTime(); d < 90*time.Millisecond || d > 110*time.Millisecond {
				t.Errorf("Expected speech time of about 100ms, got %v", d)
			}
			if _, err := os.Stat(file); !os.IsNotExist(err) {
				t.Errorf("Expected %s to be deleted, got %v", file, err)
			}
		})
	}
}

func TestPlayInvalidFile(t *testing.T) {
	b, rec, _ := newTestBase(t, "linux")
	w := tts.NewWrapper("hello", tts.WithSink(tts.NewTimedSink()))
	file, err := b.AudioFile(w.UID())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(file, make([]byte, tts.MinAudioFileSize), 0o644); err != nil {
		t.Fatal(err)
	}

	err = b.Play(context.Background(), w, file, false)
	if !errors.Is(err, tts.ErrInvalidAudioFile) {
		t.Errorf("Expected ErrInvalidAudioFile, got %v", err)
	}
	if n := len(rec.Events()); n != 0 {
		t.Errorf("Expected no events, got %d", n)
	}
}

func TestPlayWithoutSink(t *testing.T) {
	b, _, _ := newTestBase(t, "linux")
	w := tts.NewWrapper("hello")
	file := generated(t, b, w, 0.1)

	if err := b.Play(context.Background(), w, file, false); !errors.Is(err, tts.ErrNoSink) {
		t.Errorf("Expected ErrNoSink, got %v", err)
	}
}

func TestPlayCancelled(t *testing.T) {
	b, rec, _ := newTestBase(t, "linux")
	w := tts.NewWrapper("hello", tts.WithSink(tts.NewTimedSink()))
	file := generated(t, b, w, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := b.Play(ctx, w, file, false)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if rec.Count("SpeakComplete") != 0 {
		t.Error("Expected no SpeakComplete for a cancelled request")
	}
}

func TestProcessCopiesOutputFile(t *testing.T) {
	b, rec, dir := newTestBase(t, "linux")
	out := filepath.Join(dir, "out", "speech")
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		t.Fatal(err)
	}
	w := tts.NewWrapper("hello", tts.WithOutputFile(out))
	file := generated(t, b, w, 0.1)

	if err := b.Process(w, file); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if w.OutputFile() != out+".wav" {
		t.Errorf("Expected output file %s.wav, got %s", out, w.OutputFile())
	}
	if _, err := os.Stat(out + ".wav"); err != nil {
		t.Errorf("Expected the copy to exist: %v", err)
	}
	if rec.Count("AudioGenerationComplete") != 1 {
		t.Errorf("Expected one AudioGenerationComplete, got %d", rec.Count("AudioGenerationComplete"))
	}
}

func TestWindowsKeepsGeneratedFile(t *testing.T) {
	b, _, _ := newTestBase(t, "windows")
	w := tts.NewWrapper("hello")
	file := generated(t, b, w, 0.1)

	if err := b.Process(w, file); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if _, err := os.Stat(file); err != nil {
		t.Errorf("Expected %s to be kept, got %v", file, err)
	}
	if w.OutputFile() != file {
		t.Errorf("Expected output file %s, got %s", file, w.OutputFile())
	}
}

func TestTrack(t *testing.T) {
	b, _, _ := newTestBase(t, "linux")

	ctx1, done1 := b.Track(context.Background(), "one")
	defer done1()
	ctx2, done2 := b.Track(context.Background(), "two")
	defer done2()

	b.SilenceUID("one")
	if ctx1.Err() == nil {
		t.Error("Expected request one to be cancelled")
	}
	if ctx2.Err() != nil {
		t.Error("Expected request two to keep running")
	}

	b.Silence()
	if ctx2.Err() == nil {
		t.Error("Expected request two to be cancelled")
	}

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	ctx3, done3 := b.Track(context.Background(), "three")
	defer done3()
	if ctx3.Err() == nil {
		t.Error("Expected requests after Close to be cancelled")
	}
}

func TestVoiceName(t *testing.T) {
	b, _, _ := newTestBase(t, "linux")
	v := tts.NewVoice("Anna", "", tts.GenderFemale, "", "de-DE", tts.WithIdentifier("com.anna"))

	tests := []struct {
		name   string
		w      *tts.Wrapper
		wantNm string
		wantID string
	}{
		{"default", tts.NewWrapper("x"), "Default", "Default"},
		{"voice", tts.NewWrapper("x", tts.WithVoice(&v)), "Anna", "com.anna"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.VoiceName(tt.w); got != tt.wantNm {
				t.Errorf("Expected name %q, got %q", tt.wantNm, got)
			}
			if got := b.VoiceID(tt.w); got != tt.wantID {
				t.Errorf("Expected id %q, got %q", tt.wantID, got)
			}
		})
	}
}

func TestUnsupported(t *testing.T) {
	b, _, _ := newTestBase(t, "linux")
	err := b.Unsupported("generate")
	if !errors.Is(err, tts.ErrNotSupported) {
		t.Errorf("Expected ErrNotSupported, got %v", err)
	}
	if !strings.Contains(err.Error(), "test generate") {
		t.Errorf("Expected provider and action in %q", err.Error())
	}
}
