package windows

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/enginetest"
)

// fakeWrapper installs a shell script in place of the wrapper executable.
func fakeWrapper(t *testing.T, script string) (*Provider, *enginetest.Recorder, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake wrapper is a shell script")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "wrapper.sh")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := enginetest.WriteWAV(filepath.Join(dir, "fixture.wav"), 0.1); err != nil {
		t.Fatal(err)
	}

	rec := enginetest.NewRecorder()
	env := enginetest.Env(rec, dir, "linux")
	env.Config.Windows.Binary = bin
	p, err := New(env)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	return p, rec, dir
}

func TestRate(t *testing.T) {
	tests := []struct {
		rate float64
		want int
	}{
		{0, -10},
		{0.3, -10},
		{0.35, -9},
		{0.5, -7},
		{0.95, -1},
		{1, 0},
		{1.1, 1},
		{1.5, 3},
		{2, 6},
		{2.7, 9},
		{3, 10},
	}
	for _, tt := range tests {
		if got := Rate(tt.rate); got != tt.want {
			t.Errorf("Rate(%v): expected %d, got %d", tt.rate, tt.want, got)
		}
	}
}

func TestVolumeAndPitch(t *testing.T) {
	if Volume(0.5) != 50 || Volume(2) != 100 || Volume(-1) != 0 {
		t.Errorf("Expected volume 50/100/0, got %d/%d/%d", Volume(0.5), Volume(2), Volume(-1))
	}

	tests := map[float64]string{
		1:    "",
		1.5:  "+50%",
		0.75: "-25%",
		2:    "+100%",
	}
	for pitch, want := range tests {
		if got := PitchPercent(pitch); got != want {
			t.Errorf("PitchPercent(%v): expected %q, got %q", pitch, want, got)
		}
	}
}

func TestRefreshVoices(t *testing.T) {
	p, rec, _ := fakeWrapper(t, `
echo "@VOICE:Microsoft Zira Desktop:Zira:female:adult:en-US"
echo "@VOICE:Microsoft David Desktop:David:male:adult:en-US"
echo "@VOICE:broken"
echo "noise"
`)

	if err := p.RefreshVoices(context.Background()); err != nil {
		t.Fatalf("RefreshVoices failed: %v", err)
	}
	voices := p.Voices()
	if len(voices) != 2 {
		t.Fatalf("Expected 2 voices, got %d", len(voices))
	}
	if voices[0].Name != "Microsoft David Desktop" || voices[0].Gender != tts.GenderMale {
		t.Errorf("Expected David first, got %v", voices[0])
	}
	if voices[1].Culture != "en-US" {
		t.Errorf("Expected culture en-US, got %q", voices[1].Culture)
	}
	if rec.Count("VoicesReady") != 1 {
		t.Error("Expected VoicesReady")
	}
}

func TestSpeakNativeMarkers(t *testing.T) {
	p, rec, _ := fakeWrapper(t, `
echo "@SPEAK"
echo "@STARTED"
echo "@WORD"
echo "@PHONEME:h"
echo "@VISEME:v"
echo "@WORD"
echo "@WORD"
`)
	w := tts.NewWrapper("hello - world")

	if err := p.SpeakNative(context.Background(), w); err != nil {
		t.Fatalf("SpeakNative failed: %v", err)
	}
	if want := []string{"hello", "world"}; !reflect.DeepEqual(rec.Words(), want) {
		t.Errorf("Expected words %v, got %v", want, rec.Words())
	}
	if want := []string{"h", ""}; !reflect.DeepEqual(rec.Phonemes(), want) {
		t.Errorf("Expected phonemes %v, got %v", want, rec.Phonemes())
	}
	if want := []string{"v", ""}; !reflect.DeepEqual(rec.Visemes(), want) {
		t.Errorf("Expected visemes %v, got %v", want, rec.Visemes())
	}
	if rec.Count("SpeakStart") != 1 || rec.Count("SpeakComplete") != 1 {
		t.Errorf("Expected one SpeakStart and SpeakComplete, got %v", rec.Events())
	}
}

func TestSpeakNativeWithoutStartedMarker(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "word before started",
			script: "echo @SPEAK\necho @WORD\necho @STARTED\necho @WORD\n",
			want: []string{"SpeakStart", "CurrentWord", "CurrentWord",
				"CurrentPhoneme", "CurrentViseme", "SpeakComplete"},
		},
		{
			name:   "no markers",
			script: "echo @SPEAK\n",
			want:   []string{"SpeakStart", "SpeakComplete"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, rec, _ := fakeWrapper(t, tt.script)
			if err := p.SpeakNative(context.Background(), tts.NewWrapper("hello world")); err != nil {
				t.Fatalf("SpeakNative failed: %v", err)
			}
			if !reflect.DeepEqual(rec.Events(), tt.want) {
				t.Errorf("Expected events %v, got %v", tt.want, rec.Events())
			}
		})
	}
}

func TestSpeakNativeFailures(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantErr error
		wantMsg string
	}{
		{
			name:    "unexpected output",
			script:  "echo garbage\n",
			wantErr: tts.ErrUnexpectedOutput,
			wantMsg: "garbage",
		},
		{
			name:    "exit code",
			script:  "echo boom >&2\nexit 3\n",
			wantMsg: "Exit code: 3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, rec, _ := fakeWrapper(t, tt.script)
			err := p.SpeakNative(context.Background(), tts.NewWrapper("hello"))
			if err == nil {
				t.Fatal("Expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected %q in %q", tt.wantMsg, err.Error())
			}
			if rec.Count("SpeakComplete") != 0 {
				t.Error("Expected no SpeakComplete")
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	p, rec, dir := fakeWrapper(t, `
while [ $# -gt 0 ]; do
	case "$1" in
	-file) shift; out="$1" ;;
	esac
	shift
done
cp "$(dirname "$0")/fixture.wav" "$out"
`)
	out := filepath.Join(dir, "speech")
	w := tts.NewWrapper("hello", tts.WithOutputFile(out))

	if err := p.Generate(context.Background(), w); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := os.Stat(out + ".wav"); err != nil {
		t.Errorf("Expected output file: %v", err)
	}
	want := []string{"AudioGenerationStart", "AudioGenerationComplete"}
	if !reflect.DeepEqual(rec.Events(), want) {
		t.Errorf("Expected events %v, got %v", want, rec.Events())
	}
}

func TestMissingWrapper(t *testing.T) {
	rec := enginetest.NewRecorder()
	env := enginetest.Env(rec, t.TempDir(), "windows")
	env.Config.Windows.Binary = filepath.Join(t.TempDir(), "missing.exe")
	p, err := New(env)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Capabilities().PlatformSupported {
		t.Error("Expected the provider to support windows")
	}
	if err := p.SpeakNative(context.Background(), tts.NewWrapper("hello")); err == nil {
		t.Error("Expected an error for a missing wrapper")
	}
}
