package piper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/enginetest"
)

const singleConfig = `{
  "dataset": "lessac",
  "audio": {"sample_rate": 22050, "quality": "medium"},
  "language": {"code": "en_US", "name_english": "English", "country_english": "United States"},
  "num_speakers": 1,
  "speaker_id_map": {}
}`

const multiConfig = `{
  "dataset": "vctk",
  "audio": {"sample_rate": 22050, "quality": "low"},
  "language": {"code": "en_GB", "name_english": "English", "country_english": "Great Britain"},
  "num_speakers": 2,
  "speaker_id_map": {"p239": 1, "p225": 0}
}`

func writeModel(t *testing.T, dir, name, config string) string {
	t.Helper()
	model := filepath.Join(dir, name+".onnx")
	if err := os.WriteFile(model, []byte("onnx"), 0o644); err != nil {
		t.Fatal(err)
	}
	if config != "" {
		if err := os.WriteFile(model+".json", []byte(config), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return model
}

func TestScanModels(t *testing.T) {
	dir := t.TempDir()
	single := writeModel(t, dir, "en_US-lessac-medium", singleConfig)
	multi := writeModel(t, dir, "en_GB-vctk-low", multiConfig)
	writeModel(t, dir, "broken", "")

	voices, err := ScanModels(dir)
	if err != nil {
		t.Fatal(err)
	}
	tts.SortVoices(voices)

	var names, ids []string
	for _, v := range voices {
		names = append(names, v.Name)
		ids = append(ids, v.Identifier)
	}
	wantNames := []string{"en_GB-vctk-low p225", "en_GB-vctk-low p239", "en_US-lessac-medium"}
	if !reflect.DeepEqual(names, wantNames) {
		t.Errorf("Expected %v, got %v", wantNames, names)
	}
	wantIDs := []string{multi + "#0", multi + "#1", single}
	if !reflect.DeepEqual(ids, wantIDs) {
		t.Errorf("Expected %v, got %v", wantIDs, ids)
	}
	if voices[2].Culture != "en-US" {
		t.Errorf("Expected culture en-US, got %s", voices[2].Culture)
	}
	if voices[2].Description != "Piper English United States (medium)" {
		t.Errorf("Unexpected description %q", voices[2].Description)
	}
	if voices[2].SampleRate != 22050 || voices[2].Vendor != "Piper" {
		t.Errorf("Unexpected voice %+v", voices[2])
	}
}

func TestSplitIdentifier(t *testing.T) {
	tests := []struct {
		id, model, speaker string
	}{
		{"/m/a.onnx", "/m/a.onnx", ""},
		{"/m/a.onnx#3", "/m/a.onnx", "3"},
		{"/m/#tag/a.onnx", "/m/#tag/a.onnx", ""},
	}
	for _, tt := range tests {
		model, speaker := SplitIdentifier(tt.id)
		if model != tt.model || speaker != tt.speaker {
			t.Errorf("%s: expected %s %s, got %s %s", tt.id, tt.model, tt.speaker, model, speaker)
		}
	}
}

func TestArgs(t *testing.T) {
	p, err := New(enginetest.Env(enginetest.NewRecorder(), t.TempDir(), "linux"))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		speaker string
		w       *tts.Wrapper
		want    []string
	}{
		{"defaults", "", tts.NewWrapper("hi"), []string{"--model", "m.onnx", "--output_file", "out.wav"}},
		{"fast speaker", "2", tts.NewWrapper("hi", tts.WithRate(2)),
			[]string{"--model", "m.onnx", "--output_file", "out.wav", "--speaker", "2", "--length_scale", "0.50"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.args("m.onnx", tt.speaker, tt.w, "out.wav"); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRefreshVoicesWithoutModelDir(t *testing.T) {
	p, err := New(enginetest.Env(enginetest.NewRecorder(), t.TempDir(), "linux"))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.RefreshVoices(context.Background()); !errors.Is(err, tts.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestSpeakWithFakePiper(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake piper is a shell script")
	}
	dir := t.TempDir()
	writeModel(t, dir, "en_US-lessac-medium", singleConfig)
	if err := enginetest.WriteWAV(filepath.Join(dir, "fixture.wav"), 0.1); err != nil {
		t.Fatal(err)
	}
	bin := filepath.Join(dir, "piper")
	script := `#!/bin/sh
while [ $# -gt 0 ]; do
	case "$1" in
	--output_file) shift; out="$1" ;;
	esac
	shift
done
cat > /dev/null
cp "$(dirname "$0")/fixture.wav" "$out"
`
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	rec := enginetest.NewRecorder()
	env := enginetest.Env(rec, dir, "linux")
	env.Config.Piper.Binary = bin
	env.Config.Piper.ModelDir = dir
	p, err := New(env)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.RefreshVoices(context.Background()); err != nil {
		t.Fatalf("RefreshVoices failed: %v", err)
	}

	w := tts.NewWrapper("hello world", tts.WithSink(tts.NewTimedSink()))
	if err := p.Speak(context.Background(), w); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	want := []string{"VoicesReady", "AudioGenerationStart", "AudioGenerationComplete", "SpeakStart", "SpeakComplete"}
	if !reflect.DeepEqual(rec.Events(), want) {
		t.Errorf("Expected events %v, got %v", want, rec.Events())
	}
}

func TestSpeakNativeUnsupported(t *testing.T) {
	p, err := New(enginetest.Env(enginetest.NewRecorder(), t.TempDir(), "linux"))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.SpeakNative(context.Background(), tts.NewWrapper("hi")); !errors.Is(err, tts.ErrNotSupported) {
		t.Errorf("Expected ErrNotSupported, got %v", err)
	}
}
