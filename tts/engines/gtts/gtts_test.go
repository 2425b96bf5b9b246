package gtts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/matryer/is"

	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/enginetest"
)

func TestCatalog(t *testing.T) {
	is := is.New(t)
	voices := Catalog()
	is.Equal(len(voices), len(languages))
	for _, v := range voices {
		is.True(v.Identifier != "")
		is.Equal(v.Vendor, "Google")
	}
	is.Equal(voices[len(voices)-1].Culture, "zh-TW")
}

func TestArgs(t *testing.T) {
	german := tts.NewVoice("Google German", "", tts.GenderUnknown, "", "de", tts.WithIdentifier("de"))
	swiss := tts.NewVoice("Swiss", "", tts.GenderUnknown, "", "fr-CH")

	tests := []struct {
		name string
		tld  string
		w    *tts.Wrapper
		want []string
	}{
		{"defaults", "com", tts.NewWrapper("hi"), []string{"-", "--lang", "en", "--output", "out.mp3"}},
		{"voice", "", tts.NewWrapper("hallo", tts.WithVoice(&german)), []string{"-", "--lang", "de", "--output", "out.mp3"}},
		{"slow culture", "ca", tts.NewWrapper("salut", tts.WithVoice(&swiss), tts.WithRate(0.5)),
			[]string{"-", "--lang", "fr", "--output", "out.mp3", "--tld", "ca", "--slow"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := enginetest.Env(enginetest.NewRecorder(), t.TempDir(), "linux")
			env.Config.GTTS.TLD = tt.tld
			p, err := New(env)
			if err != nil {
				t.Fatal(err)
			}
			if got := p.args(tt.w, "out.mp3"); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNewRejectsRateLimit(t *testing.T) {
	env := enginetest.Env(enginetest.NewRecorder(), t.TempDir(), "linux")
	env.Config.GTTS.RequestsPerMinute = 0
	if _, err := New(env); !errors.Is(err, tts.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestGenerateWithFakeGTTS(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake gtts-cli is a shell script")
	}
	dir := t.TempDir()
	if err := enginetest.WriteWAV(filepath.Join(dir, "fixture.wav"), 0.1); err != nil {
		t.Fatal(err)
	}
	bin := filepath.Join(dir, "gtts-cli")
	script := `#!/bin/sh
while [ $# -gt 0 ]; do
	case "$1" in
	--output) shift; out="$1" ;;
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
	env.Config.GTTS.Binary = bin
	p, err := New(env)
	if err != nil {
		t.Fatal(err)
	}

	w := tts.NewWrapper("hello world")
	if err := p.Generate(context.Background(), w); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	want := []string{"AudioGenerationStart", "AudioGenerationComplete"}
	if !reflect.DeepEqual(rec.Events(), want) {
		t.Errorf("Expected events %v, got %v", want, rec.Events())
	}

	// The limiter allows one request per interval.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Generate(ctx, tts.NewWrapper("again")); err == nil {
		t.Error("Expected the second request to wait on the limiter and fail")
	}
}
