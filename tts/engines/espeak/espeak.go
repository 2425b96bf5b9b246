// Package espeak speaks with espeak-ng or the original espeak.
package espeak

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgnsrekt/rtvoice/internal/platform"
	"github.com/dgnsrekt/rtvoice/internal/process"
	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/base"
)

// Defaults of the eSpeak command line.
const (
	DefaultRate   = 160
	DefaultVolume = 100
	DefaultPitch  = 50
)

// Provider runs eSpeak for every request.
type Provider struct {
	*base.Base
}

// New creates the provider. The executable is resolved on each request.
func New(env tts.Env) (*Provider, error) {
	caps := tts.Capabilities{
		AudioFileExtension: ".wav",
		AudioFileType:      tts.AudioWAV,
		DefaultVoiceName:   "en",
		MaxTextLength:      32000,
		SpeakNative:        true,
		Speak:              true,
		PlatformSupported:  platform.IsDesktop(env.GOOS),
		SSML:               true,
	}
	return &Provider{Base: base.New(tts.ProviderESpeak, env, caps)}, nil
}

// Factory is the registry constructor.
func Factory(env tts.Env) (tts.Provider, error) {
	return New(env)
}

// binary returns the configured executable or the first of espeak-ng and
// espeak found in PATH.
func (p *Provider) binary() (string, error) {
	if bin := p.Config().ESpeak.Binary; bin != "" {
		return bin, nil
	}
	bin, err := process.LookPath("espeak-ng", "espeak")
	if err != nil {
		return "", fmt.Errorf("eSpeak is not installed: %w", err)
	}
	return bin, nil
}

// RefreshVoices parses `espeak --voices`.
func (p *Provider) RefreshVoices(ctx context.Context) error {
	bin, err := p.binary()
	if err != nil {
		return err
	}
	args := append([]string{"--voices"}, p.pathArgs()...)
	out, err := p.Procs.Output(ctx, process.Command{Name: bin, Args: args})
	if err != nil {
		return fmt.Errorf("could not get any voices: %w", err)
	}
	p.SetVoices(ParseVoices(string(out), isNG(bin)))
	return nil
}

// ParseVoices reads the fixed-column voice table. espeak-ng and espeak
// place the gender, name and file columns differently.
func ParseVoices(out string, ng bool) []tts.Voice {
	var voices []tts.Voice
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "Pty") {
			continue
		}
		lang := column(line, 4, 15)
		if lang == "" {
			continue
		}
		var v tts.Voice
		if ng {
			v = tts.NewVoice(strings.ReplaceAll(column(line, 30, 19), "_", " "), column(line, 49, -1),
				tts.StringToGender(column(line, 23, 1)), "unknown", lang,
				tts.WithIdentifier(lang), tts.WithVendor("espeak-ng"))
		} else {
			v = tts.NewVoice(column(line, 22, 20), column(line, 43, -1),
				tts.StringToGender(column(line, 19, 1)), "unknown", lang,
				tts.WithIdentifier(lang), tts.WithVendor("espeak"))
		}
		voices = append(voices, v)
	}
	return voices
}

// column returns the trimmed text of line at [start, start+length). A
// negative length reads to the end.
func column(line string, start, length int) string {
	if start >= len(line) {
		return ""
	}
	end := len(line)
	if length >= 0 {
		end = min(start+length, len(line))
	}
	return strings.TrimSpace(line[start:end])
}

func isNG(bin string) bool {
	return strings.Contains(filepath.Base(bin), "espeak-ng")
}

// SpeakNative plays through the default output device.
func (p *Provider) SpeakNative(ctx context.Context, w *tts.Wrapper) error {
	bin, err := p.binary()
	if err != nil {
		return err
	}
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	p.Emitter().SpeakStart(w)
	result, err := p.Procs.Run(ctx, w.UID(), process.Command{Name: bin, Args: p.args(w, "")})
	if err != nil {
		return err
	}
	if result.ExitCode != 0 && result.ExitCode != process.KilledExitCode {
		return fmt.Errorf("could not speak the text: %s\nExit code: %d\n%s", w, result.ExitCode, result.Stderr)
	}
	p.Logger.Debug("text spoken", "uid", w.UID())
	p.Emitter().SpeakComplete(w)
	return nil
}

// Speak renders a WAV file and plays it through the request sink.
func (p *Provider) Speak(ctx context.Context, w *tts.Wrapper) error {
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	file, err := p.toFile(ctx, w)
	if err != nil {
		return err
	}
	return p.Play(ctx, w, file, false)
}

// Generate renders a WAV file to the output file of w.
func (p *Provider) Generate(ctx context.Context, w *tts.Wrapper) error {
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	file, err := p.toFile(ctx, w)
	if err != nil {
		return err
	}
	return p.Process(w, file)
}

func (p *Provider) toFile(ctx context.Context, w *tts.Wrapper) (string, error) {
	bin, err := p.binary()
	if err != nil {
		return "", err
	}
	file, err := p.AudioFile(w.UID())
	if err != nil {
		return "", err
	}
	p.Emitter().AudioGenerationStart(w)
	result, err := p.Procs.Run(ctx, w.UID(), process.Command{Name: bin, Args: p.args(w, file)})
	if err != nil {
		return "", err
	}
	if !result.Success() {
		return "", fmt.Errorf("could not generate the text: %s\nExit code: %d\n%s", w, result.ExitCode, result.Stderr)
	}
	return file, nil
}

// args builds the command line. Values equal to the eSpeak defaults are
// left out.
func (p *Provider) args(w *tts.Wrapper, file string) []string {
	args := []string{"-v", strings.ReplaceAll(p.voice(w), `"`, "'")}
	if r := Rate(w.Rate()); r != DefaultRate {
		args = append(args, "-s", strconv.Itoa(r))
	}
	if v := Volume(w.Volume()); v != DefaultVolume {
		args = append(args, "-a", strconv.Itoa(v))
	}
	if pt := Pitch(w.Pitch()); pt != DefaultPitch {
		args = append(args, "-p", strconv.Itoa(pt))
	}
	if file != "" {
		args = append(args, "-w", file)
	}
	args = append(args, "-z", "-m", strings.ReplaceAll(w.Text(), `"`, "'"))
	return append(args, p.pathArgs()...)
}

func (p *Provider) pathArgs() []string {
	if data := p.Config().ESpeak.DataPath; data != "" {
		return []string{"--path=" + data}
	}
	return nil
}

// voice returns the eSpeak voice for w with the configured variant, or
// the female variant for female voices when none is configured.
func (p *Provider) voice(w *tts.Wrapper) string {
	v := w.Voice()
	if v == nil || v.Name == "" {
		return p.Capabilities().DefaultVoiceName
	}
	name := p.VoiceID(w)
	if mod := p.Config().ESpeak.Modifier; mod != tts.ESpeakNone {
		return name + "+" + string(mod)
	}
	if v.Gender == tts.GenderFemale {
		return name + tts.ESpeakFemaleSuffix
	}
	return name
}

// Rate maps a rate factor to words per minute in [1,480].
func Rate(rate float64) int {
	if math.Abs(rate-1) < 1e-6 {
		return DefaultRate
	}
	return min(max(int(DefaultRate*rate), 1), 3*DefaultRate)
}

// Volume maps [0,1] to the amplitude 0..200.
func Volume(volume float64) int {
	return min(max(int(DefaultVolume*volume), 0), 200)
}

// Pitch maps [0,2] to 0..99.
func Pitch(pitch float64) int {
	return min(max(int(DefaultPitch*pitch), 0), 99)
}
