// Package macos speaks with the `say` command.
package macos

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dgnsrekt/rtvoice/internal/process"
	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/base"
)

// DefaultRate is the words per minute of `say` at rate 1.
const DefaultRate = 175

// sayVoice matches "Name    en_US    # Sample sentence" lines of `say -v ?`.
var sayVoice = regexp.MustCompile(`^([^#]+?)\s*([^ ]+)\s*# (.*?)$`)

// Provider runs `say` for every request.
type Provider struct {
	*base.Base
}

// New creates the provider.
func New(env tts.Env) (*Provider, error) {
	caps := tts.Capabilities{
		AudioFileExtension: ".aiff",
		AudioFileType:      tts.AudioAIFF,
		DefaultVoiceName:   "Alex",
		MaxTextLength:      256000,
		SpeakNative:        true,
		Speak:              true,
		PlatformSupported:  env.GOOS == "darwin",
	}
	return &Provider{Base: base.New(tts.ProviderMacOS, env, caps)}, nil
}

// Factory is the registry constructor.
func Factory(env tts.Env) (tts.Provider, error) {
	return New(env)
}

// RefreshVoices parses the output of `say -v ?`.
func (p *Provider) RefreshVoices(ctx context.Context) error {
	out, err := p.Procs.Output(ctx, process.Command{Name: p.Config().MacOS.Binary, Args: []string{"-v", "?"}})
	if err != nil {
		return fmt.Errorf("could not get any voices: %w", err)
	}
	p.SetVoices(ParseVoices(string(out)))
	return nil
}

// ParseVoices reads the voice list printed by `say -v ?`.
func ParseVoices(out string) []tts.Voice {
	var voices []tts.Voice
	for _, line := range strings.Split(out, "\n") {
		m := sayVoice.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		voices = append(voices, tts.NewVoice(name, m[3], tts.AppleVoiceNameToGender(name), "unknown",
			strings.ReplaceAll(m[2], "_", "-"), tts.WithVendor("Apple")))
	}
	return voices
}

// SpeakNative speaks through the default output device. SpeakStart fires
// as soon as the process runs.
func (p *Provider) SpeakNative(ctx context.Context, w *tts.Wrapper) error {
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	p.Emitter().SpeakStart(w)
	result, err := p.Procs.Run(ctx, w.UID(), p.command(w, ""))
	if err != nil {
		return err
	}
	if !completed(result.ExitCode) {
		return fmt.Errorf("could not speak the text: %s\nExit code: %d\n%s", w, result.ExitCode, result.Stderr)
	}
	p.Logger.Debug("text spoken", "uid", w.UID())
	p.Emitter().SpeakComplete(w)
	return nil
}

// Speak renders an AIFF file and plays it through the request sink.
func (p *Provider) Speak(ctx context.Context, w *tts.Wrapper) error {
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	file, err := p.toFile(ctx, w)
	if err != nil {
		return err
	}
	return p.Play(ctx, w, file, false)
}

// Generate renders an AIFF file to the output file of w.
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
	file, err := p.AudioFile(w.UID())
	if err != nil {
		return "", err
	}
	p.Emitter().AudioGenerationStart(w)
	result, err := p.Procs.Run(ctx, w.UID(), p.command(w, file))
	if err != nil {
		return "", err
	}
	if !result.Success() {
		return "", fmt.Errorf("could not generate the text: %s\nExit code: %d\n%s", w, result.ExitCode, result.Stderr)
	}
	return file, nil
}

// command builds the `say` invocation, writing to file when it is set.
func (p *Provider) command(w *tts.Wrapper, file string) process.Command {
	var args []string
	if name := p.VoiceName(w); name != "" {
		args = append(args, "-v", strings.ReplaceAll(name, `"`, "'"))
	}
	if r := Rate(w.Rate()); r != DefaultRate {
		args = append(args, "-r", strconv.Itoa(r))
	}
	if file != "" {
		args = append(args, "-o", file, "--file-format=AIFFLE")
	}
	args = append(args, strings.ReplaceAll(w.Text(), `"`, "'"))
	return process.Command{Name: p.Config().MacOS.Binary, Args: args}
}

// Rate maps a rate factor to words per minute in [1,525].
func Rate(rate float64) int {
	if math.Abs(rate-1) < 1e-6 {
		return DefaultRate
	}
	return min(max(int(DefaultRate*rate), 1), 3*DefaultRate)
}

// completed reports whether say ended normally or was killed.
func completed(code int) bool {
	return code == 0 || code == process.KilledExitCode || code == 137
}
