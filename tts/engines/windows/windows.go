// Package windows drives the SAPI wrapper executable. The wrapper reports
// progress on stdout with @ markers that are turned into word, phoneme and
// viseme events.
package windows

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/dgnsrekt/rtvoice/internal/process"
	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/engines/base"
)

// Wrapper output markers.
const (
	markerVoice   = "@VOICE:"
	markerSpeak   = "@SPEAK"
	markerWord    = "@WORD"
	markerPhoneme = "@PHONEME:"
	markerViseme  = "@VISEME:"
	markerStarted = "@STARTED"
)

// DefaultVoice is used for requests without a voice.
const DefaultVoice = "Microsoft David Desktop"

// Provider speaks through the wrapper executable.
type Provider struct {
	*base.Base
}

// New creates the provider. The wrapper is looked up on each request.
func New(env tts.Env) (*Provider, error) {
	goos := env.GOOS
	caps := tts.Capabilities{
		AudioFileExtension: ".wav",
		AudioFileType:      tts.AudioWAV,
		DefaultVoiceName:   DefaultVoice,
		MaxTextLength:      32000,
		SpeakNative:        true,
		Speak:              true,
		PlatformSupported:  goos == "windows",
		SSML:               true,
	}
	return &Provider{Base: base.New(tts.ProviderWindows, env, caps)}, nil
}

// Factory is the registry constructor.
func Factory(env tts.Env) (tts.Provider, error) {
	return New(env)
}

func (p *Provider) binary() (string, error) {
	name := p.Config().Windows.Binary
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("the TTS wrapper could not be found: %w", err)
	}
	return path, nil
}

// RefreshVoices runs the wrapper with --voices.
func (p *Provider) RefreshVoices(ctx context.Context) error {
	bin, err := p.binary()
	if err != nil {
		return err
	}
	out, err := p.Procs.Output(ctx, process.Command{Name: bin, Args: []string{"--voices"}})
	if err != nil {
		return fmt.Errorf("could not get any voices: %w", err)
	}
	p.SetVoices(p.parseVoices(string(out)))
	return nil
}

// parseVoices reads "@VOICE:name:description:gender:age:culture" lines.
func (p *Provider) parseVoices(out string) []tts.Voice {
	var voices []tts.Voice
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, markerVoice) {
			continue
		}
		parts := splitNonEmpty(line, ":")
		if len(parts) != 6 {
			p.Logger.Warn("voice is invalid", "line", line)
			continue
		}
		voices = append(voices, tts.NewVoice(parts[1], parts[2], tts.StringToGender(parts[3]), parts[4], parts[5], tts.WithVendor("Microsoft")))
	}
	return voices
}

// SpeakNative speaks through the wrapper and reports progress from its
// markers.
func (p *Provider) SpeakNative(ctx context.Context, w *tts.Wrapper) error {
	bin, err := p.binary()
	if err != nil {
		return err
	}
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	cmd := process.Command{Name: bin, Args: append([]string{"--speak"}, p.args(w)...)}
	stream := newMarkerStream(p.Emitter(), w)
	result, err := p.Procs.Stream(ctx, w.UID(), cmd, stream.line)

	// clear output
	if stream.speaking {
		p.Emitter().CurrentPhoneme(w, "")
		p.Emitter().CurrentViseme(w, "")
	}

	if err != nil {
		return err
	}
	if result.ExitCode != 0 && result.ExitCode != process.KilledExitCode {
		return fmt.Errorf("could not speak the text: %s\nExit code: %d\n%s", w, result.ExitCode, result.Stderr)
	}
	if stream.unexpected != "" {
		return fmt.Errorf("%w: %s", tts.ErrUnexpectedOutput, stream.unexpected)
	}
	p.Logger.Debug("text spoken", "uid", w.UID())
	stream.begin()
	p.Emitter().SpeakComplete(w)
	return nil
}

// Speak renders to a file and plays it through the request sink.
func (p *Provider) Speak(ctx context.Context, w *tts.Wrapper) error {
	ctx, done := p.Track(ctx, w.UID())
	defer done()

	file, err := p.toFile(ctx, w)
	if err != nil {
		return err
	}
	return p.Play(ctx, w, file, false)
}

// Generate renders to the output file of w.
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

	args := []string{"--speakToFile", "-text", p.prepareText(w), "-file", strings.ReplaceAll(file, `"`, "'")}
	args = append(args, p.args(w)[2:]...)

	p.Emitter().AudioGenerationStart(w)
	result, err := p.Procs.Run(ctx, w.UID(), process.Command{Name: bin, Args: args})
	if err != nil {
		return "", err
	}
	if !result.Success() {
		return "", fmt.Errorf("could not generate the text: %s\nExit code: %d\n%s", w, result.ExitCode, result.Stderr)
	}
	return file, nil
}

// args returns "-text T -rate R -volume V -voice N".
func (p *Provider) args(w *tts.Wrapper) []string {
	return []string{
		"-text", p.prepareText(w),
		"-rate", strconv.Itoa(Rate(w.Rate())),
		"-volume", strconv.Itoa(Volume(w.Volume())),
		"-voice", strings.ReplaceAll(p.VoiceName(w), `"`, "'"),
	}
}

// prepareText wraps the text in SSML with a pitch prosody unless tags are
// cleared automatically.
func (p *Provider) prepareText(w *tts.Wrapper) string {
	text := w.Text()
	if !w.ForceSSML() || p.Config().AutoClearTags {
		return strings.ReplaceAll(text, `"`, "'")
	}

	lang := "en-US"
	if v := w.Voice(); v != nil && v.Culture != "" {
		lang = v.Culture
	}

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" ?>`)
	sb.WriteString(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="`)
	sb.WriteString(lang)
	sb.WriteString(`">`)
	pitch := PitchPercent(w.Pitch())
	if pitch != "" {
		sb.WriteString("<prosody pitch='" + pitch + "'>")
	}
	sb.WriteString(text)
	if pitch != "" {
		sb.WriteString("</prosody>")
	}
	sb.WriteString("</speak>")
	return tts.ValidXML(strings.ReplaceAll(sb.String(), `"`, "'"))
}

// PitchPercent renders a pitch factor as a signed percentage relative to
// 1, or "" for the default pitch.
func PitchPercent(pitch float64) string {
	delta := pitch - 1
	if math.Abs(delta) < 1e-6 {
		return ""
	}
	pct := int(math.Round(delta * 100))
	if delta > 0 {
		return fmt.Sprintf("+%d%%", pct)
	}
	return fmt.Sprintf("%d%%", pct)
}

// Volume maps [0,1] to the wrapper's 0..100.
func Volume(volume float64) int {
	return min(max(int(100*volume), 0), 100)
}

// Rate maps a rate factor in [0,3] to the SAPI scale -10..10.
func Rate(rate float64) int {
	step, _ := tts.WindowsRateStep(rate)
	return step
}

// markerStream turns wrapper output into events. The first line must be
// @SPEAK; other output is recorded as unexpected. Progress markers seen
// before @STARTED start the speech themselves.
type markerStream struct {
	emitter    tts.Emitter
	w          *tts.Wrapper
	words      []string
	index      int
	accepted   bool
	speaking   bool
	rejected   bool
	unexpected string
}

func newMarkerStream(emitter tts.Emitter, w *tts.Wrapper) *markerStream {
	return &markerStream{
		emitter: emitter,
		w:       w,
		words:   tts.SplitWords(tts.CleanText(w.Text(), tts.CleanOptions{})),
	}
}

// begin fires SpeakStart once.
func (s *markerStream) begin() {
	if s.speaking {
		return
	}
	s.speaking = true
	s.emitter.SpeakStart(s.w)
}

func (s *markerStream) line(line string) {
	line = strings.TrimRight(line, "\r")
	if s.rejected {
		s.unexpected += "\n" + line
		return
	}
	if !s.accepted {
		if line != markerSpeak {
			s.rejected = true
			s.unexpected = line
			return
		}
		s.accepted = true
		return
	}

	switch {
	case strings.HasPrefix(line, markerWord):
		if s.index >= len(s.words) {
			return
		}
		if s.words[s.index] == "-" {
			s.index++
		}
		s.index++
		s.begin()
		s.emitter.CurrentWord(s.w, s.words, min(s.index, len(s.words))-1)
	case strings.HasPrefix(line, markerPhoneme):
		if parts := splitNonEmpty(line, ":"); len(parts) > 1 {
			s.begin()
			s.emitter.CurrentPhoneme(s.w, parts[1])
		}
	case strings.HasPrefix(line, markerViseme):
		if parts := splitNonEmpty(line, ":"); len(parts) > 1 {
			s.begin()
			s.emitter.CurrentViseme(s.w, parts[1])
		}
	case line == markerStarted:
		s.begin()
	}
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
