package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/rtvoice/internal/audio"
	"github.com/dgnsrekt/rtvoice/internal/markdown"
	"github.com/dgnsrekt/rtvoice/tts"
	"github.com/dgnsrekt/rtvoice/tts/sentence"
)

// request holds the flags shared by speak and generate.
type request struct {
	voice     string
	culture   string
	gender    string
	rate      float64
	pitch     float64
	volume    float64
	provider  string
	mary      bool
	espeak    bool
	noSSML    bool
	file      string
	clipboard bool
}

var (
	speakFlags  request
	speakNative bool
	speakOutput string
	speakWords  bool

	speakSentences bool
	speakSequence  string
	speakClips     map[string]string

	speakCmd = &cobra.Command{
		Use:   "speak [TEXT|-]",
		Short: "Speak text",
		Long: paragraph(fmt.Sprintf("\n%s text with the active voice provider. "+
			"Text comes from the arguments, a file, the clipboard or stdin. "+
			"Text longer than the provider allows is spoken in parts. "+
			"On a terminal the spoken word is highlighted.", keyword("Speak"))),
		Example: paragraph("rtvoice speak \"Hello world\"\n" +
			"rtvoice speak --voice samantha --rate 1.5 \"Hello world\"\n" +
			"rtvoice speak --file notes.md\n" +
			"rtvoice speak --sequence dialog.yml\n" +
			"rtvoice speak --clip laugh=laugh.wav \"Well #laugh# no\"\n" +
			"echo hello | rtvoice speak"),
		RunE: runSpeak,
	}
)

// registerProvider adds the provider selection flags.
func (r *request) registerProvider(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&r.provider, "provider", "", "use a custom provider: openai, openai+mary, piper, gtts or mock")
	f.BoolVar(&r.mary, "mary", false, "use the MaryTTS server")
	f.BoolVar(&r.espeak, "espeak", false, "use eSpeak instead of the platform voices")
}

func (r *request) register(cmd *cobra.Command) {
	r.registerProvider(cmd)
	f := cmd.Flags()
	f.StringVar(&r.voice, "voice", "", "voice name, matched partially and case-insensitively")
	f.StringVar(&r.culture, "culture", "", "pick the first voice for this culture, e.g. en-US")
	f.StringVar(&r.gender, "gender", "", "pick the first voice of this gender (male or female)")
	f.Float64Var(&r.rate, "rate", 1, "speech rate (0 to 3)")
	f.Float64Var(&r.pitch, "pitch", 1, "pitch (0 to 2)")
	f.Float64Var(&r.volume, "volume", 1, "volume (0 to 1)")
	f.BoolVar(&r.noSSML, "no-ssml", false, "do not wrap the text in SSML")
	f.StringVarP(&r.file, "file", "f", "", "read the text from a plain text or markdown file (- for stdin)")
	f.BoolVar(&r.clipboard, "clipboard", false, "read the text from the clipboard")
}

// config applies the provider flags to the loaded configuration.
func (r *request) config() (tts.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, err
	}
	if r.provider != "" {
		cfg.CustomMode = true
		cfg.CustomProvider = r.provider
	}
	if r.mary {
		cfg.MaryMode = true
	}
	if r.espeak {
		cfg.ESpeakMode = true
	}
	return cfg, nil
}

// text returns the text to speak.
func (r *request) text(args []string) (string, error) {
	switch {
	case r.file == "-":
		return readAll(os.Stdin)
	case r.file != "":
		b, err := os.ReadFile(r.file)
		if err != nil {
			return "", fmt.Errorf("unable to read file: %w", err)
		}
		if markdown.IsMarkdown(r.file) {
			return markdown.ToText(b, markdown.DefaultOptions()), nil
		}
		return string(b), nil
	case r.clipboard:
		s, err := clipboard.ReadAll()
		if err != nil {
			return "", fmt.Errorf("unable to read clipboard: %w", err)
		}
		return s, nil
	case len(args) == 1 && args[0] == "-":
		return readAll(os.Stdin)
	case len(args) > 0:
		return strings.Join(args, " "), nil
	}

	if yes, err := stdinIsPipe(); err != nil {
		return "", err
	} else if yes {
		return readAll(os.Stdin)
	}
	return "", errors.New("nothing to speak: pass text, --file or --clipboard")
}

// options resolves the voice flags against the catalog of s.
func (r *request) options(s *tts.Speaker) ([]tts.WrapperOption, error) {
	opts := []tts.WrapperOption{
		tts.WithRate(r.rate),
		tts.WithPitch(r.pitch),
		tts.WithVolume(r.volume),
		tts.WithForceSSML(!r.noSSML),
	}

	var voice *tts.Voice
	switch {
	case r.voice != "":
		if voice = s.VoiceForName(r.voice, false); voice == nil {
			return nil, fmt.Errorf("voice %q not found, see rtvoice voices", r.voice)
		}
	case r.gender != "":
		gender := tts.StringToGender(r.gender)
		if gender == tts.GenderUnknown {
			return nil, fmt.Errorf("invalid gender %q", r.gender)
		}
		voice = s.VoiceForGender(gender, r.culture, 0, "", false)
	case r.culture != "":
		voice = s.VoiceForCulture(r.culture, 0, "", false)
	}
	if voice != nil {
		opts = append(opts, tts.WithVoice(voice))
	}
	return opts, nil
}

func readAll(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("unable to read from reader: %w", err)
	}
	return string(b), nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func runSpeak(cmd *cobra.Command, args []string) error {
	if speakSequence != "" {
		return runSequence(cmd)
	}
	text, err := speakFlags.text(args)
	if err != nil {
		return err
	}
	cfg, err := speakFlags.config()
	if err != nil {
		return err
	}

	s, done, err := newSpeaker(cfg, tts.WithSynchronousDiscovery())
	if err != nil {
		return err
	}
	defer done()
	if !s.IsTTSAvailable() {
		return tts.ErrNoProvider
	}

	opts, err := speakFlags.options(s)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if len(speakClips) > 0 {
		if speakOutput != "" {
			return errors.New("--output cannot be combined with --clip")
		}
		return runParalanguage(ctx, s, text, opts)
	}

	parts := sentence.Chunk(text, s.MaxTextLength())
	if speakSentences {
		parts = sentence.Split(text)
	}
	if len(parts) == 0 {
		return tts.ErrEmptyText
	}
	if speakOutput != "" {
		if len(parts) > 1 {
			return fmt.Errorf("text has %d parts, --output needs a single one", len(parts))
		}
		opts = append(opts, tts.WithOutputFile(speakOutput))
	}

	// Subscribe before submitting: invalid requests are reported at once.
	events, cancel := s.Events().Channel(256)
	defer cancel()

	k := newKaraoke(os.Stdout, speakWords)
	for _, part := range parts {
		w := tts.NewWrapper(part, opts...)
		if speakNative {
			s.SpeakNativeWrapper(w)
		} else {
			s.SpeakWrapper(w)
		}
		if err := follow(ctx, s, events, w.UID(), k); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// runSequence speaks the sequences of a YAML file one after the other.
func runSequence(cmd *cobra.Command) error {
	f, err := os.Open(speakSequence)
	if err != nil {
		return fmt.Errorf("unable to open sequence file: %w", err)
	}
	q, err := tts.LoadSequencer(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	if len(q.Sequences) == 0 {
		return fmt.Errorf("%s has no sequences", speakSequence)
	}

	cfg, err := speakFlags.config()
	if err != nil {
		return err
	}
	s, done, err := newSpeaker(cfg, tts.WithSynchronousDiscovery())
	if err != nil {
		return err
	}
	defer done()
	if !s.IsTTSAvailable() {
		return tts.ErrNoProvider
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	start := time.Now()
	if err := q.PlayAll(ctx, s); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	newKaraoke(os.Stdout, false).note(fmt.Sprintf("Spoke %d sequences with %s in %s",
		len(q.Sequences), s.ProviderName(), time.Since(start).Round(10*time.Millisecond)))
	return nil
}

// runParalanguage speaks text with the #name# tags replaced by the clips
// given with --clip.
func runParalanguage(ctx context.Context, s *tts.Speaker, text string, opts []tts.WrapperOption) error {
	p := &tts.Paralanguage{
		Clips:   make(map[string]*tts.Clip, len(speakClips)),
		Mode:    tts.ModeSpeak,
		Options: opts,
	}
	if speakNative {
		p.Mode = tts.ModeNative
	}
	for name, path := range speakClips {
		clip, err := audio.LoadClip(path)
		if err != nil {
			return fmt.Errorf("unable to load clip %s: %w", name, err)
		}
		p.Clips[name] = clip
	}
	if err := p.Speak(ctx, s, text); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// follow prints the progress of uid until it completes or fails.
func follow(ctx context.Context, s *tts.Speaker, events <-chan tts.Event, uid string, k *karaoke) error {
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.SilenceUID(uid)
			k.finish()
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.UID() != uid {
				continue
			}
			switch e.Kind {
			case tts.EventCurrentWord:
				k.word(e.Words, e.Index)
			case tts.EventAudioGenerationComplete:
				if out := e.Wrapper.OutputFile(); speakOutput != "" && out != "" {
					k.note(fmt.Sprintf("Wrote %s (%s)", out, fileSize(out)))
				}
			case tts.EventSpeakComplete:
				k.finish()
				k.note(fmt.Sprintf("Spoke %d words with %s in %s",
					len(tts.SplitWords(e.Wrapper.Text())), s.ProviderName(), time.Since(start).Round(10*time.Millisecond)))
				return nil
			case tts.EventErrorInfo:
				k.finish()
				return e.Err
			}
		}
	}
}

func fileSize(path string) string {
	st, err := os.Stat(path)
	if err != nil {
		return "missing"
	}
	return humanize.Bytes(uint64(st.Size())) //nolint:gosec
}

// karaoke highlights the current word. On a terminal it redraws one line,
// otherwise it prints a marked line per word when enabled.
type karaoke struct {
	w       io.Writer
	out     *termenv.Output
	tty     bool
	width   int
	enabled bool
	drawn   bool
}

func newKaraoke(f *os.File, always bool) *karaoke {
	k := &karaoke{w: f, width: 80}
	k.tty = term.IsTerminal(int(f.Fd()))
	k.enabled = k.tty || always
	if k.tty {
		k.out = termenv.NewOutput(f)
		lipgloss.SetColorProfile(k.out.ColorProfile())
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			k.width = w
		}
	}
	return k
}

// window is the number of words shown on each side of the current word.
const window = 8

func (k *karaoke) word(words []string, index int) {
	if !k.enabled || index < 0 || index >= len(words) {
		return
	}
	if !k.tty {
		line, err := tts.MarkSpokenText(words, index, nil)
		if err == nil {
			fmt.Fprintln(k.w, strings.TrimSpace(line))
		}
		return
	}

	from := max(index-window, 0)
	to := min(index+window+1, len(words))
	parts := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		switch {
		case i < index:
			parts = append(parts, pastStyle.Render(words[i]))
		case i == index:
			parts = append(parts, spokenStyle.Render(words[i]))
		default:
			parts = append(parts, words[i])
		}
	}
	line := truncate.StringWithTail(strings.Join(parts, " "), uint(max(k.width-1, 1)), "…") //nolint:gosec
	k.out.ClearLine()
	fmt.Fprint(k.w, "\r"+line)
	k.drawn = true
}

func (k *karaoke) finish() {
	if k.drawn {
		fmt.Fprintln(k.w)
		k.drawn = false
	}
}

func (k *karaoke) note(s string) {
	if k.tty {
		fmt.Fprintln(k.w, pastStyle.Render(s))
		return
	}
	fmt.Fprintln(os.Stderr, s)
}

func init() {
	speakFlags.register(speakCmd)
	speakCmd.Flags().BoolVar(&speakNative, "native", false, "speak on the device instead of playing generated audio")
	speakCmd.Flags().StringVarP(&speakOutput, "output", "o", "", "also keep the generated audio at this path")
	speakCmd.Flags().BoolVar(&speakSentences, "sentences", false, "speak one sentence at a time")
	speakCmd.Flags().StringVar(&speakSequence, "sequence", "", "speak the sequences of a YAML file")
	speakCmd.Flags().StringToStringVar(&speakClips, "clip", nil, "play a sound file for each #name# tag in the text, as name=path")
	speakCmd.Flags().BoolVar(&speakWords, "words", false, "print the marked text for every word even when not on a terminal")
}
