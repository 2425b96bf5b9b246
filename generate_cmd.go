package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/rtvoice/tts"
)

var (
	generateFlags request

	generateCmd = &cobra.Command{
		Use:   "generate [TEXT|-] FILE",
		Short: "Write speech to an audio file",
		Long: paragraph(fmt.Sprintf("\n%s an audio file without playing it. "+
			"The extension of the provider's format is appended to FILE.", keyword("Generate"))),
		Example: paragraph("rtvoice generate \"Hello world\" hello\n" +
			"rtvoice generate --file notes.md notes"),
		Args: cobra.RangeArgs(1, 2),
		RunE: runGenerate,
	}
)

func runGenerate(cmd *cobra.Command, args []string) error {
	output := args[len(args)-1]
	text, err := generateFlags.text(args[:len(args)-1])
	if err != nil {
		return err
	}
	cfg, err := generateFlags.config()
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

	opts, err := generateFlags.options(s)
	if err != nil {
		return err
	}
	opts = append(opts, tts.WithOutputFile(output), tts.WithSpeakImmediately(false))
	w := tts.NewWrapper(text, opts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	events, cancel := s.Events().Channel(64, tts.EventAudioGenerationComplete, tts.EventErrorInfo)
	defer cancel()

	s.GenerateWrapper(w)
	file, err := waitGenerated(ctx, s, events, w.UID())
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%s)\n", file, fileSize(file))
	return nil
}

// waitGenerated returns the output file of uid once it is written.
func waitGenerated(ctx context.Context, s *tts.Speaker, events <-chan tts.Event, uid string) (string, error) {
	for {
		select {
		case <-ctx.Done():
			s.SilenceUID(uid)
			return "", ctx.Err()
		case e, ok := <-events:
			if !ok {
				return "", fmt.Errorf("speaker closed before %s finished", uid)
			}
			if e.UID() != uid {
				continue
			}
			if e.Kind == tts.EventErrorInfo {
				return "", e.Err
			}
			file := e.Wrapper.OutputFile()
			if _, err := os.Stat(file); err != nil {
				return "", fmt.Errorf("audio file was not written: %w", err)
			}
			return file, nil
		}
	}
}

func init() {
	generateFlags.register(generateCmd)
}
