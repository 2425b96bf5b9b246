package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/rtvoice/tts"
)

var (
	voicesFlags  request
	voicesFind   string
	voicesFormat string

	voicesCmd = &cobra.Command{
		Use:   "voices",
		Short: "List the voices of the active provider",
		Long: paragraph(fmt.Sprintf("\n%s the voices of the active provider. "+
			"Filter them by culture or gender, or rank them with a fuzzy search.", keyword("List"))),
		Example: paragraph("rtvoice voices --culture en\nrtvoice voices --gender female --find sam\nrtvoice voices --mary"),
		Args:    cobra.NoArgs,
		RunE:    runVoices,
	}
)

func runVoices(*cobra.Command, []string) error {
	cfg, err := voicesFlags.config()
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

	voices, err := filterVoices(s.Voices(), voicesFlags.culture, voicesFlags.gender, voicesFind)
	if err != nil {
		return err
	}

	width := 0
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = w
		}
	}

	switch voicesFormat {
	case "names":
		for _, v := range voices {
			fmt.Println(v.Name)
		}
	case "table":
		printVoices(os.Stdout, voices, width)
		fmt.Fprintf(os.Stderr, "%s voices from %s, %s cultures\n",
			humanize.Comma(int64(len(voices))), s.ProviderName(), humanize.Comma(int64(len(tts.CulturesOf(voices)))))
	default:
		return fmt.Errorf("unknown format %q: use table or names", voicesFormat)
	}
	return nil
}

// filterVoices narrows voices by culture and gender, then ranks them by
// pattern when one is given.
func filterVoices(voices []tts.Voice, culture, gender, pattern string) ([]tts.Voice, error) {
	voices = tts.FilterCulture(voices, culture)
	if gender != "" {
		g := tts.StringToGender(gender)
		if g == tts.GenderUnknown {
			return nil, fmt.Errorf("invalid gender %q", gender)
		}
		voices = tts.FilterGender(voices, g)
	}
	return tts.SearchVoices(voices, pattern), nil
}

// printVoices writes an aligned table. Descriptions are cut to fit width
// when width is positive.
func printVoices(w io.Writer, voices []tts.Voice, width int) {
	headers := []string{"NAME", "CULTURE", "GENDER", "DESCRIPTION"}
	cols := make([]int, 3)
	for i := range cols {
		cols[i] = runewidth.StringWidth(headers[i])
	}
	for _, v := range voices {
		cols[0] = max(cols[0], runewidth.StringWidth(v.Name))
		cols[1] = max(cols[1], runewidth.StringWidth(v.Culture))
		cols[2] = max(cols[2], runewidth.StringWidth(v.Gender.String()))
	}

	row := func(cells []string) string {
		var sb strings.Builder
		for i, c := range cells[:3] {
			sb.WriteString(runewidth.FillRight(c, cols[i]))
			sb.WriteString("  ")
		}
		desc := cells[3]
		if width > 0 {
			used := cols[0] + cols[1] + cols[2] + 6
			desc = truncate.StringWithTail(desc, uint(max(width-used, 1)), "…") //nolint:gosec
		}
		sb.WriteString(desc)
		return strings.TrimRight(sb.String(), " ")
	}

	fmt.Fprintln(w, headerStyle.Render(row(headers)))
	for _, v := range voices {
		fmt.Fprintln(w, row([]string{v.Name, v.Culture, v.Gender.String(), v.Description}))
	}
}

func init() {
	voicesFlags.registerProvider(voicesCmd)
	voicesCmd.Flags().StringVar(&voicesFlags.culture, "culture", "", "only voices for this culture, e.g. en or de-DE")
	voicesCmd.Flags().StringVar(&voicesFlags.gender, "gender", "", "only voices of this gender (male or female)")
	voicesCmd.Flags().StringVar(&voicesFind, "find", "", "rank voices by fuzzy matching name and culture")
	voicesCmd.Flags().StringVar(&voicesFormat, "format", "table", "output format: table or names")
}
