package tts

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// OnlineTextWarnLength is the length above which online providers warn
// instead of truncating.
const OnlineTextWarnLength = 8000

var (
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
	spacePattern  = regexp.MustCompile(`[ \t\f\v]+`)
	lineEndings   = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")
	xmlEscapes    = strings.NewReplacer(" & ", " &amp; ", " < ", " &lt; ", " > ", " &gt; ")
	defaultMarker = MarkOptions{Prefix: "[", Suffix: "]"}
)

// CleanOptions selects the CleanText passes.
type CleanOptions struct {
	RemoveTags       bool
	ClearSpaces      bool
	ClearLineEndings bool
}

// CleanText removes markup tags, collapses runs of blanks and joins lines.
func CleanText(text string, opts CleanOptions) string {
	result := text
	if opts.RemoveTags {
		result = tagPattern.ReplaceAllString(result, "")
	}
	if opts.ClearLineEndings {
		result = lineEndings.Replace(result)
	}
	if opts.ClearSpaces {
		result = spacePattern.ReplaceAllString(result, " ")
	}
	return strings.TrimSpace(result)
}

// Normalize cleans text and truncates it to maxLength runes when maxLength
// is positive. The second return value is a warning when text was cut.
func Normalize(text string, maxLength int, removeTags bool) (string, string) {
	result := CleanText(text, CleanOptions{RemoveTags: removeTags, ClearSpaces: true, ClearLineEndings: true})
	if maxLength > 0 && utf8.RuneCountInString(result) > maxLength {
		runes := []rune(result)
		return string(runes[:maxLength]), fmt.Sprintf("text is too long: it will be truncated to %d characters", maxLength)
	}
	return result, ""
}

// SplitWords splits text on spaces and drops empty entries.
func SplitWords(text string) []string {
	parts := strings.Split(text, " ")
	words := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			words = append(words, p)
		}
	}
	return words
}

// ValidXML escapes free-standing ampersands and angle brackets.
func ValidXML(text string) string {
	return xmlEscapes.Replace(text)
}

// MarkOptions configures MarkSpokenText.
type MarkOptions struct {
	// MarkAll marks every word up to the current one.
	MarkAll bool
	Prefix  string
	Suffix  string
}

// MarkSpokenText renders words with the word at index wrapped in the
// markers. It returns an error for an out of range index.
func MarkSpokenText(words []string, index int, opts *MarkOptions) (string, error) {
	if opts == nil {
		opts = &defaultMarker
	}
	if words == nil {
		return "", fmt.Errorf("no words to mark")
	}
	if index < 0 || index > len(words)-1 {
		return "", fmt.Errorf("invalid word index: %d", index)
	}

	var sb strings.Builder
	for i := 0; i < index; i++ {
		if opts.MarkAll {
			sb.WriteString(opts.Prefix)
		}
		sb.WriteString(words[i])
		if opts.MarkAll {
			sb.WriteString(opts.Suffix)
		}
		sb.WriteByte(' ')
	}
	sb.WriteString(opts.Prefix)
	sb.WriteString(words[index])
	sb.WriteString(opts.Suffix)
	sb.WriteByte(' ')
	for i := index + 1; i < len(words); i++ {
		sb.WriteString(words[i])
		sb.WriteByte(' ')
	}
	return sb.String(), nil
}
