// Package sentence splits text into sentences and groups them into chunks
// short enough for a provider's text limit.
package sentence

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var abbreviations = func() map[string]bool {
	m := make(map[string]bool)
	for _, a := range []string{
		"mr", "mrs", "ms", "dr", "prof", "sr", "jr", "st", "rd", "ave", "blvd",
		"inc", "ltd", "co", "corp", "etc", "vs", "cf", "al", "no", "vol", "pp",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
		"ft", "lbs", "oz", "kg", "km", "cm", "mm", "hr", "hrs", "min", "sec",
	} {
		m[a] = true
	}
	return m
}()

// Split returns the sentences of text with surrounding space trimmed.
// A period ends a sentence unless it belongs to an abbreviation, a
// dotted initialism like "e.g." or a decimal number.
func Split(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' && r != '\n' {
			continue
		}
		end := i + 1
		if r == '\n' {
			// A blank line ends a paragraph.
			if end >= len(runes) || runes[end] != '\n' {
				continue
			}
		} else {
			for end < len(runes) && strings.ContainsRune(".!?", runes[end]) {
				end++
			}
			for end < len(runes) && strings.ContainsRune(`"')]»”`, runes[end]) {
				end++
			}
			if end < len(runes) && !unicode.IsSpace(runes[end]) {
				continue
			}
			if r == '.' && end == i+1 && !endsSentence(runes[start:i]) {
				continue
			}
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
		i = end - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// endsSentence reports whether a period after before ends the sentence.
func endsSentence(before []rune) bool {
	fields := strings.Fields(string(before))
	if len(fields) == 0 {
		return true
	}
	last := strings.ToLower(strings.TrimLeft(fields[len(fields)-1], `"'([«“`))
	if abbreviations[last] || strings.Contains(last, ".") {
		return false
	}
	// Single letters are initials.
	return utf8.RuneCountInString(last) != 1 || !unicode.IsLetter([]rune(last)[0])
}

// Chunk groups the sentences of text into pieces of at most max runes.
// Sentences longer than max are cut at the last space before the limit,
// or hard at max when there is none. A max below one returns the trimmed
// text as a single chunk.
func Chunk(text string, max int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if max < 1 || utf8.RuneCountInString(text) <= max {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, s := range Split(text) {
		for _, piece := range cut(s, max) {
			n := utf8.RuneCountInString(piece)
			if curLen > 0 && curLen+1+n > max {
				flush()
			}
			if curLen > 0 {
				cur.WriteByte(' ')
				curLen++
			}
			cur.WriteString(piece)
			curLen += n
		}
	}
	flush()
	return chunks
}

// cut splits s into pieces of at most max runes, preferring spaces.
func cut(s string, max int) []string {
	var out []string
	runes := []rune(s)
	for len(runes) > max {
		at := max
		for i := max; i > 0; i-- {
			if unicode.IsSpace(runes[i]) {
				at = i
				break
			}
		}
		out = append(out, strings.TrimSpace(string(runes[:at])))
		runes = []rune(strings.TrimLeftFunc(string(runes[at:]), unicode.IsSpace))
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
