package tts

import (
	"context"
	"regexp"
	"strings"
)

// clipTag marks a sound in paralanguage text, e.g. "Well #laugh# no".
var clipTag = regexp.MustCompile(`#[^#\n]+#`)

// ParalanguagePart is either text to speak or the name of a clip.
type ParalanguagePart struct {
	Text string
	Clip string
}

// SplitParalanguage cuts text at #name# tags. Blank text between tags is
// dropped.
func SplitParalanguage(text string) []ParalanguagePart {
	var parts []ParalanguagePart
	add := func(s string) {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, ParalanguagePart{Text: strings.TrimSpace(s)})
		}
	}
	last := 0
	for _, m := range clipTag.FindAllStringIndex(text, -1) {
		add(text[last:m[0]])
		parts = append(parts, ParalanguagePart{Clip: text[m[0]+1 : m[1]-1]})
		last = m[1]
	}
	add(text[last:])
	return parts
}

// Paralanguage speaks text mixed with sound clips.
type Paralanguage struct {
	// Clips maps tag names to audio.
	Clips   map[string]*Clip
	Mode    SpeakMode
	Options []WrapperOption
}

// Speak speaks the text parts and plays the tagged clips in order. Unknown
// clips are skipped with a warning.
func (p *Paralanguage) Speak(ctx context.Context, s *Speaker, text string) error {
	parts := SplitParalanguage(text)
	if len(parts) == 0 {
		return ErrEmptyText
	}
	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if part.Clip != "" {
			clip, ok := p.Clips[part.Clip]
			if !ok {
				s.logger.Warn("Clip not found", "clip", part.Clip)
				continue
			}
			if err := s.PlayClip(ctx, clip); err != nil {
				return err
			}
			continue
		}
		w := NewWrapper(part.Text, p.Options...)
		if err := s.SpeakAndWait(ctx, w, p.Mode == ModeNative); err != nil {
			return err
		}
	}
	return nil
}
