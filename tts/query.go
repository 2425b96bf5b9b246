package tts

import (
	"strings"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/cases"
)

var fold = cases.Fold()

func equalFold(a, b string) bool {
	return fold.String(a) == fold.String(b)
}

func containsFold(s, substr string) bool {
	return strings.Contains(fold.String(s), fold.String(substr))
}

// FilterCulture returns the voices whose simplified culture starts with the
// simplified culture, case-insensitively. An empty culture returns voices.
func FilterCulture(voices []Voice, culture string) []Voice {
	if culture == "" {
		return voices
	}
	prefix := fold.String(SimplifyCulture(culture))
	var out []Voice
	for _, v := range voices {
		if strings.HasPrefix(fold.String(v.SimplifiedCulture()), prefix) {
			out = append(out, v)
		}
	}
	SortVoices(out)
	return out
}

// FilterGender returns the voices of gender. GenderUnknown matches all.
func FilterGender(voices []Voice, gender Gender) []Voice {
	if gender == GenderUnknown {
		return voices
	}
	var out []Voice
	for _, v := range voices {
		if v.Gender == gender {
			out = append(out, v)
		}
	}
	return out
}

// VoicesForCulture returns the voices for culture. With fuzzy set, all
// voices are returned when nothing matches.
func (s *Speaker) VoicesForCulture(culture string, fuzzyMatch bool) []Voice {
	voices := s.Voices()
	if culture == "" {
		s.logger.Debug("empty culture, returning all voices")
		return voices
	}
	matched := FilterCulture(voices, culture)
	if len(matched) == 0 && fuzzyMatch {
		return voices
	}
	return matched
}

// VoicesForGender returns the voices of gender, optionally narrowed to
// culture.
func (s *Speaker) VoicesForGender(gender Gender, culture string, fuzzyMatch bool) []Voice {
	if culture == "" {
		return FilterGender(s.Voices(), gender)
	}
	return FilterGender(s.VoicesForCulture(culture, fuzzyMatch), gender)
}

// VoiceForCulture returns the voice at index for culture. When culture has
// no voices the first voice of fallbackCulture is used. It returns nil when
// nothing matches; the provider's default voice is used then.
func (s *Speaker) VoiceForCulture(culture string, index int, fallbackCulture string, fuzzyMatch bool) *Voice {
	if culture == "" {
		return nil
	}
	voices := s.VoicesForCulture(culture, fuzzyMatch)
	if len(voices) > 0 {
		if index >= 0 && index < len(voices) {
			v := voices[index]
			return &v
		}
		s.logger.Warn("no voice for culture at index, speaking with the default voice", "culture", culture, "index", index)
		return nil
	}

	if fallbackCulture != "" {
		if fallback := s.VoicesForCulture(fallbackCulture, fuzzyMatch); len(fallback) > 0 {
			s.logger.Warn("no voices for culture, speaking with the fallback culture", "culture", culture, "fallback", fallbackCulture)
			v := fallback[0]
			return &v
		}
	}
	s.logger.Warn("no voice for culture, speaking with the default voice", "culture", culture)
	return nil
}

// VoiceForGender returns the voice at index for gender and culture, using
// the first voice of fallbackCulture when nothing matches.
func (s *Speaker) VoiceForGender(gender Gender, culture string, index int, fallbackCulture string, fuzzyMatch bool) *Voice {
	voices := s.VoicesForGender(gender, culture, fuzzyMatch)
	if len(voices) > 0 {
		if index >= 0 && index < len(voices) {
			v := voices[index]
			return &v
		}
		s.logger.Warn("no voice for gender at index, speaking with the default voice",
			"gender", gender, "culture", culture, "index", index)
		return nil
	}

	if fallback := s.VoicesForGender(gender, fallbackCulture, fuzzyMatch); len(fallback) > 0 {
		s.logger.Warn("no voices for gender and culture, speaking with the fallback culture",
			"gender", gender, "culture", culture, "fallback", fallbackCulture)
		v := fallback[0]
		return &v
	}
	s.logger.Warn("no voice for gender, speaking with the default voice", "gender", gender, "culture", culture)
	return nil
}

// VoiceForName returns the first voice whose name contains name, or equals
// it when exact is set. Both compare case-insensitively.
func (s *Speaker) VoiceForName(name string, exact bool) *Voice {
	if name == "" {
		s.logger.Warn("empty voice name")
		return nil
	}
	for _, v := range s.Voices() {
		if (exact && equalFold(v.Name, name)) || (!exact && containsFold(v.Name, name)) {
			found := v
			return &found
		}
	}
	s.logger.Warn("no voice for name, speaking with the default voice", "name", name)
	return nil
}

// IsVoiceForCultureAvailable reports whether culture has a voice.
func (s *Speaker) IsVoiceForCultureAvailable(culture string) bool {
	return len(s.VoicesForCulture(culture, false)) > 0
}

// IsVoiceForGenderAvailable reports whether gender has a voice in culture.
func (s *Speaker) IsVoiceForGenderAvailable(gender Gender, culture string) bool {
	return len(s.VoicesForGender(gender, culture, false)) > 0
}

// IsVoiceForNameAvailable reports whether a voice matches name.
func (s *Speaker) IsVoiceForNameAvailable(name string, exact bool) bool {
	return s.VoiceForName(name, exact) != nil
}

type voiceSource []Voice

func (v voiceSource) String(i int) string { return v[i].Name + " " + v[i].Culture }
func (v voiceSource) Len() int            { return len(v) }

// SearchVoices ranks the voices against pattern by fuzzy matching their
// name and culture. Best matches come first.
func SearchVoices(voices []Voice, pattern string) []Voice {
	if pattern == "" {
		return voices
	}
	matches := fuzzy.FindFrom(pattern, voiceSource(voices))
	out := make([]Voice, 0, len(matches))
	for _, m := range matches {
		out = append(out, voices[m.Index])
	}
	return out
}

// SearchVoices ranks the active provider's voices against pattern.
func (s *Speaker) SearchVoices(pattern string) []Voice {
	return SearchVoices(s.Voices(), pattern)
}
