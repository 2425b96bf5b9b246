package tts

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Voice is a catalog entry reported by a provider.
type Voice struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Gender      Gender `json:"gender" yaml:"gender"`
	Age         string `json:"age" yaml:"age"`
	Culture     string `json:"culture" yaml:"culture"`
	Identifier  string `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Vendor      string `json:"vendor" yaml:"vendor"`
	Version     string `json:"version" yaml:"version"`
	SampleRate  int    `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
}

// VoiceOption configures optional Voice fields.
type VoiceOption func(*Voice)

// WithIdentifier sets the backend-internal voice id.
func WithIdentifier(id string) VoiceOption {
	return func(v *Voice) { v.Identifier = id }
}

// WithVendor sets the voice vendor.
func WithVendor(vendor string) VoiceOption {
	return func(v *Voice) { v.Vendor = vendor }
}

// WithVersion sets the voice version.
func WithVersion(version string) VoiceOption {
	return func(v *Voice) { v.Version = version }
}

// WithSampleRate sets the native sample rate of the voice.
func WithSampleRate(rate int) VoiceOption {
	return func(v *Voice) { v.SampleRate = rate }
}

// NewVoice creates a voice with a normalized culture.
func NewVoice(name, description string, gender Gender, age, culture string, opts ...VoiceOption) Voice {
	v := Voice{
		Name:        name,
		Description: description,
		Gender:      gender,
		Age:         age,
		Culture:     NormalizeCulture(culture),
		Vendor:      "unknown",
		Version:     "unknown",
	}
	for _, opt := range opts {
		opt(&v)
	}
	return v
}

// SimplifiedCulture returns the culture without separators, e.g. "enUS".
func (v Voice) SimplifiedCulture() string {
	return SimplifyCulture(v.Culture)
}

// String returns "Name (Culture, Gender)".
func (v Voice) String() string {
	return fmt.Sprintf("%s (%s, %s)", v.Name, v.Culture, v.Gender)
}

// NormalizeCulture trims a locale tag and converts it to xx-YY form.
// Tags that do not parse as BCP 47 keep their separators replaced only.
func NormalizeCulture(culture string) string {
	c := strings.ReplaceAll(strings.TrimSpace(culture), "_", "-")
	if c == "" {
		return c
	}
	tag, err := language.Parse(c)
	if err != nil {
		return c
	}
	return tag.String()
}

// SimplifyCulture strips spaces, '-' and '_' from a culture for prefix matching.
func SimplifyCulture(culture string) string {
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.TrimSpace(culture))
}
