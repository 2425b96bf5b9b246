package tts

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// VoiceAlias names one voice per provider family so content can pick the
// right voice on every platform. Culture and Gender are the fallback when
// the named voice does not exist.
type VoiceAlias struct {
	Windows string `yaml:"windows"`
	MacOS   string `yaml:"macos"`
	Linux   string `yaml:"linux"`
	Android string `yaml:"android"`
	IOS     string `yaml:"ios"`
	Mary    string `yaml:"mary"`
	Custom  string `yaml:"custom"`
	Culture string `yaml:"culture"`
	Gender  Gender `yaml:"gender"`
}

// DefaultVoiceAlias returns an alias for the default English voices.
func DefaultVoiceAlias() VoiceAlias {
	return VoiceAlias{
		Windows: "David",
		MacOS:   "Alex",
		Linux:   "en",
		Android: "en",
		IOS:     "Daniel",
		Mary:    "cmu-rms-hsmm",
		Culture: "en",
	}
}

// Name returns the voice name for kind.
func (a VoiceAlias) Name(kind ProviderKind) string {
	switch kind {
	case KindWindows:
		return a.Windows
	case KindMacOS:
		return a.MacOS
	case KindAndroid:
		return a.Android
	case KindIOS:
		return a.IOS
	case KindMary:
		return a.Mary
	case KindCustom:
		return a.Custom
	default:
		return a.Linux
	}
}

// Resolve returns the voice for the active provider of s, falling back to
// a voice for the alias gender and culture. It returns nil when neither
// exists.
func (a VoiceAlias) Resolve(s *Speaker) *Voice {
	if name := a.Name(s.Kind()); name != "" {
		if v := s.VoiceForName(name, false); v != nil {
			return v
		}
	}
	return s.VoiceForGender(a.Gender, a.Culture, 0, "", false)
}

// LoadAliases reads a YAML map of alias names to aliases.
func LoadAliases(r io.Reader) (map[string]VoiceAlias, error) {
	aliases := make(map[string]VoiceAlias)
	if err := yaml.NewDecoder(r).Decode(&aliases); err != nil {
		if err == io.EOF {
			return aliases, nil
		}
		return nil, fmt.Errorf("error parsing voice aliases: %w", err)
	}
	return aliases, nil
}
