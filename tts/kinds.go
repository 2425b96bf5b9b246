package tts

import (
	"fmt"
	"strings"
)

// ProviderKind identifies the family of the active provider. Voice aliases
// resolve their per-platform name through it.
type ProviderKind string

// Provider kinds.
const (
	KindNone    ProviderKind = ""
	KindWindows ProviderKind = "windows"
	KindMacOS   ProviderKind = "macos"
	KindLinux   ProviderKind = "espeak"
	KindAndroid ProviderKind = "android"
	KindIOS     ProviderKind = "ios"
	KindMary    ProviderKind = "mary"
	KindCustom  ProviderKind = "custom"
)

// ESpeakModifier is an eSpeak voice variant appended to the voice name.
type ESpeakModifier string

// eSpeak voice variants.
const (
	ESpeakNone    ESpeakModifier = ""
	ESpeakM1      ESpeakModifier = "m1"
	ESpeakM2      ESpeakModifier = "m2"
	ESpeakM3      ESpeakModifier = "m3"
	ESpeakM4      ESpeakModifier = "m4"
	ESpeakM5      ESpeakModifier = "m5"
	ESpeakM6      ESpeakModifier = "m6"
	ESpeakF1      ESpeakModifier = "f1"
	ESpeakF2      ESpeakModifier = "f2"
	ESpeakF3      ESpeakModifier = "f3"
	ESpeakF4      ESpeakModifier = "f4"
	ESpeakCroak   ESpeakModifier = "croak"
	ESpeakWhisper ESpeakModifier = "whisper"
)

var espeakModifiers = []ESpeakModifier{
	ESpeakNone, ESpeakM1, ESpeakM2, ESpeakM3, ESpeakM4, ESpeakM5, ESpeakM6,
	ESpeakF1, ESpeakF2, ESpeakF3, ESpeakF4, ESpeakCroak, ESpeakWhisper,
}

// ParseESpeakModifier parses a variant name. "none" and "" map to ESpeakNone.
func ParseESpeakModifier(s string) (ESpeakModifier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "none" {
		return ESpeakNone, nil
	}
	for _, m := range espeakModifiers {
		if string(m) == s {
			return m, nil
		}
	}
	return ESpeakNone, fmt.Errorf("invalid eSpeak modifier %q", s)
}

// MaryType selects the input markup sent to a MaryTTS server.
type MaryType string

// MaryTTS input types.
const (
	MaryRawXML    MaryType = "RAWMARYXML"
	MaryEmotionML MaryType = "EMOTIONML"
	MarySSML      MaryType = "SSML"
	MaryText      MaryType = "TEXT"
)

// ParseMaryType parses a MaryTTS input type, case-insensitively.
func ParseMaryType(s string) (MaryType, error) {
	switch MaryType(strings.ToUpper(strings.TrimSpace(s))) {
	case MaryRawXML, "":
		return MaryRawXML, nil
	case MaryEmotionML:
		return MaryEmotionML, nil
	case MarySSML:
		return MarySSML, nil
	case MaryText:
		return MaryText, nil
	}
	return MaryRawXML, fmt.Errorf("invalid MaryTTS type %q", s)
}
