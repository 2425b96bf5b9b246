package tts

import (
	"fmt"
	"strings"
)

// Gender of a voice.
type Gender int

const (
	// GenderUnknown matches every voice in gender queries.
	GenderUnknown Gender = iota
	// GenderMale is a male voice.
	GenderMale
	// GenderFemale is a female voice.
	GenderFemale
)

// String returns the gender name.
func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "MALE"
	case GenderFemale:
		return "FEMALE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (g Gender) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(g.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Gender) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch strings.ToLower(s) {
	case "", "unknown":
		*g = GenderUnknown
		return nil
	}
	*g = StringToGender(s)
	if *g == GenderUnknown {
		return fmt.Errorf("invalid gender %q", s)
	}
	return nil
}

// StringToGender converts "male"/"m" and "female"/"f" (any case) to a Gender.
func StringToGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m":
		return GenderMale
	case "female", "f":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

var appleFemaleVoices = []string{
	"Alice", "Alva", "Amelie", "Anna", "Carmit", "Catherine", "Damayanti", "Ellen",
	"Fiona", "Helena", "Ioana", "Joana", "Kanya", "Karen", "Kyoko", "Laura", "Lekha",
	"Li-mu", "Luciana", "Marie", "Mariska", "Martha", "Mei-Jia", "Melina", "Milena",
	"Moira", "Monica", "Nicky", "Nora", "O-ren", "Paulina", "Samantha", "Sara",
	"Satu", "Sin-ji", "Tessa", "Ting-Ting", "Veena", "Victoria", "Yelda", "Yu-shu",
	"Yuna", "Zosia", "Zuzana",
}

var appleMaleVoices = []string{
	"Aaron", "Alex", "Arthur", "Daniel", "Diego", "Fred", "Gordon", "Hattori",
	"Jorge", "Juan", "Luca", "Maged", "Martin", "Thomas", "Xander", "Yuri",
}

// AppleVoiceNameToGender guesses the gender of an Apple system voice from its name.
func AppleVoiceNameToGender(name string) Gender {
	for _, v := range appleFemaleVoices {
		if strings.Contains(name, v) {
			return GenderFemale
		}
	}
	for _, v := range appleMaleVoices {
		if strings.Contains(name, v) {
			return GenderMale
		}
	}
	return GenderUnknown
}
