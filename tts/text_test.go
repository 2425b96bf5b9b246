package tts

import (
	"reflect"
	"testing"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		text string
		opts CleanOptions
		want string
	}{
		{"nothing", "  Hello  world ", CleanOptions{}, "Hello  world"},
		{"tags", "<b>Hello</b> world", CleanOptions{RemoveTags: true}, "Hello world"},
		{"spaces", "Hello \t  world", CleanOptions{ClearSpaces: true}, "Hello world"},
		{"line endings", "Hello\r\nworld\nagain", CleanOptions{ClearLineEndings: true}, "Hello world again"},
		{"all", "<p>Hello</p>\n\n  <i>world</i>", CleanOptions{RemoveTags: true, ClearSpaces: true, ClearLineEndings: true}, "Hello world"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.text, tt.opts); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	got, warning := Normalize("Hello\n  world", 0, false)
	if got != "Hello world" || warning != "" {
		t.Errorf("Expected untruncated text, got %q (%q)", got, warning)
	}

	got, warning = Normalize("Grüße aus Zürich", 5, false)
	if got != "Grüße" {
		t.Errorf("Expected rune based truncation, got %q", got)
	}
	if warning == "" {
		t.Error("Expected a truncation warning")
	}

	if got, _ := Normalize("<speak>Hi</speak>", 0, true); got != "Hi" {
		t.Errorf("Expected tags removed, got %q", got)
	}
}

func TestSplitWords(t *testing.T) {
	got := SplitWords("  one two   three ")
	want := []string{"one", "two", "three"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if got := SplitWords(""); len(got) != 0 {
		t.Errorf("Expected no words, got %v", got)
	}
}

func TestValidXML(t *testing.T) {
	tests := []struct {
		text, want string
	}{
		{"Tom & Jerry", "Tom &amp; Jerry"},
		{"1 < 2 > 0", "1 &lt; 2 &gt; 0"},
		{"AT&T", "AT&T"},
		{"<b>bold</b>", "<b>bold</b>"},
	}
	for _, tt := range tests {
		if got := ValidXML(tt.text); got != tt.want {
			t.Errorf("ValidXML(%q): expected %q, got %q", tt.text, tt.want, got)
		}
	}
}

func TestMarkSpokenText(t *testing.T) {
	words := []string{"one", "two", "three"}

	tests := []struct {
		name  string
		index int
		opts  *MarkOptions
		want  string
	}{
		{"default markers", 1, nil, "one [two] three "},
		{"first word", 0, nil, "[one] two three "},
		{"mark all", 2, &MarkOptions{MarkAll: true, Prefix: "*", Suffix: "*"}, "*one* *two* *three* "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarkSpokenText(words, tt.index, tt.opts)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}

	for _, index := range []int{-1, 3} {
		if _, err := MarkSpokenText(words, index, nil); err == nil {
			t.Errorf("Expected an error for index %d", index)
		}
	}
	if _, err := MarkSpokenText(nil, 0, nil); err == nil {
		t.Error("Expected an error for no words")
	}
}
