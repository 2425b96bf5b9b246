package tts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestAudioFileName(t *testing.T) {
	got := AudioFileName("/tmp/audio", "abc", ".wav")
	if want := filepath.Join("/tmp/audio", "rtvoice_abc.wav"); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestDeleteAudioFiles(t *testing.T) {
	s, _ := newTestSpeaker(t, nil)
	cfg := s.Config()
	dir := cfg.AudioPath()

	for _, name := range []string{"rtvoice_a.wav", "rtvoice_b.mp3", "keep.wav"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.DeleteAudioFiles(context.Background())
	if err != nil {
		t.Fatalf("DeleteAudioFiles failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 deleted files, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "keep.wav")); err != nil {
		t.Errorf("Expected unrelated file to survive: %v", err)
	}
}
