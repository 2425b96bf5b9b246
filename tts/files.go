package tts

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AudioFileName returns the generated file path for uid in dir.
func AudioFileName(dir, uid, ext string) string {
	return filepath.Join(dir, AudioFilePrefix+uid+ext)
}

// DeleteAudioFiles removes generated audio files from the audio directory.
// On Windows a short random pause between files keeps scanners from
// holding them open.
func (s *Speaker) DeleteAudioFiles(ctx context.Context) (int, error) {
	s.mu.Lock()
	dir := s.cfg.AudioPath()
	goos := s.goos
	s.mu.Unlock()

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var (
		deleted int
		errs    []error
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), AudioFilePrefix) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
		if goos == "windows" {
			time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
		}
	}
	s.logger.Debug("deleted audio files", "dir", dir, "count", deleted)
	return deleted, errors.Join(errs...)
}
