// Package audio plays generated speech. It decodes WAV, AIFF and MP3 files
// into clips, converts them to the output format and plays them through an
// oto context, or through a mock context where no audio device exists.
package audio
