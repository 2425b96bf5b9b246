package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dgnsrekt/rtvoice/tts"
)

// Format describes signed 16-bit little endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// OutputFormat is the format every context plays.
var OutputFormat = Format{SampleRate: SampleRate, Channels: Channels}

// FrameSize returns the number of bytes per frame.
func (f Format) FrameSize() int {
	return BytesPerSample * f.Channels
}

// Validate checks that data holds whole frames.
func (f Format) Validate(data []byte) error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("invalid PCM format %d Hz, %d channels", f.SampleRate, f.Channels)
	}
	if len(data)%f.FrameSize() != 0 {
		return fmt.Errorf("PCM data length %d is not aligned to %d-byte frames", len(data), f.FrameSize())
	}
	return nil
}

func samples(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return out
}

func encode(s []int16) []byte {
	out := make([]byte, 2*len(s))
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

// Downmix averages the channels of interleaved PCM into one.
func Downmix(data []byte, channels int) []byte {
	if channels <= 1 {
		return data
	}
	in := samples(data)
	frames := len(in) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			sum += int32(in[i*channels+ch])
		}
		out[i] = int16(sum / int32(channels))
	}
	return encode(out)
}

// Resample converts mono PCM between sample rates with linear interpolation.
func Resample(data []byte, from, to int) ([]byte, error) {
	if from <= 0 || to <= 0 {
		return nil, errors.New("sample rates must be positive")
	}
	if from == to {
		return data, nil
	}
	in := samples(data)
	if len(in) == 0 {
		return nil, nil
	}

	ratio := float64(to) / float64(from)
	out := make([]int16, int(float64(len(in))*ratio))
	for i := range out {
		pos := float64(i) / ratio
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = int16(float64(in[idx])*(1-frac) + float64(in[idx+1])*frac)
	}
	return encode(out), nil
}

// Convert returns the PCM of clip in format f.
func Convert(clip *tts.Clip, f Format) ([]byte, error) {
	if clip == nil {
		return nil, errors.New("no clip")
	}
	src := Format{SampleRate: clip.SampleRate, Channels: clip.Channels}
	if err := src.Validate(clip.PCM); err != nil {
		return nil, err
	}
	if f.Channels != 1 {
		return nil, fmt.Errorf("unsupported output channel count %d", f.Channels)
	}
	return Resample(Downmix(clip.PCM, clip.Channels), clip.SampleRate, f.SampleRate)
}

// Scale multiplies every sample by gain, clamping to the int16 range.
func Scale(data []byte, gain float64) []byte {
	in := samples(data)
	for i, v := range in {
		in[i] = int16(max(math.MinInt16, min(math.MaxInt16, float64(v)*gain)))
	}
	return encode(in)
}

// Silence returns d of silent PCM in format f.
func Silence(d float64, f Format) []byte {
	frames := int(d * float64(f.SampleRate))
	return make([]byte, frames*f.FrameSize())
}
