package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"

	"github.com/dgnsrekt/rtvoice/tts"
)

// ErrUnknownFormat is returned for data that is not WAV, AIFF or MP3.
var ErrUnknownFormat = errors.New("unknown audio format")

// LoadClip reads and decodes the audio file at path.
func LoadClip(path string) (*tts.Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	clip, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", path, err)
	}
	clip.Path = path
	return clip, nil
}

// Decode decodes WAV, AIFF or MP3 data. The header decides the format;
// ext is used only when the header is not recognised.
func Decode(data []byte, ext string) (*tts.Clip, error) {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return DecodeWAV(data)
	case len(data) >= 12 && string(data[0:4]) == "FORM":
		return DecodeAIFF(data)
	case len(data) >= 3 && (string(data[0:3]) == "ID3" || (data[0] == 0xFF && data[1]&0xE0 == 0xE0)):
		return DecodeMP3(bytes.NewReader(data))
	}
	switch strings.ToLower(ext) {
	case ".mp3":
		return DecodeMP3(bytes.NewReader(data))
	}
	return nil, ErrUnknownFormat
}

type chunk struct {
	id   string
	data []byte
}

// chunks splits an IFF body into chunks. Sizes past the end are clamped,
// as streaming encoders leave them unset.
func chunks(body []byte, order binary.ByteOrder) []chunk {
	var out []chunk
	for len(body) >= 8 {
		id := string(body[0:4])
		size := int(order.Uint32(body[4:8]))
		body = body[8:]
		if size < 0 || size > len(body) {
			size = len(body)
		}
		out = append(out, chunk{id: id, data: body[:size]})
		body = body[size:]
		if size%2 == 1 && len(body) > 0 {
			body = body[1:]
		}
	}
	return out
}

// DecodeWAV decodes 8 or 16 bit PCM WAV data.
func DecodeWAV(data []byte) (*tts.Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errors.New("not a WAV file")
	}

	var (
		clip   tts.Clip
		bits   int
		format uint16
		found  bool
	)
	for _, c := range chunks(data[12:], binary.LittleEndian) {
		switch c.id {
		case "fmt ":
			if len(c.data) < 16 {
				return nil, errors.New("WAV fmt chunk too short")
			}
			format = binary.LittleEndian.Uint16(c.data[0:2])
			clip.Channels = int(binary.LittleEndian.Uint16(c.data[2:4]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(c.data[4:8]))
			bits = int(binary.LittleEndian.Uint16(c.data[14:16]))
		case "data":
			if bits == 0 {
				return nil, errors.New("WAV data chunk before fmt chunk")
			}
			found = true
			switch bits {
			case 16:
				clip.PCM = c.data[:len(c.data)-len(c.data)%(2*max(clip.Channels, 1))]
			case 8:
				clip.PCM = widen8(c.data)
			default:
				return nil, fmt.Errorf("unsupported WAV bit depth %d", bits)
			}
		}
	}

	// 1 is PCM, 0xFFFE is WAVE_FORMAT_EXTENSIBLE
	if format != 1 && format != 0xFFFE {
		return nil, fmt.Errorf("unsupported WAV encoding %d", format)
	}
	if !found {
		return nil, errors.New("WAV file has no data chunk")
	}
	if clip.Channels <= 0 || clip.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid WAV format %d Hz, %d channels", clip.SampleRate, clip.Channels)
	}
	return &clip, nil
}

// widen8 converts unsigned 8-bit samples to signed 16-bit.
func widen8(data []byte) []byte {
	out := make([]byte, 2*len(data))
	for i, b := range data {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(int(b)-128)<<8))
	}
	return out
}

// DecodeAIFF decodes 16-bit AIFF and AIFF-C ("NONE" or "sowt") data.
func DecodeAIFF(data []byte) (*tts.Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "FORM" {
		return nil, errors.New("not an AIFF file")
	}
	kind := string(data[8:12])
	if kind != "AIFF" && kind != "AIFC" {
		return nil, fmt.Errorf("unsupported FORM type %q", kind)
	}

	var (
		clip         tts.Clip
		bits         int
		littleEndian bool
		sound        []byte
	)
	for _, c := range chunks(data[12:], binary.BigEndian) {
		switch c.id {
		case "COMM":
			if len(c.data) < 18 {
				return nil, errors.New("AIFF COMM chunk too short")
			}
			clip.Channels = int(binary.BigEndian.Uint16(c.data[0:2]))
			bits = int(binary.BigEndian.Uint16(c.data[6:8]))
			clip.SampleRate = int(extended(c.data[8:18]))
			if kind == "AIFC" && len(c.data) >= 22 {
				switch string(c.data[18:22]) {
				case "sowt":
					littleEndian = true
				case "NONE", "twos":
				default:
					return nil, fmt.Errorf("unsupported AIFF-C compression %q", c.data[18:22])
				}
			}
		case "SSND":
			if len(c.data) < 8 {
				return nil, errors.New("AIFF SSND chunk too short")
			}
			offset := int(binary.BigEndian.Uint32(c.data[0:4]))
			sound = c.data[min(8+offset, len(c.data)):]
		}
	}

	if bits != 16 {
		return nil, fmt.Errorf("unsupported AIFF bit depth %d", bits)
	}
	if clip.Channels <= 0 || clip.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid AIFF format %d Hz, %d channels", clip.SampleRate, clip.Channels)
	}

	sound = sound[:len(sound)-len(sound)%(2*clip.Channels)]
	clip.PCM = make([]byte, len(sound))
	copy(clip.PCM, sound)
	if !littleEndian {
		for i := 0; i+1 < len(clip.PCM); i += 2 {
			clip.PCM[i], clip.PCM[i+1] = clip.PCM[i+1], clip.PCM[i]
		}
	}
	return &clip, nil
}

// extended parses an 80-bit IEEE 754 extended precision float.
func extended(b []byte) float64 {
	exp := int(binary.BigEndian.Uint16(b[0:2]) & 0x7FFF)
	mant := binary.BigEndian.Uint64(b[2:10])
	if exp == 0 && mant == 0 {
		return 0
	}
	v := math.Ldexp(float64(mant), exp-16383-63)
	if b[0]&0x80 != 0 {
		v = -v
	}
	return v
}

// DecodeMP3 decodes MP3 data to 16-bit stereo PCM.
func DecodeMP3(r io.Reader) (*tts.Clip, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("error decoding mp3: %w", err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("error decoding mp3: %w", err)
	}
	return &tts.Clip{SampleRate: d.SampleRate(), Channels: 2, PCM: pcm}, nil
}

// EncodeWAV writes clip as a 16-bit PCM WAV file.
func EncodeWAV(w io.Writer, clip *tts.Clip) error {
	if clip == nil {
		return errors.New("no clip")
	}
	dataLen := uint32(len(clip.PCM))
	blockAlign := uint16(clip.Channels * BytesPerSample)

	var hdr [44]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+dataLen)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1)
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(clip.Channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(clip.SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(clip.SampleRate)*uint32(blockAlign))
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], BitDepth)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataLen)

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(clip.PCM)
	return err
}

// WriteWAVFile writes clip to path as WAV.
func WriteWAVFile(path string, clip *tts.Clip) error {
	var buf bytes.Buffer
	if err := EncodeWAV(&buf, clip); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
