package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/xid"
	"gopkg.in/yaml.v3"
)

// SpeakMode selects how a scripted text is spoken.
type SpeakMode string

const (
	// ModeSpeak generates audio and plays it through a sink.
	ModeSpeak SpeakMode = "speak"
	// ModeNative speaks on the device.
	ModeNative SpeakMode = "native"
)

// ErrSequencesDone is returned by PlayNext after the last sequence.
var ErrSequencesDone = errors.New("no sequences left")

// Sequence is one entry of a Sequencer: a text with its own voice and
// prosody.
type Sequence struct {
	Text   string     `yaml:"text"`
	Voices VoiceAlias `yaml:"voices"`
	Mode   SpeakMode  `yaml:"mode"`
	Rate   float64    `yaml:"rate"`
	Pitch  float64    `yaml:"pitch"`
	Volume float64    `yaml:"volume"`
}

// UnmarshalYAML defaults absent rate, pitch and volume to 1 and the mode
// to speak.
func (q *Sequence) UnmarshalYAML(n *yaml.Node) error {
	type plain Sequence
	p := plain{Mode: ModeSpeak, Rate: 1, Pitch: 1, Volume: 1}
	if err := n.Decode(&p); err != nil {
		return err
	}
	switch p.Mode {
	case ModeSpeak, ModeNative:
	default:
		return fmt.Errorf("invalid speak mode %q", p.Mode)
	}
	*q = Sequence(p)
	return nil
}

// Wrapper builds the request for q, resolving its voice against the
// active provider of s.
func (q Sequence) Wrapper(s *Speaker) *Wrapper {
	opts := []WrapperOption{WithRate(q.Rate), WithPitch(q.Pitch), WithVolume(q.Volume)}
	if q.Voices != (VoiceAlias{}) {
		if v := q.Voices.Resolve(s); v != nil {
			opts = append(opts, WithVoice(v))
		}
	}
	return NewWrapper(q.Text, opts...)
}

// Sequencer speaks a list of sequences one after the other.
type Sequencer struct {
	// Delay is waited before each sequence.
	Delay     time.Duration `yaml:"delay"`
	Sequences []Sequence    `yaml:"sequences"`

	next int
}

// LoadSequencer reads a YAML document with an optional delay and a list
// of sequences.
func LoadSequencer(r io.Reader) (*Sequencer, error) {
	q := &Sequencer{}
	if err := yaml.NewDecoder(r).Decode(q); err != nil && err != io.EOF {
		return nil, fmt.Errorf("error parsing sequences: %w", err)
	}
	if q.Delay < 0 {
		q.Delay = 0
	}
	return q, nil
}

// Play speaks the sequence at index and waits until it is done.
func (q *Sequencer) Play(ctx context.Context, s *Speaker, index int) error {
	if index < 0 || index >= len(q.Sequences) {
		return fmt.Errorf("sequence %d is out of range [0,%d)", index, len(q.Sequences))
	}
	q.next = index + 1

	if q.Delay > 0 {
		t := time.NewTimer(q.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	seq := q.Sequences[index]
	return s.SpeakAndWait(ctx, seq.Wrapper(s), seq.Mode == ModeNative)
}

// PlayNext speaks the sequence after the last one played.
func (q *Sequencer) PlayNext(ctx context.Context, s *Speaker) error {
	if q.next >= len(q.Sequences) {
		return ErrSequencesDone
	}
	return q.Play(ctx, s, q.next)
}

// PlayAll speaks every sequence from the start. It stops at the first
// failure.
func (q *Sequencer) PlayAll(ctx context.Context, s *Speaker) error {
	q.next = 0
	for {
		err := q.PlayNext(ctx, s)
		if errors.Is(err, ErrSequencesDone) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// SpeakAndWait submits w and blocks until it completes. It returns the
// reported error, ErrSilenced when the request was silenced elsewhere, or
// the context error after silencing the request.
func (s *Speaker) SpeakAndWait(ctx context.Context, w *Wrapper, native bool) error {
	if w == nil {
		return ErrNilWrapper
	}
	events, cancel := s.bus.Channel(16, EventSpeakComplete, EventErrorInfo)
	defer cancel()

	uid := w.UID()
	if native {
		s.SpeakNativeWrapper(w)
	} else {
		s.SpeakWrapper(w)
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.SilenceUID(uid)
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return ErrSilenced
			}
			if e.UID() != uid {
				continue
			}
			if e.Kind == EventErrorInfo {
				return e.Err
			}
			return nil
		case <-ticker.C:
			s.mu.Lock()
			running := s.runningLocked(uid)
			s.mu.Unlock()
			if running {
				continue
			}
			// the terminal event is published before the request ends
			for {
				select {
				case e, ok := <-events:
					if !ok {
						return ErrSilenced
					}
					if e.UID() != uid {
						continue
					}
					if e.Kind == EventErrorInfo {
						return e.Err
					}
					return nil
				default:
					return ErrSilenced
				}
			}
		}
	}
}

// PlayClip plays clip on a dispatcher sink and waits until it ends. The
// sink follows the global pause and mute state; Silence stops it.
func (s *Speaker) PlayClip(ctx context.Context, clip *Clip) error {
	if clip == nil {
		return ErrNoSink
	}
	s.mu.Lock()
	if s.closed || s.sinkFactory == nil {
		s.mu.Unlock()
		return ErrNoSink
	}
	uid := "clip-" + xid.New().String()
	sink := s.sinkFactory()
	sink.SetMute(s.muted)
	if s.paused {
		sink.Pause()
	}
	sink.SetClip(clip)
	s.genericSinks[uid] = sink
	s.clips[uid] = true
	s.mu.Unlock()

	err := sink.Play(ctx)

	s.mu.Lock()
	delete(s.clips, uid)
	owned := s.genericSinks[uid] == sink
	if owned {
		delete(s.genericSinks, uid)
	}
	s.mu.Unlock()

	if !owned {
		return ErrSilenced
	}
	if cerr := sink.Close(); cerr != nil {
		s.logger.Debug("closing sink", "uid", uid, "error", cerr)
	}
	return err
}
