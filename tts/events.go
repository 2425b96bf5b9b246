package tts

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// EventKind identifies a dispatcher event.
type EventKind int

// Event kinds. For one request they fire in the order
// AudioGenerationStart, AudioGenerationComplete, SpeakStart, progress
// events, SpeakComplete. ErrorInfo replaces the rest of the sequence.
const (
	EventVoicesReady EventKind = iota + 1
	EventSpeakStart
	EventSpeakComplete
	EventCurrentWord
	EventCurrentPhoneme
	EventCurrentViseme
	EventAudioGenerationStart
	EventAudioGenerationComplete
	EventErrorInfo
	EventProviderChange
)

var eventNames = map[EventKind]string{
	EventVoicesReady:             "VoicesReady",
	EventSpeakStart:              "SpeakStart",
	EventSpeakComplete:           "SpeakComplete",
	EventCurrentWord:             "SpeakCurrentWord",
	EventCurrentPhoneme:          "SpeakCurrentPhoneme",
	EventCurrentViseme:           "SpeakCurrentViseme",
	EventAudioGenerationStart:    "SpeakAudioGenerationStart",
	EventAudioGenerationComplete: "SpeakAudioGenerationComplete",
	EventErrorInfo:               "ErrorInfo",
	EventProviderChange:          "ProviderChange",
}

func (k EventKind) String() string {
	if n, ok := eventNames[k]; ok {
		return n
	}
	return "Unknown"
}

// Event is delivered to subscribers of a Bus. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind     EventKind
	Time     time.Time
	Wrapper  *Wrapper
	Words    []string
	Index    int
	Phoneme  string
	Viseme   string
	Err      error
	Provider string
	Voices   []Voice
}

// UID returns the uid of the event's request, or "" for global events.
func (e Event) UID() string {
	if e.Wrapper == nil {
		return ""
	}
	return e.Wrapper.UID()
}

// Message returns the error text of an ErrorInfo event.
func (e Event) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Handler receives events synchronously on the publishing goroutine.
type Handler func(Event)

// Subscription identifies a registered handler.
type Subscription uint64

type subscriber struct {
	id      Subscription
	kinds   map[EventKind]bool
	handler Handler
}

func (s *subscriber) wants(k EventKind) bool {
	return len(s.kinds) == 0 || s.kinds[k]
}

// Bus is an ordered observer registry. Handlers run in subscription order.
type Bus struct {
	mu   sync.RWMutex
	next Subscription
	subs []*subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler for the given kinds, or for every kind when
// none are given.
func (b *Bus) Subscribe(handler Handler, kinds ...EventKind) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	s := &subscriber{id: b.next, handler: handler}
	if len(kinds) > 0 {
		s.kinds = make(map[EventKind]bool, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = true
		}
	}
	b.subs = append(b.subs, s)
	return s.id
}

// Unsubscribe removes a handler. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers e to every interested subscriber.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	subs := make([]*subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.wants(e.Kind) {
			s.handler(e)
		}
	}
}

// Channel subscribes a buffered channel. Events that do not fit are dropped
// with a warning. The returned function unsubscribes and closes the channel.
func (b *Bus) Channel(size int, kinds ...EventKind) (<-chan Event, func()) {
	ch := make(chan Event, size)
	var (
		mu     sync.Mutex
		closed bool
	)
	id := b.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
			log.Warn("Event channel full, dropping event", "kind", e.Kind, "uid", e.UID())
		}
	}, kinds...)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.Unsubscribe(id)
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
}
