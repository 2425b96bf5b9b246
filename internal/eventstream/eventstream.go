// Package eventstream publishes dispatcher events to websocket clients and
// accepts speak and control commands from them.
package eventstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/dgnsrekt/rtvoice/tts"
)

// Dispatcher is the part of tts.Speaker the stream drives.
type Dispatcher interface {
	Events() *tts.Bus
	Speak(text string, opts ...tts.WrapperOption) string
	SpeakNative(text string, opts ...tts.WrapperOption) string
	Silence()
	SilenceUID(uid string)
	Pause(uid string)
	UnPause(uid string)
	VoiceForName(name string, exact bool) *tts.Voice
}

// Event is the JSON form of a tts.Event.
type Event struct {
	Kind     string    `json:"kind"`
	Time     time.Time `json:"time"`
	UID      string    `json:"uid,omitempty"`
	Text     string    `json:"text,omitempty"`
	Words    []string  `json:"words,omitempty"`
	Index    int       `json:"index,omitempty"`
	Phoneme  string    `json:"phoneme,omitempty"`
	Viseme   string    `json:"viseme,omitempty"`
	Error    string    `json:"error,omitempty"`
	Provider string    `json:"provider,omitempty"`
	Voices   int       `json:"voices,omitempty"`
}

// FromEvent converts a dispatcher event.
func FromEvent(e tts.Event) Event {
	out := Event{
		Kind:     e.Kind.String(),
		Time:     e.Time,
		UID:      e.UID(),
		Words:    e.Words,
		Index:    e.Index,
		Phoneme:  e.Phoneme,
		Viseme:   e.Viseme,
		Error:    e.Message(),
		Provider: e.Provider,
		Voices:   len(e.Voices),
	}
	if e.Wrapper != nil {
		out.Text = e.Wrapper.Text()
	}
	return out
}

// Command is sent by clients.
type Command struct {
	Type   string  `json:"type"`
	Text   string  `json:"text,omitempty"`
	Voice  string  `json:"voice,omitempty"`
	Rate   float64 `json:"rate,omitempty"`
	Pitch  float64 `json:"pitch,omitempty"`
	Volume float64 `json:"volume,omitempty"`
	Native bool    `json:"native,omitempty"`
	UID    string  `json:"uid,omitempty"`
}

// Reply answers a command.
type Reply struct {
	Type  string `json:"type"`
	UID   string `json:"uid,omitempty"`
	Error string `json:"error,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan any
}

// Server is an http.Handler upgrading requests to event streams.
type Server struct {
	dispatcher Dispatcher
	logger     *log.Logger
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	sub     tts.Subscription
}

// NewServer subscribes to the events of d.
func NewServer(d Dispatcher, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		dispatcher: d,
		logger:     logger,
		clients:    make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.sub = d.Events().Subscribe(s.broadcast)
	return s
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) broadcast(e tts.Event) {
	msg := FromEvent(e)
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			s.logger.Warn("Client too slow, dropping event", "kind", msg.Kind, "uid", msg.UID)
		}
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan any, 64)}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("Event stream client connected", "remote", r.RemoteAddr)

	go s.writeLoop(c)
	s.readLoop(c)

	s.mu.Lock()
	delete(s.clients, c)
	close(c.send)
	s.mu.Unlock()
	s.logger.Debug("Event stream client disconnected", "remote", r.RemoteAddr)
}

func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(msg); err != nil {
			s.logger.Debug("Write failed", "error", err)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) readLoop(c *client) {
	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				s.reply(c, Reply{Type: "error", Error: "invalid command"})
				continue
			}
			return
		}
		s.reply(c, s.Execute(cmd))
	}
}

func (s *Server) reply(c *client, r Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; !ok {
		return
	}
	select {
	case c.send <- r:
	default:
	}
}

// Execute runs one command against the dispatcher.
func (s *Server) Execute(cmd Command) Reply {
	switch cmd.Type {
	case "speak":
		if cmd.Text == "" {
			return Reply{Type: "error", Error: "text is empty"}
		}
		opts := []tts.WrapperOption{}
		if cmd.Voice != "" {
			v := s.dispatcher.VoiceForName(cmd.Voice, false)
			if v == nil {
				return Reply{Type: "error", Error: fmt.Sprintf("voice %q not found", cmd.Voice)}
			}
			opts = append(opts, tts.WithVoice(v))
		}
		if cmd.Rate > 0 {
			opts = append(opts, tts.WithRate(cmd.Rate))
		}
		if cmd.Pitch > 0 {
			opts = append(opts, tts.WithPitch(cmd.Pitch))
		}
		if cmd.Volume > 0 {
			opts = append(opts, tts.WithVolume(cmd.Volume))
		}
		var uid string
		if cmd.Native {
			uid = s.dispatcher.SpeakNative(cmd.Text, opts...)
		} else {
			uid = s.dispatcher.Speak(cmd.Text, opts...)
		}
		return Reply{Type: "accepted", UID: uid}
	case "silence":
		if cmd.UID == "" {
			s.dispatcher.Silence()
		} else {
			s.dispatcher.SilenceUID(cmd.UID)
		}
	case "pause":
		s.dispatcher.Pause(cmd.UID)
	case "unpause":
		s.dispatcher.UnPause(cmd.UID)
	default:
		return Reply{Type: "error", Error: fmt.Sprintf("unknown command %q", cmd.Type)}
	}
	return Reply{Type: "ok", UID: cmd.UID}
}

// Close unsubscribes from the dispatcher and disconnects every client.
func (s *Server) Close() error {
	s.dispatcher.Events().Unsubscribe(s.sub)
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		_ = c.conn.Close()
	}
	return nil
}
