// Package bridgetest provides an in-process companion app for tests.
package bridgetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dgnsrekt/rtvoice/internal/bridge"
)

// HandlerFunc answers one call. A returned error is sent as the error text.
type HandlerFunc func(method string, params json.RawMessage) (any, error)

// Server is a websocket bridge endpoint backed by a HandlerFunc.
type Server struct {
	*httptest.Server
	handler HandlerFunc

	mu    sync.Mutex
	conns []*websocket.Conn
	calls []string

	writeMu sync.Mutex
}

// NewServer starts a server answering calls with handler.
func NewServer(handler HandlerFunc) *Server {
	s := &Server{handler: handler}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// URL returns the ws:// address of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

// Calls returns the methods called so far, in order.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Push sends a callback to every connected client.
func (s *Server) Push(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.conns...)
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, c := range conns {
		if err := c.WriteJSON(bridge.Message{Method: method, Params: raw}); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every connection and the server.
func (s *Server) Close() {
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.Server.Close()
}

var upgrader = websocket.Upgrader{}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	for {
		var msg bridge.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		s.mu.Lock()
		s.calls = append(s.calls, msg.Method)
		s.mu.Unlock()

		// handlers may block, as the engine would
		go s.answer(conn, msg)
	}
}

func (s *Server) answer(conn *websocket.Conn, msg bridge.Message) {
	result, err := s.handler(msg.Method, msg.Params)
	if msg.ID == 0 {
		return
	}
	reply := bridge.Message{ID: msg.ID}
	if err != nil {
		reply.Error = err.Error()
	} else if result != nil {
		raw, mErr := json.Marshal(result)
		if mErr != nil {
			reply.Error = mErr.Error()
		}
		reply.Result = raw
	}
	s.writeMu.Lock()
	_ = conn.WriteJSON(reply)
	s.writeMu.Unlock()
}
