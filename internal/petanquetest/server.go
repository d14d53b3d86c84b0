// Package petanquetest provides an in-process petanque peer for tests.
package petanquetest

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
)

// Request is a client request as decoded by the test peer.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Reply describes what the peer writes back for one request.
type Reply struct {
	// Raw, when set, is written verbatim followed by a newline.
	Raw string
	// ID overrides the id of the reply.
	ID     *int
	Result any
	Error  string
	// Silent writes nothing.
	Silent bool
}

// Result replies {"id":<request id>,"result":v}.
func Result(v any) Reply { return Reply{Result: v} }

// Error replies {"error":msg}.
func Error(msg string) Reply { return Reply{Error: msg} }

// Raw replies with s verbatim.
func Raw(s string) Reply { return Reply{Raw: s} }

// WithID replies with v under a different id.
func WithID(id int, v any) Reply { return Reply{ID: &id, Result: v} }

// Handler answers one request.
type Handler func(req Request) Reply

// Server is a petanque peer listening on a loopback TCP port.
type Server struct {
	handler  Handler
	listener net.Listener

	mu       sync.Mutex
	requests []Request
	conns    []net.Conn

	wg sync.WaitGroup
}

// NewServer starts a peer that answers with h. It stops when the test ends.
func NewServer(t testing.TB, h Handler) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &Server{handler: h, listener: ln}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// Addr returns the host:port the peer listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Requests returns every request received so far, in order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Pipe serves one connection over net.Pipe and returns the client end.
func (s *Server) Pipe() net.Conn {
	client, server := net.Pipe()
	s.track(server)
	s.wg.Add(1)
	go s.serve(server)
	return client
}

// Close stops the listener and drops open connections.
func (s *Server) Close() {
	s.listener.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.track(conn)
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			writeLine(conn, []byte(`{"error":"parse error"}`))
			continue
		}

		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		reply := s.handler(req)
		data, err := encodeReply(req, reply)
		if err != nil {
			return
		}
		if data == nil {
			continue
		}
		if err := writeLine(conn, data); err != nil {
			return
		}
	}
}

func encodeReply(req Request, reply Reply) ([]byte, error) {
	switch {
	case reply.Silent:
		return nil, nil
	case reply.Raw != "":
		return []byte(reply.Raw), nil
	case reply.Error != "":
		return json.Marshal(map[string]string{"error": reply.Error})
	}

	id := req.ID
	if reply.ID != nil {
		id = *reply.ID
	}
	result, err := json.Marshal(reply.Result)
	if err != nil {
		return nil, errors.New("petanquetest: marshal result: " + err.Error())
	}
	return json.Marshal(map[string]any{"id": id, "result": json.RawMessage(result)})
}

func writeLine(conn net.Conn, data []byte) error {
	_, err := conn.Write(append(data, '\n'))
	return err
}
