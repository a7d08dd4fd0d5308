package server

import (
	"net"
	"sync"

	"github.com/sajilochat/relay/pkg/protocol"
)

// Session is the server-side state for one connection: the stream itself,
// the display name assigned at handshake, and a write mutex so envelopes
// from the owning goroutine and from broadcasting peers never interleave
// mid-frame.
type Session struct {
	conn   net.Conn
	name   string
	authed bool

	wmu sync.Mutex
}

func newSession(conn net.Conn) *Session {
	return &Session{conn: conn}
}

// Name returns the display name assigned at handshake, or "" before it.
func (s *Session) Name() string {
	return s.name
}

// send writes one envelope to the session's connection. Safe for
// concurrent use.
func (s *Session) send(env *protocol.Envelope) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return protocol.WriteEnvelope(s.conn, env)
}

// sendLine writes one framed handshake line.
func (s *Session) sendLine(line string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return protocol.WriteFrame(s.conn, []byte(line))
}

func (s *Session) close() {
	_ = s.conn.Close()
}
