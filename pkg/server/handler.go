package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"
	"unicode"

	"github.com/sajilochat/relay/pkg/auth"
	"github.com/sajilochat/relay/pkg/model"
	"github.com/sajilochat/relay/pkg/protocol"
)

const maxMessageLength = 2000

// handshakeTimeout bounds how long a fresh connection may stall before
// sending its first handshake message.
const handshakeTimeout = 10 * time.Second

// handleConn runs one connection's full lifecycle: handshake, registry
// admission, the receive loop, and the one-shot cleanup.
func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	remoteAddr := conn.RemoteAddr().String()
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	defer func() {
		s.metrics.ActiveConnections.Add(-1)
		s.metrics.TotalDisconnects.Add(1)
	}()
	slog.Debug("new connection", "remote", remoteAddr)

	sess := newSession(conn)
	if err := s.handshake(sess); err != nil {
		slog.Debug("handshake failed", "remote", remoteAddr, "err", err)
		return
	}

	// Cleanup runs exactly once, on any terminal condition: unregister,
	// departure notice, refreshed user list for everyone left.
	defer func() {
		s.registry.Unregister(sess.name)
		slog.Info("client disconnected", "user", sess.name, "remote", remoteAddr)
		s.broadcast(&protocol.Envelope{
			Type:    protocol.TypeSystem,
			Message: fmt.Sprintf("%s left the chat", sess.name),
		}, sess)
		s.broadcastUserList()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		env, err := protocol.ReadEnvelope(conn)
		if err != nil {
			switch {
			case err == io.EOF || isClosedErr(err):
				// clean peer close
			case errors.Is(err, protocol.ErrProtocol):
				s.metrics.ProtocolErrors.Add(1)
				slog.Warn("protocol error, dropping connection", "user", sess.name, "err", err)
			default:
				slog.Debug("read error", "user", sess.name, "err", err)
			}
			return
		}

		s.route(sess, env)
	}
}

// handshake assigns the session's display name and admits it to the
// registry. On any failure the client has already been told why and the
// registry is untouched.
func (s *Server) handshake(sess *Session) error {
	_ = sess.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	var name, token string
	if s.gate != nil {
		// Authenticated variant: one framed ACTION|username|password line.
		raw, err := protocol.ReadFrame(sess.conn)
		if err != nil {
			return err
		}
		req, err := protocol.ParseAuthRequest(string(raw))
		if err != nil {
			_ = sess.sendLine(protocol.FormatAuthError("Invalid auth format"))
			return err
		}
		if err := model.ValidateUsername(req.Username); err != nil {
			s.metrics.FailedAuths.Add(1)
			_ = sess.sendLine(protocol.FormatAuthError("Invalid username: " + err.Error()))
			return err
		}

		token, err = s.gate.Authenticate(req.Action, req.Username, req.Password)
		if err != nil {
			s.metrics.FailedAuths.Add(1)
			_ = sess.sendLine(protocol.FormatAuthError(authReason(err)))
			return err
		}
		name = req.Username
		sess.authed = true
	} else {
		// Open variant: the server asks for a display name.
		if err := sess.send(&protocol.Envelope{Type: protocol.TypeRequestUsername}); err != nil {
			return err
		}
		env, err := protocol.ReadEnvelope(sess.conn)
		if err != nil {
			return err
		}
		name = env.Username
		if err := model.ValidateUsername(name); err != nil {
			_ = sess.send(&protocol.Envelope{
				Type:    protocol.TypeError,
				Message: "Invalid username: " + err.Error(),
			})
			return err
		}
	}

	_ = sess.conn.SetReadDeadline(time.Time{}) // clear deadline

	sess.name = name
	if err := s.registry.Register(name, sess); err != nil {
		s.metrics.NameConflicts.Add(1)
		if sess.authed {
			_ = sess.sendLine(protocol.FormatAuthError("Username already taken"))
		} else {
			_ = sess.send(&protocol.Envelope{Type: protocol.TypeError, Message: "Username already taken"})
		}
		return err
	}

	if sess.authed {
		s.metrics.SuccessfulAuths.Add(1)
		if err := sess.sendLine(protocol.FormatToken(token)); err != nil {
			s.registry.Unregister(name)
			return err
		}
	}

	if err := sess.send(&protocol.Envelope{
		Type:    protocol.TypeSystem,
		Message: fmt.Sprintf("Welcome to the server, %s!", name),
	}); err != nil {
		s.registry.Unregister(name)
		return err
	}

	slog.Info("client admitted", "user", name, "authed", sess.authed)
	s.broadcast(&protocol.Envelope{
		Type:    protocol.TypeSystem,
		Message: fmt.Sprintf("%s joined the chat", name),
	}, sess)
	s.broadcastUserList()
	return nil
}

// route dispatches one decoded envelope from an Active session. Unknown or
// malformed-but-decodable envelopes get an error reply and the connection
// stays Active; only framing failures are fatal, and those never reach here.
func (s *Server) route(sess *Session, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeGroup:
		text := sanitizeText(strings.TrimSpace(env.Message))
		if text == "" || len(text) > maxMessageLength {
			return // empty or too long, silently drop
		}
		s.metrics.GroupMessages.Add(1)
		s.broadcast(&protocol.Envelope{
			Type:    protocol.TypeGroup,
			From:    sess.name,
			Message: text,
		}, sess)

	case protocol.TypeDM:
		text := sanitizeText(strings.TrimSpace(env.Message))
		recipient, ok := s.registry.Lookup(env.To)
		if !ok {
			s.metrics.RoutingErrors.Add(1)
			_ = sess.send(&protocol.Envelope{
				Type:    protocol.TypeError,
				Message: fmt.Sprintf("User %s not found or offline", env.To),
			})
			return
		}
		if err := recipient.send(&protocol.Envelope{
			Type:    protocol.TypeDM,
			From:    sess.name,
			Message: text,
		}); err != nil {
			slog.Debug("dm delivery failed", "from", sess.name, "to", env.To, "err", err)
		}
		// Delivery confirmation back to the sender.
		_ = sess.send(&protocol.Envelope{
			Type:    protocol.TypeDM,
			From:    sess.name,
			To:      env.To,
			Message: text,
			Sent:    true,
		})
		s.metrics.DirectMessages.Add(1)

	case protocol.TypeRequestUsers:
		_ = sess.send(&protocol.Envelope{
			Type:  protocol.TypeUserList,
			Users: s.registry.Names(),
		})

	default:
		_ = sess.send(&protocol.Envelope{
			Type:    protocol.TypeError,
			Message: fmt.Sprintf("Unknown message type %q", env.Type),
		})
	}
}

// broadcast sends an envelope to every registered session except exclude.
// Recipients are snapshotted first; a concurrent unregister or a failed
// write to one peer never affects the rest of the iteration.
func (s *Server) broadcast(env *protocol.Envelope, exclude *Session) {
	for _, peer := range s.registry.Sessions() {
		if peer == exclude {
			continue
		}
		if err := peer.send(env); err != nil {
			slog.Debug("broadcast write failed", "user", peer.name, "err", err)
		}
	}
}

// broadcastUserList sends a refreshed user list to every registered session.
func (s *Server) broadcastUserList() {
	s.broadcast(&protocol.Envelope{
		Type:  protocol.TypeUserList,
		Users: s.registry.Names(),
	}, nil)
}

// authReason maps gate errors to the reason strings sent on the wire.
func authReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrUserExists):
		return "User already exists"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid credentials"
	case errors.Is(err, auth.ErrInvalidAction):
		return "Invalid action"
	default:
		return "Internal error"
	}
}

func isClosedErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "use of closed network connection")
}

// sanitizeText strips control characters (except newline) from user-supplied
// text to prevent UI spoofing, terminal escape injection, and null-byte
// attacks.
func sanitizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' ' // collapse newlines to spaces
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
