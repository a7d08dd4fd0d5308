// Package protocol defines the relay's envelope types and message framing.
//
// Every message in both directions is framed the same way: a fixed-width
// ASCII decimal header stating the exact byte length of the payload that
// follows, padded with spaces to HeaderLen. Payloads are JSON envelopes in
// the steady state and pipe-delimited text lines during the credential
// handshake. A single Read is never assumed to return a whole message;
// both header and payload are filled with io.ReadFull.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// HeaderLen is the fixed byte width of the length header.
	HeaderLen = 64

	// MaxPayload is the maximum payload size accepted on the wire (64KB).
	MaxPayload = 65536
)

// ErrProtocol marks framing-level failures: a header that is not a decimal
// number, a declared length over MaxPayload, or an undecodable payload.
// Any error wrapping ErrProtocol is fatal for the connection.
var ErrProtocol = errors.New("protocol error")

// Envelope type tags.
const (
	TypeRequestUsername = "request_username"
	TypeSystem          = "system"
	TypeUserList        = "user_list"
	TypeGroup           = "group"
	TypeDM              = "dm"
	TypeError           = "error"
	TypeRequestUsers    = "request_users"
)

// Envelope is a single typed message unit. Which fields are meaningful
// depends on Type; unused fields are omitted from the wire format.
type Envelope struct {
	Type     string   `json:"type"`
	Username string   `json:"username,omitempty"` // client reply to request_username
	From     string   `json:"from,omitempty"`
	To       string   `json:"to,omitempty"`
	Message  string   `json:"message,omitempty"`
	Users    []string `json:"users,omitempty"`
	Sent     bool     `json:"sent,omitempty"` // dm delivery confirmation
}

// WriteFrame writes one length-framed payload to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("protocol: payload too large: %d bytes", len(payload))
	}

	header := make([]byte, HeaderLen)
	n := copy(header, strconv.Itoa(len(payload)))
	for i := n; i < HeaderLen; i++ {
		header[i] = ' '
	}

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("protocol: write header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("protocol: write payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-framed payload from r. A clean EOF before any
// header byte is returned as io.EOF so callers can tell a peer close from a
// torn frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("protocol: read header: %w", err)
	}

	length, err := strconv.Atoi(strings.TrimRight(string(header), " "))
	if err != nil || length < 0 {
		return nil, fmt.Errorf("%w: bad length header %q", ErrProtocol, strings.TrimRight(string(header), " "))
	}
	if length > MaxPayload {
		return nil, fmt.Errorf("%w: payload too large: %d bytes", ErrProtocol, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("protocol: read payload: %w", err)
	}
	return payload, nil
}

// WriteEnvelope writes a JSON envelope as one frame.
func WriteEnvelope(w io.Writer, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("protocol: marshal: %w", err)
	}
	return WriteFrame(w, data)
}

// ReadEnvelope reads one frame and decodes it as a JSON envelope.
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	data, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}

	env := &Envelope{}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", ErrProtocol, err)
	}
	return env, nil
}
