package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	payload := []byte(`{"type":"system","message":"hello"}`)
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	// Header occupies exactly HeaderLen bytes: digits then spaces.
	raw := buf.Bytes()
	if len(raw) != HeaderLen+len(payload) {
		t.Fatalf("frame length = %d, want %d", len(raw), HeaderLen+len(payload))
	}
	header := string(raw[:HeaderLen])
	if got := strings.TrimRight(header, " "); got != "35" {
		t.Errorf("header = %q, want %q", got, "35")
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if diff := cmp.Diff(payload, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestEnvelopeBoundaryRecovery(t *testing.T) {
	t.Parallel()

	// Several envelopes written back-to-back must come out one at a time,
	// regardless of how the stream buffers them.
	envs := []*Envelope{
		{Type: TypeGroup, From: "alice", Message: "hi"},
		{Type: TypeDM, From: "bob", To: "alice", Message: "yo", Sent: true},
		{Type: TypeUserList, Users: []string{"alice", "bob"}},
		{Type: TypeRequestUsers},
	}

	var buf bytes.Buffer
	for _, env := range envs {
		if err := WriteEnvelope(&buf, env); err != nil {
			t.Fatalf("WriteEnvelope: %v", err)
		}
	}

	for i, want := range envs {
		got, err := ReadEnvelope(&buf)
		if err != nil {
			t.Fatalf("ReadEnvelope #%d: %v", i, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("envelope #%d mismatch (-want +got):\n%s", i, diff)
		}
	}

	if _, err := ReadEnvelope(&buf); err != io.EOF {
		t.Errorf("ReadEnvelope on drained stream = %v, want io.EOF", err)
	}
}

func TestReadFrameBadHeader(t *testing.T) {
	t.Parallel()

	tcases := map[string]string{
		"not_a_number":  "banana",
		"negative":      "-5",
		"empty":         "",
		"trailing_junk": "12abc",
	}

	for name, header := range tcases {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			buf.WriteString(header + strings.Repeat(" ", HeaderLen-len(header)))
			buf.WriteString(strings.Repeat("x", 16))

			_, err := ReadFrame(&buf)
			if !errors.Is(err, ErrProtocol) {
				t.Errorf("ReadFrame = %v, want ErrProtocol", err)
			}
		})
	}
}

func TestReadFrameOversizedLength(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	header := "99999999"
	buf.WriteString(header + strings.Repeat(" ", HeaderLen-len(header)))

	_, err := ReadFrame(&buf)
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("ReadFrame = %v, want ErrProtocol", err)
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	t.Parallel()

	// Header promises more bytes than the stream delivers.
	var buf bytes.Buffer
	header := "100"
	buf.WriteString(header + strings.Repeat(" ", HeaderLen-len(header)))
	buf.WriteString("short")

	_, err := ReadFrame(&buf)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("ReadFrame = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestReadEnvelopeUndecodablePayload(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("{not json")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	_, err := ReadEnvelope(&buf)
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("ReadEnvelope = %v, want ErrProtocol", err)
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteFrame(&buf, make([]byte, MaxPayload+1)); err == nil {
		t.Error("WriteFrame accepted an oversized payload")
	}
	if buf.Len() != 0 {
		t.Errorf("WriteFrame wrote %d bytes before rejecting", buf.Len())
	}
}

func TestParseAuthRequest(t *testing.T) {
	t.Parallel()

	tcases := map[string]struct {
		line    string
		want    AuthRequest
		wantErr bool
	}{
		"register": {
			line: "REGISTER|alice|s3cret",
			want: AuthRequest{Action: "REGISTER", Username: "alice", Password: "s3cret"},
		},
		"login": {
			line: "LOGIN|bob|hunter2",
			want: AuthRequest{Action: "LOGIN", Username: "bob", Password: "hunter2"},
		},
		"password_with_pipe": {
			line: "LOGIN|bob|pa|ss",
			want: AuthRequest{Action: "LOGIN", Username: "bob", Password: "pa|ss"},
		},
		"missing_password": {line: "LOGIN|bob", wantErr: true},
		"empty":            {line: "", wantErr: true},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			got, err := ParseAuthRequest(tc.line)
			if tc.wantErr {
				if !errors.Is(err, ErrProtocol) {
					t.Fatalf("ParseAuthRequest(%q) err = %v, want ErrProtocol", tc.line, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAuthRequest(%q): %v", tc.line, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("request mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
