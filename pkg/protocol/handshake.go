package protocol

import (
	"fmt"
	"strings"
)

// Credential handshake actions.
const (
	ActionRegister = "REGISTER"
	ActionLogin    = "LOGIN"
)

// AuthRequest is the decoded ACTION|username|password handshake line.
type AuthRequest struct {
	Action   string
	Username string
	Password string
}

// ParseAuthRequest parses a pipe-delimited handshake line. The password may
// itself contain pipes; only the first two separators are structural.
func ParseAuthRequest(line string) (AuthRequest, error) {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 {
		return AuthRequest{}, fmt.Errorf("%w: invalid auth format", ErrProtocol)
	}
	return AuthRequest{Action: parts[0], Username: parts[1], Password: parts[2]}, nil
}

// FormatToken formats the successful handshake reply.
func FormatToken(token string) string {
	return "TOKEN|" + token
}

// FormatAuthError formats the failed handshake reply.
func FormatAuthError(reason string) string {
	return "ERROR|" + reason
}
