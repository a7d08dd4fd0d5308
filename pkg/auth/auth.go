// Package auth implements the credential gate guarding the relay handshake.
//
// The gate validates REGISTER/LOGIN actions against the credential store and
// issues HS256 bearer tokens bound to the username with a one-hour expiry.
// Tokens are handed to the client at handshake time and never re-checked
// afterwards: routing authority during the Active state derives from registry
// membership established at admission, not from token replay.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/sajilochat/relay/pkg/protocol"
	"github.com/sajilochat/relay/pkg/store"
)

// TokenTTL is the lifetime of an issued token.
const TokenTTL = time.Hour

var (
	ErrUserExists         = errors.New("auth: user already exists")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidAction      = errors.New("auth: invalid action")
)

// Claims are the token claims: the bound username plus standard expiry.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Gate validates handshake credentials and issues tokens.
type Gate struct {
	store  store.CredentialStore
	secret []byte
	now    func() time.Time
}

// NewGate creates a Gate over the given store and signing secret.
func NewGate(st store.CredentialStore, secret []byte) *Gate {
	return &Gate{store: st, secret: secret, now: time.Now}
}

// Authenticate resolves a REGISTER or LOGIN action and returns a signed
// bearer token. It touches only the credential store; callers must not hold
// any registry lock across this call.
func (g *Gate) Authenticate(action, username, password string) (string, error) {
	switch action {
	case protocol.ActionRegister:
		return g.register(username, password)
	case protocol.ActionLogin:
		return g.login(username, password)
	default:
		return "", ErrInvalidAction
	}
}

func (g *Gate) register(username, password string) (string, error) {
	if _, err := g.store.Get(username); err == nil {
		return "", ErrUserExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("auth: lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}

	if err := g.store.Put(username, hash); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Lost the race against a concurrent REGISTER for the same name.
			return "", ErrUserExists
		}
		return "", fmt.Errorf("auth: store user: %w", err)
	}

	return g.sign(username)
}

func (g *Gate) login(username, password string) (string, error) {
	hash, err := g.store.Get(username)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("auth: lookup user: %w", err)
	}

	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	return g.sign(username)
}

func (g *Gate) sign(username string) (string, error) {
	now := g.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return token, nil
}

// ParseToken verifies a token's signature and expiry and returns its claims.
func (g *Gate) ParseToken(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return g.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}
	return claims, nil
}
