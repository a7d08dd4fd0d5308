// Package store persists credential records.
//
// The relay consumes the store only through the CredentialStore contract:
// a uniquely-keyed map from username to password hash, durable across
// restarts in the SQLite implementation. The in-memory implementation
// mirrors its error behavior for tests and throwaway servers.
package store

import (
	"errors"

	"github.com/sajilochat/relay/pkg/model"
)

var (
	// ErrNotFound is returned by Get for an unknown username.
	ErrNotFound = errors.New("store: user not found")

	// ErrAlreadyExists is returned by Put when the username is taken.
	ErrAlreadyExists = errors.New("store: user already exists")
)

// CredentialStore is the external credential store contract.
type CredentialStore interface {
	// Get returns the stored password hash for username, or ErrNotFound.
	Get(username string) ([]byte, error)

	// Put stores a new credential record, or fails with ErrAlreadyExists.
	// The stored hash of an existing user is never overwritten.
	Put(username string, passwordHash []byte) error

	Close() error
}

func validate(username string) error {
	return model.ValidateUsername(username)
}
