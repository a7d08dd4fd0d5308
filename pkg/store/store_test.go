package store_test

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sajilochat/relay/pkg/store"
)

// implementations returns each CredentialStore under test by name.
func implementations(t *testing.T) map[string]func(t *testing.T) store.CredentialStore {
	t.Helper()
	return map[string]func(t *testing.T) store.CredentialStore{
		"memory": func(t *testing.T) store.CredentialStore {
			return store.NewMemory()
		},
		"sqlite": func(t *testing.T) store.CredentialStore {
			st, err := store.OpenSQL(filepath.Join(t.TempDir(), "creds.db"))
			if err != nil {
				t.Fatalf("OpenSQL: %v", err)
			}
			t.Cleanup(func() { _ = st.Close() })
			return st
		},
	}
}

func TestPutGet(t *testing.T) {
	for name, open := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)

			hash := []byte("$2a$10$fakehashfakehashfakehash")
			if err := st.Put("alice", hash); err != nil {
				t.Fatalf("Put: %v", err)
			}

			got, err := st.Get("alice")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(got, hash) {
				t.Errorf("Get = %q, want %q", got, hash)
			}
		})
	}
}

func TestGetMissing(t *testing.T) {
	for name, open := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			if _, err := st.Get("nobody"); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("Get = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestPutDuplicateKeepsOriginal(t *testing.T) {
	for name, open := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)

			original := []byte("original-hash")
			if err := st.Put("alice", original); err != nil {
				t.Fatalf("Put: %v", err)
			}

			err := st.Put("alice", []byte("other-hash"))
			if !errors.Is(err, store.ErrAlreadyExists) {
				t.Fatalf("duplicate Put = %v, want ErrAlreadyExists", err)
			}

			got, err := st.Get("alice")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(got, original) {
				t.Errorf("stored hash changed on failed Put: got %q, want %q", got, original)
			}
		})
	}
}

func TestPutInvalidUsername(t *testing.T) {
	for name, open := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			for _, bad := range []string{"", "has space", "pipe|name"} {
				if err := st.Put(bad, []byte("h")); err == nil {
					t.Errorf("Put(%q) accepted an invalid username", bad)
				}
			}
		})
	}
}

func TestSQLiteDurableAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.db")

	st, err := store.OpenSQL(path)
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	hash := []byte("persisted-hash")
	if err := st.Put("alice", hash); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2, err := store.OpenSQL(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = st2.Close() }()

	got, err := st2.Get("alice")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if !bytes.Equal(got, hash) {
		t.Errorf("Get after reopen = %q, want %q", got, hash)
	}
}
