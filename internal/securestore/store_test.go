package securestore

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	sealed, err := seal("passphrase", "session/token/sk-1", []byte("plaintext value"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	plain, err := open("passphrase", "session/token/sk-1", sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(plain) != "plaintext value" {
		t.Fatalf("round trip mismatch: %q", plain)
	}
}

func TestOpenRejectsWrongPassphrase(t *testing.T) {
	sealed, _ := seal("passphrase", "k", []byte("v"))
	if _, err := open("other", "k", sealed); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestOpenRejectsTamper(t *testing.T) {
	sealed, _ := seal("passphrase", "k", []byte("v"))
	sealed[len(sealed)-2] ^= 0x01
	_, err := open("passphrase", "k", sealed)
	if !errors.Is(err, ErrAuthFailed) && !errors.Is(err, ErrInvalid) {
		t.Fatalf("tampered envelope must not open, got %v", err)
	}
}

func TestOpenBindsStorageKey(t *testing.T) {
	sealed, _ := seal("passphrase", "session/token/sk-1", []byte("v"))
	if _, err := open("passphrase", "session/token/sk-2", sealed); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("envelope copied under another key must fail, got %v", err)
	}
}

func TestOpenRejectsMalformedNonceAndSalt(t *testing.T) {
	sealed, _ := seal("passphrase", "k", []byte("v"))

	var env envelope
	if err := json.Unmarshal(sealed[len(filePrefix):], &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	short := env
	short.Nonce = env.Nonce[:4]
	raw, _ := json.Marshal(short)
	if _, err := open("passphrase", "k", append([]byte(filePrefix), raw...)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("truncated nonce must be rejected, got %v", err)
	}

	short = env
	short.Salt = env.Salt[:4]
	raw, _ = json.Marshal(short)
	if _, err := open("passphrase", "k", append([]byte(filePrefix), raw...)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("truncated salt must be rejected, got %v", err)
	}
}

func TestOpenRejectsForeignData(t *testing.T) {
	if _, err := open("passphrase", "k", []byte("not an envelope")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestStoreLifecycle(t *testing.T) {
	store, err := Open(t.TempDir(), "passphrase")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Put("session/registry", []byte(`["sk-1"]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put("softkey/02abc", []byte{1, 2, 3}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get("session/registry")
	if err != nil || string(got) != `["sk-1"]` {
		t.Fatalf("get = %q, %v", got, err)
	}

	keys, err := store.Keys()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "session/registry" || keys[1] != "softkey/02abc" {
		t.Fatalf("keys = %v", keys)
	}

	if err := store.Delete("session/registry"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete("session/registry"); err != nil {
		t.Fatalf("delete must be idempotent: %v", err)
	}
	if _, err := store.Get("session/registry"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStorePutOverwrites(t *testing.T) {
	store, err := Open(t.TempDir(), "passphrase")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Put("k", []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put("k", []byte("two")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get("k")
	if err != nil || string(got) != "two" {
		t.Fatalf("last write must win, got %q, %v", got, err)
	}
}

func TestOpenRequiresDirAndPassphrase(t *testing.T) {
	if _, err := Open("", "p"); err == nil {
		t.Fatalf("empty dir must be rejected")
	}
	if _, err := Open(t.TempDir(), ""); err == nil {
		t.Fatalf("empty passphrase must be rejected")
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	if err := m.Put("a", []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if got, err := m.Get("a"); err != nil || string(got) != "1" {
		t.Fatalf("get = %q, %v", got, err)
	}
	if _, err := m.Get("b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.Delete("a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if keys, _ := m.Keys(); len(keys) != 0 {
		t.Fatalf("keys = %v", keys)
	}
}
