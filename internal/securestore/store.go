package securestore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store persists one sealed envelope per key under a directory. Key names
// are hex-encoded into file names so any string is a valid key and listing
// can recover the originals.
type Store struct {
	mu         sync.Mutex
	dir        string
	passphrase string
}

func Open(dir, passphrase string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("securestore: directory is required")
	}
	if passphrase == "" {
		return nil, errors.New("securestore: passphrase is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("securestore: %w", err)
	}
	return &Store{dir: dir, passphrase: passphrase}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, hex.EncodeToString([]byte(key))+".bin")
}

func (s *Store) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sealed, err := seal(s.passphrase, key, value)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(key), sealed, 0o600)
}

func (s *Store) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return open(s.passphrase, key, raw)
}

// Delete is idempotent: removing an absent key succeeds.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".bin")
		if !ok || e.IsDir() {
			continue
		}
		decoded, err := hex.DecodeString(name)
		if err != nil {
			continue
		}
		keys = append(keys, string(decoded))
	}
	sort.Strings(keys)
	return keys, nil
}
