package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"custody/go-client/internal/p256"
	"custody/go-client/internal/securestore"
	"custody/go-client/pkg/models"
)

const softKeyPrefix = "softkey/"

// SoftwareKeystore persists P-256 scalars in the encrypted key-value store.
// It is the import-capable fallback when no hardware isolation is available;
// access policies are recorded but not enforceable without a platform gate.
type SoftwareKeystore struct {
	mu    sync.Mutex
	store KV
}

func NewSoftwareKeystore(store KV) (*SoftwareKeystore, error) {
	if store == nil {
		return nil, errors.New("software keystore requires a store")
	}
	return &SoftwareKeystore{store: store}, nil
}

func (s *SoftwareKeystore) Kind() models.BackendKind { return models.BackendSoftwareKeystore }

func (s *SoftwareKeystore) CreateKeyPair(AccessPolicy) (string, error) {
	priv, err := p256.Generate()
	if err != nil {
		return "", err
	}
	return s.put(priv.D.FillBytes(make([]byte, p256.ScalarSize)), p256.CompressedHex(&priv.PublicKey))
}

func (s *SoftwareKeystore) ImportKeyPair(privateKeyHex string) (string, error) {
	priv, err := p256.PrivateKeyFromScalarHex(privateKeyHex)
	if err != nil {
		return "", err
	}
	return s.put(priv.D.FillBytes(make([]byte, p256.ScalarSize)), p256.CompressedHex(&priv.PublicKey))
}

func (s *SoftwareKeystore) put(scalar []byte, publicKeyHex string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Put(softKeyPrefix+publicKeyHex, scalar); err != nil {
		return "", fmt.Errorf("persist key pair: %w", err)
	}
	return publicKeyHex, nil
}

func (s *SoftwareKeystore) Sign(publicKeyHex string, payload []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scalar, err := s.store.Get(softKeyPrefix + publicKeyHex)
	if err != nil {
		if errors.Is(err, securestore.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	priv, err := p256.PrivateKeyFromScalarHex(hex.EncodeToString(scalar))
	if err != nil {
		return nil, err
	}
	return p256.SignPayload(priv, payload)
}

func (s *SoftwareKeystore) ListKeyPairs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.store.Keys()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range all {
		if strings.HasPrefix(k, softKeyPrefix) {
			out = append(out, strings.TrimPrefix(k, softKeyPrefix))
		}
	}
	return out, nil
}

func (s *SoftwareKeystore) DeleteKeyPair(publicKeyHex string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.store.Delete(softKeyPrefix + publicKeyHex)
	if errors.Is(err, securestore.ErrNotFound) {
		return nil
	}
	return err
}

func (s *SoftwareKeystore) SupportsImport() bool { return true }
