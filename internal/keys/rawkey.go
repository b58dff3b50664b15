package keys

import (
	"crypto/ecdsa"
	"sync"

	"custody/go-client/internal/p256"
	"custody/go-client/pkg/models"
)

// RawKey holds an API key pair directly in process memory. The configured
// public key is checked against the one derived from the private scalar at
// construction, so a copy-paste mixup fails before any request is stamped.
type RawKey struct {
	mu           sync.Mutex
	priv         *ecdsa.PrivateKey
	publicKeyHex string
}

func NewRawKey(privateKeyHex, publicKeyHex string) (*RawKey, error) {
	priv, err := p256.PrivateKeyFromScalarHex(privateKeyHex)
	if err != nil {
		return nil, err
	}
	derived := p256.CompressedHex(&priv.PublicKey)
	if publicKeyHex != "" && publicKeyHex != derived {
		return nil, ErrMismatchedPublicKey
	}
	return &RawKey{priv: priv, publicKeyHex: derived}, nil
}

func (r *RawKey) Kind() models.BackendKind { return models.BackendRawKey }

// CreateKeyPair replaces the held pair with a freshly generated one. The
// access policy has no platform gate to map to here.
func (r *RawKey) CreateKeyPair(AccessPolicy) (string, error) {
	priv, err := p256.Generate()
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.priv = priv
	r.publicKeyHex = p256.CompressedHex(&priv.PublicKey)
	return r.publicKeyHex, nil
}

func (r *RawKey) Sign(publicKeyHex string, payload []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.priv == nil || publicKeyHex != r.publicKeyHex {
		return nil, ErrKeyNotFound
	}
	return p256.SignPayload(r.priv, payload)
}

func (r *RawKey) ListKeyPairs() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.priv == nil {
		return nil, nil
	}
	return []string{r.publicKeyHex}, nil
}

func (r *RawKey) DeleteKeyPair(publicKeyHex string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if publicKeyHex == r.publicKeyHex {
		r.priv = nil
		r.publicKeyHex = ""
	}
	return nil
}

func (r *RawKey) SupportsImport() bool { return false }

// PublicKeyHex returns the currently held public key, empty after delete.
func (r *RawKey) PublicKeyHex() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.publicKeyHex
}
