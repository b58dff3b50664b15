// Package keys provides the polymorphic key-backend capability: each variant
// owns or brokers access to a P-256 signing key and implements the same
// create/sign/list/delete contract. Private material never leaves the backend
// that created it.
package keys

import (
	"errors"

	"custody/go-client/pkg/models"
)

// AccessPolicy maps to platform access-control flags for key creation. It is
// ignored by backends that have no platform gate (raw keys, passkeys).
type AccessPolicy string

const (
	PolicyNone               AccessPolicy = "none"
	PolicyUserPresence       AccessPolicy = "user-presence"
	PolicyBiometryAny        AccessPolicy = "biometry-any"
	PolicyBiometryCurrentSet AccessPolicy = "biometry-current-set"
)

var (
	ErrKeyNotFound             = errors.New("key pair not found in backend")
	ErrImportUnsupported       = errors.New("backend cannot import external key material")
	ErrRawSignatureUnsupported = errors.New("passkey backend produces assertions, not raw signatures")
	ErrRegistrationRequired    = errors.New("passkey creation requires Register with a user and challenge")
	ErrOperationInFlight       = errors.New("a passkey operation is already outstanding")
	ErrMismatchedPublicKey     = errors.New("derived public key does not match configured public key")
)

// Backend is the capability contract shared by all key-backend variants.
// Sign digests the payload with SHA-256 and returns a DER-encoded ECDSA
// signature; the passkey variant rejects Sign and exposes assertions instead.
// DeleteKeyPair is idempotent: deleting an unknown key succeeds.
type Backend interface {
	Kind() models.BackendKind
	CreateKeyPair(policy AccessPolicy) (publicKeyHex string, err error)
	Sign(publicKeyHex string, payload []byte) ([]byte, error)
	ListKeyPairs() ([]string, error)
	DeleteKeyPair(publicKeyHex string) error
	// SupportsImport reports whether external key material can be brought
	// into this backend, so callers can branch before attempting.
	SupportsImport() bool
}

// Importer is implemented by backends that accept external key material.
type Importer interface {
	ImportKeyPair(privateKeyHex string) (publicKeyHex string, err error)
}

// KV is the minimal persisted key-value surface the software keystore needs.
type KV interface {
	Put(key string, value []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	Keys() ([]string, error)
}

// Pairs lists the backend's keys in their exported form, tagged with the
// backend kind that owns them.
func Pairs(b Backend) ([]models.KeyPair, error) {
	listed, err := b.ListKeyPairs()
	if err != nil {
		return nil, err
	}
	pairs := make([]models.KeyPair, 0, len(listed))
	for _, pub := range listed {
		pairs = append(pairs, models.KeyPair{PublicKeyHex: pub, Backend: b.Kind()})
	}
	return pairs, nil
}

// Holds reports whether the backend currently owns the given public key.
func Holds(b Backend, publicKeyHex string) (bool, error) {
	listed, err := b.ListKeyPairs()
	if err != nil {
		return false, err
	}
	for _, pub := range listed {
		if pub == publicKeyHex {
			return true, nil
		}
	}
	return false, nil
}
