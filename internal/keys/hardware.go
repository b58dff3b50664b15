package keys

import (
	"crypto/sha256"
	"errors"

	"custody/go-client/pkg/models"
)

// PlatformEnclave is the narrow surface the host platform exposes for
// hardware-isolated keys (secure element, TPM, OS keystore). The client never
// sees private material from this backend.
type PlatformEnclave interface {
	Available() bool
	CreateKey(policy string) (publicKeyHex string, err error)
	SignDigest(publicKeyHex string, digest []byte) ([]byte, error)
	Keys() ([]string, error)
	DeleteKey(publicKeyHex string) error
}

var ErrEnclaveUnavailable = errors.New("hardware enclave unavailable on this platform")

// HardwareEnclave brokers the backend contract to a platform enclave. It
// cannot import external key material: hardware-held keys are generated
// inside the isolation boundary and never cross it.
type HardwareEnclave struct {
	platform PlatformEnclave
}

func NewHardwareEnclave(platform PlatformEnclave) (*HardwareEnclave, error) {
	if platform == nil || !platform.Available() {
		return nil, ErrEnclaveUnavailable
	}
	return &HardwareEnclave{platform: platform}, nil
}

func (h *HardwareEnclave) Kind() models.BackendKind { return models.BackendHardwareEnclave }

func (h *HardwareEnclave) CreateKeyPair(policy AccessPolicy) (string, error) {
	return h.platform.CreateKey(string(policy))
}

func (h *HardwareEnclave) Sign(publicKeyHex string, payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	return h.platform.SignDigest(publicKeyHex, digest[:])
}

func (h *HardwareEnclave) ListKeyPairs() ([]string, error) {
	return h.platform.Keys()
}

func (h *HardwareEnclave) DeleteKeyPair(publicKeyHex string) error {
	return h.platform.DeleteKey(publicKeyHex)
}

func (h *HardwareEnclave) SupportsImport() bool { return false }

// OnDevice picks the strongest available backend for on-device keys:
// hardware isolation when the platform reports it, the software keystore
// otherwise.
func OnDevice(store KV, platform PlatformEnclave) (Backend, error) {
	if platform != nil && platform.Available() {
		return NewHardwareEnclave(platform)
	}
	return NewSoftwareKeystore(store)
}
