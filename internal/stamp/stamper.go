// Package stamp turns outgoing JSON payloads into the authentication header
// every API call carries: a signed digest for key-held credentials, or a
// platform assertion for passkeys.
package stamp

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"custody/go-client/internal/keys"
	"custody/go-client/pkg/models"
)

const (
	HeaderName         = "X-Stamp"
	WebAuthnHeaderName = "X-Stamp-WebAuthn"
	SignatureScheme    = "SIGNATURE_SCHEME_TK_API_P256"
)

var (
	ErrNoCredentials = errors.New("stamper has no backend or public key configured")
	ErrAssertionOnly = errors.New("raw signatures are undefined for the passkey backend")
	ErrNotAsserter   = errors.New("passkey backend does not expose an assertion capability")
)

func digest(payload []byte) []byte {
	d := sha256.Sum256(payload)
	return d[:]
}

// Stamp is a ready-to-attach authentication header.
type Stamp struct {
	Header string
	Value  string
}

// apiStamp is the X-Stamp JSON body for key-held credentials.
type apiStamp struct {
	PublicKey string `json:"publicKey"`
	Scheme    string `json:"scheme"`
	Signature string `json:"signature"`
}

// Asserter is the slice of the passkey backend the stamper needs.
type Asserter interface {
	Assert(ctx context.Context, challenge []byte) (*keys.Assertion, error)
}

// Stamper authenticates payloads with one backend-held key. Misconfiguration
// fails here, at construction, not at the first call.
type Stamper struct {
	backend      keys.Backend
	publicKeyHex string
}

func New(backend keys.Backend, publicKeyHex string) (*Stamper, error) {
	if backend == nil {
		return nil, ErrNoCredentials
	}
	if publicKeyHex == "" && backend.Kind() != models.BackendPasskey {
		return nil, ErrNoCredentials
	}
	return &Stamper{backend: backend, publicKeyHex: publicKeyHex}, nil
}

// Stamp signs or asserts SHA-256(payload) and returns the header to attach.
// Only the passkey path suspends, waiting on the platform prompt.
func (s *Stamper) Stamp(ctx context.Context, payload []byte) (Stamp, error) {
	if s.backend.Kind() == models.BackendPasskey {
		return s.webAuthnStamp(ctx, payload)
	}
	sig, err := s.backend.Sign(s.publicKeyHex, payload)
	if err != nil {
		return Stamp{}, err
	}
	body, err := json.Marshal(apiStamp{
		PublicKey: s.publicKeyHex,
		Scheme:    SignatureScheme,
		Signature: hex.EncodeToString(sig),
	})
	if err != nil {
		return Stamp{}, err
	}
	return Stamp{Header: HeaderName, Value: base64.RawURLEncoding.EncodeToString(body)}, nil
}

// webAuthnStamp asserts over the hex encoding of the digest; the server
// reconstructs the same challenge from the request body.
func (s *Stamper) webAuthnStamp(ctx context.Context, payload []byte) (Stamp, error) {
	asserter, ok := s.backend.(Asserter)
	if !ok {
		return Stamp{}, ErrNotAsserter
	}
	challenge := []byte(hex.EncodeToString(digest(payload)))
	assertion, err := asserter.Assert(ctx, challenge)
	if err != nil {
		return Stamp{}, fmt.Errorf("passkey assertion: %w", err)
	}
	body, err := json.Marshal(assertion)
	if err != nil {
		return Stamp{}, err
	}
	return Stamp{Header: WebAuthnHeaderName, Value: base64.RawURLEncoding.EncodeToString(body)}, nil
}

// Sign returns the hex DER signature over the payload without the stamp
// envelope. It is undefined for the passkey backend.
func (s *Stamper) Sign(payload []byte) (string, error) {
	if s.backend.Kind() == models.BackendPasskey {
		return "", ErrAssertionOnly
	}
	sig, err := s.backend.Sign(s.publicKeyHex, payload)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// PublicKeyHex returns the stamping identity.
func (s *Stamper) PublicKeyHex() string { return s.publicKeyHex }
