package keys

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-webauthn/webauthn/protocol"

	"custody/go-client/pkg/models"
)

// Assertion is the platform authenticator's answer to a challenge. All
// fields serialize as unpadded base64url, the form the stamp header carries.
type Assertion struct {
	CredentialID      protocol.URLEncodedBase64 `json:"credentialId"`
	AuthenticatorData protocol.URLEncodedBase64 `json:"authenticatorData"`
	ClientDataJSON    protocol.URLEncodedBase64 `json:"clientDataJson"`
	Signature         protocol.URLEncodedBase64 `json:"signature"`
}

// Attestation is the result of registering a new passkey credential.
type Attestation struct {
	CredentialID      protocol.URLEncodedBase64 `json:"credentialId"`
	AttestationObject protocol.URLEncodedBase64 `json:"attestationObject"`
	ClientDataJSON    protocol.URLEncodedBase64 `json:"clientDataJson"`
}

// PasskeyUser identifies the account a new credential is registered for.
type PasskeyUser struct {
	ID          string
	Name        string
	DisplayName string
}

// AssertionProvider is the platform capability that drives the WebAuthn
// prompt. Implementations block until the user completes or cancels it.
type AssertionProvider interface {
	Register(ctx context.Context, user PasskeyUser, challenge []byte) (*Attestation, error)
	Assert(ctx context.Context, challenge []byte) (*Assertion, error)
}

type pendingOp int

const (
	opNone pendingOp = iota
	opRegistering
	opAsserting
)

// Passkey brokers signing to a platform passkey. Only one registration or
// assertion may be outstanding at a time; starting a second is a caller bug
// and is rejected rather than queued, so prompt results can never be
// attributed to the wrong caller.
type Passkey struct {
	mu       sync.Mutex
	pending  pendingOp
	provider AssertionProvider

	credentialID string
}

func NewPasskey(provider AssertionProvider) (*Passkey, error) {
	if provider == nil {
		return nil, fmt.Errorf("passkey backend requires an assertion provider")
	}
	return &Passkey{provider: provider}, nil
}

func (p *Passkey) Kind() models.BackendKind { return models.BackendPasskey }

func (p *Passkey) begin(op pendingOp) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != opNone {
		return ErrOperationInFlight
	}
	p.pending = op
	return nil
}

func (p *Passkey) end() {
	p.mu.Lock()
	p.pending = opNone
	p.mu.Unlock()
}

// Register creates a new credential for the user and remembers its id.
func (p *Passkey) Register(ctx context.Context, user PasskeyUser, challenge []byte) (*Attestation, error) {
	if err := p.begin(opRegistering); err != nil {
		return nil, err
	}
	defer p.end()
	att, err := p.provider.Register(ctx, user, challenge)
	if err != nil {
		return nil, err
	}
	if err := verifyClientData(att.ClientDataJSON, challenge, "webauthn.create"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.credentialID = att.CredentialID.String()
	p.mu.Unlock()
	return att, nil
}

// Assert answers a challenge with the platform credential. The collected
// client data is cross-checked against the challenge we issued.
func (p *Passkey) Assert(ctx context.Context, challenge []byte) (*Assertion, error) {
	if err := p.begin(opAsserting); err != nil {
		return nil, err
	}
	defer p.end()
	assertion, err := p.provider.Assert(ctx, challenge)
	if err != nil {
		return nil, err
	}
	if err := verifyClientData(assertion.ClientDataJSON, challenge, "webauthn.get"); err != nil {
		return nil, err
	}
	return assertion, nil
}

func verifyClientData(clientDataJSON []byte, challenge []byte, wantType string) error {
	var cd protocol.CollectedClientData
	if err := json.Unmarshal(clientDataJSON, &cd); err != nil {
		return fmt.Errorf("collected client data: %w", err)
	}
	if string(cd.Type) != wantType {
		return fmt.Errorf("collected client data type %q, want %q", cd.Type, wantType)
	}
	if cd.Challenge != base64.RawURLEncoding.EncodeToString(challenge) {
		return fmt.Errorf("collected client data challenge mismatch")
	}
	return nil
}

// CreateKeyPair cannot run without user and challenge context; use Register.
func (p *Passkey) CreateKeyPair(AccessPolicy) (string, error) {
	return "", ErrRegistrationRequired
}

// Sign is unsupported: assertions are not raw signatures.
func (p *Passkey) Sign(string, []byte) ([]byte, error) {
	return nil, ErrRawSignatureUnsupported
}

func (p *Passkey) ListKeyPairs() ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.credentialID == "" {
		return nil, nil
	}
	return []string{p.credentialID}, nil
}

func (p *Passkey) DeleteKeyPair(credentialID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if credentialID == p.credentialID {
		p.credentialID = ""
	}
	return nil
}

func (p *Passkey) SupportsImport() bool { return false }
