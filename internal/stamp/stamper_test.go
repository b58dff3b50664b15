package stamp

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"

	"custody/go-client/internal/keys"
	"custody/go-client/internal/p256"
	"custody/go-client/internal/securestore"
)

func newSoftwareStamper(t *testing.T) (*Stamper, string) {
	t.Helper()
	ks, err := keys.NewSoftwareKeystore(securestore.NewMemory())
	if err != nil {
		t.Fatalf("new keystore: %v", err)
	}
	pub, err := ks.CreateKeyPair(keys.PolicyNone)
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	st, err := New(ks, pub)
	if err != nil {
		t.Fatalf("new stamper: %v", err)
	}
	return st, pub
}

func TestStampIsVerifiable(t *testing.T) {
	st, pub := newSoftwareStamper(t)
	payload := []byte(`{"type":"ACTIVITY_TYPE_SIGN_TRANSACTION_V2","organizationId":"org-1"}`)

	stamp, err := st.Stamp(context.Background(), payload)
	if err != nil {
		t.Fatalf("stamp: %v", err)
	}
	if stamp.Header != HeaderName {
		t.Fatalf("header = %q, want %q", stamp.Header, HeaderName)
	}
	if strings.ContainsAny(stamp.Value, "+/=") {
		t.Fatalf("stamp value must be unpadded base64url, got %q", stamp.Value)
	}

	raw, err := base64.RawURLEncoding.DecodeString(stamp.Value)
	if err != nil {
		t.Fatalf("decode stamp: %v", err)
	}
	var body struct {
		PublicKey string `json:"publicKey"`
		Scheme    string `json:"scheme"`
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("unmarshal stamp: %v", err)
	}
	if body.PublicKey != pub {
		t.Fatalf("stamp public key = %q, want %q", body.PublicKey, pub)
	}
	if body.Scheme != SignatureScheme {
		t.Fatalf("stamp scheme = %q", body.Scheme)
	}
	sig, err := hex.DecodeString(body.Signature)
	if err != nil {
		t.Fatalf("signature is not hex: %v", err)
	}
	signer, err := p256.ParsePublicKeyHex(pub)
	if err != nil {
		t.Fatalf("parse public key: %v", err)
	}
	if !p256.VerifyPayload(signer, payload, sig) {
		t.Fatalf("stamp signature does not verify over the payload")
	}
}

func TestSignReturnsHexDER(t *testing.T) {
	st, pub := newSoftwareStamper(t)
	payload := []byte("body")
	sigHex, err := st.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		t.Fatalf("not hex: %v", err)
	}
	signer, _ := p256.ParsePublicKeyHex(pub)
	if !p256.VerifyPayload(signer, payload, sig) {
		t.Fatalf("signature does not verify")
	}
}

func TestNewRejectsMisconfiguration(t *testing.T) {
	if _, err := New(nil, "02abc"); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("nil backend should be rejected, got %v", err)
	}
	ks, _ := keys.NewSoftwareKeystore(securestore.NewMemory())
	if _, err := New(ks, ""); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("empty public key should be rejected for key-held backends, got %v", err)
	}
}

// promptlessAsserter returns a canned assertion whose client data matches the
// challenge it was given.
type promptlessAsserter struct {
	gotChallenge []byte
}

func (f *promptlessAsserter) Register(ctx context.Context, user keys.PasskeyUser, challenge []byte) (*keys.Attestation, error) {
	return &keys.Attestation{
		CredentialID:   protocol.URLEncodedBase64("cred-1"),
		ClientDataJSON: protocol.URLEncodedBase64(passkeyClientData("webauthn.create", challenge)),
	}, nil
}

func (f *promptlessAsserter) Assert(ctx context.Context, challenge []byte) (*keys.Assertion, error) {
	f.gotChallenge = append([]byte(nil), challenge...)
	return &keys.Assertion{
		CredentialID:      protocol.URLEncodedBase64("cred-1"),
		AuthenticatorData: protocol.URLEncodedBase64("authdata"),
		ClientDataJSON:    protocol.URLEncodedBase64(passkeyClientData("webauthn.get", challenge)),
		Signature:         protocol.URLEncodedBase64("sig"),
	}, nil
}

func passkeyClientData(typ string, challenge []byte) []byte {
	raw, _ := json.Marshal(map[string]string{
		"type":      typ,
		"challenge": base64.RawURLEncoding.EncodeToString(challenge),
		"origin":    "https://wallet.example.com",
	})
	return raw
}

func TestPasskeyStampUsesWebAuthnHeader(t *testing.T) {
	prov := &promptlessAsserter{}
	pk, err := keys.NewPasskey(prov)
	if err != nil {
		t.Fatalf("new passkey: %v", err)
	}
	st, err := New(pk, "")
	if err != nil {
		t.Fatalf("new stamper: %v", err)
	}

	payload := []byte(`{"organizationId":"org-1"}`)
	stamp, err := st.Stamp(context.Background(), payload)
	if err != nil {
		t.Fatalf("stamp: %v", err)
	}
	if stamp.Header != WebAuthnHeaderName {
		t.Fatalf("header = %q, want %q", stamp.Header, WebAuthnHeaderName)
	}

	digest := sha256.Sum256(payload)
	wantChallenge := hex.EncodeToString(digest[:])
	if string(prov.gotChallenge) != wantChallenge {
		t.Fatalf("challenge = %q, want hex digest %q", prov.gotChallenge, wantChallenge)
	}

	raw, err := base64.RawURLEncoding.DecodeString(stamp.Value)
	if err != nil {
		t.Fatalf("decode stamp: %v", err)
	}
	var assertion keys.Assertion
	if err := json.Unmarshal(raw, &assertion); err != nil {
		t.Fatalf("unmarshal assertion: %v", err)
	}
	if assertion.CredentialID.String() != protocol.URLEncodedBase64("cred-1").String() {
		t.Fatalf("credential id mismatch: %q", assertion.CredentialID.String())
	}

	if _, err := st.Sign(payload); !errors.Is(err, ErrAssertionOnly) {
		t.Fatalf("raw Sign must be rejected for passkeys, got %v", err)
	}
}
