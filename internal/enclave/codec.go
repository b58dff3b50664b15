// Package enclave implements the credential-bundle codec: the signed,
// HPKE-encrypted envelopes that move private key material between the custody
// backend's enclave and the device.
package enclave

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tyler-smith/go-bip39"

	"custody/go-client/internal/p256"
	"custody/go-client/pkg/models"
)

// ProductionSignerPublicKey is the enclave quorum key that signs genuine
// bundles in production, as a 65-byte uncompressed hex point.
const ProductionSignerPublicKey = "04cf288fe433cc4e1aa0ce1632feac4ea26bf2f5a09dcfe5a42c398e06898710330f0572882f4dbdf0f5304b8fc8703acd69adca9a4bbf7f5d00d20a5e364b2569"

var (
	ErrSignerMismatch   = errors.New("bundle signer does not match pinned enclave quorum key")
	ErrSignatureInvalid = errors.New("bundle signature verification failed")
	ErrOrgIDMismatch    = errors.New("bundle organization id mismatch")
	ErrUserIDMismatch   = errors.New("bundle user id mismatch")
	ErrInvalidBundle    = errors.New("malformed bundle")
	ErrInvalidPlaintext = errors.New("bundle plaintext is not valid UTF-8")
	ErrInvalidMnemonic  = errors.New("mnemonic failed BIP-39 validation")
)

// KeyFormat selects how decrypted key material is rendered for the caller.
type KeyFormat string

const (
	KeyFormatHexadecimal KeyFormat = "HEXADECIMAL"
	KeyFormatSolana      KeyFormat = "SOLANA"
)

// Codec authenticates and decrypts/encrypts key-transport envelopes. The
// signer key is pinned at construction; every signed bundle must carry
// exactly that key or fail before any decryption is attempted.
type Codec struct {
	signerHex string
}

// NewCodec pins the enclave quorum signer. An empty override pins the
// production key.
func NewCodec(signerOverrideHex string) *Codec {
	signer := strings.TrimSpace(signerOverrideHex)
	if signer == "" {
		signer = ProductionSignerPublicKey
	}
	return &Codec{signerHex: strings.ToLower(signer)}
}

// DecryptCredentialBundle opens a login bundle: Base58Check framing around a
// 33-byte compressed encapsulated key followed by the AEAD ciphertext. The
// receiver key is the device's embedded P-256 scalar in hex. The decrypted
// signing scalar is returned hex-encoded.
func (c *Codec) DecryptCredentialBundle(bundle, receiverPrivateKeyHex string) (string, error) {
	payload, err := base58CheckDecode(strings.TrimSpace(bundle))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	if len(payload) <= p256.CompressedPointSize {
		return "", fmt.Errorf("%w: %d bytes after framing", ErrInvalidBundle, len(payload))
	}
	encapped := payload[:p256.CompressedPointSize]
	ciphertext := payload[p256.CompressedPointSize:]

	receiver, err := p256.PrivateKeyFromScalarHex(receiverPrivateKeyHex)
	if err != nil {
		return "", err
	}
	plaintext, err := hpkeOpen(receiver, encapped, ciphertext)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(plaintext), nil
}

// ExportOptions control verification and output shaping for export bundles.
type ExportOptions struct {
	OrganizationID string
	UserID         string
	Format         KeyFormat
	ReturnMnemonic bool
}

// DecryptExportBundle verifies and opens a wallet/key export bundle. The
// outer JSON envelope is authenticated against the pinned signer before the
// inner payload is trusted; org and user ids are enforced when expected
// values are supplied.
func (c *Codec) DecryptExportBundle(bundle, receiverPrivateKeyHex string, opts ExportOptions) (string, error) {
	inner, err := c.verifySignedBundle([]byte(bundle), opts.OrganizationID, opts.UserID)
	if err != nil {
		return "", err
	}
	if inner.EncappedPublic == "" || inner.Ciphertext == "" {
		return "", fmt.Errorf("%w: missing encappedPublic or ciphertext", ErrInvalidBundle)
	}
	encapped, err := hex.DecodeString(inner.EncappedPublic)
	if err != nil {
		return "", fmt.Errorf("%w: encappedPublic: %v", ErrInvalidBundle, err)
	}
	ciphertext, err := hex.DecodeString(inner.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", ErrInvalidBundle, err)
	}
	receiver, err := p256.PrivateKeyFromScalarHex(receiverPrivateKeyHex)
	if err != nil {
		return "", err
	}
	plaintext, err := hpkeOpen(receiver, encapped, ciphertext)
	if err != nil {
		return "", err
	}
	return shapeExportOutput(plaintext, opts)
}

// ImportOptions control verification for the wallet-import encrypt path.
type ImportOptions struct {
	OrganizationID string
	UserID         string
	// ValidateMnemonic enforces BIP-39 wordlist and checksum validity
	// before sealing.
	ValidateMnemonic bool
}

// EncryptWalletToBundle seals a mnemonic to the target key carried in a
// verified import bundle, producing the JSON wallet bundle the server
// ingests. The same signature gate and org/user checks as the decrypt path
// apply to the import bundle before its target key is trusted.
func (c *Codec) EncryptWalletToBundle(mnemonic, importBundle string, opts ImportOptions) (string, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if mnemonic == "" {
		return "", fmt.Errorf("%w: empty mnemonic", ErrInvalidMnemonic)
	}
	if opts.ValidateMnemonic && !bip39.IsMnemonicValid(mnemonic) {
		return "", ErrInvalidMnemonic
	}
	inner, err := c.verifySignedBundle([]byte(importBundle), opts.OrganizationID, opts.UserID)
	if err != nil {
		return "", err
	}
	if inner.TargetPublic == "" {
		return "", fmt.Errorf("%w: missing targetPublic", ErrInvalidBundle)
	}
	target, err := p256.ParsePublicKeyHex(inner.TargetPublic)
	if err != nil {
		return "", err
	}
	encapped, ciphertext, err := hpkeSeal(target, []byte(mnemonic))
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(models.WalletBundle{
		EncappedPublic: hex.EncodeToString(encapped),
		Ciphertext:     hex.EncodeToString(ciphertext),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// verifySignedBundle runs the integrity pipeline shared by export and import
// bundles: decode the outer JSON, gate on the pinned signer, verify the DER
// ECDSA signature over SHA-256(data), then parse and cross-check the inner
// payload. The signer comparison is on the raw hex string, matching server
// behavior exactly.
func (c *Codec) verifySignedBundle(raw []byte, wantOrgID, wantUserID string) (models.CredentialBundleInner, error) {
	var inner models.CredentialBundleInner
	var outer models.CredentialBundleOuter
	if err := json.Unmarshal(raw, &outer); err != nil {
		return inner, fmt.Errorf("%w: outer envelope: %v", ErrInvalidBundle, err)
	}
	if strings.ToLower(strings.TrimSpace(outer.EnclaveQuorumPublic)) != c.signerHex {
		return inner, ErrSignerMismatch
	}
	signer, err := p256.ParsePublicKeyHex(c.signerHex)
	if err != nil {
		return inner, err
	}
	data, err := hex.DecodeString(outer.Data)
	if err != nil {
		return inner, fmt.Errorf("%w: data: %v", ErrInvalidBundle, err)
	}
	signature, err := hex.DecodeString(outer.DataSignature)
	if err != nil {
		return inner, fmt.Errorf("%w: dataSignature: %v", ErrInvalidBundle, err)
	}
	digest := sha256.Sum256(data)
	if !ecdsa.VerifyASN1(signer, digest[:], signature) {
		return inner, ErrSignatureInvalid
	}
	if err := json.Unmarshal(data, &inner); err != nil {
		return inner, fmt.Errorf("%w: inner payload: %v", ErrInvalidBundle, err)
	}
	if wantOrgID != "" && inner.OrganizationID != "" && inner.OrganizationID != wantOrgID {
		return inner, ErrOrgIDMismatch
	}
	if wantUserID != "" && inner.UserID != "" && inner.UserID != wantUserID {
		return inner, ErrUserIDMismatch
	}
	return inner, nil
}

func shapeExportOutput(plaintext []byte, opts ExportOptions) (string, error) {
	if opts.ReturnMnemonic {
		if !utf8.Valid(plaintext) {
			return "", ErrInvalidPlaintext
		}
		return string(plaintext), nil
	}
	if opts.Format == KeyFormatSolana {
		return encodeSolanaKey(plaintext)
	}
	return hex.EncodeToString(plaintext), nil
}

// encodeSolanaKey derives the Ed25519 public key from the exported 32-byte
// scalar and renders the conventional 64-byte secret key encoding.
func encodeSolanaKey(scalar []byte) (string, error) {
	if len(scalar) != ed25519.SeedSize {
		return "", fmt.Errorf("%w: solana key must be %d bytes, got %d", ErrInvalidBundle, ed25519.SeedSize, len(scalar))
	}
	priv := ed25519.NewKeyFromSeed(scalar)
	pub := priv.Public().(ed25519.PublicKey)
	secret := make([]byte, 0, ed25519.SeedSize+ed25519.PublicKeySize)
	secret = append(secret, scalar...)
	secret = append(secret, pub...)
	return base58CheckEncode(secret), nil
}
