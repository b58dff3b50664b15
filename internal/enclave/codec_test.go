package enclave

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/tyler-smith/go-bip39"

	"custody/go-client/internal/p256"
	"custody/go-client/pkg/models"
)

func testSigner(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	signer, err := p256.Generate()
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	return signer, hex.EncodeToString(p256.Uncompressed(&signer.PublicKey))
}

func buildSignedBundle(t *testing.T, signer *ecdsa.PrivateKey, inner models.CredentialBundleInner) string {
	t.Helper()
	data, err := json.Marshal(inner)
	if err != nil {
		t.Fatalf("marshal inner: %v", err)
	}
	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, signer, digest[:])
	if err != nil {
		t.Fatalf("sign bundle: %v", err)
	}
	outer, err := json.Marshal(models.CredentialBundleOuter{
		Version:             "v1.0.0",
		Data:                hex.EncodeToString(data),
		DataSignature:       hex.EncodeToString(sig),
		EnclaveQuorumPublic: hex.EncodeToString(p256.Uncompressed(&signer.PublicKey)),
	})
	if err != nil {
		t.Fatalf("marshal outer: %v", err)
	}
	return string(outer)
}

func buildExportBundle(t *testing.T, signer *ecdsa.PrivateKey, receiver *ecdsa.PrivateKey, plaintext []byte, orgID, userID string) string {
	t.Helper()
	encapped, ciphertext, err := hpkeSeal(&receiver.PublicKey, plaintext)
	if err != nil {
		t.Fatalf("hpke seal: %v", err)
	}
	return buildSignedBundle(t, signer, models.CredentialBundleInner{
		OrganizationID: orgID,
		UserID:         userID,
		EncappedPublic: hex.EncodeToString(encapped),
		Ciphertext:     hex.EncodeToString(ciphertext),
	})
}

func TestDecryptCredentialBundleRoundTrip(t *testing.T) {
	receiver, err := p256.Generate()
	if err != nil {
		t.Fatalf("generate receiver: %v", err)
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("rand: %v", err)
	}
	encapped, ciphertext, err := hpkeSeal(&receiver.PublicKey, secret)
	if err != nil {
		t.Fatalf("hpke seal: %v", err)
	}
	encPub, err := p256.ParsePublicKey(encapped)
	if err != nil {
		t.Fatalf("parse encapped: %v", err)
	}
	payload := append(p256.Compressed(encPub), ciphertext...)
	bundle := base58CheckEncode(payload)

	got, err := NewCodec("").DecryptCredentialBundle(bundle, p256.ScalarHex(receiver))
	if err != nil {
		t.Fatalf("decrypt credential bundle: %v", err)
	}
	if got != hex.EncodeToString(secret) {
		t.Fatalf("round trip mismatch: got %s", got)
	}
}

func TestDecryptCredentialBundleRejectsTamper(t *testing.T) {
	receiver, err := p256.Generate()
	if err != nil {
		t.Fatalf("generate receiver: %v", err)
	}
	encapped, ciphertext, err := hpkeSeal(&receiver.PublicKey, []byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("hpke seal: %v", err)
	}
	encPub, err := p256.ParsePublicKey(encapped)
	if err != nil {
		t.Fatalf("parse encapped: %v", err)
	}
	payload := append(p256.Compressed(encPub), ciphertext...)
	payload[len(payload)-1] ^= 0x01
	bundle := base58CheckEncode(payload)

	_, err = NewCodec("").DecryptCredentialBundle(bundle, p256.ScalarHex(receiver))
	if !errors.Is(err, ErrHPKEOpenFailed) {
		t.Fatalf("expected hpke open failure, got %v", err)
	}
}

func TestDecryptCredentialBundleRejectsBadChecksum(t *testing.T) {
	bundle := base58CheckEncode([]byte("some payload longer than the checksum"))
	// Re-encode with one character swapped to break the checksum.
	broken := []byte(bundle)
	if broken[0] == '2' {
		broken[0] = '3'
	} else {
		broken[0] = '2'
	}
	_, err := NewCodec("").DecryptCredentialBundle(string(broken), "00")
	if !errors.Is(err, ErrInvalidBundle) {
		t.Fatalf("expected invalid bundle, got %v", err)
	}
}

func TestExportBundleRoundTripMnemonic(t *testing.T) {
	signer, signerHex := testSigner(t)
	receiver, err := p256.Generate()
	if err != nil {
		t.Fatalf("generate receiver: %v", err)
	}
	codec := NewCodec(signerHex)

	for _, bits := range []int{128, 256} {
		entropy, err := bip39.NewEntropy(bits)
		if err != nil {
			t.Fatalf("entropy: %v", err)
		}
		mnemonic, err := bip39.NewMnemonic(entropy)
		if err != nil {
			t.Fatalf("mnemonic: %v", err)
		}
		bundle := buildExportBundle(t, signer, receiver, []byte(mnemonic), "org-1", "user-1")
		got, err := codec.DecryptExportBundle(bundle, p256.ScalarHex(receiver), ExportOptions{
			OrganizationID: "org-1",
			UserID:         "user-1",
			ReturnMnemonic: true,
		})
		if err != nil {
			t.Fatalf("decrypt export bundle: %v", err)
		}
		if got != mnemonic {
			t.Fatalf("mnemonic mismatch: got %q want %q", got, mnemonic)
		}
	}
}

func TestEncryptWalletThenDecryptExport(t *testing.T) {
	signer, signerHex := testSigner(t)
	target, err := p256.Generate()
	if err != nil {
		t.Fatalf("generate target: %v", err)
	}
	codec := NewCodec(signerHex)

	importBundle := buildSignedBundle(t, signer, models.CredentialBundleInner{
		OrganizationID: "org-1",
		UserID:         "user-1",
		TargetPublic:   hex.EncodeToString(p256.Uncompressed(&target.PublicKey)),
	})
	mnemonic := "leaf lady until indicate praise final route toast cake minimum insect unknown"
	sealed, err := codec.EncryptWalletToBundle(mnemonic, importBundle, ImportOptions{
		OrganizationID: "org-1",
		UserID:         "user-1",
	})
	if err != nil {
		t.Fatalf("encrypt wallet: %v", err)
	}

	var wallet models.WalletBundle
	if err := json.Unmarshal([]byte(sealed), &wallet); err != nil {
		t.Fatalf("unmarshal wallet bundle: %v", err)
	}
	if len(wallet.EncappedPublic) != 2*p256.UncompressedPointSize {
		t.Fatalf("encapped public should be 65 bytes, got %d hex chars", len(wallet.EncappedPublic))
	}

	exportBundle := buildSignedBundle(t, signer, models.CredentialBundleInner{
		OrganizationID: "org-1",
		EncappedPublic: wallet.EncappedPublic,
		Ciphertext:     wallet.Ciphertext,
	})
	got, err := codec.DecryptExportBundle(exportBundle, p256.ScalarHex(target), ExportOptions{
		OrganizationID: "org-1",
		ReturnMnemonic: true,
	})
	if err != nil {
		t.Fatalf("decrypt export: %v", err)
	}
	if got != mnemonic {
		t.Fatalf("round trip mismatch: got %q", got)
	}
}

func TestExportBundleRejectsTamperedSignature(t *testing.T) {
	signer, signerHex := testSigner(t)
	receiver, _ := p256.Generate()
	bundle := buildExportBundle(t, signer, receiver, []byte("secret"), "", "")

	var outer models.CredentialBundleOuter
	if err := json.Unmarshal([]byte(bundle), &outer); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	sig, _ := hex.DecodeString(outer.DataSignature)
	sig[len(sig)-1] ^= 0x01
	outer.DataSignature = hex.EncodeToString(sig)
	tampered, _ := json.Marshal(outer)

	_, err := NewCodec(signerHex).DecryptExportBundle(string(tampered), p256.ScalarHex(receiver), ExportOptions{})
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected signature failure, got %v", err)
	}
}

func TestExportBundleRejectsTamperedData(t *testing.T) {
	signer, signerHex := testSigner(t)
	receiver, _ := p256.Generate()
	bundle := buildExportBundle(t, signer, receiver, []byte("secret"), "", "")

	var outer models.CredentialBundleOuter
	if err := json.Unmarshal([]byte(bundle), &outer); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	data, _ := hex.DecodeString(outer.Data)
	data[0] ^= 0x01
	outer.Data = hex.EncodeToString(data)
	tampered, _ := json.Marshal(outer)

	_, err := NewCodec(signerHex).DecryptExportBundle(string(tampered), p256.ScalarHex(receiver), ExportOptions{})
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected integrity failure, got %v", err)
	}
}

func TestSignerPinningRejectsForeignSigner(t *testing.T) {
	_, pinnedHex := testSigner(t)
	foreign, _ := testSigner(t)
	receiver, _ := p256.Generate()
	bundle := buildExportBundle(t, foreign, receiver, []byte("secret"), "", "")

	_, err := NewCodec(pinnedHex).DecryptExportBundle(bundle, p256.ScalarHex(receiver), ExportOptions{})
	if !errors.Is(err, ErrSignerMismatch) {
		t.Fatalf("expected signer mismatch, got %v", err)
	}
}

func TestExportBundleOrgAndUserMismatch(t *testing.T) {
	signer, signerHex := testSigner(t)
	receiver, _ := p256.Generate()
	bundle := buildExportBundle(t, signer, receiver, []byte("secret"), "org-1", "user-1")
	codec := NewCodec(signerHex)

	_, err := codec.DecryptExportBundle(bundle, p256.ScalarHex(receiver), ExportOptions{OrganizationID: "org-2"})
	if !errors.Is(err, ErrOrgIDMismatch) {
		t.Fatalf("expected org mismatch, got %v", err)
	}
	_, err = codec.DecryptExportBundle(bundle, p256.ScalarHex(receiver), ExportOptions{OrganizationID: "org-1", UserID: "user-2"})
	if !errors.Is(err, ErrUserIDMismatch) {
		t.Fatalf("expected user mismatch, got %v", err)
	}
}

func TestExportBundleSolanaFormat(t *testing.T) {
	signer, signerHex := testSigner(t)
	receiver, _ := p256.Generate()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	bundle := buildExportBundle(t, signer, receiver, seed, "", "")

	got, err := NewCodec(signerHex).DecryptExportBundle(bundle, p256.ScalarHex(receiver), ExportOptions{Format: KeyFormatSolana})
	if err != nil {
		t.Fatalf("decrypt solana export: %v", err)
	}
	decoded, err := base58CheckDecode(got)
	if err != nil {
		t.Fatalf("decode solana key: %v", err)
	}
	if len(decoded) != ed25519.SeedSize+ed25519.PublicKeySize {
		t.Fatalf("solana secret key should be 64 bytes, got %d", len(decoded))
	}
	wantPub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	if hex.EncodeToString(decoded[ed25519.SeedSize:]) != hex.EncodeToString(wantPub) {
		t.Fatalf("derived ed25519 public key mismatch")
	}
}

func TestExportBundleRejectsInvalidUTF8Mnemonic(t *testing.T) {
	signer, signerHex := testSigner(t)
	receiver, _ := p256.Generate()
	bundle := buildExportBundle(t, signer, receiver, []byte{0xff, 0xfe, 0xfd}, "", "")

	_, err := NewCodec(signerHex).DecryptExportBundle(bundle, p256.ScalarHex(receiver), ExportOptions{ReturnMnemonic: true})
	if !errors.Is(err, ErrInvalidPlaintext) {
		t.Fatalf("expected invalid plaintext, got %v", err)
	}
}

func TestEncryptWalletRejectsInvalidMnemonic(t *testing.T) {
	signer, signerHex := testSigner(t)
	target, _ := p256.Generate()
	importBundle := buildSignedBundle(t, signer, models.CredentialBundleInner{
		TargetPublic: hex.EncodeToString(p256.Uncompressed(&target.PublicKey)),
	})
	_, err := NewCodec(signerHex).EncryptWalletToBundle("definitely not a wordlist", importBundle, ImportOptions{ValidateMnemonic: true})
	if !errors.Is(err, ErrInvalidMnemonic) {
		t.Fatalf("expected invalid mnemonic, got %v", err)
	}
}

func TestBase58CheckRoundTrip(t *testing.T) {
	payload := []byte("arbitrary bytes \x00\x01\x02")
	decoded, err := base58CheckDecode(base58CheckEncode(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != string(payload) {
		t.Fatalf("round trip mismatch")
	}
}

func TestProductionSignerIsDefault(t *testing.T) {
	c := NewCodec("")
	if c.signerHex != ProductionSignerPublicKey {
		t.Fatalf("empty override must pin the production signer")
	}
}
