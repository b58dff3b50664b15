package enclave

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/hpke"

	"custody/go-client/internal/p256"
)

// Ciphersuite fixed by the custody wire format: DHKEM(P-256, HKDF-SHA256),
// HKDF-SHA256, AES-256-GCM, with a constant info string. The additional
// authenticated data binds the encapsulated key to the receiver key, both in
// uncompressed form.
const hpkeInfo = "turnkey_hpke"

var ErrHPKEOpenFailed = errors.New("hpke open failed")

func hpkeSuite() hpke.Suite {
	return hpke.NewSuite(hpke.KEM_P256_HKDF_SHA256, hpke.KDF_HKDF_SHA256, hpke.AEAD_AES256GCM)
}

func hpkeAAD(encappedUncompressed, receiverUncompressed []byte) []byte {
	aad := make([]byte, 0, len(encappedUncompressed)+len(receiverUncompressed))
	aad = append(aad, encappedUncompressed...)
	aad = append(aad, receiverUncompressed...)
	return aad
}

// hpkeOpen decrypts ciphertext sealed to the receiver key. encapped may be
// compressed or uncompressed; the AAD always uses the uncompressed form.
func hpkeOpen(receiver *ecdsa.PrivateKey, encapped, ciphertext []byte) ([]byte, error) {
	encUncompressed, err := p256.Decompress(encapped)
	if err != nil {
		return nil, err
	}
	scheme := hpke.KEM_P256_HKDF_SHA256.Scheme()
	scalar := receiver.D.FillBytes(make([]byte, p256.ScalarSize))
	priv, err := scheme.UnmarshalBinaryPrivateKey(scalar)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", p256.ErrInvalidPrivateKey, err)
	}
	recv, err := hpkeSuite().NewReceiver(priv, []byte(hpkeInfo))
	if err != nil {
		return nil, err
	}
	opener, err := recv.Setup(encUncompressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHPKEOpenFailed, err)
	}
	aad := hpkeAAD(encUncompressed, p256.Uncompressed(&receiver.PublicKey))
	plaintext, err := opener.Open(ciphertext, aad)
	if err != nil {
		return nil, ErrHPKEOpenFailed
	}
	return plaintext, nil
}

// hpkeSeal encrypts plaintext to the recipient key in ephemeral sender mode
// and returns the 65-byte encapsulated key alongside the ciphertext.
func hpkeSeal(recipient *ecdsa.PublicKey, plaintext []byte) (encapped, ciphertext []byte, err error) {
	scheme := hpke.KEM_P256_HKDF_SHA256.Scheme()
	pub, err := scheme.UnmarshalBinaryPublicKey(p256.Uncompressed(recipient))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", p256.ErrInvalidPublicKey, err)
	}
	sender, err := hpkeSuite().NewSender(pub, []byte(hpkeInfo))
	if err != nil {
		return nil, nil, err
	}
	encapped, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	aad := hpkeAAD(encapped, p256.Uncompressed(recipient))
	ciphertext, err = sealer.Seal(plaintext, aad)
	if err != nil {
		return nil, nil, err
	}
	return encapped, ciphertext, nil
}
