// Package p256 holds the NIST P-256 encoding helpers shared by the bundle
// codec, key backends and request stamper: SEC1 point (de)compression, raw
// 32-byte scalar handling and DER ECDSA signing.
package p256

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

const (
	CompressedPointSize   = 33
	UncompressedPointSize = 65
	ScalarSize            = 32
)

var (
	ErrInvalidPublicKey  = errors.New("invalid P-256 public key")
	ErrInvalidPrivateKey = errors.New("invalid P-256 private key")
)

// Decompress expands a 33-byte compressed point to its 65-byte uncompressed
// SEC1 form. A 65-byte input passes through after validation.
func Decompress(raw []byte) ([]byte, error) {
	switch len(raw) {
	case CompressedPointSize:
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), raw)
		if x == nil {
			return nil, ErrInvalidPublicKey
		}
		return elliptic.Marshal(elliptic.P256(), x, y), nil
	case UncompressedPointSize:
		x, _ := elliptic.Unmarshal(elliptic.P256(), raw)
		if x == nil {
			return nil, ErrInvalidPublicKey
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPublicKey, len(raw))
	}
}

func ParsePublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	uncompressed, err := Decompress(raw)
	if err != nil {
		return nil, err
	}
	x, y := elliptic.Unmarshal(elliptic.P256(), uncompressed)
	if x == nil {
		return nil, ErrInvalidPublicKey
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}

func ParsePublicKeyHex(h string) (*ecdsa.PublicKey, error) {
	raw, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return ParsePublicKey(raw)
}

// PrivateKeyFromScalarHex rebuilds a private key from its raw 32-byte
// scalar, the form key material travels in transport bundles and API
// credentials.
func PrivateKeyFromScalarHex(h string) (*ecdsa.PrivateKey, error) {
	scalar, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	if len(scalar) != ScalarSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPrivateKey, len(scalar))
	}
	d := new(big.Int).SetBytes(scalar)
	curve := elliptic.P256()
	if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, ErrInvalidPrivateKey
	}
	priv := &ecdsa.PrivateKey{D: d}
	priv.Curve = curve
	priv.X, priv.Y = curve.ScalarBaseMult(d.Bytes())
	return priv, nil
}

func Generate() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

func Uncompressed(pub *ecdsa.PublicKey) []byte {
	return elliptic.Marshal(elliptic.P256(), pub.X, pub.Y)
}

func Compressed(pub *ecdsa.PublicKey) []byte {
	return elliptic.MarshalCompressed(elliptic.P256(), pub.X, pub.Y)
}

// CompressedHex is the canonical public-key identifier used across the
// client: lower-case hex of the 33-byte compressed point, no 0x prefix.
func CompressedHex(pub *ecdsa.PublicKey) string {
	return hex.EncodeToString(Compressed(pub))
}

func ScalarHex(priv *ecdsa.PrivateKey) string {
	return hex.EncodeToString(priv.D.FillBytes(make([]byte, ScalarSize)))
}

// SignPayload digests the payload with SHA-256 and returns a DER-encoded
// ECDSA signature.
func SignPayload(priv *ecdsa.PrivateKey, payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	return ecdsa.SignASN1(rand.Reader, priv, digest[:])
}

// VerifyPayload checks a DER signature over SHA-256(payload).
func VerifyPayload(pub *ecdsa.PublicKey, payload, sig []byte) bool {
	digest := sha256.Sum256(payload)
	return ecdsa.VerifyASN1(pub, digest[:], sig)
}
