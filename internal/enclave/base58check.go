package enclave

import (
	"bytes"
	"crypto/sha256"
	"errors"

	"github.com/mr-tron/base58"
)

const checksumSize = 4

var (
	ErrChecksumMismatch = errors.New("base58check checksum mismatch")
	ErrBundleTooShort   = errors.New("base58check payload too short")
)

func base58CheckEncode(payload []byte) string {
	sum := doubleSHA256(payload)
	buf := make([]byte, 0, len(payload)+checksumSize)
	buf = append(buf, payload...)
	buf = append(buf, sum[:checksumSize]...)
	return base58.Encode(buf)
}

func base58CheckDecode(encoded string) ([]byte, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw) <= checksumSize {
		return nil, ErrBundleTooShort
	}
	payload := raw[:len(raw)-checksumSize]
	sum := doubleSHA256(payload)
	if !bytes.Equal(raw[len(raw)-checksumSize:], sum[:checksumSize]) {
		return nil, ErrChecksumMismatch
	}
	return payload, nil
}

func doubleSHA256(b []byte) [sha256.Size]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}
