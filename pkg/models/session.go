package models

import "strings"

// BackendKind identifies which key backend owns a key pair.
type BackendKind string

const (
	BackendRawKey           BackendKind = "raw-api-key"
	BackendSoftwareKeystore BackendKind = "software-keystore"
	BackendHardwareEnclave  BackendKind = "hardware-enclave"
	BackendPasskey          BackendKind = "passkey"
)

// KeyPair is the public half of a backend-held key. Private material never
// leaves the backend that created it.
type KeyPair struct {
	PublicKeyHex string      `json:"public_key_hex"`
	Backend      BackendKind `json:"backend"`
}

type SessionType string

const (
	SessionReadWrite SessionType = "SESSION_TYPE_READ_WRITE"
	SessionReadOnly  SessionType = "SESSION_TYPE_READ_ONLY"
)

// NormalizeSessionType maps unknown values to read-only, the safer default.
func NormalizeSessionType(raw string) SessionType {
	switch SessionType(strings.TrimSpace(raw)) {
	case SessionReadWrite:
		return SessionReadWrite
	default:
		return SessionReadOnly
	}
}

// Session is a time-bounded binding between a device-held key and a
// server-authorized identity, decoded from a server-issued JWT.
type Session struct {
	PublicKey      string      `json:"public_key"`
	OrganizationID string      `json:"organization_id"`
	UserID         string      `json:"user_id"`
	Type           SessionType `json:"session_type"`
	Expiry         int64       `json:"exp"`
}
