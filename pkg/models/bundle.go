package models

// CredentialBundleOuter is the signed wrapper around key-transport payloads.
// It is immutable once received; the data field is hex and authenticated by
// dataSignature under the enclave quorum key.
type CredentialBundleOuter struct {
	Version             string `json:"version,omitempty"`
	Data                string `json:"data"`
	DataSignature       string `json:"dataSignature"`
	EnclaveQuorumPublic string `json:"enclaveQuorumPublic"`
}

// CredentialBundleInner is the payload decoded from the outer data field
// after signature verification. Field presence depends on the bundle kind:
// export bundles carry encappedPublic and ciphertext, import bundles carry
// targetPublic.
type CredentialBundleInner struct {
	OrganizationID string `json:"organizationId,omitempty"`
	UserID         string `json:"userId,omitempty"`
	EncappedPublic string `json:"encappedPublic,omitempty"`
	TargetPublic   string `json:"targetPublic,omitempty"`
	Ciphertext     string `json:"ciphertext,omitempty"`
}

// WalletBundle is the sealed output of the wallet-import encrypt path.
type WalletBundle struct {
	EncappedPublic string `json:"encappedPublic"`
	Ciphertext     string `json:"ciphertext"`
}
