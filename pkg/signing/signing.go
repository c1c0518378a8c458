// Package signing provides the certificate validation and content hashing
// primitives used by the report signing workflow.
package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
)

// Validator checks certificate envelopes and computes content hashes.
type Validator interface {
	IsWellFormed(blob []byte) bool
	ComputeHash(content string) string
}

// PEMValidator accepts PEM-encoded certificate envelopes: a CERTIFICATE
// block with begin/end markers and a non-empty body.
type PEMValidator struct{}

func NewPEMValidator() *PEMValidator {
	return &PEMValidator{}
}

func (v *PEMValidator) IsWellFormed(blob []byte) bool {
	if len(blob) == 0 {
		return false
	}
	block, _ := pem.Decode(blob)
	if block == nil {
		return false
	}
	return block.Type == "CERTIFICATE" && len(block.Bytes) > 0
}

// ComputeHash returns the hex-encoded SHA-256 digest of the content the
// signature is bound to.
func (v *PEMValidator) ComputeHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
