package signing

import (
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
)

func certPEM(t *testing.T, blockType string, body []byte) []byte {
	t.Helper()
	return pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: body})
}

func TestIsWellFormed(t *testing.T) {
	v := NewPEMValidator()

	t.Run("valid certificate", func(t *testing.T) {
		assert.True(t, v.IsWellFormed(certPEM(t, "CERTIFICATE", []byte("der bytes"))))
	})

	t.Run("empty blob", func(t *testing.T) {
		assert.False(t, v.IsWellFormed(nil))
		assert.False(t, v.IsWellFormed([]byte{}))
	})

	t.Run("garbage", func(t *testing.T) {
		assert.False(t, v.IsWellFormed([]byte("not a certificate at all")))
	})

	t.Run("missing end marker", func(t *testing.T) {
		assert.False(t, v.IsWellFormed([]byte("-----BEGIN CERTIFICATE-----\nQUJD\n")))
	})

	t.Run("wrong block type", func(t *testing.T) {
		assert.False(t, v.IsWellFormed(certPEM(t, "PRIVATE KEY", []byte("der bytes"))))
	})

	t.Run("empty body", func(t *testing.T) {
		assert.False(t, v.IsWellFormed(certPEM(t, "CERTIFICATE", nil)))
	})
}

func TestComputeHash(t *testing.T) {
	v := NewPEMValidator()

	// SHA-256 of "abc", a fixed vector.
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		v.ComputeHash("abc"))

	assert.Equal(t, v.ComputeHash("same content"), v.ComputeHash("same content"))
	assert.NotEqual(t, v.ComputeHash("content a"), v.ComputeHash("content b"))
}
