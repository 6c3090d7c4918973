package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

// HashSize is the expected size of a hash in bytes.
const HashSize = 32

// SignatureSize is the expected size of an Ed25519 signature in bytes.
const SignatureSize = 64

// PublicKeySize is the expected size of an Ed25519 public key in bytes.
const PublicKeySize = 32

// Hash is a fixed-size content digest.
type Hash struct {
	Data []byte
}

// Signature is an Ed25519 signature.
type Signature struct {
	Data []byte
}

// PublicKey is an Ed25519 public key.
type PublicKey struct {
	Data []byte
}

// NewHash creates a Hash from bytes, returning an error if the length is wrong.
// Use for untrusted input (network, files).
func NewHash(data []byte) (Hash, error) {
	if len(data) != HashSize {
		return Hash{}, errors.Errorf("hash must be %d bytes, got %d", HashSize, len(data))
	}
	copied := make([]byte, HashSize)
	copy(copied, data)
	return Hash{Data: copied}, nil
}

// MustNewHash creates a Hash, panicking if invalid. Use only for trusted internal data.
func MustNewHash(data []byte) Hash {
	h, err := NewHash(data)
	if err != nil {
		panic(err)
	}
	return h
}

// HashBytes computes the SHA-256 hash of data.
func HashBytes(data []byte) Hash {
	h := sha256.Sum256(data)
	return Hash{Data: h[:]}
}

// HashEmpty returns the zero hash.
func HashEmpty() Hash {
	return Hash{Data: make([]byte, HashSize)}
}

// IsHashEmpty returns true if h is nil or all zeros.
func IsHashEmpty(h *Hash) bool {
	if h == nil {
		return true
	}
	for _, b := range h.Data {
		if b != 0 {
			return false
		}
	}
	return true
}

// HashEqual compares two hashes for byte equality.
func HashEqual(a, b Hash) bool {
	return bytes.Equal(a.Data, b.Data)
}

// HashString returns the hex encoding of a hash.
func HashString(h Hash) string {
	return hex.EncodeToString(h.Data)
}

// CopyHash returns a deep copy of h, or nil if h is nil.
func CopyHash(h *Hash) *Hash {
	if h == nil {
		return nil
	}
	cp := &Hash{}
	if len(h.Data) > 0 {
		cp.Data = make([]byte, len(h.Data))
		copy(cp.Data, h.Data)
	}
	return cp
}

// NewSignature creates a Signature from bytes, returning an error if the length is wrong.
func NewSignature(data []byte) (Signature, error) {
	if len(data) != SignatureSize {
		return Signature{}, errors.Errorf("signature must be %d bytes, got %d", SignatureSize, len(data))
	}
	copied := make([]byte, SignatureSize)
	copy(copied, data)
	return Signature{Data: copied}, nil
}

// MustNewSignature creates a Signature, panicking if invalid. Use only for
// trusted internal data (e.g. crypto library output).
func MustNewSignature(data []byte) Signature {
	s, err := NewSignature(data)
	if err != nil {
		panic(err)
	}
	return s
}

// NewPublicKey creates a PublicKey from bytes, returning an error if the length is wrong.
func NewPublicKey(data []byte) (PublicKey, error) {
	if len(data) != PublicKeySize {
		return PublicKey{}, errors.Errorf("public key must be %d bytes, got %d", PublicKeySize, len(data))
	}
	copied := make([]byte, PublicKeySize)
	copy(copied, data)
	return PublicKey{Data: copied}, nil
}

// MustNewPublicKey creates a PublicKey, panicking if invalid.
func MustNewPublicKey(data []byte) PublicKey {
	p, err := NewPublicKey(data)
	if err != nil {
		panic(err)
	}
	return p
}

// PublicKeyEqual compares two public keys for byte equality.
func PublicKeyEqual(a, b PublicKey) bool {
	return bytes.Equal(a.Data, b.Data)
}
