package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"
)

const (
	// SaltBytes is the entropy drawn per authentication attempt.
	SaltBytes = 8

	// SaltLength is the wire length of a rendered salt (uppercase hex).
	SaltLength = 2 * SaltBytes

	// HashLength is the wire length of a rendered SHA-256 digest.
	HashLength = 2 * sha256.Size
)

// ErrHashEngine marks failures of the random source or the digest. A session
// that hits it must not authenticate.
var ErrHashEngine = errors.New("hash engine failure")

// HashEngine generates salts and computes salted SHA-256 digests.
//
// It holds no mutable state and is safe for concurrent use.
type HashEngine struct {
	random  io.Reader
	newHash func() hash.Hash
}

// NewHashEngine returns an engine backed by crypto/rand and crypto/sha256.
func NewHashEngine() *HashEngine {
	return &HashEngine{random: rand.Reader, newHash: sha256.New}
}

// NewHashEngineWithReader returns an engine drawing salts from r.
func NewHashEngineWithReader(r io.Reader) *HashEngine {
	return &HashEngine{random: r, newHash: sha256.New}
}

// GenerateSalt returns 64 random bits as 16 uppercase, zero-padded hex
// characters. There is no weak fallback when the random source fails.
func (e *HashEngine) GenerateSalt() (string, error) {
	var raw [SaltBytes]byte
	if _, err := io.ReadFull(e.random, raw[:]); err != nil {
		return "", fmt.Errorf("%w: read random source: %w", ErrHashEngine, err)
	}
	return fmt.Sprintf("%016X", binary.BigEndian.Uint64(raw[:])), nil
}

// ComputeHash returns SHA-256(salt || secret) as 64 uppercase hex characters.
func (e *HashEngine) ComputeHash(salt, secret string) (string, error) {
	h := e.newHash()
	if _, err := io.WriteString(h, salt); err != nil {
		return "", fmt.Errorf("%w: digest salt: %w", ErrHashEngine, err)
	}
	if _, err := io.WriteString(h, secret); err != nil {
		return "", fmt.Errorf("%w: digest secret: %w", ErrHashEngine, err)
	}

	sum := h.Sum(nil)
	if len(sum) != sha256.Size {
		return "", fmt.Errorf("%w: unexpected digest size %d", ErrHashEngine, len(sum))
	}
	return strings.ToUpper(hex.EncodeToString(sum)), nil
}

// HashesEqual compares two hex digests case-insensitively. Lengths are
// checked first; equal-length inputs are compared in constant time.
func HashesEqual(expected, received string) bool {
	a := []byte(strings.ToUpper(expected))
	b := []byte(strings.ToUpper(received))
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
