package auth

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"hash"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var saltPattern = regexp.MustCompile(`^[0-9A-F]{16}$`)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerateSaltFormat(t *testing.T) {
	engine := NewHashEngine()

	salt, err := engine.GenerateSalt()
	require.NoError(t, err)
	assert.Len(t, salt, SaltLength)
	assert.Regexp(t, saltPattern, salt)
}

func TestGenerateSaltZeroPadded(t *testing.T) {
	raw := []byte{0, 0, 0, 0, 0, 0, 0, 0xFF}
	engine := NewHashEngineWithReader(bytes.NewReader(raw))

	salt, err := engine.GenerateSalt()
	require.NoError(t, err)
	assert.Equal(t, "00000000000000FF", salt)
}

func TestGenerateSaltUnique(t *testing.T) {
	engine := NewHashEngine()
	seen := make(map[string]struct{}, 10000)

	for range 10000 {
		salt, err := engine.GenerateSalt()
		require.NoError(t, err)
		_, dup := seen[salt]
		require.False(t, dup, "duplicate salt %s", salt)
		seen[salt] = struct{}{}
	}
}

func TestGenerateSaltRandomFailure(t *testing.T) {
	engine := NewHashEngineWithReader(failingReader{})

	salt, err := engine.GenerateSalt()
	assert.Empty(t, salt)
	assert.ErrorIs(t, err, ErrHashEngine)
}

func TestComputeHash(t *testing.T) {
	engine := NewHashEngine()

	tests := []struct {
		name   string
		salt   string
		secret string
		want   string
	}{
		{"Typical", "0123456789ABCDEF", "swordfish", "C31B3A06195DB8D1A69A5DB42F96B3DBCB6AF3A51A1D379106896CEB2621F20A"},
		{"PaddedSalt", "00000000000000FF", "pw", "B94AE84E4C57631D4E187C6C32CDCCFAF39A36AC17B927A271652E839FB605C0"},
		{"EmptyInput", "", "", "E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.ComputeHash(tt.salt, tt.secret)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, HashLength)
		})
	}
}

func TestComputeHashDeterministic(t *testing.T) {
	engine := NewHashEngine()

	first, err := engine.ComputeHash("ABCDEF0123456789", "pass123")
	require.NoError(t, err)
	second, err := engine.ComputeHash("ABCDEF0123456789", "pass123")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, strings.ToUpper(first), first)
}

type shortHash struct{ hash.Hash }

func (shortHash) Sum(b []byte) []byte { return append(b, 1, 2, 3) }

func TestComputeHashDigestFailure(t *testing.T) {
	engine := NewHashEngine()
	engine.newHash = func() hash.Hash { return shortHash{Hash: sha256.New()} }

	_, err := engine.ComputeHash("salt", "secret")
	assert.ErrorIs(t, err, ErrHashEngine)
}

type brokenWriterHash struct{ hash.Hash }

func (brokenWriterHash) Write([]byte) (int, error) { return 0, errors.New("device failure") }

func TestComputeHashWriteFailure(t *testing.T) {
	engine := NewHashEngine()
	engine.newHash = func() hash.Hash { return brokenWriterHash{} }

	_, err := engine.ComputeHash("salt", "secret")
	assert.ErrorIs(t, err, ErrHashEngine)
}

func TestHashesEqual(t *testing.T) {
	const digest = "C31B3A06195DB8D1A69A5DB42F96B3DBCB6AF3A51A1D379106896CEB2621F20A"

	assert.True(t, HashesEqual(digest, digest))
	assert.True(t, HashesEqual(digest, strings.ToLower(digest)))
	assert.True(t, HashesEqual(strings.ToLower(digest), digest))

	flipped := "D" + digest[1:]
	assert.False(t, HashesEqual(digest, flipped))
	assert.False(t, HashesEqual(digest, digest[:63]))
	assert.False(t, HashesEqual(digest, digest+"0"))
	assert.False(t, HashesEqual(digest, ""))
	assert.True(t, HashesEqual("", ""))
}
