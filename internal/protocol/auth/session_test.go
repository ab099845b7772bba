package auth

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/vcalc/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSecrets map[string]string

func (s staticSecrets) Lookup(login string) (string, bool) {
	secret, ok := s[login]
	return secret, ok
}

type handshakeResult struct {
	session *Session
	err     error
}

// startSession runs Authenticate on the server end of a pipe and returns the
// client end.
func startSession(t *testing.T, secrets SecretLookup) (net.Conn, <-chan handshakeResult) {
	t.Helper()

	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	_ = client.SetDeadline(time.Now().Add(5 * time.Second))

	done := make(chan handshakeResult, 1)
	go func() {
		session := NewSession(server, secrets, NewHashEngine(), logger.Discard())
		err := session.Authenticate()
		done <- handshakeResult{session: session, err: err}
	}()
	return client, done
}

// clientHandshake plays the client side and returns the salt and verdict.
func clientHandshake(t *testing.T, conn net.Conn, login, secret string, mangle func(string) string) (string, string) {
	t.Helper()

	_, err := conn.Write([]byte(login))
	require.NoError(t, err)

	salt := make([]byte, SaltLength)
	_, err = io.ReadFull(conn, salt)
	require.NoError(t, err)

	digest, err := NewHashEngine().ComputeHash(string(salt), secret)
	require.NoError(t, err)
	if mangle != nil {
		digest = mangle(digest)
	}
	_, err = conn.Write([]byte(digest))
	require.NoError(t, err)

	verdict := make([]byte, 3)
	n, err := conn.Read(verdict)
	require.NoError(t, err)
	return string(salt), string(verdict[:n])
}

func TestAuthenticateSuccess(t *testing.T) {
	conn, done := startSession(t, staticSecrets{"alice": "pass123"})

	salt, verdict := clientHandshake(t, conn, "alice", "pass123", nil)

	assert.Regexp(t, saltPattern, salt)
	assert.Equal(t, ReplyOK, verdict)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, StateAuthenticated, res.session.State())
	assert.Equal(t, "alice", res.session.Login())
}

func TestAuthenticateLowercaseHash(t *testing.T) {
	conn, done := startSession(t, staticSecrets{"alice": "pass123"})

	_, verdict := clientHandshake(t, conn, "alice", "pass123", strings.ToLower)

	assert.Equal(t, ReplyOK, verdict)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, StateAuthenticated, res.session.State())
}

func TestAuthenticateTrimsTrailingNewline(t *testing.T) {
	conn, done := startSession(t, staticSecrets{"alice": "pass123"})

	_, verdict := clientHandshake(t, conn, "alice\n", "pass123", nil)

	assert.Equal(t, ReplyOK, verdict)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "alice", res.session.Login())
}

func TestAuthenticateWrongSecret(t *testing.T) {
	conn, done := startSession(t, staticSecrets{"alice": "pass123"})

	_, verdict := clientHandshake(t, conn, "alice", "wrong", nil)

	assert.Equal(t, ReplyErr, verdict)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, StateRejected, res.session.State())
}

func TestAuthenticateOneCharacterOff(t *testing.T) {
	conn, done := startSession(t, staticSecrets{"alice": "pass123"})

	flip := func(d string) string {
		if d[0] == 'A' {
			return "B" + d[1:]
		}
		return "A" + d[1:]
	}
	_, verdict := clientHandshake(t, conn, "alice", "pass123", flip)

	assert.Equal(t, ReplyErr, verdict)
	assert.Equal(t, StateRejected, (<-done).session.State())
}

// An unknown login still receives a salt and a verdict, indistinguishable on
// the wire from a wrong secret.
func TestAuthenticateUnknownLoginGetsSalt(t *testing.T) {
	conn, done := startSession(t, staticSecrets{"alice": "pass123"})

	salt, verdict := clientHandshake(t, conn, "mallory", "anything", nil)

	assert.Regexp(t, saltPattern, salt)
	assert.Equal(t, ReplyErr, verdict)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, StateRejected, res.session.State())
}

func TestAuthenticateUnknownLoginCannotUseDecoy(t *testing.T) {
	conn, done := startSession(t, staticSecrets{})

	_, verdict := clientHandshake(t, conn, "mallory", decoySecret, nil)

	assert.Equal(t, ReplyErr, verdict)
	assert.Equal(t, StateRejected, (<-done).session.State())
}

func TestAuthenticateComparesForEveryLogin(t *testing.T) {
	var compared []bool
	orig := compareDigests
	compareDigests = func(expected, received string) bool {
		match := orig(expected, received)
		compared = append(compared, match)
		return match
	}
	t.Cleanup(func() { compareDigests = orig })

	tests := []struct {
		name    string
		login   string
		secret  string
		verdict string
	}{
		{"KnownLogin", "alice", "pass123", ReplyOK},
		{"UnknownLogin", "mallory", "pass123", ReplyErr},
		{"UnknownLoginWithDecoy", "mallory", decoySecret, ReplyErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compared = nil
			conn, done := startSession(t, staticSecrets{"alice": "pass123"})

			_, verdict := clientHandshake(t, conn, tt.login, tt.secret, nil)
			res := <-done

			require.NoError(t, res.err)
			assert.Equal(t, tt.verdict, verdict)
			assert.Len(t, compared, 1, "digest comparison must run exactly once")
		})
	}
}

func TestAuthenticatePeerClosesBeforeLogin(t *testing.T) {
	conn, done := startSession(t, staticSecrets{})

	require.NoError(t, conn.Close())

	res := <-done
	assert.ErrorIs(t, res.err, ErrTransport)
	assert.Equal(t, StateAwaitingLogin, res.session.State())
}

func TestAuthenticateShortHash(t *testing.T) {
	conn, done := startSession(t, staticSecrets{"alice": "pass123"})

	_, err := conn.Write([]byte("alice"))
	require.NoError(t, err)
	salt := make([]byte, SaltLength)
	_, err = io.ReadFull(conn, salt)
	require.NoError(t, err)

	_, err = conn.Write([]byte("ABCDEF"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	res := <-done
	assert.ErrorIs(t, res.err, ErrTransport)
	assert.Equal(t, StateAwaitingHash, res.session.State())
}

func TestAuthenticateRandomFailureNeverAuthenticates(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan handshakeResult, 1)
	go func() {
		engine := NewHashEngineWithReader(failingReader{})
		session := NewSession(server, staticSecrets{"alice": "pass123"}, engine, logger.Discard())
		done <- handshakeResult{session: session, err: session.Authenticate()}
	}()

	_, err := client.Write([]byte("alice"))
	require.NoError(t, err)

	res := <-done
	assert.ErrorIs(t, res.err, ErrHashEngine)
	assert.Equal(t, StateRejected, res.session.State())
}

func TestAuthenticateTwiceFails(t *testing.T) {
	conn, done := startSession(t, staticSecrets{"alice": "pass123"})
	clientHandshake(t, conn, "alice", "pass123", nil)

	res := <-done
	require.NoError(t, res.err)
	assert.Error(t, res.session.Authenticate())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_login", StateAwaitingLogin.String())
	assert.Equal(t, "awaiting_hash", StateAwaitingHash.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "rejected", StateRejected.String())
	assert.Equal(t, "state(9)", State(9).String())
}
