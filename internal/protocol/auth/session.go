// Package auth implements the salted challenge-response handshake that gates
// every vcalc connection.
//
// Wire exchange (all ASCII, no framing):
//
//	client -> server  login             (one read, at most 255 bytes)
//	server -> client  salt              (16 uppercase hex characters)
//	client -> server  SHA-256 hex       (exactly 64 characters, any case)
//	server -> client  "OK" | "ERR"
//
// The server issues a salt whether or not the login is known, so a client
// cannot tell an unknown login from a wrong secret.
package auth

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/marmos91/vcalc/internal/logger"
)

const (
	// MaxLoginLength bounds the single login read.
	MaxLoginLength = 255

	ReplyOK  = "OK"
	ReplyErr = "ERR"
)

// decoySecret is hashed for unknown logins so both paths do the same work.
const decoySecret = "vcalc-decoy-secret-never-matches"

// compareDigests runs for every received hash, known login or not.
var compareDigests = HashesEqual

// ErrTransport marks short reads, peer closes and failed writes during the
// handshake.
var ErrTransport = errors.New("auth transport error")

// SecretLookup resolves a login to its shared secret.
type SecretLookup interface {
	Lookup(login string) (secret string, ok bool)
}

// State is the position of a Session in the handshake.
type State int

const (
	StateAwaitingLogin State = iota
	StateAwaitingHash
	StateAuthenticated
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateAwaitingLogin:
		return "awaiting_login"
	case StateAwaitingHash:
		return "awaiting_hash"
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session runs one handshake over one connection. It is owned by the
// connection's goroutine and is not safe for concurrent use.
type Session struct {
	rw      io.ReadWriter
	secrets SecretLookup
	engine  *HashEngine
	log     *logger.Logger

	login string
	salt  string
	state State
}

// NewSession creates a session in StateAwaitingLogin.
func NewSession(rw io.ReadWriter, secrets SecretLookup, engine *HashEngine, log *logger.Logger) *Session {
	return &Session{
		rw:      rw,
		secrets: secrets,
		engine:  engine,
		log:     log,
		state:   StateAwaitingLogin,
	}
}

// State returns the current handshake state.
func (s *Session) State() State { return s.state }

// Login returns the login received from the client, empty before it arrives.
func (s *Session) Login() string { return s.login }

// Authenticate drives the handshake to completion.
//
// A nil error means the exchange finished and a verdict was sent; the caller
// inspects State to learn whether it was StateAuthenticated or StateRejected.
// Errors wrap ErrTransport or ErrHashEngine, and leave the session in
// StateRejected or in the state where the failure happened. In both cases the
// connection must be closed without entering the vector protocol.
func (s *Session) Authenticate() error {
	if s.state != StateAwaitingLogin {
		return fmt.Errorf("authenticate called in state %s", s.state)
	}

	login, err := s.readLogin()
	if err != nil {
		return err
	}
	s.login = login

	salt, err := s.engine.GenerateSalt()
	if err != nil {
		s.state = StateRejected
		return err
	}
	s.salt = salt
	s.state = StateAwaitingHash

	if err := s.write(salt); err != nil {
		return fmt.Errorf("send salt: %w", err)
	}
	s.log.Debug("Salt sent", logger.KeyLogin, login)

	received, err := s.readHash()
	if err != nil {
		return err
	}

	secret, known := s.secrets.Lookup(login)
	if !known {
		secret = decoySecret
	}

	expected, err := s.engine.ComputeHash(salt, secret)
	if err != nil {
		s.state = StateRejected
		return err
	}

	if match := compareDigests(expected, received); match && known {
		s.state = StateAuthenticated
		if err := s.write(ReplyOK); err != nil {
			return fmt.Errorf("send verdict: %w", err)
		}
		return nil
	}

	if !known {
		s.log.Debug("Unknown login", logger.KeyLogin, login)
	}
	s.state = StateRejected
	if err := s.write(ReplyErr); err != nil {
		return fmt.Errorf("send verdict: %w", err)
	}
	return nil
}

// readLogin performs the single bounded read. Surrounding whitespace is
// dropped so line-oriented clients can terminate the login with a newline.
func (s *Session) readLogin() (string, error) {
	buf := make([]byte, MaxLoginLength)
	n, err := s.rw.Read(buf)
	if n == 0 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return "", fmt.Errorf("%w: read login: %w", ErrTransport, err)
	}
	return strings.TrimSpace(string(buf[:n])), nil
}

func (s *Session) readHash() (string, error) {
	buf := make([]byte, HashLength)
	if _, err := io.ReadFull(s.rw, buf); err != nil {
		return "", fmt.Errorf("%w: read hash: %w", ErrTransport, err)
	}
	return string(buf), nil
}

func (s *Session) write(msg string) error {
	if _, err := io.WriteString(s.rw, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}
