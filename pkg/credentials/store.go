// Package credentials loads the login table consulted by the authentication
// handshake.
//
// A credential source is a flat text document of login:secret records. It is
// read once at startup from a local file or an S3 object, parsed into a
// Table, and handed to a Store backend. Stores are immutable after
// construction; replacing credentials means building a new Store.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/vcalc/internal/logger"
)

// ErrSourceUnavailable is returned when a credential source cannot be opened
// or read.
var ErrSourceUnavailable = errors.New("credential source unavailable")

// Store resolves logins to secrets.
//
// Lookup must be safe for concurrent callers once the store is constructed.
type Store interface {
	// Lookup returns the secret for login and whether it exists.
	Lookup(login string) (secret string, ok bool)

	// Len returns the number of credentials held.
	Len() int

	// Close releases backend resources. Lookup must not be called afterwards.
	Close() error
}

// Table maps login to secret. Logins are unique; secrets are kept verbatim
// after trimming.
type Table map[string]string

// Load reads and parses src into a Table. An empty result is not an error,
// but a warning is logged.
func Load(ctx context.Context, src Source, log *logger.Logger) (Table, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	table, err := Parse(rc, log)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrSourceUnavailable, src, err)
	}

	if len(table) == 0 {
		log.Warn("Credential source contains no records", logger.KeySource, src.String())
	} else {
		log.Info("Credentials loaded", logger.KeySource, src.String(), logger.KeyRecords, len(table))
	}
	return table, nil
}

// LoadFile is shorthand for loading a local file into a MemoryStore.
func LoadFile(path string, log *logger.Logger) (*MemoryStore, error) {
	table, err := Load(context.Background(), FileSource{Path: path}, log)
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(table), nil
}
