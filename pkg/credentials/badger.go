package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/vcalc/internal/logger"
)

// keyPrefix namespaces credential records inside the database.
var keyPrefix = []byte("cred:")

func credentialKey(login string) []byte {
	key := make([]byte, 0, len(keyPrefix)+len(login))
	key = append(key, keyPrefix...)
	return append(key, login...)
}

// BadgerStoreConfig configures a BadgerStore.
type BadgerStoreConfig struct {
	// DBPath is the database directory. Ignored when InMemory is set.
	DBPath string

	// InMemory keeps the database entirely in memory.
	InMemory bool

	// BlockCacheSizeMB and IndexCacheSizeMB size Badger's caches.
	// Zero selects small defaults suited to a credential table.
	BlockCacheSizeMB int64
	IndexCacheSizeMB int64
}

// BadgerStore keeps credentials in a BadgerDB database.
//
// The table passed at construction replaces whatever the database held
// before; the store is read-only afterwards and lookups run in read-only
// transactions.
type BadgerStore struct {
	db    *badger.DB
	count int
	log   *logger.Logger
}

// NewBadgerStore opens the database described by config and imports table.
func NewBadgerStore(ctx context.Context, config BadgerStoreConfig, table Table, log *logger.Logger) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.DBPath == "" {
			return nil, fmt.Errorf("badger credential store: db_path is required")
		}
		opts = badger.DefaultOptions(config.DBPath)
	}

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 16
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 8
	}

	opts = opts.
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.None).
		WithBlockCacheSize(blockCacheMB << 20).
		WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	store := &BadgerStore{db: db, log: log}
	if err := store.replace(table); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// replace drops every stored credential and writes table in one batch.
func (s *BadgerStore) replace(table Table) error {
	if err := s.db.DropPrefix(keyPrefix); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	wb := s.db.NewWriteBatch()
	for login, secret := range table {
		if err := wb.Set(credentialKey(login), []byte(secret)); err != nil {
			wb.Cancel()
			return fmt.Errorf("failed to stage credential %q: %w", login, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	s.count = len(table)
	return nil
}

func (s *BadgerStore) Lookup(login string) (string, bool) {
	var secret []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(credentialKey(login))
		if err != nil {
			return err
		}
		secret, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false
	}
	if err != nil {
		s.log.Error("Credential lookup failed", logger.KeyLogin, login, logger.KeyError, err)
		return "", false
	}
	return string(secret), true
}

func (s *BadgerStore) Len() int { return s.count }

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
