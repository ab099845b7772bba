package credentials

import "maps"

// MemoryStore holds credentials in an immutable map. Reads take no locks.
type MemoryStore struct {
	table Table
}

// NewMemoryStore copies table into a new store.
func NewMemoryStore(table Table) *MemoryStore {
	return &MemoryStore{table: maps.Clone(table)}
}

func (s *MemoryStore) Lookup(login string) (string, bool) {
	secret, ok := s.table[login]
	return secret, ok
}

func (s *MemoryStore) Len() int { return len(s.table) }

func (s *MemoryStore) Close() error { return nil }
