package credentials

import (
	"context"
	"sync/atomic"
)

// MemoryStore keeps credentials for the lifetime of the process.
type MemoryStore struct {
	current atomic.Pointer[Credentials]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty (anonymous) store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns a copy of the stored pair.
func (s *MemoryStore) Get(ctx context.Context) (*Credentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := s.current.Load()
	if c == nil {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// Set replaces the stored pair.
func (s *MemoryStore) Set(ctx context.Context, creds Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if creds.IsZero() {
		s.current.Store(nil)
		return nil
	}
	s.current.Store(&creds)
	return nil
}

// Clear drops the stored pair.
func (s *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.current.Store(nil)
	return nil
}
