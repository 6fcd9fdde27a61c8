package snapshot

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// LocalBackend is an in-process bounded LRU. The LRU's own expiry is the
// default TTL; per-entry TTLs shorter than that are checked on read.
type LocalBackend struct {
	lru *expirable.LRU[string, localEntry]
	now func() time.Time
}

// NewLocalBackend holds up to size entries for at most ttl each
func NewLocalBackend(size int, ttl time.Duration) *LocalBackend {
	return &LocalBackend{
		lru: expirable.NewLRU[string, localEntry](size, nil, ttl),
		now: time.Now,
	}
}

func (b *LocalBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	entry, ok := b.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !b.now().Before(entry.expiresAt) {
		b.lru.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (b *LocalBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.lru.Add(key, localEntry{value: value, expiresAt: b.now().Add(ttl)})
	return nil
}

func (b *LocalBackend) Delete(ctx context.Context, key string) error {
	b.lru.Remove(key)
	return nil
}

// Len is the number of entries currently held
func (b *LocalBackend) Len() int {
	return b.lru.Len()
}
