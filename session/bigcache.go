package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

type (
	bigStore struct {
		cache *bigcache.BigCache
		ttl   time.Duration
		now   func() time.Time
	}
)

const (
	approxEntrySize = 512

	// BigCacheMinCapacity is the smallest capacity that changes the
	// memory bound of NewBigCacheStore, anything below it gets 1 MB.
	BigCacheMinCapacity = 1024 * 1024 / approxEntrySize
)

// NewBigCacheStore keeps sessions in a bigcache instance.
//
// Expiry is checked on every Get, the background cleaner is disabled.
// bigcache may still drop entries older than TTL while inserting new
// ones, those are expired already. Capacity is translated into a memory
// bound, so it is even softer than the one used by NewShardedStore.
func NewBigCacheStore(opts Options) (Store, error) {
	opts = opts.withDefaults()
	cfg := bigcache.DefaultConfig(opts.TTL)
	cfg.CleanWindow = 0
	cfg.Verbose = false
	n := 1
	for n < opts.Shards {
		n <<= 1
	}
	cfg.Shards = n
	// sizes the initial allocation, the default config reserves hundreds of MB
	cfg.MaxEntriesInWindow = DefaultCapacity
	cfg.MaxEntrySize = approxEntrySize
	if opts.Capacity > 0 {
		cfg.MaxEntriesInWindow = opts.Capacity
		mb := opts.Capacity * approxEntrySize / (1024 * 1024)
		if mb < 1 {
			mb = 1
		}
		cfg.HardMaxCacheSize = mb
	}
	cache, err := bigcache.NewBigCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("session: unable to create bigcache, cause %w", err)
	}
	return &bigStore{
		cache: cache,
		ttl:   opts.TTL,
		now:   opts.Now,
	}, nil
}

func (b *bigStore) Create(ctx context.Context, userID string) (Session, error) {
	sess, err := newSession(userID, b.now(), b.ttl)
	if err != nil {
		return Session{}, err
	}
	buf, err := json.Marshal(sess)
	if err != nil {
		return Session{}, fmt.Errorf("session: unable to encode, cause %w", err)
	}
	err = b.cache.Set(sess.ID, buf)
	if err != nil {
		return Session{}, fmt.Errorf("session: unable to store session, cause %w", err)
	}
	return sess, nil
}

func (b *bigStore) Get(ctx context.Context, id string) (Session, bool) {
	buf, err := b.cache.Get(id)
	if err != nil {
		return Session{}, false
	}
	var sess Session
	if err := json.Unmarshal(buf, &sess); err != nil || sess.ID != id {
		b.cache.Delete(id)
		return Session{}, false
	}
	if sess.Expired(b.now()) {
		// ids are never reused, so a concurrent writer cannot
		// have replaced the entry between Get and Delete
		b.cache.Delete(id)
		return Session{}, false
	}
	return sess, true
}

func (b *bigStore) Delete(ctx context.Context, id string) {
	// ErrEntryNotFound is fine, deletes are idempotent
	_ = b.cache.Delete(id)
}

func (b *bigStore) Len() int {
	return b.cache.Len()
}
