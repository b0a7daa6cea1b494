package session

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

type (
	shardedStore struct {
		// live entries across all shards, first for 64-bit alignment
		size int64

		shards   []*shard
		mask     uint64
		ttl      time.Duration
		capacity int64
		now      func() time.Time
	}

	// shard keeps its entries in a map for lookups and in a list
	// ordered from most to least recently used.
	shard struct {
		sync.Mutex
		items map[string]*list.Element
		lru   *list.List
	}
)

// NewShardedStore returns a Store made of independent shards, each
// guarded by its own lock. Keys are spread with xxhash so unrelated
// sessions rarely share a lock.
func NewShardedStore(opts Options) Store {
	opts = opts.withDefaults()
	n := 1
	for n < opts.Shards {
		n <<= 1
	}
	s := &shardedStore{
		shards:   make([]*shard, n),
		mask:     uint64(n - 1),
		ttl:      opts.TTL,
		capacity: int64(opts.Capacity),
		now:      opts.Now,
	}
	for i := range s.shards {
		s.shards[i] = &shard{
			items: make(map[string]*list.Element),
			lru:   list.New(),
		}
	}
	return s
}

func (s *shardedStore) shardFor(id string) *shard {
	return s.shards[xxhash.Sum64String(id)&s.mask]
}

func (s *shardedStore) Create(_ context.Context, userID string) (Session, error) {
	now := s.now()
	for {
		sess, err := newSession(userID, now, s.ttl)
		if err != nil {
			return Session{}, err
		}
		if s.insert(sess) {
			if s.capacity > 0 && atomic.LoadInt64(&s.size) > s.capacity {
				s.shrink(sess.ID, now)
			}
			return sess, nil
		}
		// 256 bit ids do not collide in practice, but a live key is never overwritten
	}
}

func (s *shardedStore) insert(sess Session) bool {
	sh := s.shardFor(sess.ID)
	sh.Lock()
	defer sh.Unlock()
	if _, exists := sh.items[sess.ID]; exists {
		return false
	}
	sh.items[sess.ID] = sh.lru.PushFront(sess)
	atomic.AddInt64(&s.size, 1)
	return true
}

// shrink evicts entries until the store is back at capacity. It starts
// at the shard that owns keep and moves to the next one once a shard has
// nothing left to give. Only one shard lock is held at a time.
func (s *shardedStore) shrink(keep string, now time.Time) {
	start := xxhash.Sum64String(keep) & s.mask
	for i := uint64(0); i <= s.mask && atomic.LoadInt64(&s.size) > s.capacity; {
		sh := s.shards[(start+i)&s.mask]
		sh.Lock()
		evicted := s.evictLocked(sh, keep, now)
		sh.Unlock()
		if !evicted {
			i++
		}
	}
}

// evictLocked frees one slot in sh, preferring an expired entry over the
// least recently used one. The entry that was just inserted is never a victim.
func (s *shardedStore) evictLocked(sh *shard, keep string, now time.Time) bool {
	var victim *list.Element
	for e := sh.lru.Back(); e != nil; e = e.Prev() {
		sess := e.Value.(Session)
		if sess.ID == keep {
			continue
		}
		if sess.Expired(now) {
			victim = e
			break
		}
		if victim == nil {
			victim = e
		}
	}
	if victim == nil {
		return false
	}
	s.removeLocked(sh, victim)
	return true
}

func (s *shardedStore) removeLocked(sh *shard, e *list.Element) {
	sess := sh.lru.Remove(e).(Session)
	delete(sh.items, sess.ID)
	atomic.AddInt64(&s.size, -1)
}

func (s *shardedStore) Get(_ context.Context, id string) (Session, bool) {
	sh := s.shardFor(id)
	sh.Lock()
	defer sh.Unlock()
	e, found := sh.items[id]
	if !found {
		return Session{}, false
	}
	sess := e.Value.(Session)
	if sess.Expired(s.now()) {
		s.removeLocked(sh, e)
		return Session{}, false
	}
	sh.lru.MoveToFront(e)
	return sess, true
}

func (s *shardedStore) Delete(_ context.Context, id string) {
	sh := s.shardFor(id)
	sh.Lock()
	defer sh.Unlock()
	if e, found := sh.items[id]; found {
		s.removeLocked(sh, e)
	}
}

func (s *shardedStore) Len() int {
	return int(atomic.LoadInt64(&s.size))
}
