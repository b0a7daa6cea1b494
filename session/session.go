package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const (
	DefaultTTL      = time.Hour
	DefaultCapacity = 10_000
	DefaultShards   = 64

	idBytes = 32
)

type (
	// Session is the server side proof that a login succeeded.
	Session struct {
		ID      string    `json:"id"`
		UserID  string    `json:"user_id"`
		Expires time.Time `json:"expires"`
	}

	// Store keeps sessions in memory.
	//
	// Get never returns an expired session: an entry found with
	// now >= Expires is removed and reported as absent.
	// Delete is idempotent.
	Store interface {
		Create(ctx context.Context, userID string) (Session, error)
		Get(ctx context.Context, id string) (Session, bool)
		Delete(ctx context.Context, id string)
		Len() int
	}

	Options struct {
		// TTL is added to Now() to compute the expiry of new sessions
		TTL time.Duration
		// Capacity is a soft limit on live entries, <= 0 disables it
		Capacity int
		// Shards must be a power of two, only used by the sharded store
		Shards int
		Now    func() time.Time
	}
)

// Expired reports whether s is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.Expires)
}

// NewID returns a random url-safe token with 256 bits of entropy.
func NewID() (string, error) {
	var buf [idBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("session: unable to generate id, cause %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf[:]), nil
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Shards <= 0 {
		o.Shards = DefaultShards
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func newSession(userID string, now time.Time, ttl time.Duration) (Session, error) {
	id, err := NewID()
	if err != nil {
		return Session{}, err
	}
	return Session{ID: id, UserID: userID, Expires: now.Add(ttl)}, nil
}
