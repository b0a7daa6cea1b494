package cmdflags

import (
	"context"
	"fmt"
	"time"

	"github.com/andrebq/sambro/internal/logutil"
	"github.com/andrebq/sambro/session"
	"github.com/urfave/cli/v2"
)

const (
	BackendSharded  = "sharded"
	BackendBigCache = "bigcache"
)

type (
	// Sessions groups the flags that shape the session store.
	Sessions struct {
		TTL      time.Duration
		Capacity int
		Shards   int
		Backend  string
	}
)

func Database(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = "./db/sambro"
	}
	return &cli.StringFlag{
		Name:        "database",
		Aliases:     []string{"db"},
		Usage:       "Path to the sqlite database with users and passwords",
		EnvVars:     []string{"SAMBRO_DATABASE"},
		Destination: out,
		Value:       *out,
	}
}

func LogLevel(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = "info"
	}
	return &cli.StringFlag{
		Name:        "log-level",
		Usage:       "One of trace, debug, info, warn, error",
		EnvVars:     []string{"SAMBRO_LOG_LEVEL"},
		Destination: out,
		Value:       *out,
	}
}

func PrettyLog(out *bool) cli.Flag {
	return &cli.BoolFlag{
		Name:        "pretty-log",
		Usage:       "Human friendly logs instead of JSON",
		EnvVars:     []string{"SAMBRO_PRETTY_LOG"},
		Destination: out,
		Value:       *out,
	}
}

func (s *Sessions) Flags() []cli.Flag {
	if s.TTL == 0 {
		s.TTL = session.DefaultTTL
	}
	if s.Capacity == 0 {
		s.Capacity = session.DefaultCapacity
	}
	if s.Shards == 0 {
		s.Shards = session.DefaultShards
	}
	if len(s.Backend) == 0 {
		s.Backend = BackendSharded
	}
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "session-ttl",
			Usage:       "How long a session remains valid after login",
			EnvVars:     []string{"SAMBRO_SESSION_TTL"},
			Destination: &s.TTL,
			Value:       s.TTL,
		},
		&cli.IntFlag{
			Name:        "session-capacity",
			Usage:       fmt.Sprintf("Soft limit of live sessions, least recently used ones are evicted above it (0 disables). The %v backend turns it into a memory bound of at least 1 MB (about %v sessions)", BackendBigCache, session.BigCacheMinCapacity),
			EnvVars:     []string{"SAMBRO_SESSION_CAPACITY"},
			Destination: &s.Capacity,
			Value:       s.Capacity,
		},
		&cli.IntFlag{
			Name:        "session-shards",
			Usage:       "Number of independent locks in the session store (rounded up to a power of two)",
			Hidden:      true,
			Destination: &s.Shards,
			Value:       s.Shards,
		},
		&cli.StringFlag{
			Name:        "session-backend",
			Usage:       fmt.Sprintf("Session store implementation (%v or %v)", BackendSharded, BackendBigCache),
			EnvVars:     []string{"SAMBRO_SESSION_BACKEND"},
			Destination: &s.Backend,
			Value:       s.Backend,
		},
	}
}

// Store builds the session store selected by the flags.
func (s *Sessions) Store(ctx context.Context) (session.Store, error) {
	if s.TTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %v", s.TTL)
	}
	opts := session.Options{
		TTL:      s.TTL,
		Capacity: s.Capacity,
		Shards:   s.Shards,
	}
	switch s.Backend {
	case BackendSharded, "":
		return session.NewShardedStore(opts), nil
	case BackendBigCache:
		if s.Capacity > 0 && s.Capacity < session.BigCacheMinCapacity {
			log := logutil.GetOrDefault(ctx)
			log.Warn().Int("session.capacity", s.Capacity).Int("session.effectiveCapacity", session.BigCacheMinCapacity).
				Msg("Session capacity is below what the bigcache backend can enforce")
		}
		return session.NewBigCacheStore(opts)
	}
	return nil, fmt.Errorf("unknown session backend %q", s.Backend)
}
