package credential

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
)

type (
	// Params controls the cost of Argon2id.
	Params struct {
		Memory  uint32 // KiB
		Time    uint32
		Threads uint8
		KeyLen  uint32
		SaltLen int
	}

	// Hasher derives and verifies password hashes.
	//
	// Every derivation goes through lane, a fixed set of slots,
	// so that a burst of logins cannot use more CPUs than the lane allows.
	Hasher struct {
		params Params
		lane   chan struct{}
	}
)

var (
	// ErrMalformedHash is returned when a stored hash cannot be parsed
	// or does not agree with its stored salt.
	ErrMalformedHash = errors.New("credential: malformed password hash")

	encoding = base64.RawStdEncoding
)

// upper bounds accepted when decoding a stored hash
const (
	maxMemory  = 1 << 20 // KiB
	maxTime    = 64
	maxKeyLen  = 128
	maxSaltLen = 64
)

// DefaultParams mirrors the reference argon2id defaults (19 MiB, 2 passes, 1 lane).
func DefaultParams() Params {
	return Params{
		Memory:  19 * 1024,
		Time:    2,
		Threads: 1,
		KeyLen:  32,
		SaltLen: 16,
	}
}

// NewHasher returns a hasher that runs at most slots derivations at
// the same time. slots <= 0 means one slot per CPU.
func NewHasher(params Params, slots int) *Hasher {
	if slots <= 0 {
		slots = runtime.NumCPU()
	}
	return &Hasher{
		params: params,
		lane:   make(chan struct{}, slots),
	}
}

// Hash generates a fresh salt and returns it together with the PHC encoded hash.
func (h *Hasher) Hash(ctx context.Context, password []byte) (salt string, encoded string, err error) {
	rawSalt := make([]byte, h.params.SaltLen)
	if _, err = rand.Read(rawSalt); err != nil {
		return "", "", fmt.Errorf("credential: unable to generate salt, cause %w", err)
	}
	var key []byte
	err = h.run(ctx, func() {
		key = argon2.IDKey(password, rawSalt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
	})
	if err != nil {
		return "", "", err
	}
	salt = encoding.EncodeToString(rawSalt)
	encoded = fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Time, h.params.Threads,
		salt, encoding.EncodeToString(key))
	return salt, encoded, nil
}

// Verify checks password against a hash produced by Hash.
// A wrong password is (false, nil); a corrupt hash is ErrMalformedHash.
func (h *Hasher) Verify(ctx context.Context, password []byte, salt string, encoded string) (bool, error) {
	phc, err := decode(encoded)
	if err != nil {
		return false, err
	}
	if salt != encoding.EncodeToString(phc.salt) {
		return false, fmt.Errorf("%w: salt column does not match the encoded hash", ErrMalformedHash)
	}
	var key []byte
	err = h.run(ctx, func() {
		key = argon2.IDKey(password, phc.salt, phc.params.Time, phc.params.Memory, phc.params.Threads, uint32(len(phc.key)))
	})
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(key, phc.key) == 1, nil
}

func (h *Hasher) run(ctx context.Context, fn func()) error {
	select {
	case h.lane <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("credential: waiting for a hashing slot, cause %w", ctx.Err())
	}
	defer func() { <-h.lane }()
	fn()
	return nil
}

type phcHash struct {
	params Params
	salt   []byte
	key    []byte
}

func decode(encoded string) (phcHash, error) {
	var out phcHash
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return out, fmt.Errorf("%w: expecting 6 sections got %v", ErrMalformedHash, len(parts))
	}
	if parts[1] != "argon2id" {
		return out, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedHash, parts[1])
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return out, fmt.Errorf("%w: invalid version, cause %v", ErrMalformedHash, err)
	} else if version != argon2.Version {
		return out, fmt.Errorf("%w: unsupported version %v", ErrMalformedHash, version)
	}
	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &out.params.Memory, &out.params.Time, &threads); err != nil {
		return out, fmt.Errorf("%w: invalid parameters, cause %v", ErrMalformedHash, err)
	}
	if out.params.Memory == 0 || out.params.Time == 0 || threads == 0 || threads > 255 ||
		out.params.Memory > maxMemory || out.params.Time > maxTime {
		return out, fmt.Errorf("%w: parameters out of range", ErrMalformedHash)
	}
	out.params.Threads = uint8(threads)
	var err error
	if out.salt, err = encoding.DecodeString(parts[4]); err != nil || len(out.salt) == 0 || len(out.salt) > maxSaltLen {
		return out, fmt.Errorf("%w: invalid salt", ErrMalformedHash)
	}
	if out.key, err = encoding.DecodeString(parts[5]); err != nil || len(out.key) == 0 || len(out.key) > maxKeyLen {
		return out, fmt.Errorf("%w: invalid key", ErrMalformedHash)
	}
	out.params.SaltLen = len(out.salt)
	out.params.KeyLen = uint32(len(out.key))
	return out, nil
}
