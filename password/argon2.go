package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrMalformedDigest is returned by Verify and NeedsUpgrade for a stored
// value that is not an Argon2id PHC string this package can read.
var ErrMalformedDigest = errors.New("malformed argon2id digest")

// Byte limits on the raw password. The upper one bounds hashing cost.
const (
	minPasswordBytes = 8
	maxPasswordBytes = 1024
)

// Config carries Argon2id cost parameters.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig follows the OWASP Argon2id baseline.
func DefaultConfig() Config {
	return Config{Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
}

// floor is the weakest configuration NewArgon2 accepts and the weakest
// parameters Verify will run.
var floor = Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}

func (c Config) check() error {
	var errs []error
	if c.Memory < floor.Memory {
		errs = append(errs, fmt.Errorf("memory must be >= %d KiB", floor.Memory))
	}
	if c.Time < floor.Time {
		errs = append(errs, fmt.Errorf("time must be >= %d", floor.Time))
	}
	if c.Parallelism < floor.Parallelism {
		errs = append(errs, fmt.Errorf("parallelism must be >= %d", floor.Parallelism))
	}
	if c.SaltLength < floor.SaltLength {
		errs = append(errs, fmt.Errorf("salt length must be >= %d", floor.SaltLength))
	}
	if c.KeyLength < floor.KeyLength {
		errs = append(errs, fmt.Errorf("key length must be >= %d", floor.KeyLength))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("password: argon2id config: %w", err)
	}
	return nil
}

// Argon2 hashes with Argon2id. Safe for concurrent use.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// Hash returns a PHC string with a fresh random salt. The password is hashed
// as raw bytes without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	switch n := len(password); {
	case n < minPasswordBytes:
		return "", fmt.Errorf("password: at least %d bytes required", minPasswordBytes)
	case n > maxPasswordBytes:
		return "", fmt.Errorf("password: at most %d bytes allowed", maxPasswordBytes)
	}

	d := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
	}
	if _, err := rand.Read(d.salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}
	d.key = d.derive(password, a.config.KeyLength)
	return d.String(), nil
}

// Verify re-derives the key with the parameters stored in digest. A wrong
// password is (false, nil); an unreadable digest is ErrMalformedDigest.
func (a *Argon2) Verify(password, digest string) (bool, error) {
	d, err := parsePHC(digest)
	if err != nil {
		return false, err
	}
	if len(password) > maxPasswordBytes {
		return false, nil
	}
	key := d.derive(password, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(key, d.key) == 1, nil
}

// NeedsUpgrade reports whether digest was produced with cheaper parameters
// than the hasher's config, so the caller can rehash on next login.
func (a *Argon2) NeedsUpgrade(digest string) (bool, error) {
	d, err := parsePHC(digest)
	if err != nil {
		return false, err
	}
	c := a.config
	return d.memory < c.Memory || d.time < c.Time || d.parallelism < c.Parallelism ||
		uint32(len(d.key)) != c.KeyLength, nil
}

// phc is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

var b64 = base64.StdEncoding

func (d phc) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), d.salt, d.time, d.memory, d.parallelism, keyLen)
}

func (d phc) params() string {
	return fmt.Sprintf("m=%d,t=%d,p=%d", d.memory, d.time, d.parallelism)
}

func (d phc) String() string {
	return fmt.Sprintf("$argon2id$v=%d$%s$%s$%s",
		argon2.Version, d.params(), b64.EncodeToString(d.salt), b64.EncodeToString(d.key))
}

func parsePHC(s string) (phc, error) {
	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" {
		return phc{}, fmt.Errorf("%w: want 5 '$'-separated fields", ErrMalformedDigest)
	}
	if fields[1] != AlgorithmArgon2ID {
		return phc{}, fmt.Errorf("%w: algorithm %q", ErrMalformedDigest, fields[1])
	}
	if fields[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return phc{}, fmt.Errorf("%w: version %q", ErrMalformedDigest, fields[2])
	}

	var d phc
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &d.memory, &d.time, &d.parallelism); err != nil {
		return phc{}, fmt.Errorf("%w: parameters %q", ErrMalformedDigest, fields[3])
	}
	// Only the canonical spelling is accepted, so trailing or reordered
	// parameters fail here.
	if d.params() != fields[3] {
		return phc{}, fmt.Errorf("%w: parameters %q", ErrMalformedDigest, fields[3])
	}
	if d.memory < floor.Memory || d.time < floor.Time || d.parallelism < floor.Parallelism {
		return phc{}, fmt.Errorf("%w: parameters below minimum", ErrMalformedDigest)
	}

	var err error
	if d.salt, err = b64.DecodeString(fields[4]); err != nil || len(d.salt) < int(floor.SaltLength) {
		return phc{}, fmt.Errorf("%w: salt", ErrMalformedDigest)
	}
	if d.key, err = b64.DecodeString(fields[5]); err != nil || len(d.key) == 0 {
		return phc{}, fmt.Errorf("%w: key", ErrMalformedDigest)
	}
	return d, nil
}
