package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Algorithm names accepted by [New].
const (
	AlgorithmSHA256   = "sha256"
	AlgorithmArgon2ID = "argon2id"
)

// ErrUnknownAlgorithm is returned by [New] for an unsupported algorithm name.
var ErrUnknownAlgorithm = errors.New("unknown password algorithm")

// Hasher produces and verifies password digests.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) (bool, error)
}

// New returns the Hasher for algorithm. cfg is only consulted for argon2id.
func New(algorithm string, cfg Config) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", AlgorithmSHA256:
		return SHA256{}, nil
	case AlgorithmArgon2ID:
		return NewArgon2(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}

// SHA256 is the deterministic hex SHA-256 digest.
type SHA256 struct{}

// Hash returns the lowercase hex digest of password.
func (SHA256) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

// Verify reports whether password hashes to digest. Stored digests are
// compared case-insensitively since some stores upper-case hex.
func (s SHA256) Verify(password, digest string) (bool, error) {
	computed, _ := s.Hash(password)
	stored := strings.ToLower(strings.TrimSpace(digest))
	if len(stored) != len(computed) {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(stored)) == 1, nil
}
