// Package digest provides the pluggable fingerprint digest factory described
// in SPEC_FULL.md §2.2/§4.2: SHA-256 by default, BLAKE2b opt-in. Grounded on
// IBM-binprint's hash/factory.go NewAsyncHash switch pattern — only the idiom
// is borrowed, since that repo carries no real third-party go.mod of its own.
//
// Neither implementation here imports the root memo package. Both satisfy
// memo.Digest (a single Sum([]byte) []byte method) structurally, so the
// wiring happens one level up, in memo.Engine's construction.
package digest

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Algorithm names a digest as recorded in a store's .mem/DIGEST marker file.
type Algorithm string

const (
	SHA256  Algorithm = "sha256"
	BLAKE2b Algorithm = "blake2b"
)

// Hasher is the minimal shape every digest implementation in this package
// satisfies. It matches memo.Digest's method set without importing it.
type Hasher interface {
	Sum(data []byte) []byte
}

type sha256Hasher struct{}

func (sha256Hasher) Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

type blake2bHasher struct{}

func (blake2bHasher) Sum(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

// New returns the Hasher for the named algorithm. An empty name defaults to
// SHA256, matching the config package's own default.
func New(alg Algorithm) (Hasher, error) {
	switch alg {
	case "", SHA256:
		return sha256Hasher{}, nil
	case BLAKE2b:
		return blake2bHasher{}, nil
	default:
		return nil, fmt.Errorf("digest: unknown algorithm %q", alg)
	}
}

// ParseAlgorithm validates a user-supplied string (CLI flag or config value)
// against the known algorithm names.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case SHA256, BLAKE2b:
		return Algorithm(s), nil
	default:
		return "", fmt.Errorf("digest: unknown algorithm %q (want sha256 or blake2b)", s)
	}
}
