// Package rng implements the commit-reveal outcome generator.
//
// The recipe is part of the external contract: the server publishes
// sha256(server seed hex) before betting opens, and the outcome is the first
// 8 hex characters of five chained sha256 iterations over
// "serverSeedHex:clientSeed:nonce", interpreted as a uint32 modulo 37. Any
// deviation breaks third-party verifiers.
package rng

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
)

// DefaultClientSeed is the fixed, publicly known client seed used when no
// player supplies one.
const DefaultClientSeed = "spinhall-public-seed"

// hashIterations is the number of chained sha256 passes in the draw recipe.
const hashIterations = 5

// Commitment is a prepared server seed and its published commitment.
type Commitment struct {
	ServerSeed string // 64 hex chars, secret until reveal
	Hash       string // sha256 of ServerSeed, 64 hex chars, published
}

// Source draws cryptographically-secure server seeds. The entropy reader is
// injectable for failure testing; nil means crypto/rand.
type Source struct {
	entropy io.Reader
}

// NewSource creates a seed source reading from crypto/rand.
func NewSource() *Source {
	return &Source{entropy: rand.Reader}
}

// NewSourceWithEntropy creates a seed source with a custom entropy reader.
func NewSourceWithEntropy(r io.Reader) *Source {
	return &Source{entropy: r}
}

// NewCommitment draws a fresh 32-byte server seed and computes its commitment.
func (s *Source) NewCommitment() (Commitment, error) {
	seed := make([]byte, 32)
	if _, err := io.ReadFull(s.entropy, seed); err != nil {
		return Commitment{}, fmt.Errorf("read entropy: %w", err)
	}
	seedHex := hex.EncodeToString(seed)
	return Commitment{ServerSeed: seedHex, Hash: sha256Hex(seedHex)}, nil
}

// Draw computes the wheel index for a round.
func Draw(serverSeedHex, clientSeed string, nonce uint64) (int, error) {
	digest := sha256Hex(serverSeedHex + ":" + clientSeed + ":" + strconv.FormatUint(nonce, 10))
	for i := 1; i < hashIterations; i++ {
		digest = sha256Hex(digest)
	}

	n, err := strconv.ParseUint(digest[:8], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parse digest prefix: %w", err)
	}
	return int(uint32(n) % 37), nil
}

// Verify recomputes a terminated round's outcome from its reveal and checks
// it against the published commitment and announced index.
func Verify(commitment, serverSeedHex, clientSeed string, nonce uint64, outcome int) error {
	if got := sha256Hex(serverSeedHex); got != commitment {
		return fmt.Errorf("commitment mismatch: sha256(seed) = %s, published %s", got, commitment)
	}
	index, err := Draw(serverSeedHex, clientSeed, nonce)
	if err != nil {
		return err
	}
	if index != outcome {
		return fmt.Errorf("outcome mismatch: recomputed %d, announced %d", index, outcome)
	}
	return nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
