// Package shuffle produces reproducible per-student option orders.
//
// The same seed always yields the same permutation on every platform, so a
// student sees a stable order across reloads and during post-submit review,
// while different students see different orders.
package shuffle

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/cespare/xxhash/v2"
)

const (
	lcgMultiplier = 1103515245
	lcgIncrement  = 12345
	lcgModulus    = 2147483647 // 2^31 - 1
)

// SeedHasher reduces a seed string to an integer.
type SeedHasher interface {
	Hash(seed string) uint64
}

// CharSumHasher sums UTF-16 code units. Anagram seeds (or any seeds with the same
// character multiset) collide and therefore shuffle identically. Kept so orders
// issued before the xxhash switch can be reproduced.
type CharSumHasher struct{}

// Hash implements SeedHasher.
func (CharSumHasher) Hash(seed string) uint64 {
	var sum uint64
	for _, u := range utf16.Encode([]rune(seed)) {
		sum += uint64(u)
	}
	return sum
}

// XXHasher uses 64-bit xxhash, which is order-sensitive.
type XXHasher struct{}

// Hash implements SeedHasher.
func (XXHasher) Hash(seed string) uint64 {
	return xxhash.Sum64String(seed)
}

// HasherByName maps the SHUFFLE_SEED_HASH setting to a hasher.
func HasherByName(name string) (SeedHasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "xxhash":
		return XXHasher{}, nil
	case "charsum", "legacy":
		return CharSumHasher{}, nil
	default:
		return nil, fmt.Errorf("unknown seed hash %q", name)
	}
}

// Seed builds the seed for one (subject, item, attempt). An empty attemptID gives
// the legacy seed, shared by every attempt of that subject on that item.
func Seed(subjectID, itemID, attemptID string) string {
	if attemptID == "" {
		return subjectID + "-" + itemID
	}
	return subjectID + "-" + itemID + "-" + attemptID
}

// rng is a Park–Miller style LCG yielding values in [0, 1).
type rng struct {
	state uint64
}

func newRNG(seed uint64) *rng {
	return &rng{state: seed % lcgModulus}
}

func (r *rng) next() float64 {
	r.state = (r.state*lcgMultiplier + lcgIncrement) % lcgModulus
	return float64(r.state) / lcgModulus
}

// Shuffle returns a permutation of items determined by seed. The input is not
// modified. Lists of length 0 or 1 are returned as copies.
func Shuffle[T any](items []T, seed string, h SeedHasher) []T {
	out := make([]T, len(items))
	copy(out, items)
	if len(out) <= 1 {
		return out
	}

	r := newRNG(h.Hash(seed))
	for i := len(out) - 1; i > 0; i-- {
		j := int(r.next() * float64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Apply is Shuffle guarded by the exam's shuffle flag.
func Apply[T any](items []T, seed string, enabled bool, h SeedHasher) []T {
	if !enabled {
		out := make([]T, len(items))
		copy(out, items)
		return out
	}
	return Shuffle(items, seed, h)
}
