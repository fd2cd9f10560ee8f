package assessment

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// SeedSource hands out seeds for new attempts.
type SeedSource interface {
	NextSeed() (int64, error)
}

// SeedFunc adapts a function to SeedSource.
type SeedFunc func() (int64, error)

// NextSeed calls f.
func (f SeedFunc) NextSeed() (int64, error) {
	return f()
}

// CryptoSeedSource draws seeds from crypto/rand.
type CryptoSeedSource struct{}

// NextSeed returns a uniformly random int64.
func (CryptoSeedSource) NextSeed() (int64, error) {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

// Shuffle returns a seeded Fisher-Yates permutation of ids. The input is left
// untouched and equal (ids, seed) pairs always produce the same order.
func Shuffle(ids []string, seed int64) []string {
	out := append([]string(nil), ids...)
	rng := rand.New(rand.NewSource(seed))
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// QuestionOrder returns the order an attempt should snapshot.
func QuestionOrder(def Definition, seed int64) []string {
	ids := def.QuestionIDs()
	if !def.Randomize {
		return ids
	}
	return Shuffle(ids, seed)
}
