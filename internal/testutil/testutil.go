// Package testutil provides shared test fixtures for legacyvault tests:
// - a settable clock
// - a recording delivery channel that can be told to fail
// - a switch builder and a fully wired in-memory service harness
// - deterministic seeding for randomized tests
package testutil

import (
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand"
	"os"
	"testing"
)

// GetTestSeed returns a seed for randomized tests. It reads
// LEGACYVAULT_TEST_SEED first, otherwise draws one and logs it so a failure
// can be reproduced.
func GetTestSeed(t *testing.T) int64 {
	t.Helper()

	if seedStr := os.Getenv("LEGACYVAULT_TEST_SEED"); seedStr != "" {
		var seed int64
		if _, err := fmt.Sscanf(seedStr, "%d", &seed); err == nil {
			t.Logf("Using seed from LEGACYVAULT_TEST_SEED: %d", seed)
			return seed
		}
	}

	n, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatalf("Failed to generate random seed: %v", err)
	}
	seed := n.Int64()
	t.Logf("Generated test seed: %d (set LEGACYVAULT_TEST_SEED=%d to reproduce)", seed, seed)
	return seed
}

// NewRand returns a math/rand source seeded by GetTestSeed.
func NewRand(t *testing.T) *mrand.Rand {
	t.Helper()
	return mrand.New(mrand.NewSource(GetTestSeed(t)))
}
