package newsclass

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/rand"
)

// SplitOptions configures Split. A nil Seed with Shuffle set draws a
// time-based seed, which makes the partition non-reproducible.
type SplitOptions struct {
	TestFraction float64
	ValFraction  float64
	Shuffle      bool
	Seed         *int64
}

// Split holds disjoint index subsets that together cover 0..n-1 exactly once.
type Split struct {
	Train []int
	Val   []int
	Test  []int
}

// SeedOf is a convenience for filling SplitOptions.Seed.
func SeedOf(seed int64) *int64 {
	return &seed
}

// SplitIndices partitions 0..n-1. The test subset is taken from the front of
// the (optionally shuffled) index list, validation next, training last.
func SplitIndices(n int, opts SplitOptions) (Split, error) {
	tf, vf := opts.TestFraction, opts.ValFraction
	if math.IsNaN(tf) || math.IsNaN(vf) || tf < 0 || vf < 0 || tf+vf >= 1 {
		return Split{}, fmt.Errorf("%w: test=%v val=%v", ErrInvalidSplit, tf, vf)
	}
	if n < 0 {
		return Split{}, fmt.Errorf("%w: negative record count %d", ErrInvalidSplit, n)
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if opts.Shuffle {
		seed := time.Now().UnixNano()
		if opts.Seed != nil {
			seed = *opts.Seed
		}
		rng := rand.New(rand.NewSource(uint64(seed)))
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}
	testCount := int(math.Floor(tf * float64(n)))
	valEnd := int(math.Floor((vf + tf) * float64(n)))
	return Split{
		Test:  indices[:testCount:testCount],
		Val:   indices[testCount:valEnd:valEnd],
		Train: indices[valEnd:],
	}, nil
}
