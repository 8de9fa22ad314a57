package bulk

import "math/rand/v2"

// Sampler returns a uniformly distributed int in [0, n). n is always > 0.
type Sampler func(n int) int

// NewSampler returns a Sampler. A nil seed draws from the shared
// randomly-seeded source; a non-nil seed yields a reproducible sequence
// that is not safe for concurrent use.
func NewSampler(seed *int64) Sampler {
	if seed == nil {
		return rand.IntN
	}
	r := rand.New(rand.NewPCG(uint64(*seed), uint64(*seed)^0x9e3779b97f4a7c15))
	return r.IntN
}

// pick draws k distinct values from ids without replacement using a
// partial Fisher-Yates shuffle over a copy of ids.
func pick(ids []uint, k int, s Sampler) []uint {
	if k > len(ids) {
		k = len(ids)
	}
	pool := append([]uint(nil), ids...)
	for i := 0; i < k; i++ {
		j := i + s(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

// tagCount draws how many tags a key receives: 1..min(3, total).
func tagCount(total int, s Sampler) int {
	upper := total
	if upper > maxTagsPerKey {
		upper = maxTagsPerKey
	}
	return 1 + s(upper)
}
