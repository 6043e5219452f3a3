package game

import "github.com/valyala/fastrand"

// Rand is the randomness a round needs. *math/rand.Rand satisfies it,
// which lets tests seed rounds deterministically.
type Rand interface {
	Intn(n int) int
}

type fastRand struct{}

func (fastRand) Intn(n int) int {
	return int(fastrand.Uint32n(uint32(n)))
}

// DefaultRand draws from valyala/fastrand and is safe for concurrent use.
var DefaultRand Rand = fastRand{}

// Shuffle is an in-place Fisher-Yates shuffle.
func Shuffle[T any](r Rand, s []T) {
	for i := len(s) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// pick moves k random elements of s to its front and returns them.
func pick[T any](r Rand, s []T, k int) []T {
	if k > len(s) {
		k = len(s)
	}
	for i := 0; i < k; i++ {
		j := i + r.Intn(len(s)-i)
		s[i], s[j] = s[j], s[i]
	}
	return s[:k]
}
