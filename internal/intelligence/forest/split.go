package forest

import "math/rand/v2"

// TrainTestSplit shuffles row indices with seed and holds out
// round(n*testFraction) of them, at least one and at most n-1 when n > 1.
func TrainTestSplit(n int, testFraction float64, seed uint64) (train, test []int) {
	perm := rand.New(rand.NewPCG(seed, seed^0xda942042e4dd58b5)).Perm(n)
	nTest := int(float64(n)*testFraction + 0.5)
	if n > 1 {
		if nTest < 1 {
			nTest = 1
		}
		if nTest > n-1 {
			nTest = n - 1
		}
	} else {
		nTest = 0
	}
	return perm[nTest:], perm[:nTest]
}
