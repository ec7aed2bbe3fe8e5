package matcher

import (
	"math"

	"github.com/andresmejia3/rollcall/internal/types"
)

// DefaultThreshold is the minimum similarity a match has to exceed.
const DefaultThreshold = 0.5

// similarity is swapped out in tests to count comparisons.
var similarity = Dot

// Matcher finds the closest known identity for a face embedding.
type Matcher struct {
	Threshold float64
}

// New returns a Matcher using threshold as given. 0 is a valid threshold.
func New(threshold float64) *Matcher {
	return &Matcher{Threshold: threshold}
}

// Match scans every known identity and returns the best one if its score exceeds
// the threshold. Otherwise the name is types.Unknown. The score is always the best
// similarity seen (0 for an empty known set).
func (m *Matcher) Match(vec []float32, known []types.KnownIdentity) (string, float64) {
	if len(known) == 0 {
		return types.Unknown, 0
	}

	best := -1
	bestScore := math.Inf(-1)
	for i, k := range known {
		s := similarity(vec, k.Embedding)
		if s > bestScore {
			bestScore = s
			best = i
		}
	}

	if bestScore > m.Threshold {
		return known[best].Name, bestScore
	}
	return types.Unknown, bestScore
}

// Dot is the inner product of a and b. For normalized vectors this is the cosine similarity.
// Extra trailing elements of the longer vector are ignored.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Normalize scales vec to unit length in place and returns it.
// A zero vector is returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
