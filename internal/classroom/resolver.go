package classroom

import (
	"math"
	"sync"
)

// DefaultTolerance is the maximum embedding distance accepted as a match.
const DefaultTolerance = 0.5

// Resolve returns the identity of the known embedding nearest to probe among
// those strictly closer than tolerance. Embeddings whose length differs from
// the probe are skipped.
func Resolve(probe Embedding, known []Identity, tolerance float64) (StudentID, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, k := range known {
		if len(k.Embedding) != len(probe) {
			continue
		}
		d := Distance(probe, k.Embedding)
		if d < tolerance && d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return "", false
	}
	return known[best].ID, true
}

// Distance is the Euclidean distance between two embeddings of equal length.
func Distance(a, b Embedding) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Resolver holds the enrolled gallery in memory. The gallery is replaced
// wholesale by Reload; a stream in progress picks up the new gallery on its
// next face.
type Resolver struct {
	mu        sync.RWMutex
	known     []Identity
	tolerance float64
}

// NewResolver returns a Resolver over known. If tolerance <= 0, DefaultTolerance is used.
func NewResolver(known []Identity, tolerance float64) *Resolver {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	r := &Resolver{tolerance: tolerance}
	r.Reload(known)
	return r
}

// Resolve maps an embedding to an enrolled student.
func (r *Resolver) Resolve(probe Embedding) (StudentID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Resolve(probe, r.known, r.tolerance)
}

// Reload swaps in a new gallery. The slice is copied.
func (r *Resolver) Reload(known []Identity) {
	cp := make([]Identity, len(known))
	copy(cp, known)

	r.mu.Lock()
	r.known = cp
	r.mu.Unlock()
}

// Len returns the number of enrolled embeddings.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.known)
}
