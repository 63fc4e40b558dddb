package social

import (
	"math"
	"sync"
)

// Relationships tracks bounded affinity scores toward named peers.
// Scores always stay within [-1, 1]; a peer never interacted with
// scores zero, indistinguishable from true neutrality.
type Relationships struct {
	mu     sync.RWMutex
	scores map[string]float64
}

// NewRelationships returns an empty relationship model.
func NewRelationships() *Relationships {
	return &Relationships{scores: make(map[string]float64)}
}

// Adjust shifts the score toward peer by delta and returns the clamped
// result. NaN deltas leave the score untouched.
func (r *Relationships) Adjust(peer string, delta float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.scores[peer]
	if math.IsNaN(delta) {
		return current
	}
	next := clamp(current+delta, -1, 1)
	r.scores[peer] = next
	return next
}

// Score returns the current score toward peer, zero when absent.
func (r *Relationships) Score(peer string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scores[peer]
}

// Snapshot copies all tracked scores.
func (r *Relationships) Snapshot() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]float64, len(r.scores))
	for peer, score := range r.scores {
		out[peer] = score
	}
	return out
}

// Len reports how many peers have a tracked score.
func (r *Relationships) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scores)
}

// Decay moves every score toward zero by step without crossing it.
func (r *Relationships) Decay(step float64) {
	if step <= 0 || math.IsNaN(step) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for peer, score := range r.scores {
		switch {
		case score > 0:
			r.scores[peer] = math.Max(0, score-step)
		case score < 0:
			r.scores[peer] = math.Min(0, score+step)
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
