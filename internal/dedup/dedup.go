// Package dedup collapses repeated detections of the same face within one video.
//
// The rule is greedy and order dependent: a candidate is dropped as soon as it is
// closer than the threshold to any representative accepted so far, and kept otherwise.
// Two encodings that are each close to a third one but not to each other can both
// survive. This is the defined behaviour and callers rely on it, so don't replace it
// with real clustering.
package dedup

import (
	"github.com/andresmejia3/facerank/internal/types"
	"github.com/andresmejia3/facerank/internal/utils"
)

// DefaultThreshold matches the face_recognition library's default tolerance.
const DefaultThreshold = 0.6

// Deduplicator accumulates representative encodings in arrival order.
type Deduplicator struct {
	threshold float64
	reps      []types.FaceEncoding
}

// New returns an empty Deduplicator.
func New(threshold float64) *Deduplicator {
	return &Deduplicator{threshold: threshold}
}

// Add offers a candidate. It reports whether the candidate became a new representative.
func (d *Deduplicator) Add(enc types.FaceEncoding) bool {
	for _, rep := range d.reps {
		// First match wins, no best-match search.
		if utils.EuclideanDist(enc, rep) < d.threshold {
			return false
		}
	}
	d.reps = append(d.reps, enc)
	return true
}

// Representatives returns the accepted encodings in the order they were accepted.
func (d *Deduplicator) Representatives() []types.FaceEncoding {
	out := make([]types.FaceEncoding, len(d.reps))
	copy(out, d.reps)
	return out
}

// Deduplicate returns the representative subset of encodings.
func Deduplicate(encodings []types.FaceEncoding, threshold float64) []types.FaceEncoding {
	d := New(threshold)
	for _, enc := range encodings {
		d.Add(enc)
	}
	return d.Representatives()
}
