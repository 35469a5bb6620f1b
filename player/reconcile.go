package player

import (
	"math"

	"beatsync.fm/model"
)

// Drift thresholds in seconds. Embedded video players report position
// with coarser granularity than a local audio element, so they get a
// wider corridor before a hard seek.
const (
	DriftThresholdMedia = 0.7
	DriftThresholdVideo = 1.0
)

// DriftThreshold selects the correction threshold for a source kind.
func DriftThreshold(kind model.SourceKind) float64 {
	if kind == model.SourceVideo {
		return DriftThresholdVideo
	}
	return DriftThresholdMedia
}

// Reconcile compares the local playhead against the authoritative one
// and decides whether to hard-correct. Below the threshold local
// playback is left running untouched: correcting every minor
// fluctuation causes audible stutter. The function is pure and keeps no
// memory of prior drift.
func Reconcile(local, authoritative, threshold float64) (position float64, corrected bool) {
	if math.Abs(local-authoritative) > threshold {
		return authoritative, true
	}
	return local, false
}
