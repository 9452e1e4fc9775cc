package simulate

import (
	"fmt"
	"math"
	"sort"

	"github.com/movelab/stance/internal/domain/model"
)

// Score bounds.
const (
	minScore = 0
	maxScore = 100
)

// verifySnapshots checks the pipeline contract over everything collected
// and returns one message per violation. An empty result means the run was
// clean.
func verifySnapshots(byKey map[string][]model.Snapshot) []string {
	var violations []string

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		snaps := byKey[key]
		for i, snap := range snaps {
			// Per-key frame sequences must be strictly increasing:
			// publishing runs inside the tick, so order survives fan-out.
			if i > 0 && snap.FrameSeq <= snaps[i-1].FrameSeq {
				violations = append(violations,
					fmt.Sprintf("%s: frame seq %d not after %d", key, snap.FrameSeq, snaps[i-1].FrameSeq))
			}
			violations = append(violations, verifyMetrics(key, snap)...)
			if snap.Detected {
				violations = append(violations, verifyAngles(key, snap)...)
			} else {
				violations = append(violations, verifyEmpty(key, snap)...)
			}
		}
	}
	return violations
}

// verifyMetrics checks that every score sits in [0,100] and the center of
// mass stays inside the unit square.
func verifyMetrics(key string, snap model.Snapshot) []string {
	var violations []string
	for _, sc := range []struct {
		name  string
		value int
	}{
		{"balance", snap.Metrics.BalanceScore},
		{"symmetry", snap.Metrics.SymmetryScore},
		{"efficiency", snap.Metrics.PosturalEfficiency},
	} {
		if sc.value < minScore || sc.value > maxScore {
			violations = append(violations,
				fmt.Sprintf("%s seq %d: %s score %d out of range", key, snap.FrameSeq, sc.name, sc.value))
		}
	}
	com := snap.Metrics.CenterOfMass
	if com.X < 0 || com.X > 1 || com.Y < 0 || com.Y > 1 {
		violations = append(violations,
			fmt.Sprintf("%s seq %d: center of mass (%.3f, %.3f) outside unit square", key, snap.FrameSeq, com.X, com.Y))
	}
	return violations
}

// verifyAngles checks every known angle of a detected frame: interior
// angles live in [0,180], the spine lean is signed, and nothing is NaN.
func verifyAngles(key string, snap model.Snapshot) []string {
	var violations []string
	for _, a := range []struct {
		name string
		val  *float64
	}{
		{"leftKnee", snap.Angles.LeftKnee},
		{"rightKnee", snap.Angles.RightKnee},
		{"leftHip", snap.Angles.LeftHip},
		{"rightHip", snap.Angles.RightHip},
		{"leftShoulder", snap.Angles.LeftShoulder},
		{"rightShoulder", snap.Angles.RightShoulder},
		{"leftElbow", snap.Angles.LeftElbow},
		{"rightElbow", snap.Angles.RightElbow},
		{"neckFlexion", snap.Angles.NeckFlexion},
	} {
		if a.val == nil {
			continue
		}
		if deg := *a.val; math.IsNaN(deg) || deg < 0 || deg > 180 {
			violations = append(violations,
				fmt.Sprintf("%s seq %d: %s angle %.3f out of range", key, snap.FrameSeq, a.name, deg))
		}
	}
	if lean := snap.Angles.SpineLean; lean != nil {
		if deg := *lean; math.IsNaN(deg) || deg < -180 || deg > 180 {
			violations = append(violations,
				fmt.Sprintf("%s seq %d: spine lean %.3f out of range", key, snap.FrameSeq, deg))
		}
	}
	return violations
}

// verifyEmpty checks the no-person contract: all angles unknown and
// default-centered metrics.
func verifyEmpty(key string, snap model.Snapshot) []string {
	var violations []string
	if n := snap.Angles.Known(); n != 0 {
		violations = append(violations,
			fmt.Sprintf("%s seq %d: %d known angles on an undetected frame", key, snap.FrameSeq, n))
	}
	if snap.Metrics.BalanceScore != maxScore || snap.Metrics.SymmetryScore != maxScore {
		violations = append(violations,
			fmt.Sprintf("%s seq %d: undetected frame scored balance %d, symmetry %d", key, snap.FrameSeq, snap.Metrics.BalanceScore, snap.Metrics.SymmetryScore))
	}
	com := snap.Metrics.CenterOfMass
	if com.X != 0.5 || com.Y != 0.5 {
		violations = append(violations,
			fmt.Sprintf("%s seq %d: undetected frame center of mass (%.3f, %.3f)", key, snap.FrameSeq, com.X, com.Y))
	}
	return violations
}
