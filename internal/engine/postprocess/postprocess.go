// Package postprocess decodes raw pose model output into skeletons.
package postprocess

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/movelab/stance/internal/domain/model"
	"github.com/movelab/stance/internal/domain/pose"
)

const (
	// DetectionThreshold is the minimum person confidence for a candidate
	// to count as a detection.
	DetectionThreshold = 0.25

	// valuesPerCandidate is the pose head row width: 4 bounding box values,
	// person confidence, then one (x, y, confidence) triple per keypoint.
	valuesPerCandidate = 5 + 3*pose.KeypointCount

	confidenceRow  = 4
	keypointOffset = 5
)

// tensorLayout describes how candidates are laid out in the flat output.
type tensorLayout int

const (
	// layoutFeatureMajor is [1, values, candidates]: one row per value,
	// candidates contiguous within a row.
	layoutFeatureMajor tensorLayout = iota
	// layoutCandidateMajor is [1, candidates, values]: one row per
	// candidate, its values contiguous.
	layoutCandidateMajor
)

// Extract decodes one inference output into the highest-confidence skeleton.
// The bounding box rows are skipped; only the confidence and keypoint rows
// matter. A frame without a person is not an error: the skeleton is nil and
// the returned confidence is the best candidate's, cleared threshold or not.
// Keypoint coordinates are mapped from model space back to source pixels,
// then normalized to the unit square and clamped to it.
func Extract(raw model.RawOutput, origW, origH, targetSize int) (*pose.Skeleton, float64, error) {
	if origW <= 0 || origH <= 0 || targetSize <= 0 {
		return nil, 0, fmt.Errorf("invalid frame dimensions %dx%d, target %d", origW, origH, targetSize)
	}
	lt, n, err := decodeShape(raw)
	if err != nil {
		return nil, 0, err
	}
	if n == 0 {
		return nil, 0, nil
	}

	conf := make([]float64, n)
	for c := 0; c < n; c++ {
		conf[c] = float64(at(raw.Data, lt, n, confidenceRow, c))
	}
	best := floats.MaxIdx(conf)
	bestConf := conf[best]
	if bestConf <= DetectionThreshold {
		return nil, bestConf, nil
	}

	sk := &pose.Skeleton{}
	for k := 0; k < pose.KeypointCount; k++ {
		row := keypointOffset + 3*k
		mx := float64(at(raw.Data, lt, n, row, best))
		my := float64(at(raw.Data, lt, n, row+1, best))
		kc := float64(at(raw.Data, lt, n, row+2, best))

		// Model space to source pixels, then to the unit square.
		px := mx * float64(origW) / float64(targetSize)
		py := my * float64(origH) / float64(targetSize)

		sk.Keypoints[k] = pose.Keypoint{
			ID:         pose.KeypointID(k),
			X:          clamp01(px / float64(origW)),
			Y:          clamp01(py / float64(origH)),
			Confidence: kc,
		}
	}
	return sk, bestConf, nil
}

// decodeShape validates the tensor shape and identifies which axis carries
// the candidate values.
func decodeShape(raw model.RawOutput) (tensorLayout, int, error) {
	if len(raw.Shape) != 3 || raw.Shape[0] != 1 {
		return 0, 0, fmt.Errorf("%w: %v", ErrBadShape, raw.Shape)
	}
	rows, cols := int(raw.Shape[1]), int(raw.Shape[2])

	var lt tensorLayout
	var n int
	switch {
	case rows == valuesPerCandidate:
		lt, n = layoutFeatureMajor, cols
	case cols == valuesPerCandidate:
		lt, n = layoutCandidateMajor, rows
	default:
		return 0, 0, fmt.Errorf("%w: %v has no %d-value axis", ErrBadShape, raw.Shape, valuesPerCandidate)
	}
	if len(raw.Data) != valuesPerCandidate*n {
		return 0, 0, fmt.Errorf("%w: %d values for %v", ErrBadShape, len(raw.Data), raw.Shape)
	}
	return lt, n, nil
}

// at returns value row v of candidate c.
func at(data []float32, lt tensorLayout, n, v, c int) float32 {
	if lt == layoutFeatureMajor {
		return data[v*n+c]
	}
	return data[c*valuesPerCandidate+v]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
