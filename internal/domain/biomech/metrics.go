package biomech

import (
	"math"

	"github.com/movelab/stance/internal/domain/pose"
)

// Score shaping constants.
const (
	maxScore = 100
	// balanceGain converts center-of-mass offset from frame center into
	// lost balance points. An offset of half a frame zeroes the score.
	balanceGain = 200
	// symmetryGain converts vertical offset within a left/right pair into
	// lost symmetry points.
	symmetryGain = 100
)

// defaultCenter stands in for the center of mass when no torso keypoint is
// present. It is a default, not a measurement; Snapshot.Detected lets
// consumers tell the two apart.
var defaultCenter = pose.Point{X: 0.5, Y: 0.5}

var torsoKeypoints = [4]pose.KeypointID{
	pose.LeftShoulder, pose.RightShoulder, pose.LeftHip, pose.RightHip,
}

var symmetryPairs = [3][2]pose.KeypointID{
	{pose.LeftShoulder, pose.RightShoulder},
	{pose.LeftHip, pose.RightHip},
	{pose.LeftKnee, pose.RightKnee},
}

// Metrics summarizes movement quality for one tick. Scores live in [0,100]
// and are rounded to integers only at this output boundary; all internal
// computation stays in floating point.
type Metrics struct {
	BalanceScore       int        `json:"balanceScore"`
	SymmetryScore      int        `json:"symmetryScore"`
	PosturalEfficiency int        `json:"posturalEfficiency"`
	CenterOfMass       pose.Point `json:"centerOfMass"`
}

// CenterOfMass is the unweighted mean of the present torso keypoints
// (both shoulders, both hips). With no torso keypoints present it returns
// the frame center.
func CenterOfMass(s *pose.Skeleton) pose.Point {
	var sumX, sumY float64
	n := 0
	for _, id := range torsoKeypoints {
		pt, ok := s.PointAt(id)
		if !ok {
			continue
		}
		sumX += pt.X
		sumY += pt.Y
		n++
	}
	if n == 0 {
		return defaultCenter
	}
	return pose.Point{X: sumX / float64(n), Y: sumY / float64(n)}
}

// ComputeMetrics evaluates balance, symmetry and postural efficiency for
// the skeleton. A nil or empty skeleton yields the default-centered result:
// balance 100, symmetry 100, center of mass at (0.5, 0.5).
func ComputeMetrics(s *pose.Skeleton) Metrics {
	com := CenterOfMass(s)
	balance := balanceScore(com)
	symmetry := symmetryScore(s)
	return Metrics{
		BalanceScore:       roundScore(balance),
		SymmetryScore:      roundScore(symmetry),
		PosturalEfficiency: roundScore((balance + symmetry) / 2),
		CenterOfMass:       com,
	}
}

func balanceScore(com pose.Point) float64 {
	dist := math.Hypot(com.X-0.5, com.Y-0.5)
	return clampScore(maxScore - math.Min(maxScore, balanceGain*dist))
}

// symmetryScore starts at 100 and subtracts the scaled vertical offset of
// each left/right pair (shoulders, hips, knees) that has both sides
// present. A pair with an absent side contributes no penalty, so a body
// half out of frame reads as fully symmetric. Known blind spot.
func symmetryScore(s *pose.Skeleton) float64 {
	score := float64(maxScore)
	for _, pair := range symmetryPairs {
		left, ok := s.PointAt(pair[0])
		if !ok {
			continue
		}
		right, ok := s.PointAt(pair[1])
		if !ok {
			continue
		}
		score -= symmetryGain * math.Abs(left.Y-right.Y)
	}
	return clampScore(score)
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(maxScore, v))
}

func roundScore(v float64) int {
	return int(math.Round(v))
}
