// Package biomech derives joint angles and movement-quality metrics from a
// detected skeleton. Everything here is pure computation over normalized
// coordinates: no I/O, no clocks, no goroutines, identical inputs yield
// identical outputs.
package biomech

import (
	"math"

	"github.com/movelab/stance/internal/domain/pose"
)

const degreesPerRadian = 180 / math.Pi

// Angles holds the ten named joint angles in degrees. A nil field means the
// angle is unknown for this tick because a contributing keypoint was absent.
// Consumers must treat nil as unknown, never as zero.
type Angles struct {
	LeftKnee      *float64 `json:"leftKnee,omitempty"`
	RightKnee     *float64 `json:"rightKnee,omitempty"`
	LeftHip       *float64 `json:"leftHip,omitempty"`
	RightHip      *float64 `json:"rightHip,omitempty"`
	LeftShoulder  *float64 `json:"leftShoulder,omitempty"`
	RightShoulder *float64 `json:"rightShoulder,omitempty"`
	LeftElbow     *float64 `json:"leftElbow,omitempty"`
	RightElbow    *float64 `json:"rightElbow,omitempty"`
	SpineLean     *float64 `json:"spineLean,omitempty"`
	NeckFlexion   *float64 `json:"neckFlexion,omitempty"`
}

// Known returns how many of the ten angles were computed.
func (a Angles) Known() int {
	n := 0
	for _, p := range []*float64{
		a.LeftKnee, a.RightKnee,
		a.LeftHip, a.RightHip,
		a.LeftShoulder, a.RightShoulder,
		a.LeftElbow, a.RightElbow,
		a.SpineLean, a.NeckFlexion,
	} {
		if p != nil {
			n++
		}
	}
	return n
}

// AngleAt returns the interior angle at vertex b formed by the segments
// b->a and b->c, in degrees within [0,180]. The cosine is clamped to
// [-1,1] before the arccos so floating-point drift on near-collinear
// points cannot produce NaN. Degenerate input (either segment has zero
// length) returns 0.
func AngleAt(a, b, c pose.Point) float64 {
	v1x, v1y := a.X-b.X, a.Y-b.Y
	v2x, v2y := c.X-b.X, c.Y-b.Y
	n1 := math.Hypot(v1x, v1y)
	n2 := math.Hypot(v2x, v2y)
	if n1 == 0 || n2 == 0 {
		return 0
	}
	cos := (v1x*v2x + v1y*v2y) / (n1 * n2)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * degreesPerRadian
}

// ComputeAngles evaluates all ten named angles against the skeleton. Each
// angle uses a fixed anatomical triple; any absent contributor leaves the
// angle nil. A nil skeleton yields all-unknown angles.
func ComputeAngles(s *pose.Skeleton) Angles {
	return Angles{
		LeftKnee:      jointAngle(s, pose.LeftHip, pose.LeftKnee, pose.LeftAnkle),
		RightKnee:     jointAngle(s, pose.RightHip, pose.RightKnee, pose.RightAnkle),
		LeftHip:       jointAngle(s, pose.LeftShoulder, pose.LeftHip, pose.LeftKnee),
		RightHip:      jointAngle(s, pose.RightShoulder, pose.RightHip, pose.RightKnee),
		LeftShoulder:  jointAngle(s, pose.LeftElbow, pose.LeftShoulder, pose.LeftHip),
		RightShoulder: jointAngle(s, pose.RightElbow, pose.RightShoulder, pose.RightHip),
		LeftElbow:     jointAngle(s, pose.LeftShoulder, pose.LeftElbow, pose.LeftWrist),
		RightElbow:    jointAngle(s, pose.RightShoulder, pose.RightElbow, pose.RightWrist),
		SpineLean:     spineLean(s),
		NeckFlexion:   neckFlexion(s),
	}
}

func jointAngle(s *pose.Skeleton, a, vertex, c pose.KeypointID) *float64 {
	pa, ok := s.PointAt(a)
	if !ok {
		return nil
	}
	pv, ok := s.PointAt(vertex)
	if !ok {
		return nil
	}
	pc, ok := s.PointAt(c)
	if !ok {
		return nil
	}
	deg := AngleAt(pa, pv, pc)
	return &deg
}

// spineLean measures the signed deviation of the hip-mid to shoulder-mid
// segment from vertical. Positive degrees lean toward the right frame edge,
// negative toward the left. Image y grows downward, so an upright torso has
// shoulders above hips.
func spineLean(s *pose.Skeleton) *float64 {
	shoulders, ok := s.Midpoint(pose.LeftShoulder, pose.RightShoulder)
	if !ok {
		return nil
	}
	hips, ok := s.Midpoint(pose.LeftHip, pose.RightHip)
	if !ok {
		return nil
	}
	dx := shoulders.X - hips.X
	dy := shoulders.Y - hips.Y
	if dx == 0 && dy == 0 {
		zero := 0.0
		return &zero
	}
	deg := math.Atan2(dx, -dy) * degreesPerRadian
	return &deg
}

// neckFlexion is the interior angle at the shoulder midpoint between the
// nose and the hip midpoint. Roughly 180 for a neutral upright head,
// shrinking as the head juts forward.
func neckFlexion(s *pose.Skeleton) *float64 {
	nose, ok := s.PointAt(pose.Nose)
	if !ok {
		return nil
	}
	shoulders, ok := s.Midpoint(pose.LeftShoulder, pose.RightShoulder)
	if !ok {
		return nil
	}
	hips, ok := s.Midpoint(pose.LeftHip, pose.RightHip)
	if !ok {
		return nil
	}
	deg := AngleAt(nose, shoulders, hips)
	return &deg
}
