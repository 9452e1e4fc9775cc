package pose

// Point is a normalized image coordinate. Both components live in [0,1]
// with the origin at the top-left corner and y growing downward.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Keypoint is one estimated body landmark in normalized coordinates.
type Keypoint struct {
	ID         KeypointID `json:"id"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Confidence float64    `json:"confidence"`
}

// Present reports whether the keypoint is confident enough to feed angle
// and metric computation.
func (k Keypoint) Present() bool {
	return k.Confidence > PresenceThreshold
}

// Point returns the keypoint position.
func (k Keypoint) Point() Point {
	return Point{X: k.X, Y: k.Y}
}

// Skeleton holds the 17 keypoints of the single best detection in a frame,
// ordered by KeypointID. A nil *Skeleton means no person was detected; a
// non-nil skeleton may still contain absent keypoints.
type Skeleton struct {
	Keypoints [KeypointCount]Keypoint `json:"keypoints"`
}

// At returns the keypoint for the id. Out-of-range ids return a zero
// keypoint, which is never present.
func (s *Skeleton) At(id KeypointID) Keypoint {
	if s == nil || !id.Valid() {
		return Keypoint{}
	}
	return s.Keypoints[id]
}

// PointAt returns the position for the id and whether it is present.
func (s *Skeleton) PointAt(id KeypointID) (Point, bool) {
	kp := s.At(id)
	if !kp.Present() {
		return Point{}, false
	}
	return kp.Point(), true
}

// Midpoint returns the midpoint of two keypoints. It exists only when both
// endpoints are present.
func (s *Skeleton) Midpoint(a, b KeypointID) (Point, bool) {
	pa, ok := s.PointAt(a)
	if !ok {
		return Point{}, false
	}
	pb, ok := s.PointAt(b)
	if !ok {
		return Point{}, false
	}
	return Point{X: (pa.X + pb.X) / 2, Y: (pa.Y + pb.Y) / 2}, true
}

// PresentCount returns how many keypoints clear the presence threshold.
func (s *Skeleton) PresentCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for i := range s.Keypoints {
		if s.Keypoints[i].Present() {
			n++
		}
	}
	return n
}
