// Package pose defines the keypoint schema shared by the whole pipeline:
// the 17-point body layout emitted by the pose model, presence rules, and
// the skeleton value passed from detection to the biomechanics calculators.
package pose

// KeypointID indexes the fixed 17-point body layout. The numbering is part
// of the model contract and must never be reordered.
type KeypointID int

// Body keypoints in model output order.
const (
	Nose KeypointID = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
)

// KeypointCount is the number of keypoints per detected person.
const KeypointCount = 17

// PresenceThreshold is the per-keypoint confidence above which a keypoint
// participates in angle and metric computation. At or below it the keypoint
// is treated as absent, never as a zero-position measurement.
const PresenceThreshold = 0.5

var keypointNames = [KeypointCount]string{
	"nose",
	"left_eye",
	"right_eye",
	"left_ear",
	"right_ear",
	"left_shoulder",
	"right_shoulder",
	"left_elbow",
	"right_elbow",
	"left_wrist",
	"right_wrist",
	"left_hip",
	"right_hip",
	"left_knee",
	"right_knee",
	"left_ankle",
	"right_ankle",
}

// String returns the stable wire name for the keypoint.
func (id KeypointID) String() string {
	if id < 0 || id >= KeypointCount {
		return "unknown"
	}
	return keypointNames[id]
}

// Valid reports whether the id is within the layout.
func (id KeypointID) Valid() bool {
	return id >= 0 && id < KeypointCount
}

// Bones lists the limb segments between keypoints. Overlay renderers draw
// one line per pair; the pipeline itself never consumes this.
var Bones = [][2]KeypointID{
	{LeftAnkle, LeftKnee},
	{LeftKnee, LeftHip},
	{RightAnkle, RightKnee},
	{RightKnee, RightHip},
	{LeftHip, RightHip},
	{LeftShoulder, LeftHip},
	{RightShoulder, RightHip},
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftElbow},
	{LeftElbow, LeftWrist},
	{RightShoulder, RightElbow},
	{RightElbow, RightWrist},
	{Nose, LeftEye},
	{Nose, RightEye},
	{LeftEye, LeftEar},
	{RightEye, RightEar},
}
