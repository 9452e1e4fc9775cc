package biomech_test

import (
	"math"
	"testing"

	"github.com/movelab/stance/internal/domain/biomech"
	"github.com/movelab/stance/internal/domain/pose"
	. "github.com/smartystreets/goconvey/convey"
)

// standingSkeleton is an upright figure on binary-exact coordinates so the
// expected angles and scores come out exact: straight legs and spine, arms
// hanging with forearms bent inward at a right angle.
func standingSkeleton() *pose.Skeleton {
	var s pose.Skeleton
	at := func(id pose.KeypointID, x, y float64) {
		s.Keypoints[id] = pose.Keypoint{ID: id, X: x, Y: y, Confidence: 0.875}
	}
	at(pose.Nose, 0.5, 0.125)
	at(pose.LeftEye, 0.4375, 0.125)
	at(pose.RightEye, 0.5625, 0.125)
	at(pose.LeftEar, 0.375, 0.125)
	at(pose.RightEar, 0.625, 0.125)
	at(pose.LeftShoulder, 0.4375, 0.25)
	at(pose.RightShoulder, 0.5625, 0.25)
	at(pose.LeftElbow, 0.4375, 0.375)
	at(pose.RightElbow, 0.5625, 0.375)
	at(pose.LeftWrist, 0.375, 0.375)
	at(pose.RightWrist, 0.625, 0.375)
	at(pose.LeftHip, 0.4375, 0.75)
	at(pose.RightHip, 0.5625, 0.75)
	at(pose.LeftKnee, 0.4375, 0.875)
	at(pose.RightKnee, 0.5625, 0.875)
	at(pose.LeftAnkle, 0.4375, 1.0)
	at(pose.RightAnkle, 0.5625, 1.0)
	return &s
}

func drop(s *pose.Skeleton, ids ...pose.KeypointID) *pose.Skeleton {
	out := *s
	for _, id := range ids {
		out.Keypoints[id].Confidence = 0
	}
	return &out
}

func TestAngleAt(t *testing.T) {
	Convey("Given three points", t, func() {
		Convey("Then a right angle measures 90 degrees", func() {
			deg := biomech.AngleAt(
				pose.Point{X: 1, Y: 0},
				pose.Point{X: 0, Y: 0},
				pose.Point{X: 0, Y: 1},
			)
			So(deg, ShouldAlmostEqual, 90, 1e-9)
		})

		Convey("Then collinear points measure 180 degrees", func() {
			deg := biomech.AngleAt(
				pose.Point{X: -1, Y: 0},
				pose.Point{X: 0, Y: 0},
				pose.Point{X: 1, Y: 0},
			)
			So(deg, ShouldAlmostEqual, 180, 1e-9)
		})

		Convey("Then coincident endpoints measure 0 degrees", func() {
			deg := biomech.AngleAt(
				pose.Point{X: 0.3, Y: 0.4},
				pose.Point{X: 0, Y: 0},
				pose.Point{X: 0.3, Y: 0.4},
			)
			So(deg, ShouldAlmostEqual, 0, 1e-9)
		})

		Convey("Then a zero-length segment measures 0 degrees", func() {
			b := pose.Point{X: 0.2, Y: 0.2}
			So(biomech.AngleAt(b, b, pose.Point{X: 1, Y: 1}), ShouldEqual, 0)
			So(biomech.AngleAt(pose.Point{X: 1, Y: 1}, b, b), ShouldEqual, 0)
		})

		Convey("Then near-collinear drift never produces NaN", func() {
			deg := biomech.AngleAt(
				pose.Point{X: 0.1, Y: 0.1},
				pose.Point{X: 0.2, Y: 0.2},
				pose.Point{X: 0.3, Y: 0.3},
			)
			So(math.IsNaN(deg), ShouldBeFalse)
			So(deg, ShouldAlmostEqual, 180, 1e-6)
		})
	})
}

func TestComputeAngles(t *testing.T) {
	Convey("Given the standing skeleton", t, func() {
		angles := biomech.ComputeAngles(standingSkeleton())

		Convey("Then all ten angles are known", func() {
			So(angles.Known(), ShouldEqual, 10)
		})

		Convey("Then straight joints read 180 degrees", func() {
			So(*angles.LeftKnee, ShouldAlmostEqual, 180, 1e-9)
			So(*angles.RightKnee, ShouldAlmostEqual, 180, 1e-9)
			So(*angles.LeftHip, ShouldAlmostEqual, 180, 1e-9)
			So(*angles.RightHip, ShouldAlmostEqual, 180, 1e-9)
			So(*angles.NeckFlexion, ShouldAlmostEqual, 180, 1e-9)
		})

		Convey("Then hanging arms read 0 at the shoulder", func() {
			So(*angles.LeftShoulder, ShouldAlmostEqual, 0, 1e-9)
			So(*angles.RightShoulder, ShouldAlmostEqual, 0, 1e-9)
		})

		Convey("Then bent forearms read 90 at the elbow", func() {
			So(*angles.LeftElbow, ShouldAlmostEqual, 90, 1e-9)
			So(*angles.RightElbow, ShouldAlmostEqual, 90, 1e-9)
		})

		Convey("Then the upright spine has no lean", func() {
			So(*angles.SpineLean, ShouldAlmostEqual, 0, 1e-9)
		})
	})

	Convey("Given a skeleton leaning toward the right frame edge", t, func() {
		s := standingSkeleton()
		// Hip midpoint at (0.5, 0.5), shoulder midpoint at (0.75, 0.25):
		// the torso segment runs at exactly 45 degrees from vertical.
		s.Keypoints[pose.LeftHip].Y = 0.5
		s.Keypoints[pose.RightHip].Y = 0.5
		s.Keypoints[pose.LeftShoulder].X = 0.6875
		s.Keypoints[pose.RightShoulder].X = 0.8125

		angles := biomech.ComputeAngles(s)

		Convey("Then spine lean is positive 45 degrees", func() {
			So(*angles.SpineLean, ShouldAlmostEqual, 45, 1e-9)
		})
	})

	Convey("Given a skeleton leaning toward the left frame edge", t, func() {
		s := standingSkeleton()
		s.Keypoints[pose.LeftHip].Y = 0.5
		s.Keypoints[pose.RightHip].Y = 0.5
		s.Keypoints[pose.LeftShoulder].X = 0.1875
		s.Keypoints[pose.RightShoulder].X = 0.3125

		angles := biomech.ComputeAngles(s)

		Convey("Then spine lean is negative 45 degrees", func() {
			So(*angles.SpineLean, ShouldAlmostEqual, -45, 1e-9)
		})
	})

	Convey("Given missing keypoints", t, func() {
		Convey("When the left ankle is absent", func() {
			angles := biomech.ComputeAngles(drop(standingSkeleton(), pose.LeftAnkle))

			Convey("Then only the left knee is unknown", func() {
				So(angles.LeftKnee, ShouldBeNil)
				So(angles.Known(), ShouldEqual, 9)
			})
		})

		Convey("When the nose is absent", func() {
			angles := biomech.ComputeAngles(drop(standingSkeleton(), pose.Nose))

			Convey("Then neck flexion is unknown but spine lean survives", func() {
				So(angles.NeckFlexion, ShouldBeNil)
				So(angles.SpineLean, ShouldNotBeNil)
				So(angles.Known(), ShouldEqual, 9)
			})
		})

		Convey("When one shoulder is absent", func() {
			angles := biomech.ComputeAngles(drop(standingSkeleton(), pose.RightShoulder))

			Convey("Then every midpoint-based angle is unknown too", func() {
				So(angles.RightShoulder, ShouldBeNil)
				So(angles.RightHip, ShouldBeNil)
				So(angles.RightElbow, ShouldBeNil)
				So(angles.SpineLean, ShouldBeNil)
				So(angles.NeckFlexion, ShouldBeNil)
				So(angles.LeftKnee, ShouldNotBeNil)
			})
		})
	})

	Convey("Given a nil skeleton", t, func() {
		angles := biomech.ComputeAngles(nil)

		Convey("Then every angle is unknown", func() {
			So(angles.Known(), ShouldEqual, 0)
			So(angles, ShouldResemble, biomech.Angles{})
		})
	})

	Convey("Given the same skeleton twice", t, func() {
		s := standingSkeleton()

		Convey("Then results are identical", func() {
			So(biomech.ComputeAngles(s), ShouldResemble, biomech.ComputeAngles(s))
		})
	})
}
