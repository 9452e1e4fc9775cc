package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/movelab/stance/internal/adapters/capture"
	service "github.com/movelab/stance/internal/app"
	"github.com/movelab/stance/internal/domain/model"
	"github.com/movelab/stance/internal/domain/types"
	"github.com/movelab/stance/internal/engine"
	"github.com/movelab/stance/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// fakeRuntime serves canned sessions so the service runs without a model
// file or native runtime.
type fakeRuntime struct {
	loadErr error
	loads   atomic.Int64
}

func (r *fakeRuntime) Load(ctx context.Context, modelPath string) (engine.Session, error) {
	r.loads.Add(1)
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return &fakeSession{}, nil
}

type fakeSession struct{}

func (s *fakeSession) Run(ctx context.Context, input []float32) (model.RawOutput, error) {
	return personOutput(0.9), nil
}

func (s *fakeSession) InputSize() int { return 4 }

func (s *fakeSession) Close() error { return nil }

// personOutput builds a [1, 56, 1] tensor holding one candidate with every
// keypoint at model coordinate (2, 2), for sessions with input size 4.
func personOutput(confidence float32) model.RawOutput {
	data := make([]float32, 56)
	data[4] = confidence
	for k := 0; k < 17; k++ {
		base := 5 + 3*k
		data[base] = 2
		data[base+1] = 2
		data[base+2] = 0.9
	}
	return model.RawOutput{Data: data, Shape: []int64{1, 56, 1}}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newTestService(participants ...string) *service.Service {
	opts := []service.Option{
		service.WithRuntime(&fakeRuntime{}),
		service.WithSampleInterval(10 * time.Millisecond),
	}
	for _, p := range participants {
		opts = append(opts, service.WithSource(p, capture.NewSynthetic()))
	}
	return service.New(opts...)
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldBeFalse)
			So(stats["mode"], ShouldEqual, "standard")
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithRuntime(&fakeRuntime{}),
			service.WithModelPath("models/custom.onnx"),
			service.WithSampleInterval(50*time.Millisecond),
			service.WithSessionMode(model.ModeSupervised),
			service.WithSource("alice", capture.NewSynthetic()),
		)

		Convey("Then the options should be visible in stats", func() {
			stats := svc.GetStats()
			So(stats["mode"], ShouldEqual, "supervised")
			So(stats["sampleIntervalMs"], ShouldEqual, int64(50))
			So(stats["participants"], ShouldEqual, 1)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := newTestService("alice")
		defer svc.Stop()
		ctx := context.Background()

		Convey("When starting the service", func() {
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then stats should mark it started with a lazy model", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldBeTrue)
				So(stats["modelStatus"], ShouldEqual, "uninitialized")
				So(stats["activeSessions"], ShouldEqual, 0)
			})

			Convey("And starting again should be a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("And stopping should leave it stopped", func() {
				svc.Stop()
				So(svc.GetStats()["started"], ShouldBeFalse)

				Convey("Twice is safe too", func() {
					svc.Stop()
					So(svc.GetStats()["started"], ShouldBeFalse)
				})
			})
		})
	})
}

func TestService_StartSession(t *testing.T) {
	Convey("Given a running service with one participant", t, func() {
		svc := newTestService("alice")
		defer svc.Stop()
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When starting a session for that participant", func() {
			info, err := svc.StartSession(ctx, model.ModeStandard, []types.Binding{{Participant: "alice"}})
			So(err, ShouldBeNil)
			So(info.ID, ShouldNotBeEmpty)
			So(info.Keys, ShouldResemble, []string{"alice"})

			Convey("Then snapshots should start flowing and the model should warm up", func() {
				waitFor(t, func() bool {
					_, ok := svc.Latest("alice")
					return ok
				})
				snap, _ := svc.Latest("alice")
				So(snap.SessionID, ShouldEqual, info.ID)
				So(snap.Detected, ShouldBeTrue)
				So(svc.ModelStatus(), ShouldEqual, engine.StatusReady)
			})

			Convey("Then the session should be listed", func() {
				sessions := svc.Sessions(ctx)
				So(sessions, ShouldHaveLength, 1)
				So(sessions[0].ID, ShouldEqual, info.ID)
			})

			Convey("And binding the same participant again should conflict", func() {
				_, err := svc.StartSession(ctx, model.ModeStandard, []types.Binding{{Participant: "alice"}})
				So(errors.Is(err, types.ErrParticipantBusy), ShouldBeTrue)
			})
		})

		Convey("When the participant has no source", func() {
			_, err := svc.StartSession(ctx, model.ModeStandard, []types.Binding{{Participant: "ghost"}})
			So(errors.Is(err, types.ErrUnknownParticipant), ShouldBeTrue)
		})

		Convey("When the mode is invalid", func() {
			_, err := svc.StartSession(ctx, model.SessionMode("turbo"), []types.Binding{{Participant: "alice"}})
			So(errors.Is(err, types.ErrInvalidMode), ShouldBeTrue)
		})

		Convey("When no bindings are given", func() {
			_, err := svc.StartSession(ctx, model.ModeStandard, nil)
			So(errors.Is(err, types.ErrNoBindings), ShouldBeTrue)
		})

		Convey("When the same participant appears twice in one request", func() {
			_, err := svc.StartSession(ctx, model.ModeStandard, []types.Binding{
				{Participant: "alice"}, {Participant: "alice"},
			})
			So(errors.Is(err, types.ErrParticipantBusy), ShouldBeTrue)
		})

		Convey("When the mode is blank it should fall back to the default", func() {
			info, err := svc.StartSession(ctx, "", []types.Binding{{Participant: "alice"}})
			So(err, ShouldBeNil)
			So(info.Mode, ShouldEqual, model.ModeStandard)
		})
	})

	Convey("Given a service that was never started", t, func() {
		svc := newTestService("alice")
		_, err := svc.StartSession(context.Background(), model.ModeStandard, []types.Binding{{Participant: "alice"}})
		So(errors.Is(err, types.ErrNotStarted), ShouldBeTrue)
	})
}

func TestService_SupervisedMode(t *testing.T) {
	Convey("Given a running service with an operator source", t, func() {
		svc := newTestService("coach")
		defer svc.Stop()
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When a supervised session binds a subject", func() {
			info, err := svc.StartSession(ctx, model.ModeSupervised, []types.Binding{
				{Participant: "coach", Subject: "athlete-9"},
			})
			So(err, ShouldBeNil)

			Convey("Then snapshots should publish under the subject's key", func() {
				So(info.Keys, ShouldResemble, []string{"athlete-9"})
				waitFor(t, func() bool {
					_, ok := svc.Latest("athlete-9")
					return ok
				})
				_, coachKeyed := svc.Latest("coach")
				So(coachKeyed, ShouldBeFalse)
			})
		})
	})
}

func TestService_EndSession(t *testing.T) {
	Convey("Given a running session", t, func() {
		svc := newTestService("alice")
		defer svc.Stop()
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		info, err := svc.StartSession(ctx, model.ModeStandard, []types.Binding{{Participant: "alice"}})
		So(err, ShouldBeNil)
		waitFor(t, func() bool {
			_, ok := svc.Latest("alice")
			return ok
		})

		Convey("When ending it", func() {
			So(svc.EndSession(ctx, info.ID), ShouldBeNil)

			Convey("Then its snapshots and listing should be gone", func() {
				_, ok := svc.Latest("alice")
				So(ok, ShouldBeFalse)
				So(svc.Sessions(ctx), ShouldBeEmpty)
			})

			Convey("Then the participant should be free to rebind", func() {
				_, err := svc.StartSession(ctx, model.ModeStandard, []types.Binding{{Participant: "alice"}})
				So(err, ShouldBeNil)
			})

			Convey("And ending it again should report not found", func() {
				err := svc.EndSession(ctx, info.ID)
				So(errors.Is(err, types.ErrSessionNotFound), ShouldBeTrue)
			})
		})

		Convey("When ending an unknown session", func() {
			err := svc.EndSession(ctx, "nope")
			So(errors.Is(err, types.ErrSessionNotFound), ShouldBeTrue)
		})
	})
}

func TestService_BindUnbind(t *testing.T) {
	Convey("Given a running session with one participant", t, func() {
		svc := newTestService("alice", "bob")
		defer svc.Stop()
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		info, err := svc.StartSession(ctx, model.ModeStandard, []types.Binding{{Participant: "alice"}})
		So(err, ShouldBeNil)

		Convey("When binding a second participant", func() {
			updated, err := svc.Bind(ctx, info.ID, types.Binding{Participant: "bob"})
			So(err, ShouldBeNil)
			So(updated.Keys, ShouldResemble, []string{"alice", "bob"})

			Convey("Then both keys should publish snapshots", func() {
				waitFor(t, func() bool {
					_, a := svc.Latest("alice")
					_, b := svc.Latest("bob")
					return a && b
				})
				So(svc.GetStats()["activeLoops"], ShouldEqual, 2)
			})

			Convey("And unbinding one should leave the other running", func() {
				waitFor(t, func() bool {
					_, ok := svc.Latest("bob")
					return ok
				})
				updated, err := svc.Unbind(ctx, info.ID, "bob")
				So(err, ShouldBeNil)
				So(updated.Keys, ShouldResemble, []string{"alice"})

				_, ok := svc.Latest("bob")
				So(ok, ShouldBeFalse)
				So(svc.Sessions(ctx), ShouldHaveLength, 1)

				Convey("And unbinding it twice should fail", func() {
					_, err := svc.Unbind(ctx, info.ID, "bob")
					So(errors.Is(err, types.ErrUnknownParticipant), ShouldBeTrue)
				})
			})
		})

		Convey("When binding a participant without a source", func() {
			_, err := svc.Bind(ctx, info.ID, types.Binding{Participant: "ghost"})
			So(errors.Is(err, types.ErrUnknownParticipant), ShouldBeTrue)
		})

		Convey("When binding into an unknown session", func() {
			_, err := svc.Bind(ctx, "nope", types.Binding{Participant: "bob"})
			So(errors.Is(err, types.ErrSessionNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Subscriptions(t *testing.T) {
	Convey("Given a running session", t, func() {
		svc := newTestService("alice")
		defer svc.Stop()
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		_, err := svc.StartSession(ctx, model.ModeStandard, []types.Binding{{Participant: "alice"}})
		So(err, ShouldBeNil)

		Convey("When subscribing to the snapshot feed", func() {
			feed := make(chan model.Snapshot, 64)
			So(svc.Subscribe("test-sub", feed), ShouldBeNil)
			defer func() { _ = svc.Unsubscribe("test-sub") }()

			Convey("Then published snapshots should arrive", func() {
				select {
				case snap := <-feed:
					So(snap.ParticipantKey, ShouldEqual, "alice")
				case <-time.After(3 * time.Second):
					t.Fatal("no snapshot delivered")
				}
			})
		})

		Convey("When reading without a store configured", func() {
			_, err := svc.History(ctx, "alice", time.Time{}, 10)
			So(errors.Is(err, types.ErrStoreDisabled), ShouldBeTrue)

			_, err = svc.SummarizeSession(ctx, "whatever")
			So(errors.Is(err, types.ErrStoreDisabled), ShouldBeTrue)
		})
	})
}
