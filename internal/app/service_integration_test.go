package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/movelab/stance/internal/adapters/capture"
	"github.com/movelab/stance/internal/adapters/store"
	service "github.com/movelab/stance/internal/app"
	"github.com/movelab/stance/internal/domain/model"
	"github.com/movelab/stance/internal/domain/types"
	"github.com/movelab/stance/internal/engine"
)

func TestServiceIntegration_StoreRoundTrip(t *testing.T) {
	Convey("Given a service persisting snapshots to SQLite", t, func() {
		dbPath := filepath.Join(t.TempDir(), "snapshots.db")
		svc := service.New(
			service.WithRuntime(&fakeRuntime{}),
			service.WithSampleInterval(10*time.Millisecond),
			service.WithSource("alice", capture.NewSynthetic()),
			service.WithSnapshotDB(dbPath),
			service.WithStoreBatchSize(4),
			service.WithStoreFlushInterval(50*time.Millisecond),
		)
		defer svc.Stop()
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		So(svc.GetStats()["storeEnabled"], ShouldBeTrue)

		info, err := svc.StartSession(ctx, model.ModeStandard, []types.Binding{{Participant: "alice"}})
		So(err, ShouldBeNil)

		Convey("When the pipeline has produced a few snapshots", func() {
			waitFor(t, func() bool {
				rows, err := svc.History(ctx, "alice", time.Time{}, 100)
				return err == nil && len(rows) >= 3
			})

			Convey("Then history should read back newest first", func() {
				rows, err := svc.History(ctx, "alice", time.Time{}, 100)
				So(err, ShouldBeNil)
				So(len(rows), ShouldBeGreaterThanOrEqualTo, 3)
				So(rows[0].SessionID, ShouldEqual, info.ID)
				So(rows[0].FrameSeq, ShouldBeGreaterThan, rows[len(rows)-1].FrameSeq)
				So(rows[0].Detected, ShouldBeTrue)
				So(rows[0].Angles.Known(), ShouldEqual, 10)
			})

			Convey("Then the since filter should trim old rows", func() {
				rows, err := svc.History(ctx, "alice", time.Now().Add(time.Hour), 100)
				So(err, ShouldBeNil)
				So(rows, ShouldBeEmpty)
			})

			Convey("Then the session summary should aggregate the run", func() {
				So(svc.EndSession(ctx, info.ID), ShouldBeNil)

				summary, err := svc.SummarizeSession(ctx, info.ID)
				So(err, ShouldBeNil)
				So(summary.SessionID, ShouldEqual, info.ID)
				So(summary.Participants, ShouldHaveLength, 1)
				So(summary.Participants[0].ParticipantKey, ShouldEqual, "alice")
				So(summary.Participants[0].Samples, ShouldBeGreaterThanOrEqualTo, 3)
				So(summary.Participants[0].DetectionRate, ShouldEqual, 1.0)
				So(summary.Participants[0].MeanBalance, ShouldBeBetweenOrEqual, 0, 100)
			})

			Convey("Then rows should survive a service stop", func() {
				svc.Stop()

				reopened, err := store.New(dbPath)
				So(err, ShouldBeNil)
				defer reopened.Close()

				rows, err := reopened.History(ctx, "alice", time.Time{}, 100)
				So(err, ShouldBeNil)
				So(len(rows), ShouldBeGreaterThanOrEqualTo, 3)
			})
		})
	})
}

func TestServiceIntegration_SupervisedPersistence(t *testing.T) {
	Convey("Given a supervised session with a store", t, func() {
		dbPath := filepath.Join(t.TempDir(), "snapshots.db")
		svc := service.New(
			service.WithRuntime(&fakeRuntime{}),
			service.WithSampleInterval(10*time.Millisecond),
			service.WithSessionMode(model.ModeSupervised),
			service.WithSource("coach", capture.NewSynthetic()),
			service.WithSnapshotDB(dbPath),
			service.WithStoreFlushInterval(50*time.Millisecond),
		)
		defer svc.Stop()
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		_, err := svc.StartSession(ctx, "", []types.Binding{{Participant: "coach", Subject: "athlete-9"}})
		So(err, ShouldBeNil)

		Convey("Then history should be keyed by the subject", func() {
			waitFor(t, func() bool {
				rows, err := svc.History(ctx, "athlete-9", time.Time{}, 10)
				return err == nil && len(rows) > 0
			})

			rows, err := svc.History(ctx, "coach", time.Time{}, 10)
			So(err, ShouldBeNil)
			So(rows, ShouldBeEmpty)
		})
	})
}

func TestServiceIntegration_ModelLoadFailure(t *testing.T) {
	Convey("Given a runtime whose model cannot load", t, func() {
		rt := &fakeRuntime{loadErr: errors.New("weights file truncated")}
		svc := service.New(
			service.WithRuntime(rt),
			service.WithSampleInterval(10*time.Millisecond),
			service.WithSource("alice", capture.NewSynthetic()),
		)
		defer svc.Stop()
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		_, err := svc.StartSession(ctx, model.ModeStandard, []types.Binding{{Participant: "alice"}})
		So(err, ShouldBeNil)

		Convey("Then the model should report failed and ticks should retry the load", func() {
			waitFor(t, func() bool { return svc.ModelStatus() == engine.StatusFailed })
			waitFor(t, func() bool { return rt.loads.Load() >= 2 })

			Convey("And no snapshot should ever be published", func() {
				_, ok := svc.Latest("alice")
				So(ok, ShouldBeFalse)
			})

			Convey("And the service should stop cleanly regardless", func() {
				svc.Stop()
				So(svc.GetStats()["started"], ShouldBeFalse)
			})
		})
	})
}

func TestServiceIntegration_MultiParticipantSession(t *testing.T) {
	Convey("Given one session sampling two participants", t, func() {
		dbPath := filepath.Join(t.TempDir(), "snapshots.db")
		svc := service.New(
			service.WithRuntime(&fakeRuntime{}),
			service.WithSampleInterval(10*time.Millisecond),
			service.WithSource("alice", capture.NewSynthetic()),
			service.WithSource("bob", capture.NewSynthetic()),
			service.WithSnapshotDB(dbPath),
			service.WithStoreFlushInterval(50*time.Millisecond),
		)
		defer svc.Stop()
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		info, err := svc.StartSession(ctx, model.ModeStandard, []types.Binding{
			{Participant: "alice"},
			{Participant: "bob"},
		})
		So(err, ShouldBeNil)
		So(info.Keys, ShouldHaveLength, 2)

		Convey("When both loops have published", func() {
			waitFor(t, func() bool {
				return len(svc.All()) == 2
			})
			waitFor(t, func() bool {
				a, errA := svc.History(ctx, "alice", time.Time{}, 10)
				b, errB := svc.History(ctx, "bob", time.Time{}, 10)
				return errA == nil && errB == nil && len(a) > 0 && len(b) > 0
			})

			Convey("Then the summary should cover both participants in key order", func() {
				So(svc.EndSession(ctx, info.ID), ShouldBeNil)

				summary, err := svc.SummarizeSession(ctx, info.ID)
				So(err, ShouldBeNil)
				So(summary.Participants, ShouldHaveLength, 2)
				So(summary.Participants[0].ParticipantKey, ShouldEqual, "alice")
				So(summary.Participants[1].ParticipantKey, ShouldEqual, "bob")
			})

			Convey("Then per-participant frame sequences should be strictly increasing", func() {
				rows, err := svc.History(ctx, "alice", time.Time{}, 100)
				So(err, ShouldBeNil)
				// Newest first: every row's seq must exceed the next one's.
				for i := 0; i+1 < len(rows); i++ {
					So(rows[i].FrameSeq, ShouldBeGreaterThan, rows[i+1].FrameSeq)
				}
			})
		})
	})
}
