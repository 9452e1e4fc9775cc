package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/movelab/stance/internal/domain/biomech"
	"github.com/movelab/stance/internal/domain/model"
	"github.com/movelab/stance/internal/domain/pose"
	logging "github.com/movelab/stance/pkg/logger"
)

const baseMillis = int64(1_700_000_000_000)

func angle(v float64) *float64 {
	return &v
}

func storedSnapshot(key string, seq uint64, at int64) model.Snapshot {
	return model.Snapshot{
		SessionID:      "session-1",
		ParticipantKey: key,
		CapturedAt:     time.UnixMilli(at),
		FrameSeq:       seq,
		Detected:       true,
		Angles: biomech.Angles{
			LeftKnee:  angle(92.5),
			RightKnee: angle(88),
			SpineLean: angle(-4.5),
		},
		Metrics: biomech.Metrics{
			BalanceScore:       80,
			SymmetryScore:      75,
			PosturalEfficiency: 90,
			CenterOfMass:       pose.Point{X: 0.5, Y: 0.45},
		},
	}
}

func scoredSnapshot(session, key string, at int64, detected bool, balance, symmetry, efficiency int) model.Snapshot {
	return model.Snapshot{
		SessionID:      session,
		ParticipantKey: key,
		CapturedAt:     time.UnixMilli(at),
		FrameSeq:       1,
		Detected:       detected,
		Metrics: biomech.Metrics{
			BalanceScore:       balance,
			SymmetryScore:      symmetry,
			PosturalEfficiency: efficiency,
			CenterOfMass:       pose.Point{X: 0.5, Y: 0.5},
		},
	}
}

func rowCount(s *Store) int {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return -1
	}
	return n
}

func TestStoreHistory(t *testing.T) {
	_ = logging.Init()

	Convey("Given a store with buffered snapshots", t, func() {
		s, err := New(filepath.Join(t.TempDir(), "snapshots.db"))
		So(err, ShouldBeNil)
		defer s.Close()

		s.Append(storedSnapshot("alice", 1, baseMillis))
		s.Append(storedSnapshot("alice", 2, baseMillis+1000))
		s.Append(storedSnapshot("alice", 3, baseMillis+2000))
		s.Append(storedSnapshot("bob", 7, baseMillis+1500))

		Convey("History flushes the buffer and returns newest first", func() {
			got, err := s.History(context.Background(), "alice", time.UnixMilli(0), 0)
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 3)
			So(got[0], ShouldResemble, storedSnapshot("alice", 3, baseMillis+2000))
			So(got[1].FrameSeq, ShouldEqual, 2)
			So(got[2].FrameSeq, ShouldEqual, 1)
		})

		Convey("History filters by participant key", func() {
			got, err := s.History(context.Background(), "bob", time.UnixMilli(0), 0)
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 1)
			So(got[0].FrameSeq, ShouldEqual, 7)
		})

		Convey("History honors the since bound inclusively", func() {
			got, err := s.History(context.Background(), "alice", time.UnixMilli(baseMillis+1000), 0)
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 2)
			So(got[0].FrameSeq, ShouldEqual, 3)
			So(got[1].FrameSeq, ShouldEqual, 2)
		})

		Convey("History honors the row limit", func() {
			got, err := s.History(context.Background(), "alice", time.UnixMilli(0), 1)
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 1)
			So(got[0].FrameSeq, ShouldEqual, 3)
		})

		Convey("An unknown participant yields no rows and no error", func() {
			got, err := s.History(context.Background(), "nobody", time.UnixMilli(0), 0)
			So(err, ShouldBeNil)
			So(got, ShouldBeEmpty)
		})
	})
}

func TestStoreBatching(t *testing.T) {
	_ = logging.Init()

	Convey("Given a store with a batch size of two", t, func() {
		s, err := New(filepath.Join(t.TempDir(), "snapshots.db"), WithBatchSize(2))
		So(err, ShouldBeNil)
		defer s.Close()

		Convey("A single append stays buffered", func() {
			s.Append(storedSnapshot("alice", 1, baseMillis))
			So(rowCount(s), ShouldEqual, 0)

			Convey("And the second append flushes the batch", func() {
				s.Append(storedSnapshot("alice", 2, baseMillis+1000))
				So(rowCount(s), ShouldEqual, 2)
			})
		})
	})

	Convey("Given a store whose database cannot be created", t, func() {
		_, err := New(filepath.Join(t.TempDir(), "missing", "snapshots.db"))
		So(err, ShouldNotBeNil)
	})
}

func TestStoreRunLoop(t *testing.T) {
	_ = logging.Init()

	Convey("Given a running store flush loop", t, func() {
		s, err := New(filepath.Join(t.TempDir(), "snapshots.db"),
			WithFlushInterval(20*time.Millisecond),
		)
		So(err, ShouldBeNil)

		go s.Run(context.Background())
		s.Append(storedSnapshot("alice", 1, baseMillis))

		Convey("The interval flush persists buffered rows", func() {
			deadline := time.Now().Add(2 * time.Second)
			for rowCount(s) < 1 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			So(rowCount(s), ShouldEqual, 1)

			Convey("And stopping twice is safe", func() {
				s.Stop()
				s.Stop()
				So(s.Close(), ShouldBeNil)
			})
		})
	})
}

func TestStoreConsume(t *testing.T) {
	_ = logging.Init()

	Convey("Given a store draining a snapshot channel", t, func() {
		s, err := New(filepath.Join(t.TempDir(), "snapshots.db"))
		So(err, ShouldBeNil)
		defer s.Close()

		ch := make(chan model.Snapshot, 4)
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.Consume(context.Background(), ch)
		}()

		ch <- storedSnapshot("alice", 1, baseMillis)
		ch <- storedSnapshot("alice", 2, baseMillis+1000)
		close(ch)

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("consume did not return after channel close")
		}

		got, err := s.History(context.Background(), "alice", time.UnixMilli(0), 0)
		So(err, ShouldBeNil)
		So(got, ShouldHaveLength, 2)
	})
}

func TestSummarizeSession(t *testing.T) {
	_ = logging.Init()

	Convey("Given a session with mixed participants", t, func() {
		s, err := New(filepath.Join(t.TempDir(), "snapshots.db"))
		So(err, ShouldBeNil)
		defer s.Close()

		s.Append(scoredSnapshot("session-1", "alice", baseMillis, true, 80, 70, 60))
		s.Append(scoredSnapshot("session-1", "alice", baseMillis+1000, true, 90, 90, 80))
		s.Append(scoredSnapshot("session-1", "alice", baseMillis+2000, false, 100, 100, 100))
		s.Append(scoredSnapshot("session-1", "bob", baseMillis, true, 100, 100, 100))
		s.Append(scoredSnapshot("session-1", "dave", baseMillis, false, 100, 100, 100))
		s.Append(scoredSnapshot("session-2", "carol", baseMillis, true, 50, 50, 50))

		summary, err := s.SummarizeSession(context.Background(), "session-1")
		So(err, ShouldBeNil)
		So(summary.SessionID, ShouldEqual, "session-1")
		So(summary.Participants, ShouldHaveLength, 3)

		Convey("Participants come back sorted by key", func() {
			So(summary.Participants[0].ParticipantKey, ShouldEqual, "alice")
			So(summary.Participants[1].ParticipantKey, ShouldEqual, "bob")
			So(summary.Participants[2].ParticipantKey, ShouldEqual, "dave")
		})

		Convey("Score statistics cover detected samples only", func() {
			alice := summary.Participants[0]
			So(alice.Samples, ShouldEqual, 3)
			So(alice.DetectionRate, ShouldAlmostEqual, 2.0/3.0, 0.0001)
			So(alice.MeanBalance, ShouldAlmostEqual, 85, 0.0001)
			So(alice.StddevBalance, ShouldAlmostEqual, 7.0711, 0.001)
			So(alice.MeanSymmetry, ShouldAlmostEqual, 80, 0.0001)
			So(alice.StddevSymmetry, ShouldAlmostEqual, 14.1421, 0.001)
			So(alice.MeanEfficiency, ShouldAlmostEqual, 70, 0.0001)
		})

		Convey("A single detected sample reports zero spread", func() {
			bob := summary.Participants[1]
			So(bob.Samples, ShouldEqual, 1)
			So(bob.DetectionRate, ShouldAlmostEqual, 1.0, 0.0001)
			So(bob.MeanBalance, ShouldAlmostEqual, 100, 0.0001)
			So(bob.StddevBalance, ShouldEqual, 0)
		})

		Convey("A participant with no detections reports zeroed statistics", func() {
			dave := summary.Participants[2]
			So(dave.Samples, ShouldEqual, 1)
			So(dave.DetectionRate, ShouldEqual, 0)
			So(dave.MeanBalance, ShouldEqual, 0)
			So(dave.StddevBalance, ShouldEqual, 0)
		})

		Convey("An unknown session yields an empty summary", func() {
			empty, err := s.SummarizeSession(context.Background(), "session-9")
			So(err, ShouldBeNil)
			So(empty.SessionID, ShouldEqual, "session-9")
			So(empty.Participants, ShouldBeEmpty)
		})
	})
}
