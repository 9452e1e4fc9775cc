// Package publisher distributes pipeline snapshots: it keeps the latest
// snapshot per participant key and fans new ones out to subscribers without
// ever blocking the sampling loops.
package publisher

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/movelab/stance/internal/domain/model"
	"github.com/movelab/stance/pkg/logger"
	"github.com/movelab/stance/pkg/metrics"
)

// ResolveKey maps a session onto the participant key snapshots are published
// under. A supervised session tracks the subject, not the operator driving
// it; every other mode tracks the operator. An empty subject falls back to
// the operator.
func ResolveKey(mode model.SessionMode, operatorID, subjectID string) string {
	if mode == model.ModeSupervised && subjectID != "" {
		return subjectID
	}
	return operatorID
}

// SubscriberStats counts deliveries for one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriber struct {
	id      string
	ch      chan<- model.Snapshot
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Option applies a configuration option to the Publisher.
type Option func(*Publisher)

// WithLogger sets the publisher logger.
func WithLogger(lg logger.Logger) Option {
	return func(p *Publisher) {
		if lg != nil {
			p.logger = lg
		}
	}
}

// Publisher owns the latest-snapshot registry and the subscriber fan-out.
// Publishing replaces the whole snapshot under the participant key; readers
// never see a partially updated value.
type Publisher struct {
	mu          sync.RWMutex
	latest      map[string]model.Snapshot
	subscribers map[string]*subscriber
	closed      bool

	logger logger.Logger
}

// NewPublisher creates an empty publisher.
func NewPublisher(opts ...Option) *Publisher {
	p := &Publisher{
		latest:      make(map[string]model.Snapshot),
		subscribers: make(map[string]*subscriber),
		logger:      logger.Get().Named("publisher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish stores snap as the latest value for its participant key and offers
// it to every subscriber. A subscriber that cannot take it immediately loses
// this snapshot, not the publisher's time.
func (p *Publisher) Publish(snap model.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.latest[snap.ParticipantKey] = snap
	metrics.RecordSnapshotPublished()

	for _, sub := range p.subscribers {
		select {
		case sub.ch <- snap:
			sub.sent.Add(1)
		default:
			sub.dropped.Add(1)
			metrics.RecordSubscriberDrop(sub.id)
		}
	}
}

// Latest returns the current snapshot for a participant key.
func (p *Publisher) Latest(key string) (model.Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap, ok := p.latest[key]
	return snap, ok
}

// All returns a copy of the registry.
func (p *Publisher) All() map[string]model.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]model.Snapshot, len(p.latest))
	for k, v := range p.latest {
		out[k] = v
	}
	return out
}

// Remove drops the latest snapshot for a participant key. Called when the
// session owning the key ends.
func (p *Publisher) Remove(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.latest, key)
}

// Subscribe registers ch to receive every published snapshot. The caller
// owns the channel and its buffering; an undersized buffer costs dropped
// snapshots, never delivery order.
func (p *Publisher) Subscribe(id string, ch chan<- model.Snapshot) error {
	if ch == nil {
		return ErrNilChannel
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if _, exists := p.subscribers[id]; exists {
		return ErrSubscriberExists
	}

	p.subscribers[id] = &subscriber{id: id, ch: ch}
	metrics.UpdateSubscriberCount(len(p.subscribers))
	p.logger.Debug(context.Background(), "subscriber added", logger.String("id", id))
	return nil
}

// Unsubscribe detaches a subscriber. The channel is not closed; the caller
// created it and decides its lifetime.
func (p *Publisher) Unsubscribe(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}

	delete(p.subscribers, id)
	metrics.UpdateSubscriberCount(len(p.subscribers))
	p.logger.Debug(context.Background(), "subscriber removed", logger.String("id", id))
	return nil
}

// Stats returns delivery counters for one subscriber.
func (p *Publisher) Stats(id string) (SubscriberStats, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sub, exists := p.subscribers[id]
	if !exists {
		return SubscriberStats{}, ErrSubscriberNotFound
	}
	return SubscriberStats{Sent: sub.sent.Load(), Dropped: sub.dropped.Load()}, nil
}

// Close detaches every subscriber and rejects later publishes. Idempotent.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.subscribers = make(map[string]*subscriber)
	metrics.UpdateSubscriberCount(0)
}
