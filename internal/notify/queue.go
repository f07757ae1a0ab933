package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultChannelDepth   = 64
	defaultPublishTimeout = 5 * time.Second
)

// Publisher delivers notifications to one external system. Implementations
// report failure through the returned error and must never panic; the
// queue logs and counts failures but does not retry, since a newer status
// item for the same entity follows soon enough.
type Publisher interface {
	Name() string
	PublishZoneStatus(ctx context.Context, zoneID, eventType string, payload any) error
	PublishClientStatus(ctx context.Context, clientID, eventType string, payload any) error
	PublishGlobalStatus(ctx context.Context, eventType string, payload any) error
}

// Logger is the minimal logging interface the queue uses.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config tunes the queue. Zero values select the defaults.
type Config struct {
	// ChannelDepth bounds each per-scope channel, per publisher.
	ChannelDepth int

	// PublishTimeout bounds one delivery attempt to one publisher.
	PublishTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChannelDepth <= 0 {
		c.ChannelDepth = defaultChannelDepth
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = defaultPublishTimeout
	}
	return c
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Enqueued      uint64
	Dropped       uint64
	Published     uint64
	PublishErrors uint64
}

// subscription is one publisher's private set of scope channels. Giving
// every publisher its own channels is what isolates a slow or failing
// publisher from the others.
type subscription struct {
	publisher Publisher
	zone      chan Notification
	client    chan Notification
	global    chan Notification
}

func (s *subscription) channel(scope Scope) chan Notification {
	switch scope {
	case ScopeZone:
		return s.zone
	case ScopeClient:
		return s.client
	default:
		return s.global
	}
}

// Queue fans status notifications out to every registered publisher
// through bounded per-scope channels.
type Queue struct {
	cfg    Config
	subs   []*subscription
	logger Logger

	mu      sync.RWMutex // guards closed against concurrent enqueue
	closed  bool
	started bool
	wg      sync.WaitGroup

	enqueued      atomic.Uint64
	dropped       atomic.Uint64
	published     atomic.Uint64
	publishErrors atomic.Uint64
}

// NewQueue creates a queue delivering to the given publishers.
func NewQueue(cfg Config, publishers ...Publisher) *Queue {
	cfg = cfg.withDefaults()
	q := &Queue{cfg: cfg, logger: noopLogger{}}
	for _, p := range publishers {
		q.subs = append(q.subs, &subscription{
			publisher: p,
			zone:      make(chan Notification, cfg.ChannelDepth),
			client:    make(chan Notification, cfg.ChannelDepth),
			global:    make(chan Notification, cfg.ChannelDepth),
		})
	}
	return q
}

// SetLogger sets the logger. Call before Start.
func (q *Queue) SetLogger(logger Logger) {
	if logger != nil {
		q.logger = logger
	}
}

// Start launches one drain goroutine per publisher per scope.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	for _, sub := range q.subs {
		for _, ch := range []chan Notification{sub.zone, sub.client, sub.global} {
			q.wg.Add(1)
			go q.drain(sub.publisher, ch)
		}
	}
}

// EnqueueZone queues a zone-scoped status notification. It never blocks:
// when the channel is full the oldest queued item is dropped first.
func (q *Queue) EnqueueZone(ctx context.Context, eventType, zoneID string, payload any) error {
	return q.enqueue(ctx, Notification{
		Scope: ScopeZone, EventType: eventType, EntityID: zoneID, Payload: payload,
	})
}

// EnqueueClient queues a client-scoped status notification.
func (q *Queue) EnqueueClient(ctx context.Context, eventType, clientID string, payload any) error {
	return q.enqueue(ctx, Notification{
		Scope: ScopeClient, EventType: eventType, EntityID: clientID, Payload: payload,
	})
}

// EnqueueGlobal queues a system-wide status notification.
func (q *Queue) EnqueueGlobal(ctx context.Context, eventType string, payload any) error {
	return q.enqueue(ctx, Notification{Scope: ScopeGlobal, EventType: eventType, Payload: payload})
}

func (q *Queue) enqueue(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.EnqueuedAt = time.Now()

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	q.enqueued.Add(1)
	for _, sub := range q.subs {
		if q.push(sub.channel(n.Scope), n) {
			q.dropped.Add(1)
			q.logger.Debug("dropped oldest status notification",
				"publisher", sub.publisher.Name(), "scope", string(n.Scope))
		}
	}
	return nil
}

// push inserts n, evicting the oldest queued item if the channel is full.
// Reports whether anything was evicted.
func (q *Queue) push(ch chan Notification, n Notification) bool {
	evicted := false
	for {
		select {
		case ch <- n:
			return evicted
		default:
		}
		select {
		case <-ch:
			evicted = true
		default:
			// Consumer raced us and made room; retry the send.
		}
	}
}

func (q *Queue) drain(p Publisher, ch chan Notification) {
	defer q.wg.Done()
	for n := range ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.cfg.PublishTimeout)
		err := q.deliver(ctx, p, n)
		cancel()
		if err != nil {
			q.publishErrors.Add(1)
			q.logger.Warn("publish failed",
				"publisher", p.Name(), "scope", string(n.Scope),
				"event", n.EventType, "entity", n.EntityID, "error", err)
			continue
		}
		q.published.Add(1)
	}
}

func (q *Queue) deliver(ctx context.Context, p Publisher, n Notification) error {
	switch n.Scope {
	case ScopeZone:
		return p.PublishZoneStatus(ctx, n.EntityID, n.EventType, n.Payload)
	case ScopeClient:
		return p.PublishClientStatus(ctx, n.EntityID, n.EventType, n.Payload)
	default:
		return p.PublishGlobalStatus(ctx, n.EventType, n.Payload)
	}
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:      q.enqueued.Load(),
		Dropped:       q.dropped.Load(),
		Published:     q.published.Load(),
		PublishErrors: q.publishErrors.Load(),
	}
}

// Close stops accepting notifications, lets the drain goroutines finish
// delivering what is already queued, and returns once they exit.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for _, sub := range q.subs {
		close(sub.zone)
		close(sub.client)
		close(sub.global)
	}
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}
