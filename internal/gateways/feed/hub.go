package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultBuffer      = 16
	defaultRetryDelay  = 2 * time.Second
	defaultListenSetup = 5 * time.Second
)

var ErrHubStopped = errors.New("feed hub stopped")

type waiter interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
}

// Hub holds a single LISTEN connection and fans its notifications out to
// in-process subscribers. Subscribing never touches the pool.
type Hub struct {
	pool       *pgxpool.Pool
	buffer     int
	retryDelay time.Duration

	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	stopped bool
}

func NewHub(pool *pgxpool.Pool) *Hub {
	return &Hub{
		pool:       pool,
		buffer:     defaultBuffer,
		retryDelay: defaultRetryDelay,
		subs:       make(map[*Subscription]struct{}),
	}
}

// Run listens until ctx ends, reconnecting after a lost connection. Open
// subscriptions are closed when it returns.
func (h *Hub) Run(ctx context.Context) error {
	defer h.stop()

	for {
		err := h.listenOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("Feed listener lost, reconnecting",
			slog.String("type", "db"),
			slog.Duration("retry_in", h.retryDelay),
			slog.Any("error", err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(h.retryDelay):
		}
	}
}

func (h *Hub) listenOnce(ctx context.Context) error {
	setupCtx, cancel := context.WithTimeout(ctx, defaultListenSetup)
	defer cancel()

	conn, err := h.pool.Acquire(setupCtx)
	if err != nil {
		return fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(setupCtx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
		conn.Release()
		return fmt.Errorf("failed to listen on %s: %w", Channel, err)
	}
	defer func() {
		if !conn.Conn().IsClosed() {
			unlistenCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			_, _ = conn.Exec(unlistenCtx, "UNLISTEN *")
			cancel()
		}
		conn.Release()
	}()

	slog.Info("Feed listener connected",
		slog.String("type", "db"),
		slog.String("channel", Channel))
	return h.listen(ctx, conn.Conn())
}

// listen dispatches notifications from w until it fails.
func (h *Hub) listen(ctx context.Context, w waiter) error {
	for {
		n, err := w.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Channel != Channel {
			continue
		}
		ev, err := Decode(n.Payload)
		if err != nil {
			slog.Warn("Dropping malformed feed event",
				slog.String("type", "db"),
				slog.Any("error", err))
			continue
		}
		h.dispatch(ev)
	}
}

// dispatch never blocks. A subscriber whose buffer is full is closed so
// its client reconnects and refetches instead of silently missing events.
func (h *Hub) dispatch(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if !Matches(s.topic, ev.Topic) {
			continue
		}
		select {
		case s.events <- ev:
		default:
			slog.Warn("Closing lagging feed subscription",
				slog.String("type", "db"),
				slog.String("topic", s.topic))
			delete(h.subs, s)
			s.finish()
		}
	}
}

// Subscribe registers a subscription for topic. It ends when ctx ends or
// Close is called.
func (h *Hub) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	s := &Subscription{
		hub:    h,
		topic:  topic,
		events: make(chan Event, h.buffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil, ErrHubStopped
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	slog.Debug("Feed subscription opened",
		slog.String("type", "db"),
		slog.String("topic", topic))
	return s, nil
}

// Subscribers is the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
	s.finish()
}

func (h *Hub) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for s := range h.subs {
		delete(h.subs, s)
		s.finish()
	}
}

// Subscription is a lazy, unbounded stream of events for one topic.
type Subscription struct {
	hub    *Hub
	topic  string
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) Topic() string { return s.topic }

// Events is closed once the subscription ends.
func (s *Subscription) Events() <-chan Event { return s.events }

// Done is closed once the subscription has ended.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) Close() { s.hub.remove(s) }

// finish must be called with the hub lock held.
func (s *Subscription) finish() {
	s.once.Do(func() {
		close(s.events)
		close(s.done)
	})
}
