package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/pyquest/internal/domain"
	"github.com/felixgeelhaar/pyquest/internal/progress"
)

// SnapshotFunc returns the current progress of a user
type SnapshotFunc func(ctx context.Context, userID string) (progress.State, error)

// Forwarder turns progress events into snapshot messages. Events are
// buffered and published from a background goroutine so a slow broker
// never blocks a mutation; when the buffer is full the event is dropped
// and a later snapshot supersedes it.
type Forwarder struct {
	publisher Publisher
	snapshot  SnapshotFunc
	logger    *slog.Logger
	events    chan domain.ProgressEvent
	timeout   time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewForwarder creates a forwarder with the given buffer size
func NewForwarder(publisher Publisher, snapshot SnapshotFunc, buffer int, logger *slog.Logger) *Forwarder {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		publisher: publisher,
		snapshot:  snapshot,
		logger:    logger,
		events:    make(chan domain.ProgressEvent, buffer),
		timeout:   5 * time.Second,
	}
}

// Handle is the event handler to register with an EventDispatcher
func (f *Forwarder) Handle(event domain.ProgressEvent) {
	select {
	case f.events <- event:
	default:
		f.logger.Warn("sync buffer full, dropping event", "user_id", event.UserID, "type", event.Type)
	}
}

// Start begins publishing buffered events
func (f *Forwarder) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	f.wg.Add(1)
	go f.run(ctx)
}

// Stop drains pending events and stops the forwarder
func (f *Forwarder) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
}

func (f *Forwarder) run(ctx context.Context) {
	defer f.wg.Done()
	for {
		select {
		case <-ctx.Done():
			f.drain()
			return
		case event := <-f.events:
			f.forward(context.Background(), event)
		}
	}
}

func (f *Forwarder) drain() {
	for {
		select {
		case event := <-f.events:
			f.forward(context.Background(), event)
		default:
			return
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, event domain.ProgressEvent) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	state, err := f.snapshot(ctx, event.UserID)
	if err != nil {
		f.logger.Warn("sync snapshot failed", "user_id", event.UserID, "error", err)
		return
	}
	msg, err := NewProgressMessage(event.Type, state)
	if err != nil {
		f.logger.Warn("sync message build failed", "user_id", event.UserID, "error", err)
		return
	}
	if err := f.publisher.PublishProgress(ctx, msg); err != nil {
		f.logger.Warn("sync publish failed", "user_id", event.UserID, "type", event.Type, "error", err)
	}
}
