package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/logging"
	"github.com/TheNickoos/GilsTracker/internal/tracker"
	"github.com/sirupsen/logrus"
)

// Publisher delivers a message to one external sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, msg *GilChangedMessage) error
	Close() error
}

const (
	defaultQueueSize = 256
	dropLogInterval  = 10 * time.Second
	publishTimeout   = 5 * time.Second
)

// Dispatcher queues tracker changes and publishes them from its own
// goroutine, so a slow broker never stalls a tick. When the queue is full
// the change is dropped and counted.
type Dispatcher struct {
	queue      chan tracker.Change
	publishers []Publisher
	log        *logrus.Entry

	mu          sync.Mutex
	dropped     int
	lastDropLog time.Time
	now         func() time.Time
}

// NewDispatcher returns a Dispatcher for publishers. queueSize <= 0 uses a
// default.
func NewDispatcher(queueSize int, publishers ...Publisher) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		queue:      make(chan tracker.Change, queueSize),
		publishers: publishers,
		log:        logging.NewLogger("notify"),
		now:        time.Now,
	}
}

// Handle enqueues c without blocking. It has the signature expected by
// tracker.Tracker.Observe.
func (d *Dispatcher) Handle(c tracker.Change) {
	select {
	case d.queue <- c:
	default:
		d.mu.Lock()
		d.dropped++
		now := d.now()
		if d.lastDropLog.IsZero() || now.Sub(d.lastDropLog) >= dropLogInterval {
			d.log.WithField("dropped", d.dropped).Warn("Notification queue full; dropping gil changes")
			d.dropped = 0
			d.lastDropLog = now
		}
		d.mu.Unlock()
	}
}

// Run publishes queued changes until ctx is cancelled, then closes every
// publisher.
func (d *Dispatcher) Run(ctx context.Context) error {
	names := make([]string, len(d.publishers))
	for i, p := range d.publishers {
		names[i] = p.Name()
	}
	d.log.WithField("sinks", names).Info("Notification dispatcher started")

	defer func() {
		for _, p := range d.publishers {
			if err := p.Close(); err != nil {
				d.log.WithError(err).WithField("sink", p.Name()).Warn("Closing sink failed")
			}
		}
		d.log.Info("Notification dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-d.queue:
			d.publish(ctx, c)
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, c tracker.Change) {
	msg := NewGilChangedMessage(c)
	for _, p := range d.publishers {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := p.Publish(pctx, msg)
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			d.log.WithError(err).WithFields(logrus.Fields{"sink": p.Name(), "delta": c.Delta}).Warn("Publishing gil change failed")
		}
	}
}

// Pending returns the number of queued changes.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}
