package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/config"
	"github.com/TheNickoos/GilsTracker/internal/logging"
	"github.com/TheNickoos/GilsTracker/internal/session"
	"github.com/TheNickoos/GilsTracker/internal/tracker"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrTooManyConnections is returned by AddClient when the connection limit
// is reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
)

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
	once sync.Once
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// SnapshotFunc returns the full state sent to new clients and on every
// snapshot interval.
type SnapshotFunc func() SnapshotPayload

// Broadcaster fans tracker state out to websocket clients. Changes are
// coalesced for the throttle window; full snapshots go out on connect, on a
// fixed interval, and on demand after resets and config changes.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	snapshot SnapshotFunc
	throttle time.Duration
	maxConns int
	log      *logrus.Entry

	// sendMu makes sequence assignment and enqueueing atomic, so every
	// client receives messages in sequence order.
	sendMu sync.Mutex
	seq    uint64

	snapshotTicker *time.Ticker
	stop           chan struct{}
	stopOnce       sync.Once

	flushMu        sync.Mutex
	pendingChanges []tracker.Change
	pendingSession session.Summary
	flushTimer     *time.Timer
}

// NewBroadcaster starts the snapshot loop. maxConns <= 0 means unlimited.
func NewBroadcaster(snapshot SnapshotFunc, throttle, snapshotInterval time.Duration, maxConns int) *Broadcaster {
	if snapshotInterval <= 0 {
		snapshotInterval = 2 * time.Second
	}
	b := &Broadcaster{
		clients:        make(map[*client]bool),
		snapshot:       snapshot,
		throttle:       throttle,
		maxConns:       maxConns,
		log:            logging.NewLogger("broadcaster"),
		snapshotTicker: time.NewTicker(snapshotInterval),
		stop:           make(chan struct{}),
	}
	go b.snapshotLoop()
	return b
}

// AddClient registers conn and queues an initial snapshot for it.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, clientSendBuffer),
	}

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()

	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	if data, err := b.encodeLocked(MsgSnapshot, b.snapshot()); err == nil {
		b.mu.RLock()
		if b.clients[c] {
			select {
			case c.send <- data:
			default:
			}
		}
		b.mu.RUnlock()
	}
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// QueueChange records a change; all changes queued within one throttle
// window go out as a single message carrying the latest totals.
func (b *Broadcaster) QueueChange(change tracker.Change, summary session.Summary) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pendingChanges = append(b.pendingChanges, change)
	b.pendingSession = summary

	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

// BroadcastSnapshot sends the full state to every client immediately and
// discards pending changes, which the snapshot supersedes.
func (b *Broadcaster) BroadcastSnapshot() {
	b.flushMu.Lock()
	b.pendingChanges = nil
	b.flushMu.Unlock()

	b.broadcast(MsgSnapshot, b.snapshot())
}

// BroadcastConfig announces new display preferences.
func (b *Broadcaster) BroadcastConfig(display config.DisplayConfig) {
	b.broadcast(MsgConfig, ConfigPayload{Display: display})
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	changes := b.pendingChanges
	summary := b.pendingSession
	b.pendingChanges = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if len(changes) == 0 {
		return
	}
	b.broadcast(MsgChange, ChangePayload{Changes: changes, Session: summary})
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.stop:
			return
		case <-b.snapshotTicker.C:
			if b.ClientCount() == 0 {
				continue
			}
			b.broadcast(MsgSnapshot, b.snapshot())
		}
	}
}

// encodeLocked assigns the next sequence number. Caller must hold sendMu.
func (b *Broadcaster) encodeLocked(t MessageType, payload interface{}) ([]byte, error) {
	b.seq++
	data, err := json.Marshal(WSMessage{Type: t, Seq: b.seq, Payload: payload})
	if err != nil {
		b.log.WithError(err).WithField("type", t).Error("broadcast marshal error")
	}
	return data, err
}

func (b *Broadcaster) broadcast(t MessageType, payload interface{}) {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	data, err := b.encodeLocked(t, payload)
	if err != nil {
		return
	}

	// Sends happen under the read lock so RemoveClient cannot close a
	// channel mid-send.
	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.log.Warn("ws client too slow, disconnecting")
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stop ends the snapshot loop and disconnects every client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.stop)
		b.snapshotTicker.Stop()

		b.flushMu.Lock()
		if b.flushTimer != nil {
			b.flushTimer.Stop()
			b.flushTimer = nil
		}
		b.flushMu.Unlock()

		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			c.close()
		}
		b.mu.Unlock()
	})
}
