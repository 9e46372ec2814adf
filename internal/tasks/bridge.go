package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytfetch/internal/models"
	"github.com/desertthunder/ytfetch/internal/shared"
)

// Publisher requests that a task's current state be delivered to its subscribers.
type Publisher interface {
	Publish(taskID string, kind models.MessageKind)
}

// Subscriber receives live updates for one task.
//
// Deliver is called from the bridge's control loop and must not block for long. Close may be
// called more than once.
type Subscriber interface {
	Deliver(models.Message) error
	Close()
}

// BridgeOpts configures a [Bridge].
type BridgeOpts struct {
	Heartbeat time.Duration // interval of status_update heartbeats; 0 disables them
	Buffer    int           // publish queue capacity (default 256)
	Logger    *log.Logger
}

type publishRequest struct {
	taskID string
	kind   models.MessageKind
}

type subscription struct {
	id     uint64
	taskID string
	sub    Subscriber
}

// Bridge hands state changes from workers to subscribers living on a single control loop.
//
// Workers call [Bridge.Publish], which only enqueues the task id. [Bridge.Run] drains the queue,
// collapses repeated requests for the same task, snapshots the registry at delivery time, and
// delivers to every subscriber of that task. Subscribers that fail delivery are dropped; after a
// terminal snapshot every subscriber of the task is closed.
type Bridge struct {
	registry *Registry
	logger   *log.Logger
	opts     BridgeOpts

	requests    chan publishRequest
	subscribe   chan subscription
	unsubscribe chan uint64
	done        chan struct{}

	mu      sync.Mutex
	nextID  uint64
	started bool
}

// NewBridge creates a [Bridge] over registry. Call [Bridge.Run] to start delivery.
func NewBridge(registry *Registry, opts BridgeOpts) *Bridge {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Bridge{
		registry:    registry,
		logger:      opts.Logger.WithPrefix("bridge"),
		opts:        opts,
		requests:    make(chan publishRequest, opts.Buffer),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan uint64),
		done:        make(chan struct{}),
	}
}

// Publish enqueues a delivery request for taskID. It blocks only while the queue is full and
// returns immediately once the bridge has stopped.
func (b *Bridge) Publish(taskID string, kind models.MessageKind) {
	select {
	case <-b.done:
	case b.requests <- publishRequest{taskID: taskID, kind: kind}:
	}
}

// Subscribe registers sub for taskID. The subscriber first receives a status_update with the
// current state. The returned function unsubscribes and closes sub.
func (b *Bridge) Subscribe(taskID string, sub Subscriber) (func(), error) {
	if _, err := b.registry.Snapshot(taskID); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.mu.Unlock()

	select {
	case <-b.done:
		return nil, shared.ErrBridgeClosed
	case b.subscribe <- subscription{id: id, taskID: taskID, sub: sub}:
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			select {
			case <-b.done:
			case b.unsubscribe <- id:
			}
		})
	}, nil
}

// Done is closed once [Bridge.Run] has returned.
func (b *Bridge) Done() <-chan struct{} { return b.done }

// Run is the control loop. It returns when ctx is cancelled, closing every subscriber.
func (b *Bridge) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return fmt.Errorf("%w: already running", shared.ErrInvalidInput)
	}
	b.started = true
	b.mu.Unlock()

	subs := make(map[string]map[uint64]Subscriber)
	owner := make(map[uint64]string)

	var heartbeat <-chan time.Time
	if b.opts.Heartbeat > 0 {
		ticker := time.NewTicker(b.opts.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	remove := func(id uint64) {
		taskID, ok := owner[id]
		if !ok {
			return
		}
		if sub, ok := subs[taskID][id]; ok {
			sub.Close()
		}
		delete(subs[taskID], id)
		if len(subs[taskID]) == 0 {
			delete(subs, taskID)
		}
		delete(owner, id)
	}

	defer func() {
		for id := range owner {
			remove(id)
		}
		close(b.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case s := <-b.subscribe:
			if subs[s.taskID] == nil {
				subs[s.taskID] = make(map[uint64]Subscriber)
			}
			subs[s.taskID][s.id] = s.sub
			owner[s.id] = s.taskID
			b.greet(s.taskID, s.id, s.sub, remove)

		case id := <-b.unsubscribe:
			remove(id)

		case req := <-b.requests:
			pending := map[string]map[models.MessageKind]bool{req.taskID: {req.kind: true}}
			order := []string{req.taskID}
			order = b.drain(pending, order)
			for _, taskID := range order {
				b.deliver(taskID, pending[taskID], subs, remove)
			}

		case <-heartbeat:
			for taskID := range subs {
				b.deliver(taskID, map[models.MessageKind]bool{models.StatusUpdate: true}, subs, remove)
			}
		}
	}
}

// drain collects every queued request without blocking, grouping them per task.
func (b *Bridge) drain(pending map[string]map[models.MessageKind]bool, order []string) []string {
	for {
		select {
		case req := <-b.requests:
			kinds, ok := pending[req.taskID]
			if !ok {
				kinds = make(map[models.MessageKind]bool, 2)
				pending[req.taskID] = kinds
				order = append(order, req.taskID)
			}
			kinds[req.kind] = true
		default:
			return order
		}
	}
}

// greet sends the current status to a new subscriber only.
func (b *Bridge) greet(taskID string, id uint64, sub Subscriber, remove func(uint64)) {
	snap, err := b.registry.Snapshot(taskID)
	if err != nil {
		remove(id)
		return
	}
	if err := sub.Deliver(models.NewStatusUpdate(snap)); err != nil {
		b.logger.Debug("dropping subscriber", "task", taskID, "error", err)
		remove(id)
		return
	}
	if snap.Task.Status.IsTerminal() {
		remove(id)
	}
}

// deliver snapshots taskID once and sends the requested message kinds to its subscribers.
func (b *Bridge) deliver(taskID string, kinds map[models.MessageKind]bool, subs map[string]map[uint64]Subscriber, remove func(uint64)) {
	targets := subs[taskID]
	if len(targets) == 0 {
		return
	}

	snap, err := b.registry.Snapshot(taskID)
	if err != nil {
		if errors.Is(err, shared.ErrTaskNotFound) {
			for id := range targets {
				remove(id)
			}
		}
		return
	}

	var msgs []models.Message
	if kinds[models.StatusUpdate] {
		msgs = append(msgs, models.NewStatusUpdate(snap))
	}
	if kinds[models.ProgressUpdate] {
		msgs = append(msgs, models.NewProgressUpdate(snap))
	}

	for id, sub := range targets {
		for _, msg := range msgs {
			if err := sub.Deliver(msg); err != nil {
				b.logger.Debug("dropping subscriber", "task", taskID, "error", err)
				remove(id)
				break
			}
		}
	}

	if snap.Task.Status.IsTerminal() {
		for id := range subs[taskID] {
			remove(id)
		}
	}
}

// ChannelSubscriber is a [Subscriber] backed by a buffered channel.
//
// When the buffer is full the oldest message is discarded, so a slow reader always ends up with
// the most recent state. The channel is closed by Close.
type ChannelSubscriber struct {
	mu     sync.Mutex
	ch     chan models.Message
	closed bool
}

// NewChannelSubscriber creates a [ChannelSubscriber] holding up to buffer messages (minimum 1).
func NewChannelSubscriber(buffer int) *ChannelSubscriber {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSubscriber{ch: make(chan models.Message, buffer)}
}

// Messages returns the channel updates arrive on.
func (c *ChannelSubscriber) Messages() <-chan models.Message { return c.ch }

func (c *ChannelSubscriber) Deliver(m models.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return shared.ErrBridgeClosed
	}
	for {
		select {
		case c.ch <- m:
			return nil
		default:
		}
		select {
		case <-c.ch:
		default:
		}
	}
}

func (c *ChannelSubscriber) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
