package blkio

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/ehrlich-b/go-blkio/internal/constants"
	"github.com/ehrlich-b/go-blkio/internal/logging"
)

// QueueState tracks the lifecycle of a Queue
type QueueState int

const (
	QueueUninitialized QueueState = iota
	QueueReady
	QueueDraining
	QueueTerminated
)

func (s QueueState) String() string {
	switch s {
	case QueueUninitialized:
		return "uninitialized"
	case QueueReady:
		return "ready"
	case QueueDraining:
		return "draining"
	case QueueTerminated:
		return "terminated"
	}
	return fmt.Sprintf("queuestate(%d)", int(s))
}

// Queue is a depth-bounded window of outstanding asynchronous commands
// with a fixed pool of contexts. A queue must not be driven from more
// than one goroutine at a time.
type Queue struct {
	dev *Device
	log *logging.Logger

	capacity    uint32
	outstanding uint32
	state       QueueState

	pool []Ctx   // fixed arena, never reallocated
	free []int32 // LIFO stack of free pool indices

	cb    Callback
	cbArg any

	// backend-private queue state
	beState any
}

// NewQueue creates a queue of the given depth on dev. depth must be a
// power of two below MaxQueueDepth; the async mixin may impose a smaller
// limit. opts is passed through to the mixin.
func NewQueue(dev *Device, depth uint32, opts int) (*Queue, error) {
	if dev == nil || dev.be == nil || dev.isClosed() {
		return nil, NewError("queue.init", ErrCodeInvalidArgument, "device is not open")
	}
	if depth == 0 || bits.OnesCount32(depth) != 1 || depth >= constants.MaxQueueDepth {
		return nil, NewQueueError("queue.init", dev.ident.URI, int(depth), ErrCodeInvalidArgument,
			fmt.Sprintf("depth must be a power of two below %d", constants.MaxQueueDepth))
	}

	q := &Queue{
		dev:      dev,
		log:      dev.log.WithQueue(depth),
		capacity: depth,
		pool:     make([]Ctx, depth),
		free:     make([]int32, 0, depth),
	}
	for i := int(depth) - 1; i >= 0; i-- {
		c := &q.pool[i]
		c.Dev = dev
		c.Opts = CmdAsync
		c.Async.Queue = q
		c.slot = i
		c.pooled = true
		q.free = append(q.free, int32(i))
	}

	if err := dev.be.Async.Init(q, opts); err != nil {
		q.pool, q.free = nil, nil
		q.log.Debug("async mixin rejected queue", "err", err)
		e := NewQueueError("queue.init", dev.ident.URI, int(depth), ErrCodeInvalidArgument, "async mixin rejected queue")
		e.Inner = err
		if IsCode(err, ErrCodeNotSupported) {
			e.Code, e.Errno = ErrCodeNotSupported, codeErrno[ErrCodeNotSupported]
		}
		return nil, e
	}
	q.state = QueueReady
	q.log.Debug("queue ready")
	return q, nil
}

func (q *Queue) Device() *Device     { return q.dev }
func (q *Queue) Capacity() uint32    { return q.capacity }
func (q *Queue) Outstanding() uint32 { return q.outstanding }
func (q *Queue) State() QueueState   { return q.state }

// BackendState returns the async mixin's per-queue state
func (q *Queue) BackendState() any {
	return q.beState
}

// SetBackendState stores the async mixin's per-queue state
func (q *Queue) SetBackendState(state any) {
	q.beState = state
}

// SetCallback stamps cb and arg on every context in the pool
func (q *Queue) SetCallback(cb Callback, arg any) {
	q.cb, q.cbArg = cb, arg
	for i := range q.pool {
		q.pool[i].Async.Cb = cb
		q.pool[i].Async.CbArg = arg
	}
}

// GetCtx takes a context from the pool. The context is cleared and
// carries the queue's callback.
func (q *Queue) GetCtx() (*Ctx, error) {
	if len(q.free) == 0 {
		return nil, NewQueueError("queue.getctx", q.dev.ident.URI, int(q.capacity), ErrCodeExhausted, "context pool empty")
	}
	i := q.free[len(q.free)-1]
	q.free = q.free[:len(q.free)-1]

	c := &q.pool[i]
	c.pooled = false
	c.gen++
	c.Clear()
	c.Opts = CmdAsync
	c.dsgl, c.msgl = nil, nil
	c.Async.Cb = q.cb
	c.Async.CbArg = q.cbArg
	return c, nil
}

// PutCtx returns a context to the pool
func (q *Queue) PutCtx(c *Ctx) error {
	if !q.owns(c) {
		return NewQueueError("queue.putctx", q.dev.ident.URI, int(q.capacity), ErrCodeInvalidArgument, "context not from this queue")
	}
	if c.pooled {
		return NewQueueError("queue.putctx", q.dev.ident.URI, int(q.capacity), ErrCodeInvalidArgument, "context already released")
	}
	if c.inflight {
		return NewQueueError("queue.putctx", q.dev.ident.URI, int(q.capacity), ErrCodeBusy, "context in flight")
	}
	c.pooled = true
	c.gen++
	q.free = append(q.free, int32(c.slot))
	return nil
}

func (q *Queue) owns(c *Ctx) bool {
	return c != nil && c.slot >= 0 && c.slot < len(q.pool) && &q.pool[c.slot] == c
}

// track accounts a submission before the mixin sees it
func (q *Queue) track(c *Ctx, nbytes uint64) error {
	if q == nil {
		return NewDeviceError("cmd.submit", c.Dev.ident.URI, ErrCodeInvalidArgument, "async context without queue")
	}
	if q.state != QueueReady && q.state != QueueDraining {
		return NewQueueError("cmd.submit", q.dev.ident.URI, int(q.capacity), ErrCodeInvalidArgument, "queue is "+q.state.String())
	}
	if q.outstanding >= q.capacity {
		return NewQueueError("cmd.submit", q.dev.ident.URI, int(q.capacity), ErrCodeBusy, "queue full")
	}
	if c.inflight {
		return NewQueueError("cmd.submit", q.dev.ident.URI, int(q.capacity), ErrCodeBusy, "context already in flight")
	}
	c.inflight = true
	c.nbytes = nbytes
	c.submitted = time.Now()
	q.outstanding++
	q.dev.observer.ObserveQueueDepth(q.outstanding)
	return nil
}

// untrack reverts track after the mixin refused a submission
func (q *Queue) untrack(c *Ctx) {
	c.inflight = false
	q.outstanding--
}

// Complete delivers one completion: the context leaves flight, its
// callback runs, and it returns to the pool unless the callback
// resubmitted or released it. Async mixins call this from Poke and Wait.
func (q *Queue) Complete(c *Ctx) error {
	if c == nil || c.Async.Queue != q || !c.inflight {
		return NewQueueError("queue.complete", q.dev.ident.URI, int(q.capacity), ErrCodeInternal, "completion for a context not in flight")
	}
	c.inflight = false
	q.outstanding--
	q.dev.observe(c, c.nbytes, time.Since(c.submitted), nil)

	// a callback that released the context, even if it took it back
	// again, now owns it
	gen := c.gen
	if c.Async.Cb != nil {
		c.Async.Cb(c, c.Async.CbArg)
	}
	if q.owns(c) && c.gen == gen && !c.inflight && !c.pooled {
		c.pooled = true
		q.free = append(q.free, int32(c.slot))
	}
	return nil
}

// Poke delivers up to max completions (0 means all that are ready) and
// never blocks
func (q *Queue) Poke(max uint32) (int, error) {
	if err := q.checkLive("queue.poke"); err != nil {
		return 0, err
	}
	if q.outstanding == 0 {
		return 0, nil
	}
	q.state = QueueDraining
	n, err := q.dev.be.Async.Poke(q, max)
	if q.state == QueueDraining {
		q.state = QueueReady
	}
	return n, err
}

// Wait blocks until at least one completion is delivered
func (q *Queue) Wait() (int, error) {
	if err := q.checkLive("queue.wait"); err != nil {
		return 0, err
	}
	if q.outstanding == 0 {
		return 0, nil
	}
	q.state = QueueDraining
	n, err := q.dev.be.Async.Wait(q)
	if q.state == QueueDraining {
		q.state = QueueReady
	}
	return n, err
}

// Drain waits until nothing is outstanding and returns the number of
// completions delivered
func (q *Queue) Drain() (int, error) {
	total := 0
	for q.outstanding > 0 {
		n, err := q.Wait()
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Term releases the queue. Commands still outstanding are handled as the
// async mixin sees fit; callers should Drain first.
func (q *Queue) Term() error {
	if q.state == QueueTerminated {
		return nil
	}
	if q.outstanding > 0 {
		q.log.Warn("terminating queue with outstanding commands", "outstanding", q.outstanding)
	}
	err := q.dev.be.Async.Term(q)
	q.state = QueueTerminated
	q.pool, q.free = nil, nil
	q.beState = nil
	q.log.Debug("queue terminated")
	return err
}

func (q *Queue) checkLive(op string) error {
	if q.state != QueueReady {
		return NewQueueError(op, q.dev.ident.URI, int(q.capacity), ErrCodeInvalidArgument, "queue is "+q.state.String())
	}
	return nil
}
