package cbi

import (
	"github.com/ehrlich-b/go-blkio"
	"github.com/ehrlich-b/go-blkio/internal/constants"
)

// NilAsync completes every command successfully without moving data. It
// measures the overhead of the queue machinery itself.
type NilAsync struct{}

// nilQueue is a stack of submitted contexts; poke completes newest first
type nilQueue struct {
	slots [constants.NilQueueDepthMax]*blkio.Ctx
	n     int
	depth int
}

func nilState(q *blkio.Queue) *nilQueue {
	return q.BackendState().(*nilQueue)
}

func (NilAsync) Init(q *blkio.Queue, _ int) error {
	if q.Capacity() > constants.NilQueueDepthMax {
		return blkio.NewErrorf("nil.init", blkio.ErrCodeInvalidArgument,
			"depth %d exceeds %d", q.Capacity(), constants.NilQueueDepthMax)
	}
	q.SetBackendState(&nilQueue{depth: int(q.Capacity())})
	return nil
}

func (NilAsync) Term(*blkio.Queue) error {
	return nil
}

func (NilAsync) submit(ctx *blkio.Ctx) error {
	nq := nilState(ctx.Async.Queue)
	if nq.n >= nq.depth {
		return blkio.NewError("nil.submit", blkio.ErrCodeBusy, "all slots taken")
	}
	nq.slots[nq.n] = ctx
	nq.n++
	return nil
}

func (a NilAsync) CmdIO(ctx *blkio.Ctx, _, _ []byte) error {
	return a.submit(ctx)
}

func (a NilAsync) CmdIOV(ctx *blkio.Ctx, _, _ [][]byte) error {
	return a.submit(ctx)
}

func (NilAsync) Poke(q *blkio.Queue, max uint32) (int, error) {
	nq := nilState(q)
	n := limit(nq.n, max)

	// take the batch first: callbacks may push resubmissions
	batch := make([]*blkio.Ctx, n)
	for i := range batch {
		nq.n--
		batch[i] = nq.slots[nq.n]
		nq.slots[nq.n] = nil
	}

	for i, ctx := range batch {
		if ctx == nil {
			return i, blkio.NewError("nil.poke", blkio.ErrCodeInternal, "empty slot below the stack top")
		}
		ctx.Cpl = blkio.Cpl{}
		if err := q.Complete(ctx); err != nil {
			return i, err
		}
	}
	return n, nil
}

func (a NilAsync) Wait(q *blkio.Queue) (int, error) {
	return a.Poke(q, 0)
}

// NilAsyncMixin completes commands without executing them
func NilAsyncMixin() blkio.Mixin {
	return blkio.AsyncMixin("nil", "complete without executing, newest first", NilAsync{}, nil)
}
