package cbi

import "github.com/ehrlich-b/go-blkio"

// EmuAsync queues submissions and executes them through the device's
// sync mixin when the queue is poked, in submission order
type EmuAsync struct{}

type emuQueue struct {
	pending []entry
}

func emuState(q *blkio.Queue) *emuQueue {
	return q.BackendState().(*emuQueue)
}

func (EmuAsync) Init(q *blkio.Queue, _ int) error {
	q.SetBackendState(&emuQueue{pending: make([]entry, 0, q.Capacity())})
	return nil
}

func (EmuAsync) Term(q *blkio.Queue) error {
	emuState(q).pending = nil
	return nil
}

func (EmuAsync) CmdIO(ctx *blkio.Ctx, dbuf, mbuf []byte) error {
	eq := emuState(ctx.Async.Queue)
	eq.pending = append(eq.pending, entry{ctx: ctx, dbuf: dbuf, mbuf: mbuf})
	return nil
}

func (EmuAsync) CmdIOV(ctx *blkio.Ctx, dvec, mvec [][]byte) error {
	eq := emuState(ctx.Async.Queue)
	eq.pending = append(eq.pending, entry{ctx: ctx, dvec: dvec, mvec: mvec, vectored: true})
	return nil
}

func (EmuAsync) Poke(q *blkio.Queue, max uint32) (int, error) {
	eq := emuState(q)
	n := limit(len(eq.pending), max)
	batch := make([]entry, n)
	copy(batch, eq.pending)
	eq.pending = append(eq.pending[:0], eq.pending[n:]...)

	for i := range batch {
		batch[i].run()
		if err := q.Complete(batch[i].ctx); err != nil {
			return i, err
		}
	}
	return n, nil
}

func (a EmuAsync) Wait(q *blkio.Queue) (int, error) {
	return a.Poke(q, 0)
}

// EmuAsyncMixin runs queued commands through the sync mixin on poke
func EmuAsyncMixin() blkio.Mixin {
	return blkio.AsyncMixin("emu", "sync execution deferred to poke, in order", EmuAsync{}, nil)
}
