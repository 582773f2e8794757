package cbi

import (
	"golang.org/x/sync/errgroup"

	"github.com/ehrlich-b/go-blkio"
)

// ThrpoolAsync executes submissions on a pool of worker goroutines
// through the device's sync mixin. Completions are queued by the workers
// and delivered to callbacks on the goroutine that pokes or waits.
type ThrpoolAsync struct{}

type pool struct {
	jobs chan entry
	done chan *blkio.Ctx
	g    errgroup.Group
}

func poolState(q *blkio.Queue) *pool {
	return q.BackendState().(*pool)
}

func (ThrpoolAsync) Init(q *blkio.Queue, _ int) error {
	dev := q.Device()
	opts := dev.Opts()
	nthreads, err := opts.ThreadPoolSize()
	if err != nil {
		return err
	}

	p := &pool{
		jobs: make(chan entry, q.Capacity()),
		done: make(chan *blkio.Ctx, q.Capacity()),
	}
	for i := 0; i < nthreads; i++ {
		p.g.Go(p.worker)
	}
	q.SetBackendState(p)
	dev.Logger().Debug("thread pool started", "threads", nthreads, "depth", q.Capacity())
	return nil
}

func (p *pool) worker() error {
	for e := range p.jobs {
		e.run()
		p.done <- e.ctx
	}
	return nil
}

func (ThrpoolAsync) Term(q *blkio.Queue) error {
	p := poolState(q)
	close(p.jobs)
	err := p.g.Wait()
	for len(p.done) > 0 {
		<-p.done
	}
	return err
}

func (ThrpoolAsync) CmdIO(ctx *blkio.Ctx, dbuf, mbuf []byte) error {
	poolState(ctx.Async.Queue).jobs <- entry{ctx: ctx, dbuf: dbuf, mbuf: mbuf}
	return nil
}

func (ThrpoolAsync) CmdIOV(ctx *blkio.Ctx, dvec, mvec [][]byte) error {
	poolState(ctx.Async.Queue).jobs <- entry{ctx: ctx, dvec: dvec, mvec: mvec, vectored: true}
	return nil
}

// Poke delivers completions that are ready. Resubmissions made by
// callbacks are left for the next call.
func (ThrpoolAsync) Poke(q *blkio.Queue, max uint32) (int, error) {
	return reapPool(q, poolState(q), limit(int(q.Outstanding()), max), false)
}

func (ThrpoolAsync) Wait(q *blkio.Queue) (int, error) {
	return reapPool(q, poolState(q), int(q.Outstanding()), true)
}

func reapPool(q *blkio.Queue, p *pool, n int, block bool) (int, error) {
	for i := 0; i < n; i++ {
		var ctx *blkio.Ctx
		if block && i == 0 {
			ctx = <-p.done
		} else {
			select {
			case ctx = <-p.done:
			default:
				return i, nil
			}
		}
		if err := q.Complete(ctx); err != nil {
			return i, err
		}
	}
	return n, nil
}

// ThrpoolAsyncMixin runs commands on worker goroutines
func ThrpoolAsyncMixin() blkio.Mixin {
	return blkio.AsyncMixin("thrpool", "sync execution on worker goroutines", ThrpoolAsync{}, nil)
}

// AsyncMixins returns the software async mixins in preference order
func AsyncMixins() []blkio.Mixin {
	return []blkio.Mixin{ThrpoolAsyncMixin(), EmuAsyncMixin(), NilAsyncMixin()}
}
