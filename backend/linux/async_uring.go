//go:build linux

package linux

import (
	"sync"
	"syscall"

	"github.com/ehrlich-b/go-blkio"
	"github.com/ehrlich-b/go-blkio/backend/cbi"
	"github.com/ehrlich-b/go-blkio/internal/uring"
)

// segShift splits user data into a request id and a segment index
const segShift = 16

// UringAsync submits reads, writes and flushes to an io_uring owned by the
// queue. Each data segment is one submission entry; a command completes
// when all of its entries have. Commands the ring cannot express run
// synchronously and complete on the next poke.
type UringAsync struct{}

type uringRequest struct {
	ctx    *blkio.Ctx
	bufs   [][]byte // referenced by submitted entries until the last is reaped
	lens   []int
	remain int
	err    error
}

type uringQueue struct {
	ring     uring.Ring
	entries  int
	seq      uint64
	inflight map[uint64]*uringRequest
	// retired requests failed to submit but their prepared entries may
	// still reach the kernel; completions for them are dropped
	retired  map[uint64]*uringRequest
	segments int // entries submitted and not yet reaped
	done     []*blkio.Ctx
	results  []uring.Result
}

func uringState(q *blkio.Queue) *uringQueue {
	return q.BackendState().(*uringQueue)
}

var newRing = uring.NewRing

func (UringAsync) Init(q *blkio.Queue, _ int) error {
	ring, err := newRing(uring.Config{
		Entries: q.Capacity(),
		SQPoll:  q.Device().Opts().PollSQ,
	})
	if err != nil {
		e := blkio.NewError("uring.init", blkio.ErrCodeNotSupported, "io_uring unavailable")
		e.Inner = err
		return e
	}
	q.SetBackendState(&uringQueue{
		ring:     ring,
		entries:  int(q.Capacity()),
		inflight: make(map[uint64]*uringRequest, q.Capacity()),
		retired:  make(map[uint64]*uringRequest),
		results:  make([]uring.Result, 2*q.Capacity()),
	})
	return nil
}

// Term waits for the kernel to finish with every submitted buffer before
// the ring is closed. Commands still in flight are not delivered.
func (UringAsync) Term(q *blkio.Queue) error {
	uq := uringState(q)
	for len(uq.inflight) > 0 {
		if _, err := uq.reap(true); err != nil {
			break
		}
	}
	uq.done = nil
	uq.retired = nil
	return uq.ring.Close()
}

func (a UringAsync) CmdIO(ctx *blkio.Ctx, dbuf, mbuf []byte) error {
	return a.submit(ctx, cbi.Payload(ctx, cbi.Vec(dbuf)), func() error {
		return cbi.Execute(ctx, dbuf, mbuf, nil, nil, false)
	})
}

func (a UringAsync) CmdIOV(ctx *blkio.Ctx, dvec, mvec [][]byte) error {
	return a.submit(ctx, cbi.Payload(ctx, dvec), func() error {
		return cbi.Execute(ctx, nil, nil, dvec, mvec, true)
	})
}

func (UringAsync) submit(ctx *blkio.Ctx, vec [][]byte, fallback func() error) error {
	uq := uringState(ctx.Async.Queue)
	f, err := cbi.FileOf(ctx.Dev)
	if err != nil {
		return err
	}

	var reqs []uring.Request
	switch ctx.Cmd.Opcode {
	case blkio.OpcRead, blkio.OpcWrite:
		op := uring.OpRead
		if ctx.Cmd.Opcode == blkio.OpcWrite {
			op = uring.OpWrite
		}
		off := uint64(cbi.Offset(ctx))
		for _, v := range vec {
			reqs = append(reqs, uring.Request{Op: op, FD: f.FD(), Buf: v, Offset: off})
			off += uint64(len(v))
		}
	case blkio.OpcFlush:
		reqs = append(reqs, uring.Request{Op: uring.OpFsync, FD: f.FD()})
	}

	if len(reqs) == 0 || len(reqs) > uq.entries || uq.segments+len(reqs) > 2*uq.entries {
		if err := fallback(); err != nil {
			ctx.SetCplError(err)
		}
		uq.done = append(uq.done, ctx)
		return nil
	}

	uq.seq++
	id := uq.seq
	r := &uringRequest{ctx: ctx, bufs: vec, lens: make([]int, len(reqs))}
	for i := range reqs {
		reqs[i].UserData = id<<segShift | uint64(i)
		if err := uq.ring.Prepare(reqs[i]); err != nil {
			if i == 0 {
				return blkio.WrapError("uring.submit", err)
			}
			// entries already prepared reach the kernel with the next submit
			r.err = blkio.WrapError("uring.submit", err)
			break
		}
		r.lens[i] = len(reqs[i].Buf)
		r.remain++
	}
	uq.inflight[id] = r
	uq.segments += r.remain

	if _, err := uq.ring.Submit(); err != nil {
		// the caller owns ctx again; a later submit may still flush the
		// prepared entries, so keep their buffers referenced
		delete(uq.inflight, id)
		uq.segments -= r.remain
		uq.retired[id] = r
		ctx.Dev.Logger().Warn("io_uring submit failed", "error", err)
		return blkio.WrapError("uring.submit", err)
	}
	return nil
}

// reap moves finished commands to the done list and returns how many
func (uq *uringQueue) reap(wait bool) (int, error) {
	n, err := uq.ring.Reap(uq.results, wait)
	if err != nil {
		return 0, blkio.WrapError("uring.reap", err)
	}
	finished := 0
	for _, res := range uq.results[:n] {
		id, seg := res.UserData>>segShift, int(res.UserData&(1<<segShift-1))
		if r, ok := uq.retired[id]; ok {
			if r.remain--; r.remain == 0 {
				delete(uq.retired, id)
			}
			continue
		}
		r, ok := uq.inflight[id]
		if !ok {
			return finished, blkio.NewErrorf("uring.reap", blkio.ErrCodeInternal, "completion for unknown request %d", id)
		}
		uq.segments--
		r.remain--
		switch {
		case res.Res < 0:
			if r.err == nil {
				r.err = blkio.WrapError("uring.io", syscall.Errno(-res.Res))
			}
		case int(res.Res) < r.lens[seg]:
			if r.err == nil {
				r.err = blkio.NewErrorf("uring.io", blkio.ErrCodeIOError, "short transfer: %d of %d bytes", res.Res, r.lens[seg])
			}
		}
		if r.remain > 0 {
			continue
		}
		delete(uq.inflight, id)
		if r.err != nil {
			r.ctx.SetCplError(r.err)
		}
		uq.done = append(uq.done, r.ctx)
		finished++
	}
	return finished, nil
}

// deliver completes up to max finished commands. Resubmissions from
// callbacks are left for the next call.
func (uq *uringQueue) deliver(q *blkio.Queue, max uint32) (int, error) {
	n := len(uq.done)
	if max != 0 && int(max) < n {
		n = int(max)
	}
	batch := make([]*blkio.Ctx, n)
	copy(batch, uq.done)
	uq.done = append(uq.done[:0], uq.done[n:]...)

	for i, ctx := range batch {
		if err := q.Complete(ctx); err != nil {
			return i, err
		}
	}
	return n, nil
}

func (UringAsync) Poke(q *blkio.Queue, max uint32) (int, error) {
	uq := uringState(q)
	if len(uq.inflight) > 0 {
		if _, err := uq.reap(false); err != nil {
			return 0, err
		}
	}
	return uq.deliver(q, max)
}

func (UringAsync) Wait(q *blkio.Queue) (int, error) {
	uq := uringState(q)
	for len(uq.done) == 0 && len(uq.inflight) > 0 {
		if _, err := uq.reap(true); err != nil {
			return 0, err
		}
	}
	return uq.deliver(q, 0)
}

var (
	supportOnce sync.Once
	supportOK   bool
)

// uringSupported creates a throwaway ring once to learn whether the kernel
// allows io_uring
func uringSupported(*blkio.Device) bool {
	supportOnce.Do(func() {
		ring, err := uring.NewRing(uring.Config{Entries: 2})
		if err != nil {
			return
		}
		ring.Close()
		supportOK = true
	})
	return supportOK
}

// UringAsyncMixin is the io_uring async mixin
func UringAsyncMixin() blkio.Mixin {
	return blkio.AsyncMixin("io_uring", "io_uring submission and completion rings", UringAsync{}, uringSupported)
}
