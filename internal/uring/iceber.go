//go:build linux && iouringgo

package uring

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/iceber/iouring-go"
)

// iRing adapts iceber/iouring-go, which completes requests on its own
// goroutine and reports them on a channel.
type iRing struct {
	ring     *iouring.IOURing
	prepared []iouring.PrepRequest
	results  chan iouring.Result
	entries  int
	closed   bool
}

func newRing(cfg Config) (Ring, error) {
	var opts []iouring.IOURingOption
	if cfg.SQPoll {
		opts = append(opts, iouring.WithSQPoll())
	}
	ring, err := iouring.New(uint(cfg.Entries), opts...)
	if err != nil {
		return nil, fmt.Errorf("io_uring setup: %w", err)
	}
	return &iRing{
		ring:    ring,
		results: make(chan iouring.Result, cfg.Entries),
		entries: int(cfg.Entries),
	}, nil
}

func (r *iRing) Prepare(req Request) error {
	if r.closed {
		return ErrClosed
	}
	if len(r.prepared) >= r.entries {
		return ErrRingFull
	}

	var prep iouring.PrepRequest
	switch req.Op {
	case OpRead:
		prep = iouring.Pread(req.FD, req.Buf, req.Offset)
	case OpWrite:
		prep = iouring.Pwrite(req.FD, req.Buf, req.Offset)
	case OpFsync:
		prep = iouring.Fsync(req.FD)
	default:
		return fmt.Errorf("uring: unknown op %d", req.Op)
	}
	r.prepared = append(r.prepared, prep.WithInfo(req.UserData))
	return nil
}

func (r *iRing) Submit() (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	n := len(r.prepared)
	if n == 0 {
		return 0, nil
	}
	if _, err := r.ring.SubmitRequests(r.prepared, r.results); err != nil {
		return 0, fmt.Errorf("io_uring submit: %w", err)
	}
	r.prepared = r.prepared[:0]
	return n, nil
}

func (r *iRing) Reap(out []Result, wait bool) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	n := 0
	if wait && len(out) > 0 {
		out[0] = convert(<-r.results)
		n++
	}
	for n < len(out) {
		select {
		case res := <-r.results:
			out[n] = convert(res)
			n++
		default:
			return n, nil
		}
	}
	return n, nil
}

func convert(res iouring.Result) Result {
	ud, _ := res.GetRequestInfo().(uint64)
	v, err := res.ReturnInt()
	if err != nil {
		var errno syscall.Errno
		if !errors.As(err, &errno) {
			errno = syscall.EIO
		}
		return Result{UserData: ud, Res: -int32(errno)}
	}
	return Result{UserData: ud, Res: int32(v)}
}

func (r *iRing) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.ring.Close()
}
