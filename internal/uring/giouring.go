//go:build linux && !iouringgo

package uring

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
)

// gRing drives a giouring ring directly: SQEs are filled in place and
// CQEs are peeked off the completion ring.
type gRing struct {
	ring     *giouring.Ring
	prepared int
	closed   bool
}

func newRing(cfg Config) (Ring, error) {
	ring, err := giouring.CreateRing(cfg.Entries)
	if err != nil {
		return nil, fmt.Errorf("io_uring setup: %w", err)
	}
	return &gRing{ring: ring}, nil
}

func (r *gRing) Prepare(req Request) error {
	if r.closed {
		return ErrClosed
	}
	sqe := r.ring.GetSQE()
	if sqe == nil {
		return ErrRingFull
	}

	var addr uintptr
	if len(req.Buf) > 0 {
		addr = uintptr(unsafe.Pointer(&req.Buf[0]))
	}
	switch req.Op {
	case OpRead:
		sqe.PrepareRead(req.FD, addr, uint32(len(req.Buf)), req.Offset)
	case OpWrite:
		sqe.PrepareWrite(req.FD, addr, uint32(len(req.Buf)), req.Offset)
	case OpFsync:
		sqe.PrepareFsync(req.FD, 0)
	default:
		return fmt.Errorf("uring: unknown op %d", req.Op)
	}
	sqe.UserData = req.UserData
	r.prepared++
	return nil
}

func (r *gRing) Submit() (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if r.prepared == 0 {
		return 0, nil
	}
	n, err := r.ring.Submit()
	if err != nil {
		return int(n), fmt.Errorf("io_uring submit: %w", err)
	}
	r.prepared = 0
	return int(n), nil
}

func (r *gRing) Reap(out []Result, wait bool) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	n := 0
	for n < len(out) {
		cqe, err := r.ring.PeekCQE()
		if err != nil {
			if !isAgain(err) {
				return n, fmt.Errorf("io_uring peek: %w", err)
			}
			if !wait || n > 0 {
				break
			}
			if cqe, err = r.ring.WaitCQE(); err != nil {
				if errors.Is(err, syscall.EINTR) {
					continue
				}
				return n, fmt.Errorf("io_uring wait: %w", err)
			}
		}
		out[n] = Result{UserData: cqe.UserData, Res: cqe.Res}
		r.ring.CQESeen(cqe)
		n++
	}
	return n, nil
}

func isAgain(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR)
}

func (r *gRing) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.ring.QueueExit()
	return nil
}
