// Package uring wraps an io_uring instance for block reads, writes and
// fsyncs. Requests are prepared in batches, submitted together, and their
// completions reaped by user data.
package uring

import (
	"errors"

	"github.com/ehrlich-b/go-blkio/internal/logging"
)

// Op is a ring operation
type Op uint8

const (
	OpRead Op = iota
	OpWrite
	OpFsync
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpFsync:
		return "fsync"
	}
	return "unknown"
}

// Request describes one submission
type Request struct {
	Op       Op
	FD       int
	Buf      []byte
	Offset   uint64
	UserData uint64
}

// Result is one completion. Res is the byte count or a negative errno.
type Result struct {
	UserData uint64
	Res      int32
}

// Ring is the subset of io_uring the block backends need
type Ring interface {
	// Prepare queues a request for the next Submit
	Prepare(req Request) error

	// Submit hands every prepared request to the kernel
	Submit() (int, error)

	// Reap copies finished completions into out. With wait set it blocks
	// until at least one is available.
	Reap(out []Result, wait bool) (int, error)

	// Close releases the ring
	Close() error
}

// Config contains configuration for creating a ring
type Config struct {
	Entries uint32 // number of submission entries
	SQPoll  bool   // kernel-side submission polling
}

var (
	// ErrRingFull means no submission entry is free until the next Submit
	ErrRingFull = errors.New("uring: submission queue full")

	// ErrUnsupported means io_uring is not available on this platform
	ErrUnsupported = errors.New("uring: not supported")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("uring: ring closed")
)

// NewRing creates a ring with the implementation selected at build time
func NewRing(cfg Config) (Ring, error) {
	log := logging.Default()
	log.Debug("creating io_uring", "entries", cfg.Entries, "sqpoll", cfg.SQPoll)

	ring, err := newRing(cfg)
	if err != nil {
		log.Debug("io_uring unavailable", "error", err)
		return nil, err
	}
	return ring, nil
}
