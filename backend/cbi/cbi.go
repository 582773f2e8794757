// Package cbi holds the mixins several backends share: heap buffer
// management, pread/pwrite synchronous I/O, the software async
// implementations (nil, emu, thrpool) and an emulated admin command set for
// devices that are not NVMe controllers.
package cbi

import (
	"github.com/ehrlich-b/go-blkio"
	"github.com/ehrlich-b/go-blkio/internal/nvme"
)

// Vec wraps a contiguous buffer as a one-element vector
func Vec(buf []byte) [][]byte {
	if buf == nil {
		return nil
	}
	return [][]byte{buf}
}

// Payload returns the data segments of a command. A data SGL attached by
// PassSGL takes precedence over the buffers handed to the mixin.
func Payload(ctx *blkio.Ctx, dvec [][]byte) [][]byte {
	if sgl := ctx.DataSGL(); sgl != nil {
		return sgl.Fragments()
	}
	return dvec
}

// IOBytes is the transfer size of an NVM read or write
func IOBytes(ctx *blkio.Ctx) int64 {
	return (int64(ctx.Cmd.NLB()) + 1) << ctx.Dev.Geo().SSW
}

// Offset is the byte offset of the command's starting LBA
func Offset(ctx *blkio.Ctx) int64 {
	return int64(ctx.Cmd.SLBA()) << ctx.Dev.Geo().SSW
}

// Fail records a failure in the completion and returns err
func Fail(ctx *blkio.Ctx, err error) error {
	ctx.SetCplError(err)
	return err
}

// InvalidOpcode fails ctx with an invalid-opcode completion status
func InvalidOpcode(op string, ctx *blkio.Ctx) error {
	ctx.Cpl.SetStatus(nvme.SCTGeneric, nvme.SCInvalidOpcode)
	return blkio.NewErrorf(op, blkio.ErrCodeNotSupported, "opcode 0x%02x not supported", ctx.Cmd.Opcode)
}

// OutOfRange fails ctx with an LBA-out-of-range completion status
func OutOfRange(op string, ctx *blkio.Ctx) error {
	ctx.Cpl.SetStatus(nvme.SCTGeneric, nvme.SCLBAOutOfRange)
	return blkio.NewErrorf(op, blkio.ErrCodeIOError, "lba range %d+%d exceeds the device",
		ctx.Cmd.SLBA(), int(ctx.Cmd.NLB())+1)
}

// Execute runs a command through the device's sync mixin. Async mixins
// that emulate queues in software use it.
func Execute(ctx *blkio.Ctx, dbuf, mbuf []byte, dvec, mvec [][]byte, vectored bool) error {
	sync := ctx.Dev.Backend().Sync
	if vectored {
		return sync.CmdIOV(ctx, dvec, mvec)
	}
	return sync.CmdIO(ctx, dbuf, mbuf)
}

// entry is a submission held by a software queue until it is executed
type entry struct {
	ctx        *blkio.Ctx
	dbuf, mbuf []byte
	dvec, mvec [][]byte
	vectored   bool
}

func (e *entry) run() {
	if err := Execute(e.ctx, e.dbuf, e.mbuf, e.dvec, e.mvec, e.vectored); err != nil {
		e.ctx.SetCplError(err)
	}
}

// limit caps n by max, where max 0 means no cap
func limit(n int, max uint32) int {
	if max != 0 && int(max) < n {
		return int(max)
	}
	return n
}
