package cbi

import (
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-blkio"
	"github.com/ehrlich-b/go-blkio/internal/bufpool"
)

// zeroChunk bounds the buffer used to emulate write-zeroes
const zeroChunk = 1 << 20

// Psync executes NVM commands with positional read and write system calls
// on the device's file descriptor
type Psync struct{}

func (Psync) CmdIO(ctx *blkio.Ctx, dbuf, _ []byte) error {
	return psyncIO(ctx, Payload(ctx, Vec(dbuf)))
}

func (Psync) CmdIOV(ctx *blkio.Ctx, dvec, _ [][]byte) error {
	return psyncIO(ctx, Payload(ctx, dvec))
}

func psyncIO(ctx *blkio.Ctx, vec [][]byte) error {
	f, err := FileOf(ctx.Dev)
	if err != nil {
		return Fail(ctx, err)
	}
	fd := f.FD()

	switch ctx.Cmd.Opcode {
	case blkio.OpcRead, blkio.OpcWrite:
		off := Offset(ctx)
		write := ctx.Cmd.Opcode == blkio.OpcWrite
		for _, v := range vec {
			if err := pio(fd, v, off, write); err != nil {
				return Fail(ctx, err)
			}
			off += int64(len(v))
		}
		return nil

	case blkio.OpcWriteZeroes:
		return writeZeroes(ctx, fd)

	case blkio.OpcFlush:
		if err := unix.Fsync(fd); err != nil {
			return Fail(ctx, blkio.WrapError("psync.fsync", err))
		}
		return nil
	}
	return InvalidOpcode("psync.io", ctx)
}

// pio transfers all of buf, retrying short transfers
func pio(fd int, buf []byte, off int64, write bool) error {
	for len(buf) > 0 {
		var n int
		var err error
		if write {
			n, err = unix.Pwrite(fd, buf, off)
		} else {
			n, err = unix.Pread(fd, buf, off)
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return blkio.WrapError("psync.io", err)
		}
		if n == 0 {
			return blkio.NewErrorf("psync.io", blkio.ErrCodeIOError, "short transfer at offset %d", off)
		}
		buf = buf[n:]
		off += int64(n)
	}
	return nil
}

func writeZeroes(ctx *blkio.Ctx, fd int) error {
	off, remain := Offset(ctx), IOBytes(ctx)
	zeroes := bufpool.Get(int(min(remain, zeroChunk)))
	defer bufpool.Put(zeroes)

	for remain > 0 {
		n := min(remain, int64(len(zeroes)))
		if err := pio(fd, zeroes[:n], off, true); err != nil {
			return Fail(ctx, err)
		}
		off += n
		remain -= n
	}
	return nil
}

// PsyncMixin is the synchronous mixin of file-descriptor backends
func PsyncMixin() blkio.Mixin {
	return blkio.SyncMixin("psync", "pread/pwrite on the device file", Psync{}, nil)
}
