package cbi

import (
	"unsafe"

	"github.com/ehrlich-b/go-blkio"
	"github.com/ehrlich-b/go-blkio/internal/bufpool"
)

// PosixMem hands out page-aligned heap buffers from the shared pool.
// Addresses are virtual; there is no physical translation in user space.
type PosixMem struct{}

func (PosixMem) Alloc(_ *blkio.Device, nbytes int) ([]byte, error) {
	if nbytes <= 0 {
		return nil, blkio.NewError("posix.alloc", blkio.ErrCodeInvalidArgument, "non-positive size")
	}
	return bufpool.Get(nbytes), nil
}

func (PosixMem) Realloc(dev *blkio.Device, buf []byte, nbytes int) ([]byte, error) {
	if nbytes <= 0 {
		return nil, blkio.NewError("posix.realloc", blkio.ErrCodeInvalidArgument, "non-positive size")
	}
	if nbytes <= cap(buf) {
		return buf[:nbytes], nil
	}
	grown := bufpool.Get(nbytes)
	copy(grown, buf)
	bufpool.Put(buf)
	return grown, nil
}

func (PosixMem) Free(_ *blkio.Device, buf []byte) error {
	if buf != nil {
		bufpool.Put(buf)
	}
	return nil
}

func (PosixMem) VtoPhys(_ *blkio.Device, buf []byte) (uint64, error) {
	if len(buf) == 0 {
		return 0, blkio.NewError("posix.vtophys", blkio.ErrCodeInvalidArgument, "empty buffer")
	}
	return uint64(uintptr(unsafe.Pointer(&buf[0]))), nil
}

// PosixMemMixin is the memory mixin shared by the software backends
func PosixMemMixin() blkio.Mixin {
	return blkio.MemMixin("posix", "aligned heap buffers", PosixMem{}, nil)
}
