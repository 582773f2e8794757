//go:build linux

package linux

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-blkio"
)

var pageSize = os.Getpagesize()

func pages(n int) int {
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// MmapMem backs buffers with anonymous private mappings. They are page
// aligned, stay out of the Go heap and grow in place with mremap.
type MmapMem struct{}

func (MmapMem) Alloc(_ *blkio.Device, nbytes int) ([]byte, error) {
	if nbytes <= 0 {
		return nil, blkio.NewError("mmap.alloc", blkio.ErrCodeInvalidArgument, "non-positive size")
	}
	buf, err := unix.Mmap(-1, 0, pages(nbytes), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, blkio.WrapError("mmap.alloc", err)
	}
	return buf[:nbytes], nil
}

func (MmapMem) Realloc(_ *blkio.Device, buf []byte, nbytes int) ([]byte, error) {
	if nbytes <= 0 {
		return nil, blkio.NewError("mmap.realloc", blkio.ErrCodeInvalidArgument, "non-positive size")
	}
	if nbytes <= cap(buf) {
		return buf[:nbytes], nil
	}
	grown, err := unix.Mremap(buf[:cap(buf)], pages(nbytes), unix.MREMAP_MAYMOVE)
	if err != nil {
		return nil, blkio.WrapError("mmap.realloc", err)
	}
	return grown[:nbytes], nil
}

func (MmapMem) Free(_ *blkio.Device, buf []byte) error {
	if cap(buf) == 0 {
		return nil
	}
	if err := unix.Munmap(buf[:cap(buf)]); err != nil {
		return blkio.WrapError("mmap.free", err)
	}
	return nil
}

func (MmapMem) VtoPhys(_ *blkio.Device, buf []byte) (uint64, error) {
	if len(buf) == 0 {
		return 0, blkio.NewError("mmap.vtophys", blkio.ErrCodeInvalidArgument, "empty buffer")
	}
	return uint64(uintptr(unsafe.Pointer(&buf[0]))), nil
}

// MmapMemMixin allocates buffers with mmap
func MmapMemMixin() blkio.Mixin {
	return blkio.MemMixin("mmap", "anonymous mappings", MmapMem{}, nil)
}
