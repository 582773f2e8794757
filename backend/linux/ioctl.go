//go:build linux

package linux

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctlPtr issues a request whose argument is a pointer. unix only
// exports typed wrappers for a handful of requests.
func ioctlPtr(fd int, req uint, arg unsafe.Pointer) error {
	_, _, err := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if err != 0 {
		return fmt.Errorf("ioctl request 0x%x: %w", req, err)
	}
	return nil
}

// blockSize returns the byte size and logical sector size of a block device
func blockSize(fd int) (int64, uint32, error) {
	var size uint64
	if err := ioctlPtr(fd, unix.BLKGETSIZE64, unsafe.Pointer(&size)); err != nil {
		return 0, 0, err
	}
	ssz, err := unix.IoctlGetInt(fd, unix.BLKSSZGET)
	if err != nil {
		return 0, 0, fmt.Errorf("ioctl BLKSSZGET: %w", err)
	}
	return int64(size), uint32(ssz), nil
}
