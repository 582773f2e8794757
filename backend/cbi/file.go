package cbi

import (
	"os"

	"github.com/ehrlich-b/go-blkio"
)

// File is the device state of backends that operate on a file descriptor.
// Dev mixins store it with Device.SetState during open.
type File struct {
	*os.File
	Size      int64  // bytes addressable through the namespace
	BlockSize uint32 // logical block size reported by identify
	Direct    bool   // opened with O_DIRECT
}

// FD returns the raw descriptor
func (f *File) FD() int {
	return int(f.Fd())
}

// FileOf returns the File state of dev
func FileOf(dev *blkio.Device) (*File, error) {
	f, ok := dev.State().(*File)
	if !ok || f == nil || f.File == nil {
		return nil, blkio.NewDeviceError("cbi.file", dev.Ident().URI, blkio.ErrCodeInvalidArgument, "device has no open file")
	}
	return f, nil
}
