//go:build linux

package linux

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/ehrlich-b/go-blkio"
	"github.com/ehrlich-b/go-blkio/backend/cbi"
	"github.com/ehrlich-b/go-blkio/backend/posix"
	"github.com/ehrlich-b/go-blkio/internal/constants"
	"github.com/ehrlich-b/go-blkio/internal/nvme"
)

// Name is the backend name used in Opts.Backend and configuration
const Name = "linux"

// devDir is where block device nodes live
var devDir = "/dev"

// sysSectorSize is the unit of the sysfs size attribute
const sysSectorSize = 512

// Dev opens block devices and regular files
type Dev struct{}

// Enumerate reports every block device listed in sysfs with a non-zero
// size. Only the local system can be enumerated, so sysURI must be empty.
func (Dev) Enumerate(sysURI string, opts *blkio.Opts, fn blkio.EnumerateFunc) error {
	if sysURI != "" {
		return blkio.NewError("linux.enumerate", blkio.ErrCodeNotSupported, "only the local system can be enumerated")
	}
	entries, err := os.ReadDir(sysBlock)
	if os.IsNotExist(err) {
		return blkio.NewError("linux.enumerate", blkio.ErrCodeNotSupported, "no sysfs block directory")
	}
	if err != nil {
		return blkio.WrapError("linux.enumerate", err)
	}

	nsid := uint32(constants.DefaultNSID)
	if opts != nil && opts.NSID != 0 {
		nsid = opts.NSID
	}
	for _, e := range entries {
		sectors, err := strconv.ParseUint(sysAttr(e.Name(), "size"), 10, 64)
		if err != nil || sectors == 0 {
			continue
		}
		id := blkio.Ident{
			URI:   filepath.Join(devDir, e.Name()),
			DType: blkio.DevTypeBlockDevice,
			NSID:  nsid,
			CSI:   nvme.CSINVM,
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

func (Dev) Open(dev *blkio.Device) error {
	path := posix.Path(dev.Ident().URI)
	st, err := os.Stat(path)
	switch {
	case err == nil && st.Mode()&os.ModeCharDevice != 0:
		return blkio.NewDeviceError("linux.open", path, blkio.ErrCodeNotSupported, "character devices are not supported")
	case err == nil && !st.Mode().IsRegular() && st.Mode()&os.ModeDevice == 0:
		return blkio.NewDeviceError("linux.open", path, blkio.ErrCodeNotSupported, "neither a block device nor a regular file")
	case err != nil && !(os.IsNotExist(err) && dev.Opts().Create):
		return blkio.WrapError("linux.open", err)
	}

	f, err := posix.OpenFile(path, dev.Opts())
	if err != nil {
		return blkio.WrapError("linux.open", err)
	}
	state := &cbi.File{
		File:      f,
		BlockSize: constants.DefaultLogicalBlockSize,
		Direct:    dev.Opts().Direct,
	}
	dtype := blkio.DevTypeFSFile

	if st != nil && st.Mode()&os.ModeDevice != 0 {
		size, ssz, err := blockSize(int(f.Fd()))
		if err != nil {
			f.Close()
			return blkio.WrapError("linux.open", err)
		}
		state.Size, state.BlockSize = size, ssz
		dtype = blkio.DevTypeBlockDevice
	} else {
		fst, err := f.Stat()
		if err != nil {
			f.Close()
			return blkio.WrapError("linux.open", err)
		}
		state.Size = fst.Size()
	}

	dev.SetState(state)
	dev.Logger().Debug("device opened", "path", path, "dtype", dtype.String(), "bytes", state.Size)
	return dev.SetType(dtype, nvme.CSINVM, dev.NSID())
}

func (Dev) Close(dev *blkio.Device) {
	if f, err := cbi.FileOf(dev); err == nil {
		if err := f.Close(); err != nil {
			dev.Logger().Warn("close failed", "error", err)
		}
	}
	dev.SetState(nil)
}

// Def returns the linux backend definition. io_uring is preferred for
// async queues; the software mixins follow it.
func Def() blkio.Def {
	mixins := []blkio.Mixin{
		MmapMemMixin(),
		cbi.PosixMemMixin(),
		BlockAdminMixin(),
		cbi.FileAsNsMixin(),
		cbi.PsyncMixin(),
		UringAsyncMixin(),
	}
	mixins = append(mixins, cbi.AsyncMixins()...)
	mixins = append(mixins, blkio.DevMixin(Name, "block devices and regular files", Dev{}, nil))

	return blkio.Def{
		Attr: blkio.Attr{
			Name:    Name,
			Descr:   "Linux block devices with io_uring",
			Enabled: true,
		},
		Mixins: mixins,
	}
}
