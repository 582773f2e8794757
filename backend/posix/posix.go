// Package posix opens regular files as devices. Each file is presented as
// the single namespace of an emulated controller and accessed with
// positional reads and writes.
package posix

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ncw/directio"

	"github.com/ehrlich-b/go-blkio"
	"github.com/ehrlich-b/go-blkio/backend/cbi"
	"github.com/ehrlich-b/go-blkio/internal/constants"
	"github.com/ehrlich-b/go-blkio/internal/nvme"
)

// Name is the backend name used in Opts.Backend and configuration
const Name = "posix"

const scheme = "file://"

// Path returns the filesystem path named by uri
func Path(uri string) string {
	return strings.TrimPrefix(uri, scheme)
}

// OpenFile opens path with the access flags of opts. Direct opens bypass
// the page cache and need aligned buffers, which the posix memory mixin
// provides.
func OpenFile(path string, opts blkio.Opts) (*os.File, error) {
	mode := opts.CreateMode
	if mode == 0 {
		mode = 0600
	}
	if opts.Direct {
		return directio.OpenFile(path, opts.OpenFlags(), mode)
	}
	return os.OpenFile(path, opts.OpenFlags(), mode)
}

// Dev opens regular files
type Dev struct{}

// Enumerate reports the regular files directly inside the directory sysURI
func (Dev) Enumerate(sysURI string, opts *blkio.Opts, fn blkio.EnumerateFunc) error {
	if sysURI == "" {
		return blkio.NewError("posix.enumerate", blkio.ErrCodeNotSupported, "enumeration needs a directory")
	}
	dir := Path(sysURI)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return blkio.WrapError("posix.enumerate", err)
	}

	nsid := uint32(constants.DefaultNSID)
	if opts != nil && opts.NSID != 0 {
		nsid = opts.NSID
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		id := blkio.Ident{
			URI:   filepath.Join(dir, e.Name()),
			DType: blkio.DevTypeFSFile,
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
	path := Path(dev.Ident().URI)
	st, err := os.Stat(path)
	switch {
	case err == nil && !st.Mode().IsRegular():
		return blkio.NewDeviceError("posix.open", path, blkio.ErrCodeNotSupported, "not a regular file")
	case err != nil && !(os.IsNotExist(err) && dev.Opts().Create):
		return blkio.WrapError("posix.open", err)
	}

	f, err := OpenFile(path, dev.Opts())
	if err != nil {
		return blkio.WrapError("posix.open", err)
	}
	if st, err = f.Stat(); err != nil {
		f.Close()
		return blkio.WrapError("posix.open", err)
	}

	dev.SetState(&cbi.File{
		File:      f,
		Size:      st.Size(),
		BlockSize: constants.DefaultLogicalBlockSize,
		Direct:    dev.Opts().Direct,
	})
	dev.Logger().Debug("file opened", "path", path, "bytes", st.Size(), "direct", dev.Opts().Direct)
	return dev.SetType(blkio.DevTypeFSFile, nvme.CSINVM, dev.NSID())
}

func (Dev) Close(dev *blkio.Device) {
	if f, err := cbi.FileOf(dev); err == nil {
		if err := f.Close(); err != nil {
			dev.Logger().Warn("close failed", "error", err)
		}
	}
	dev.SetState(nil)
}

// Def returns the posix backend definition
func Def() blkio.Def {
	mixins := []blkio.Mixin{
		cbi.PosixMemMixin(),
		cbi.FileAsNsMixin(),
		cbi.PsyncMixin(),
	}
	mixins = append(mixins, cbi.AsyncMixins()...)
	mixins = append(mixins, blkio.DevMixin(Name, "regular files", Dev{}, nil))

	return blkio.Def{
		Attr: blkio.Attr{
			Name:    Name,
			Descr:   "regular files through pread/pwrite",
			Enabled: true,
			Schemes: []string{"file"},
		},
		Mixins: mixins,
	}
}
