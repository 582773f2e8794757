package cbi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-blkio"
	"github.com/ehrlich-b/go-blkio/internal/logging"
	"github.com/ehrlich-b/go-blkio/internal/nvme"
)

const (
	testSize  = 1 << 20
	testBlock = 512
)

// tempDev backs a device with a temporary file
type tempDev struct{}

func (tempDev) Enumerate(string, *blkio.Opts, blkio.EnumerateFunc) error {
	return blkio.ErrNotSupported
}

func (tempDev) Open(dev *blkio.Device) error {
	f, err := os.OpenFile(dev.Ident().URI, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return blkio.WrapError("temp.open", err)
	}
	if err := f.Truncate(testSize); err != nil {
		f.Close()
		return blkio.WrapError("temp.open", err)
	}
	dev.SetState(&File{File: f, Size: testSize, BlockSize: testBlock})
	return dev.SetType(blkio.DevTypeFSFile, nvme.CSINVM, dev.NSID())
}

func (tempDev) Close(dev *blkio.Device) {
	if f, err := FileOf(dev); err == nil {
		f.Close()
	}
}

func testDef() blkio.Def {
	mixins := []blkio.Mixin{
		PosixMemMixin(),
		FileAsNsMixin(),
		PsyncMixin(),
	}
	mixins = append(mixins, AsyncMixins()...)
	mixins = append(mixins, blkio.DevMixin("temp", "temporary file", tempDev{}, nil))
	return blkio.Def{
		Attr:   blkio.Attr{Name: "temp", Enabled: true},
		Mixins: mixins,
	}
}

func openTemp(t *testing.T, opts *blkio.Opts) *blkio.Device {
	t.Helper()
	reg, err := blkio.NewRegistry(testDef())
	require.NoError(t, err)
	reg.SetLogger(logging.Nop())

	dev, err := reg.Open(filepath.Join(t.TempDir(), "dev.img"), opts)
	require.NoError(t, err)
	t.Cleanup(dev.Close)
	return dev
}

func pattern(n int, seed byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = seed + byte(i*7)
	}
	return buf
}
