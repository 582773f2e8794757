// Package ramdisk implements a device held entirely in memory. The URI is
// the device size: "<n>GB", "<n>MB" or "<n>KB", where a plain number means
// gibibytes. Every open allocates a fresh, zeroed device.
package ramdisk

import (
	"strconv"
	"strings"

	"github.com/ehrlich-b/go-blkio"
	"github.com/ehrlich-b/go-blkio/backend/cbi"
	"github.com/ehrlich-b/go-blkio/internal/constants"
	"github.com/ehrlich-b/go-blkio/internal/nvme"
)

// Name is the backend name used in Opts.Backend and configuration
const Name = "ramdisk"

const (
	scheme = "ramdisk://"

	// MDTS of 8 with 4KiB pages caps transfers at 1MiB
	mdts = 8
)

// ParseSize returns the device size encoded in uri
func ParseSize(uri string) (int64, error) {
	s := strings.ToUpper(strings.TrimPrefix(uri, scheme))
	mult := int64(1 << 30)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}} {
		if strings.HasSuffix(s, unit.suffix) {
			s, mult = strings.TrimSuffix(s, unit.suffix), unit.mult
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, blkio.NewErrorf("ramdisk.uri", blkio.ErrCodeInvalidArgument, "%q is not a ramdisk size", uri)
	}
	size := n * mult
	if size/mult != n || size%constants.DefaultLogicalBlockSize != 0 {
		return 0, blkio.NewErrorf("ramdisk.uri", blkio.ErrCodeInvalidArgument, "size %q is out of range", uri)
	}
	return size, nil
}

func storeOf(dev *blkio.Device) (*store, error) {
	s, ok := dev.State().(*store)
	if !ok || s == nil {
		return nil, blkio.NewDeviceError("ramdisk.state", dev.Ident().URI, blkio.ErrCodeInvalidArgument, "device is not a ramdisk")
	}
	return s, nil
}

// Dev allocates the ramdisk on open and frees it on close
type Dev struct{}

func (Dev) Enumerate(string, *blkio.Opts, blkio.EnumerateFunc) error {
	return blkio.NewError("ramdisk.enumerate", blkio.ErrCodeNotSupported, "ramdisks are created by open")
}

func (Dev) Open(dev *blkio.Device) error {
	size, err := ParseSize(dev.Ident().URI)
	if err != nil {
		return err
	}
	dev.SetState(newStore(size))
	dev.Logger().Debug("ramdisk allocated", "bytes", size)
	return dev.SetType(blkio.DevTypeRamdisk, nvme.CSINVM, 1)
}

func (Dev) Close(dev *blkio.Device) {
	if s, err := storeOf(dev); err == nil {
		s.release()
	}
	dev.SetState(nil)
}

// Sync executes NVM commands against the ramdisk
type Sync struct{}

func (Sync) CmdIO(ctx *blkio.Ctx, dbuf, _ []byte) error {
	return execute(ctx, cbi.Payload(ctx, cbi.Vec(dbuf)))
}

func (Sync) CmdIOV(ctx *blkio.Ctx, dvec, _ [][]byte) error {
	return execute(ctx, cbi.Payload(ctx, dvec))
}

func execute(ctx *blkio.Ctx, vec [][]byte) error {
	s, err := storeOf(ctx.Dev)
	if err != nil {
		return cbi.Fail(ctx, err)
	}

	switch ctx.Cmd.Opcode {
	case blkio.OpcRead:
		err = s.readv(vec, cbi.Offset(ctx))
	case blkio.OpcWrite:
		err = s.writev(vec, cbi.Offset(ctx))
	case blkio.OpcWriteZeroes:
		err = s.zero(cbi.Offset(ctx), cbi.IOBytes(ctx))
	case blkio.OpcFlush:
		return nil
	default:
		return cbi.InvalidOpcode("ramdisk.io", ctx)
	}
	if err != nil {
		return cbi.OutOfRange("ramdisk.io", ctx)
	}
	return nil
}

// Admin emulates a single-namespace controller sized from the URI
type Admin struct{}

func (Admin) CmdAdmin(ctx *blkio.Ctx, dbuf, _ []byte) error {
	s, err := storeOf(ctx.Dev)
	if err != nil {
		return cbi.Fail(ctx, err)
	}
	return cbi.EmulateAdmin("ramdisk.admin", ctx, dbuf, cbi.Namespace{
		Model:     "ramdisk",
		Serial:    ctx.Dev.Ident().URI,
		Size:      s.size,
		BlockSize: constants.DefaultLogicalBlockSize,
		MDTS:      mdts,
	})
}

func (Admin) CmdPseudo(ctx *blkio.Ctx, _, _ []byte) error {
	return cbi.EmulatePseudo("ramdisk.pseudo", ctx)
}

// Def returns the ramdisk backend definition
func Def() blkio.Def {
	mixins := []blkio.Mixin{
		cbi.PosixMemMixin(),
		blkio.AdminMixin(Name, "emulated controller", Admin{}, nil),
		blkio.SyncMixin(Name, "copy to and from memory", Sync{}, nil),
	}
	mixins = append(mixins, cbi.AsyncMixins()...)
	mixins = append(mixins, blkio.DevMixin(Name, "memory-backed device", Dev{}, nil))

	return blkio.Def{
		Attr: blkio.Attr{
			Name:    Name,
			Descr:   "RAM-backed block device",
			Enabled: true,
			Schemes: []string{"ramdisk"},
		},
		Mixins: mixins,
	}
}
