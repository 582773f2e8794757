//go:build linux

package linux

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ehrlich-b/go-blkio"
	"github.com/ehrlich-b/go-blkio/backend/cbi"
	"github.com/ehrlich-b/go-blkio/backend/posix"
)

// sysBlock is where the kernel lists block devices
var sysBlock = "/sys/block"

// BlockAdmin emulates a controller over a block device. Size and sector
// size are queried on every identify so a resized device is seen without
// reopening; model and serial come from sysfs when available.
type BlockAdmin struct{}

func (BlockAdmin) CmdAdmin(ctx *blkio.Ctx, dbuf, _ []byte) error {
	f, err := cbi.FileOf(ctx.Dev)
	if err != nil {
		return cbi.Fail(ctx, err)
	}
	size, ssz, err := blockSize(f.FD())
	if err != nil {
		return cbi.Fail(ctx, blkio.WrapError("block.admin", err))
	}

	name := filepath.Base(f.Name())
	model := sysAttr(name, "device/model")
	if model == "" {
		model = "linux-block"
	}
	serial := sysAttr(name, "device/serial")
	if serial == "" {
		serial = name
	}
	return cbi.EmulateAdmin("block.admin", ctx, dbuf, cbi.Namespace{
		Model:     model,
		Serial:    serial,
		Size:      size,
		BlockSize: ssz,
	})
}

func (BlockAdmin) CmdPseudo(ctx *blkio.Ctx, _, _ []byte) error {
	return cbi.EmulatePseudo("block.pseudo", ctx)
}

// sysAttr reads one trimmed sysfs attribute of a block device, "" if absent
func sysAttr(name, attr string) string {
	b, err := os.ReadFile(filepath.Join(sysBlock, name, attr))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func isBlockDevice(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode()&os.ModeDevice != 0 && st.Mode()&os.ModeCharDevice == 0
}

// BlockAdminMixin serves block devices only; regular files fall through to
// file_as_ns
func BlockAdminMixin() blkio.Mixin {
	return blkio.AdminMixin("block", "block device ioctls", BlockAdmin{}, func(dev *blkio.Device) bool {
		return isBlockDevice(posix.Path(dev.Ident().URI))
	})
}
