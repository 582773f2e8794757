package cbi

import (
	"math/bits"

	"github.com/ehrlich-b/go-blkio"
	"github.com/ehrlich-b/go-blkio/internal/nvme"
)

// NQueues is the submission and completion queue count emulated
// controllers report through get-features
const NQueues = 63

// Namespace describes an emulated single-namespace controller
type Namespace struct {
	Model     string
	Serial    string
	Size      int64  // bytes
	BlockSize uint32 // power of two
	MDTS      uint8  // max transfer as a power of two of 4KiB pages, 0 for none
}

// EmulateAdmin answers identify controller, identify namespace and
// get-features for a device that is not an NVMe controller. Other opcodes
// fail with an invalid-opcode status.
func EmulateAdmin(op string, ctx *blkio.Ctx, dbuf []byte, ns Namespace) error {
	switch ctx.Cmd.Opcode {
	case blkio.OpcIdentify:
		return identify(op, ctx, dbuf, ns)

	case blkio.OpcGetFeat:
		if ctx.Cmd.FID() != nvme.FIDNQueues {
			ctx.Cpl.SetStatus(nvme.SCTGeneric, nvme.SCInvalidField)
			return blkio.NewErrorf(op, blkio.ErrCodeNotSupported, "feature 0x%02x not supported", ctx.Cmd.FID())
		}
		ctx.Cpl.CDW0 = NQueues | NQueues<<16
		return nil
	}
	return InvalidOpcode(op, ctx)
}

func identify(op string, ctx *blkio.Ctx, dbuf []byte, ns Namespace) error {
	if len(dbuf) < nvme.IdentifyRecordSize {
		ctx.Cpl.SetStatus(nvme.SCTGeneric, nvme.SCInvalidField)
		return blkio.NewErrorf(op, blkio.ErrCodeInvalidArgument, "identify buffer of %d bytes", len(dbuf))
	}
	clear(dbuf[:nvme.IdentifyRecordSize])

	switch ctx.Cmd.CNS() {
	case nvme.CNSCtrlr:
		return nvme.PutCtrlr(dbuf, &blkio.IdfyCtrlr{
			MN:   ns.Model,
			SN:   ns.Serial,
			FR:   "1.0",
			MDTS: ns.MDTS,
			VER:  0x00010400,
			NN:   1,
		})

	case nvme.CNSNs:
		if ctx.Cmd.NSID != 1 {
			ctx.Cpl.SetStatus(nvme.SCTGeneric, nvme.SCInvalidField)
			return blkio.NewErrorf(op, blkio.ErrCodeInvalidArgument, "namespace %d does not exist", ctx.Cmd.NSID)
		}
		nsze := uint64(ns.Size) / uint64(ns.BlockSize)
		idfy := blkio.IdfyNs{NSZE: nsze, NCAP: nsze, NUSE: nsze}
		idfy.LBAF[0].DS = uint8(bits.TrailingZeros32(ns.BlockSize))
		return nvme.PutNs(dbuf, &idfy)
	}

	ctx.Cpl.SetStatus(nvme.SCTGeneric, nvme.SCInvalidField)
	return blkio.NewErrorf(op, blkio.ErrCodeNotSupported, "cns 0x%02x not supported", ctx.Cmd.CNS())
}

// EmulatePseudo accepts the reset and rescan pseudo commands as no-ops
func EmulatePseudo(op string, ctx *blkio.Ctx) error {
	switch ctx.Cmd.Opcode {
	case nvme.PseudoControllerReset, nvme.PseudoSubsystemReset, nvme.PseudoNamespaceRescan:
		return nil
	}
	return InvalidOpcode(op, ctx)
}

// FileAsNs presents a file or block device as the single namespace of an
// emulated controller
type FileAsNs struct{}

func (FileAsNs) CmdAdmin(ctx *blkio.Ctx, dbuf, _ []byte) error {
	f, err := FileOf(ctx.Dev)
	if err != nil {
		return Fail(ctx, err)
	}
	return EmulateAdmin("file_as_ns.admin", ctx, dbuf, Namespace{
		Model:     "file-as-namespace",
		Serial:    f.Name(),
		Size:      f.Size,
		BlockSize: f.BlockSize,
	})
}

func (FileAsNs) CmdPseudo(ctx *blkio.Ctx, _, _ []byte) error {
	return EmulatePseudo("file_as_ns.pseudo", ctx)
}

// FileAsNsMixin is the admin mixin for file-descriptor backends
func FileAsNsMixin() blkio.Mixin {
	return blkio.AdminMixin("file_as_ns", "file presented as a single namespace", FileAsNs{}, nil)
}
