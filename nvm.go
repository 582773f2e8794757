package blkio

import (
	"github.com/ehrlich-b/go-blkio/internal/constants"
	"github.com/ehrlich-b/go-blkio/internal/nvme"
)

// Command helpers. Each prepares ctx.Cmd and passes it in the mode
// already selected on ctx. For synchronous contexts a failed completion
// status is returned as an error.

func prepRW(ctx *Ctx, opc uint8, nsid uint32, slba uint64, nlb uint16) {
	ctx.Cmd.Opcode = opc
	ctx.Cmd.NSID = nsid
	ctx.Cmd.SetSLBA(slba)
	ctx.Cmd.SetNLB(nlb)
}

func syncStatus(ctx *Ctx, err error) error {
	if err != nil || ctx.Opts&CmdSync == 0 {
		return err
	}
	return ctx.CplError()
}

// Read reads nlb+1 blocks starting at slba
func Read(ctx *Ctx, nsid uint32, slba uint64, nlb uint16, dbuf, mbuf []byte) error {
	prepRW(ctx, OpcRead, nsid, slba, nlb)
	return syncStatus(ctx, Pass(ctx, dbuf, mbuf))
}

// Write writes nlb+1 blocks starting at slba
func Write(ctx *Ctx, nsid uint32, slba uint64, nlb uint16, dbuf, mbuf []byte) error {
	prepRW(ctx, OpcWrite, nsid, slba, nlb)
	return syncStatus(ctx, Pass(ctx, dbuf, mbuf))
}

// WriteZeroes zeroes nlb+1 blocks starting at slba
func WriteZeroes(ctx *Ctx, nsid uint32, slba uint64, nlb uint16) error {
	prepRW(ctx, OpcWriteZeroes, nsid, slba, nlb)
	return syncStatus(ctx, Pass(ctx, nil, nil))
}

// Flush commits volatile data of the namespace
func Flush(ctx *Ctx, nsid uint32) error {
	ctx.Cmd.Opcode = OpcFlush
	ctx.Cmd.NSID = nsid
	return syncStatus(ctx, Pass(ctx, nil, nil))
}

// Identify issues an identify admin command for cns into dbuf
func Identify(ctx *Ctx, cns uint8, nsid uint32, dbuf []byte) error {
	ctx.Cmd.Opcode = OpcIdentify
	ctx.Cmd.NSID = nsid
	ctx.Cmd.CDW10 = uint32(cns)
	if err := PassAdmin(ctx, dbuf, nil); err != nil {
		return err
	}
	return ctx.CplError()
}

// GetFeature reads feature fid; the value is returned in cdw0
func GetFeature(ctx *Ctx, fid uint8, nsid uint32) (uint32, error) {
	ctx.Cmd.Opcode = OpcGetFeat
	ctx.Cmd.NSID = nsid
	ctx.Cmd.CDW10 = uint32(fid)
	if err := PassAdmin(ctx, nil, nil); err != nil {
		return 0, err
	}
	if err := ctx.CplError(); err != nil {
		return 0, err
	}
	return ctx.Cpl.CDW0, nil
}

// IdentifyCtrlr fetches and decodes the identify-controller record
func (d *Device) IdentifyCtrlr() (IdfyCtrlr, error) {
	var ctrlr IdfyCtrlr
	buf := make([]byte, constants.IdentifyDataSize)
	if err := Identify(d.NewCtx(), nvme.CNSCtrlr, 0, buf); err != nil {
		return ctrlr, err
	}
	err := nvme.Unmarshal(buf, &ctrlr)
	return ctrlr, err
}

// IdentifyNs fetches and decodes the identify-namespace record of nsid
func (d *Device) IdentifyNs(nsid uint32) (IdfyNs, error) {
	var ns IdfyNs
	buf := make([]byte, constants.IdentifyDataSize)
	if err := Identify(d.NewCtx(), nvme.CNSNs, nsid, buf); err != nil {
		return ns, err
	}
	err := nvme.Unmarshal(buf, &ns)
	return ns, err
}
