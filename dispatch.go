package blkio

import (
	"time"

	"github.com/ehrlich-b/go-blkio/internal/nvme"
)

// payload is what the caller handed the dispatcher: either contiguous
// buffers or vectors
type payload struct {
	dbuf, mbuf []byte
	dvec, mvec [][]byte
	vectored   bool
}

func (p *payload) nbytes() uint64 {
	if !p.vectored {
		return uint64(len(p.dbuf))
	}
	var n uint64
	for _, v := range p.dvec {
		n += uint64(len(v))
	}
	return n
}

func checkCtx(op string, ctx *Ctx) error {
	if ctx == nil || ctx.Dev == nil {
		return NewError(op, ErrCodeInvalidArgument, "context not bound to a device")
	}
	if ctx.Dev.be == nil || ctx.Dev.isClosed() {
		return NewDeviceError(op, ctx.Dev.ident.URI, ErrCodeInvalidArgument, "device is not open")
	}
	return nil
}

// Pass executes an I/O command with contiguous data and metadata buffers,
// synchronously or asynchronously as selected by ctx.Opts
func Pass(ctx *Ctx, dbuf, mbuf []byte) error {
	if err := checkCtx("cmd.pass", ctx); err != nil {
		return err
	}
	if ctx.Opts&cmdMaskUpload != 0 {
		return NewDeviceError("cmd.pass", ctx.Dev.ident.URI, ErrCodeInvalidArgument, "sgl upload requested without an sgl")
	}
	ctx.dsgl, ctx.msgl = nil, nil
	return dispatch(ctx, payload{dbuf: dbuf, mbuf: mbuf})
}

// PassV is Pass with vectored data and metadata
func PassV(ctx *Ctx, dvec, mvec [][]byte) error {
	if err := checkCtx("cmd.passv", ctx); err != nil {
		return err
	}
	if ctx.Opts&cmdMaskUpload != 0 {
		return NewDeviceError("cmd.passv", ctx.Dev.ident.URI, ErrCodeInvalidArgument, "sgl upload requested without an sgl")
	}
	ctx.dsgl, ctx.msgl = nil, nil
	return dispatch(ctx, payload{dvec: dvec, mvec: mvec, vectored: true})
}

// PassSGL executes an I/O command whose data (and optionally metadata) is
// described by scatter-gather lists. ctx.Opts must request data upload;
// metadata is uploaded when CmdSGLMeta is also set.
func PassSGL(ctx *Ctx, dsgl, msgl *SGL) error {
	if err := checkCtx("cmd.passsgl", ctx); err != nil {
		return err
	}
	if ctx.Opts&CmdSGLData == 0 || dsgl == nil {
		return NewDeviceError("cmd.passsgl", ctx.Dev.ident.URI, ErrCodeInvalidArgument, "data sgl upload not requested")
	}
	if err := checkMode("cmd.passsgl", ctx); err != nil {
		return err
	}
	if err := setupSGL(ctx, dsgl, msgl); err != nil {
		return err
	}
	ctx.dsgl = dsgl
	ctx.msgl = nil
	if ctx.Opts&CmdSGLMeta != 0 {
		ctx.msgl = msgl
	}
	return dispatch(ctx, payload{})
}

// PassAdmin executes an admin command. Admin commands are always
// synchronous; the async mode bit is rejected.
func PassAdmin(ctx *Ctx, dbuf, mbuf []byte) error {
	return passAdmin("cmd.admin", ctx, dbuf, mbuf, false)
}

// PassPseudo executes an out-of-protocol control command through the
// admin mixin
func PassPseudo(ctx *Ctx, dbuf, mbuf []byte) error {
	return passAdmin("cmd.pseudo", ctx, dbuf, mbuf, true)
}

func passAdmin(op string, ctx *Ctx, dbuf, mbuf []byte, pseudo bool) error {
	if err := checkCtx(op, ctx); err != nil {
		return err
	}
	if ctx.Opts&CmdAsync != 0 {
		return NewDeviceError(op, ctx.Dev.ident.URI, ErrCodeInvalidArgument, "admin commands cannot be asynchronous")
	}

	dev := ctx.Dev
	start := time.Now()
	var err error
	if pseudo {
		err = dev.be.Admin.CmdPseudo(ctx, dbuf, mbuf)
	} else {
		err = dev.be.Admin.CmdAdmin(ctx, dbuf, mbuf)
	}
	dev.observeAdmin(time.Since(start), err == nil && !ctx.Cpl.Failed())
	return err
}

func checkMode(op string, ctx *Ctx) error {
	switch ctx.Opts & cmdMaskIOMode {
	case CmdSync, CmdAsync:
		return nil
	}
	return NewDeviceError(op, ctx.Dev.ident.URI, ErrCodeInvalidArgument, "exactly one of sync and async must be set")
}

// dispatch routes one command to the sync or async mixin. Exactly one
// backend call is made; failures are returned verbatim.
func dispatch(ctx *Ctx, p payload) error {
	if err := checkMode("cmd.dispatch", ctx); err != nil {
		return err
	}
	be := ctx.Dev.be

	if ctx.Opts&CmdSync != 0 {
		start := time.Now()
		var err error
		if p.vectored {
			err = be.Sync.CmdIOV(ctx, p.dvec, p.mvec)
		} else {
			err = be.Sync.CmdIO(ctx, p.dbuf, p.mbuf)
		}
		ctx.Dev.observe(ctx, p.nbytes(), time.Since(start), err)
		return err
	}

	q := ctx.Async.Queue
	if err := q.track(ctx, p.nbytes()); err != nil {
		return err
	}
	var err error
	if p.vectored {
		err = be.Async.CmdIOV(ctx, p.dvec, p.mvec)
	} else {
		err = be.Async.CmdIO(ctx, p.dbuf, p.mbuf)
	}
	if err != nil {
		q.untrack(ctx)
		return err
	}
	return nil
}

// setupSGL fills the data and metadata pointers of ctx.Cmd from the lists
func setupSGL(ctx *Ctx, dsgl, msgl *SGL) error {
	dev := ctx.Dev
	if dsgl.ndescr == 0 {
		return NewDeviceError("cmd.sgl", dev.ident.URI, ErrCodeInvalidArgument, "empty data sgl")
	}

	ctx.Cmd.SetPSDT(nvme.PSDTSGLMPTRContig)
	if dsgl.ndescr == 1 {
		ctx.Cmd.DPTR = dsgl.Descriptor(0)
	} else {
		phys, err := dev.be.Mem.VtoPhys(dev, dsgl.descr)
		if err != nil {
			return err
		}
		ctx.Cmd.DPTR = SGLDescriptor{Addr: phys, Len: uint32(dsgl.ndescr * nvme.SGLDescriptorSize)}
		ctx.Cmd.DPTR.SetDescrType(nvme.SGLLastSegment)
	}

	if ctx.Opts&CmdSGLMeta == 0 || msgl == nil {
		return nil
	}
	if msgl.ndescr == 0 {
		return NewDeviceError("cmd.sgl", dev.ident.URI, ErrCodeInvalidArgument, "empty metadata sgl")
	}

	ctx.Cmd.SetPSDT(nvme.PSDTSGLMPTRSGL)
	phys, err := dev.be.Mem.VtoPhys(dev, msgl.descr)
	if err != nil {
		return err
	}
	if msgl.ndescr == 1 {
		ctx.Cmd.MPTR = phys
		return nil
	}

	indirect := SGLDescriptor{Addr: phys, Len: uint32(msgl.ndescr * nvme.SGLDescriptorSize)}
	indirect.SetDescrType(nvme.SGLLastSegment)
	nvme.PutDescriptor(msgl.indirect, &indirect)
	ctx.Cmd.MPTR, err = dev.be.Mem.VtoPhys(dev, msgl.indirect)
	return err
}
