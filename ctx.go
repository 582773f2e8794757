package blkio

import (
	"fmt"
	"time"

	"github.com/ehrlich-b/go-blkio/internal/nvme"
)

// Callback is invoked once per completed asynchronous command
type Callback func(ctx *Ctx, arg any)

// Ctx carries one command through dispatch: the submission record, its
// completion, the owning device and, for async use, the queue binding.
type Ctx struct {
	Cmd  Cmd
	Cpl  Cpl
	Dev  *Device
	Opts CmdOpt

	Async struct {
		Queue *Queue
		Cb    Callback
		CbArg any
	}

	dsgl *SGL
	msgl *SGL

	slot      int // index in the owning queue pool, -1 for standalone contexts
	pooled    bool
	gen       uint32 // bumped on every pool hand-out and release
	inflight  bool
	submitted time.Time
	nbytes    uint64
}

// NewCtx returns a synchronous context bound to d
func (d *Device) NewCtx() *Ctx {
	return &Ctx{Dev: d, Opts: CmdSync, slot: -1}
}

// SetCallback overrides the callback stamped on the context by its queue
func (c *Ctx) SetCallback(cb Callback, arg any) {
	c.Async.Cb = cb
	c.Async.CbArg = arg
}

// Clear zeroes the command and completion records, keeping the bindings
func (c *Ctx) Clear() {
	c.Cmd = Cmd{}
	c.Cpl = Cpl{}
}

// InFlight reports whether the context is submitted and not yet completed
func (c *Ctx) InFlight() bool {
	return c.inflight
}

// DataSGL returns the data SGL attached by PassSGL, if any. Backends that
// execute SGL commands in software gather from its fragments.
func (c *Ctx) DataSGL() *SGL {
	return c.dsgl
}

// MetaSGL returns the metadata SGL attached by PassSGL, if any
func (c *Ctx) MetaSGL() *SGL {
	return c.msgl
}

// SetCplError records a backend failure in the completion status.
// The errno is kept in cdw0 so callers can inspect it.
func (c *Ctx) SetCplError(err error) {
	if err == nil {
		return
	}
	if !c.Cpl.Failed() {
		c.Cpl.SetStatus(nvme.SCTGeneric, nvme.SCInternal)
	}
	c.Cpl.CDW0 = uint32(-Status(err))
}

// CplError returns an I/O error when the completion status is non-success
func (c *Ctx) CplError() error {
	if !c.Cpl.Failed() {
		return nil
	}
	uri := ""
	if c.Dev != nil {
		uri = c.Dev.ident.URI
	}
	return NewDeviceError("cmd.cpl", uri, ErrCodeIOError,
		fmt.Sprintf("command 0x%02x failed: sct=0x%x sc=0x%x", c.Cmd.Opcode, c.Cpl.SCT(), c.Cpl.SC()))
}

func (c *Ctx) String() string {
	return fmt.Sprintf("ctx{opc: 0x%02x, opts: %s, cdw0: 0x%x, sct: 0x%x, sc: 0x%x}",
		c.Cmd.Opcode, c.Opts, c.Cpl.CDW0, c.Cpl.SCT(), c.Cpl.SC())
}
