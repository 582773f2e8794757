package blkio

// Mem is the buffer management sub-interface. Buffers returned by Alloc
// stay valid until Free; VtoPhys yields the address a device uses for them.
type Mem interface {
	Alloc(dev *Device, nbytes int) ([]byte, error)
	Realloc(dev *Device, buf []byte, nbytes int) ([]byte, error)
	Free(dev *Device, buf []byte) error
	VtoPhys(dev *Device, buf []byte) (uint64, error)
}

// Sync executes commands to completion on the calling goroutine
type Sync interface {
	CmdIO(ctx *Ctx, dbuf, mbuf []byte) error
	CmdIOV(ctx *Ctx, dvec, mvec [][]byte) error
}

// Async drives a depth-bounded queue of outstanding commands. Completed
// contexts are handed to Queue.Complete from Poke or Wait.
type Async interface {
	Init(q *Queue, opts int) error
	Term(q *Queue) error
	CmdIO(ctx *Ctx, dbuf, mbuf []byte) error
	CmdIOV(ctx *Ctx, dvec, mvec [][]byte) error
	Poke(q *Queue, max uint32) (int, error)
	Wait(q *Queue) (int, error)
}

// Admin executes administrative and pseudo commands, always synchronously
type Admin interface {
	CmdAdmin(ctx *Ctx, dbuf, mbuf []byte) error
	CmdPseudo(ctx *Ctx, dbuf, mbuf []byte) error
}

// EnumerateFunc receives one discovered device identity
type EnumerateFunc func(ident Ident) error

// Dev handles device discovery and the open/close lifecycle
type Dev interface {
	Enumerate(sysURI string, opts *Opts, fn EnumerateFunc) error
	Open(dev *Device) error
	Close(dev *Device)
}
