package blkio

import (
	"sync"
	"unsafe"

	"github.com/ehrlich-b/go-blkio/internal/nvme"
)

// MockBackend is an in-memory backend for tests. Every sub-interface is
// implemented and every call is counted, so tests can assert which
// backend paths a command reached.
type MockBackend struct {
	mu    sync.Mutex
	data  []byte
	size  int64
	calls map[string]int

	// MaxDepth makes queue init reject deeper queues when nonzero
	MaxDepth uint32

	// OpenErr, SubmitErr and ReallocErr inject failures
	OpenErr    error
	SubmitErr  error
	ReallocErr error
}

// MockBlockSize is the logical block size the mock reports
const MockBlockSize = 512

// NewMockBackend creates a mock with size bytes of storage
func NewMockBackend(size int64) *MockBackend {
	return &MockBackend{
		data:  make([]byte, size),
		size:  size,
		calls: make(map[string]int),
	}
}

// Def returns a definition with one "mock" mixin of every kind
func (m *MockBackend) Def() Def {
	return Def{
		Attr: Attr{Name: "mock", Descr: "in-memory test backend", Enabled: true, Schemes: []string{"mock"}},
		Mixins: []Mixin{
			MemMixin("mock", "heap buffers", mockMem{m}, nil),
			AdminMixin("mock", "identify from size", mockAdmin{m}, nil),
			SyncMixin("mock", "copy to and from memory", mockSync{m}, nil),
			AsyncMixin("mock", "fifo executed on poke", mockAsync{m}, nil),
			DevMixin("mock", "single device", mockDev{m}, nil),
		},
	}
}

func (m *MockBackend) count(call string) {
	m.mu.Lock()
	m.calls[call]++
	m.mu.Unlock()
}

// CallCounts returns a copy of the per-call counters
func (m *MockBackend) CallCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.calls))
	for k, v := range m.calls {
		out[k] = v
	}
	return out
}

// Calls returns the count for one call
func (m *MockBackend) Calls(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[call]
}

// Reset clears the call counters
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
}

// Data returns a copy of the stored bytes in [off, off+n)
func (m *MockBackend) Data(off, n int64) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data[off:off+n]...)
}

// execute runs one I/O command against memory, gathering from vec
func (m *MockBackend) execute(ctx *Ctx, vec [][]byte) error {
	if sgl := ctx.DataSGL(); sgl != nil {
		vec = sgl.Fragments()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	off := int64(ctx.Cmd.SLBA()) * MockBlockSize
	switch ctx.Cmd.Opcode {
	case OpcRead, OpcWrite:
		var n int64
		for _, v := range vec {
			n += int64(len(v))
		}
		if off+n > m.size {
			ctx.Cpl.SetStatus(nvme.SCTGeneric, nvme.SCLBAOutOfRange)
			return NewError("mock.io", ErrCodeIOError, "lba out of range")
		}
		for _, v := range vec {
			if ctx.Cmd.Opcode == OpcRead {
				copy(v, m.data[off:])
			} else {
				copy(m.data[off:], v)
			}
			off += int64(len(v))
		}
	case OpcWriteZeroes:
		n := (int64(ctx.Cmd.NLB()) + 1) * MockBlockSize
		if off+n > m.size {
			ctx.Cpl.SetStatus(nvme.SCTGeneric, nvme.SCLBAOutOfRange)
			return NewError("mock.io", ErrCodeIOError, "lba out of range")
		}
		clear(m.data[off : off+n])
	case OpcFlush:
	default:
		ctx.Cpl.SetStatus(nvme.SCTGeneric, nvme.SCInvalidOpcode)
		return NewError("mock.io", ErrCodeIOError, "invalid opcode")
	}
	return nil
}

type mockMem struct{ m *MockBackend }

func (x mockMem) Alloc(_ *Device, n int) ([]byte, error) {
	x.m.count("mem.alloc")
	return make([]byte, n), nil
}

func (x mockMem) Realloc(_ *Device, buf []byte, n int) ([]byte, error) {
	x.m.count("mem.realloc")
	if x.m.ReallocErr != nil {
		return nil, x.m.ReallocErr
	}
	grown := make([]byte, n)
	copy(grown, buf)
	return grown, nil
}

func (x mockMem) Free(*Device, []byte) error {
	x.m.count("mem.free")
	return nil
}

func (x mockMem) VtoPhys(_ *Device, buf []byte) (uint64, error) {
	if len(buf) == 0 {
		return 0, NewError("mock.vtophys", ErrCodeInvalidArgument, "empty buffer")
	}
	return uint64(uintptr(unsafe.Pointer(&buf[0]))), nil
}

type mockSync struct{ m *MockBackend }

func (x mockSync) CmdIO(ctx *Ctx, dbuf, _ []byte) error {
	x.m.count("sync.io")
	var vec [][]byte
	if dbuf != nil {
		vec = [][]byte{dbuf}
	}
	return x.m.execute(ctx, vec)
}

func (x mockSync) CmdIOV(ctx *Ctx, dvec, _ [][]byte) error {
	x.m.count("sync.iov")
	return x.m.execute(ctx, dvec)
}

// mockQueue holds submissions until the next poke
type mockQueue struct {
	pending []mockEntry
}

type mockEntry struct {
	ctx *Ctx
	vec [][]byte
}

type mockAsync struct{ m *MockBackend }

func (x mockAsync) Init(q *Queue, _ int) error {
	x.m.count("async.init")
	if x.m.MaxDepth != 0 && q.Capacity() > x.m.MaxDepth {
		return NewError("mock.init", ErrCodeInvalidArgument, "depth above mock maximum")
	}
	q.SetBackendState(&mockQueue{})
	return nil
}

func (x mockAsync) Term(*Queue) error {
	x.m.count("async.term")
	return nil
}

func (x mockAsync) submit(ctx *Ctx, vec [][]byte) error {
	if x.m.SubmitErr != nil {
		return x.m.SubmitErr
	}
	mq := ctx.Async.Queue.BackendState().(*mockQueue)
	mq.pending = append(mq.pending, mockEntry{ctx: ctx, vec: vec})
	return nil
}

func (x mockAsync) CmdIO(ctx *Ctx, dbuf, _ []byte) error {
	x.m.count("async.io")
	var vec [][]byte
	if dbuf != nil {
		vec = [][]byte{dbuf}
	}
	return x.submit(ctx, vec)
}

func (x mockAsync) CmdIOV(ctx *Ctx, dvec, _ [][]byte) error {
	x.m.count("async.iov")
	return x.submit(ctx, dvec)
}

func (x mockAsync) Poke(q *Queue, max uint32) (int, error) {
	x.m.count("async.poke")
	return x.reap(q, max)
}

func (x mockAsync) Wait(q *Queue) (int, error) {
	x.m.count("async.wait")
	n, err := x.reap(q, 0)
	if err == nil && n == 0 && q.Outstanding() > 0 {
		return 0, NewError("mock.wait", ErrCodeInternal, "outstanding commands but nothing pending")
	}
	return n, err
}

// reap executes and completes pending entries in submission order.
// Entries submitted from callbacks wait for the next reap.
func (x mockAsync) reap(q *Queue, max uint32) (int, error) {
	mq := q.BackendState().(*mockQueue)
	n := len(mq.pending)
	if max != 0 && int(max) < n {
		n = int(max)
	}
	batch := append([]mockEntry(nil), mq.pending[:n]...)
	mq.pending = append(mq.pending[:0], mq.pending[n:]...)

	for i, e := range batch {
		if err := x.m.execute(e.ctx, e.vec); err != nil {
			e.ctx.SetCplError(err)
		}
		if err := q.Complete(e.ctx); err != nil {
			return i, err
		}
	}
	return n, nil
}

type mockAdmin struct{ m *MockBackend }

func (x mockAdmin) CmdAdmin(ctx *Ctx, dbuf, _ []byte) error {
	x.m.count("admin")
	switch ctx.Cmd.Opcode {
	case OpcIdentify:
		switch ctx.Cmd.CNS() {
		case nvme.CNSCtrlr:
			return nvme.PutCtrlr(dbuf, &IdfyCtrlr{VID: 0x1b36, MN: "mock", SN: "0", FR: "1.0", NN: 1})
		case nvme.CNSNs:
			ns := IdfyNs{NSZE: uint64(x.m.size / MockBlockSize), NCAP: uint64(x.m.size / MockBlockSize)}
			ns.LBAF[0].DS = 9
			return nvme.PutNs(dbuf, &ns)
		}
		ctx.Cpl.SetStatus(nvme.SCTGeneric, nvme.SCInvalidField)
		return NewError("mock.admin", ErrCodeIOError, "unsupported cns")
	case OpcGetFeat:
		ctx.Cpl.CDW0 = 0
		return nil
	}
	ctx.Cpl.SetStatus(nvme.SCTGeneric, nvme.SCInvalidOpcode)
	return NewError("mock.admin", ErrCodeIOError, "invalid opcode")
}

func (x mockAdmin) CmdPseudo(*Ctx, []byte, []byte) error {
	x.m.count("pseudo")
	return nil
}

type mockDev struct{ m *MockBackend }

func (x mockDev) Enumerate(_ string, _ *Opts, fn EnumerateFunc) error {
	x.m.count("dev.enumerate")
	return fn(Ident{URI: "mock://0", DType: DevTypeRamdisk, NSID: 1, CSI: nvme.CSINVM})
}

func (x mockDev) Open(dev *Device) error {
	x.m.count("dev.open")
	if x.m.OpenErr != nil {
		return x.m.OpenErr
	}
	return dev.SetType(DevTypeRamdisk, nvme.CSINVM, dev.NSID())
}

func (x mockDev) Close(*Device) {
	x.m.count("dev.close")
}
