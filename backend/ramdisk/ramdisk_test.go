package ramdisk

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-blkio"
	"github.com/ehrlich-b/go-blkio/internal/logging"
	"github.com/ehrlich-b/go-blkio/internal/nvme"
)

func open(t *testing.T, uri string, opts *blkio.Opts) *blkio.Device {
	t.Helper()
	reg, err := blkio.NewRegistry(Def())
	require.NoError(t, err)
	reg.SetLogger(logging.Nop())

	dev, err := reg.Open(uri, opts)
	require.NoError(t, err)
	t.Cleanup(dev.Close)
	return dev
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		uri  string
		size int64
	}{
		{"1GB", 1 << 30},
		{"2", 2 << 30},
		{"64MB", 64 << 20},
		{"4KB", 4 << 10},
		{"8mb", 8 << 20},
		{"ramdisk://16MB", 16 << 20},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			size, err := ParseSize(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.size, size)
		})
	}

	for _, bad := range []string{"", "GB", "0MB", "-1GB", "1TB", "/dev/sda", "99999999999999GB"} {
		_, err := ParseSize(bad)
		assert.True(t, errors.Is(err, blkio.ErrInvalidArgument), bad)
	}
}

func TestOpenIdentity(t *testing.T) {
	dev := open(t, "8MB", nil)

	id := dev.Ident()
	assert.Equal(t, blkio.DevTypeRamdisk, id.DType)
	assert.Equal(t, uint8(nvme.CSINVM), id.CSI)
	assert.Equal(t, uint32(1), id.NSID)

	geo := dev.Geo()
	assert.Equal(t, uint32(512), geo.NBytes)
	assert.Equal(t, uint64(8<<20/512), geo.NSect)
	assert.Equal(t, uint64(8<<20), geo.TBytes)
	assert.Equal(t, uint64(1<<20), geo.MDTSNBytes)
	assert.Equal(t, "ramdisk", dev.IdfyCtrlr().MN)

	m, ok := dev.Backend().Mixin(blkio.MixinAsync)
	require.True(t, ok)
	assert.Equal(t, "thrpool", m.Name)
}

func TestOpenRejectsOtherURIs(t *testing.T) {
	reg, err := blkio.NewRegistry(Def())
	require.NoError(t, err)
	reg.SetLogger(logging.Nop())

	_, err = reg.Open("/dev/nvme0n1", nil)
	assert.True(t, errors.Is(err, blkio.ErrNoDevice))
}

func TestSyncIO(t *testing.T) {
	dev := open(t, "1MB", nil)

	data := bytes.Repeat([]byte("ramdisk!"), 128)
	require.NoError(t, blkio.Write(dev.NewCtx(), 1, 10, 1, data, nil))

	got := make([]byte, len(data))
	require.NoError(t, blkio.Read(dev.NewCtx(), 1, 10, 1, got, nil))
	assert.Equal(t, data, got)

	require.NoError(t, blkio.WriteZeroes(dev.NewCtx(), 1, 11, 0))
	require.NoError(t, blkio.Read(dev.NewCtx(), 1, 10, 1, got, nil))
	assert.Equal(t, data[:512], got[:512])
	assert.Equal(t, make([]byte, 512), got[512:])

	require.NoError(t, blkio.Flush(dev.NewCtx(), 1))

	snap := dev.MetricsSnapshot()
	assert.Equal(t, uint64(1), snap.WriteOps)
	assert.Equal(t, uint64(2), snap.ReadOps)
	assert.Equal(t, uint64(1), snap.FlushOps)
}

func TestSyncOutOfRange(t *testing.T) {
	dev := open(t, "1MB", nil)

	ctx := dev.NewCtx()
	err := blkio.Write(ctx, 1, 2047, 1, make([]byte, 1024), nil)
	require.Error(t, err)
	assert.Equal(t, uint8(nvme.SCLBAOutOfRange), ctx.Cpl.SC())

	ctx = dev.NewCtx()
	ctx.Cmd.Opcode = blkio.OpcDSM
	require.Error(t, blkio.Pass(ctx, nil, nil))
	assert.Equal(t, uint8(nvme.SCInvalidOpcode), ctx.Cpl.SC())
}

func TestGetFeatureQueues(t *testing.T) {
	dev := open(t, "1MB", nil)

	v, err := blkio.GetFeature(dev.NewCtx(), nvme.FIDNQueues, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(63), v&0xFFFF)
	assert.Equal(t, uint32(63), v>>16)
}

// A depth-8 queue accepts eight writes and one poke delivers all of them
func TestQueueEndToEnd(t *testing.T) {
	dev := open(t, "1MB", &blkio.Opts{Async: "emu"})

	q, err := blkio.NewQueue(dev, 8, 0)
	require.NoError(t, err)
	defer q.Term()
	assert.Zero(t, q.Outstanding())
	assert.Equal(t, uint32(8), q.Capacity())

	calls := make(map[int]int)
	q.SetCallback(func(ctx *blkio.Ctx, _ any) {
		assert.False(t, ctx.Cpl.Failed())
		calls[int(ctx.Cmd.SLBA())]++
	}, nil)

	bufs := make([][]byte, 8)
	for i := range bufs {
		ctx, err := q.GetCtx()
		require.NoError(t, err)
		bufs[i] = bytes.Repeat([]byte{byte(i + 1)}, 512)
		require.NoError(t, blkio.Write(ctx, 1, uint64(i), 0, bufs[i], nil))
	}
	assert.Equal(t, uint32(8), q.Outstanding())

	// the queue is full
	_, err = q.GetCtx()
	assert.True(t, errors.Is(err, blkio.ErrExhausted))

	n, err := q.Poke(0)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Zero(t, q.Outstanding())
	require.Len(t, calls, 8)
	for slba, c := range calls {
		assert.Equal(t, 1, c, "slba %d", slba)
	}

	got := make([]byte, 512)
	for i, want := range bufs {
		require.NoError(t, blkio.Read(dev.NewCtx(), 1, uint64(i), 0, got, nil))
		assert.Equal(t, want, got)
	}
}

func TestQueueThreadPool(t *testing.T) {
	dev := open(t, "4MB", nil)

	q, err := blkio.NewQueue(dev, 32, 0)
	require.NoError(t, err)
	defer q.Term()

	done := 0
	q.SetCallback(func(ctx *blkio.Ctx, _ any) {
		assert.False(t, ctx.Cpl.Failed())
		done++
	}, nil)

	for round := 0; round < 4; round++ {
		for i := 0; i < 32; i++ {
			ctx, err := q.GetCtx()
			require.NoError(t, err)
			buf := bytes.Repeat([]byte{byte(round)}, 4096)
			require.NoError(t, blkio.Write(ctx, 1, uint64(i*8), 7, buf, nil))
		}
		_, err := q.Drain()
		require.NoError(t, err)
	}
	assert.Equal(t, 128, done)

	got := make([]byte, 4096)
	require.NoError(t, blkio.Read(dev.NewCtx(), 1, 8, 7, got, nil))
	assert.Equal(t, bytes.Repeat([]byte{3}, 4096), got)
}

// Asking for a sync variant the backend does not have binds the stub
func TestMissingVariantBindsStub(t *testing.T) {
	dev := open(t, "1MB", &blkio.Opts{Sync: "psync"})

	m, ok := dev.Backend().Mixin(blkio.MixinSync)
	require.True(t, ok)
	assert.Equal(t, blkio.NosysName, m.Name)

	err := blkio.Write(dev.NewCtx(), 1, 0, 0, bytes.Repeat([]byte{0xFF}, 512), nil)
	assert.True(t, errors.Is(err, blkio.ErrNotSupported))

	// admin still works and the data is untouched
	got := make([]byte, 512)
	ctx := dev.NewCtx()
	ctx.Cmd.Opcode = blkio.OpcRead
	assert.True(t, errors.Is(blkio.Pass(ctx, got, nil), blkio.ErrNotSupported))
	s, err := storeOf(dev)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 512), s.data[:512])
}

func TestSGLWrite(t *testing.T) {
	dev := open(t, "1MB", nil)

	pool := blkio.NewSGLPool(dev)
	defer pool.Destroy()
	sgl, err := pool.Alloc(4)
	require.NoError(t, err)

	var want []byte
	for i := 0; i < 4; i++ {
		frag, err := dev.BufAlloc(512)
		require.NoError(t, err)
		copy(frag, bytes.Repeat([]byte{byte(0xA0 + i)}, 512))
		want = append(want, frag...)
		require.NoError(t, sgl.Add(frag))
	}

	ctx := dev.NewCtx()
	ctx.Opts |= blkio.CmdSGLData
	ctx.Cmd.Opcode = blkio.OpcWrite
	ctx.Cmd.NSID = 1
	ctx.Cmd.SetSLBA(100)
	ctx.Cmd.SetNLB(3)
	require.NoError(t, blkio.PassSGL(ctx, sgl, nil))
	assert.Equal(t, uint8(nvme.SGLLastSegment), ctx.Cmd.DPTR.DescrType())
	require.NoError(t, pool.Free(sgl))

	got := make([]byte, len(want))
	require.NoError(t, blkio.Read(dev.NewCtx(), 1, 100, 3, got, nil))
	assert.Equal(t, want, got)
}

func TestCloseReleases(t *testing.T) {
	reg, err := blkio.NewRegistry(Def())
	require.NoError(t, err)
	reg.SetLogger(logging.Nop())

	dev, err := reg.Open("1MB", nil)
	require.NoError(t, err)
	s, err := storeOf(dev)
	require.NoError(t, err)

	dev.Close()
	dev.Close()
	assert.Nil(t, s.data)
	assert.Error(t, blkio.Flush(dev.NewCtx(), 1))
}
