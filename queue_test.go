package blkio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueInitRejectsBadDepth(t *testing.T) {
	dev, m := openMock(t, nil)

	for _, depth := range []uint32{0, 3, 6, 100, MaxQueueDepth, 2 * MaxQueueDepth} {
		q, err := NewQueue(dev, depth, 0)
		assert.Nil(t, q)
		assert.True(t, errors.Is(err, ErrInvalidArgument), "depth %d", depth)
	}
	assert.Zero(t, m.Calls("async.init"), "rejected before reaching the mixin")
}

func TestQueueInit(t *testing.T) {
	dev, _ := openMock(t, nil)

	for _, depth := range []uint32{1, 2, 8, 64, MaxQueueDepth / 2} {
		q, err := NewQueue(dev, depth, 0)
		require.NoError(t, err)
		assert.Equal(t, depth, q.Capacity())
		assert.Zero(t, q.Outstanding())
		assert.Equal(t, QueueReady, q.State())
		assert.Same(t, dev, q.Device())
		require.NoError(t, q.Term())
		assert.Equal(t, QueueTerminated, q.State())
	}
}

func TestQueueInitMixinRejects(t *testing.T) {
	dev, m := openMock(t, nil)
	m.MaxDepth = 4

	_, err := NewQueue(dev, 8, 0)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.Equal(t, 1, m.Calls("async.init"))

	q, err := NewQueue(dev, 4, 0)
	require.NoError(t, err)
	require.NoError(t, q.Term())
}

func TestQueueInitWithoutAsync(t *testing.T) {
	dev, _ := openMock(t, &Opts{Async: "missing"})
	_, err := NewQueue(dev, 8, 0)
	assert.True(t, errors.Is(err, ErrNotSupported))
}

func TestCtxPoolLIFO(t *testing.T) {
	dev, _ := openMock(t, nil)
	q, err := NewQueue(dev, 4, 0)
	require.NoError(t, err)
	defer q.Term()

	ctxs := make([]*Ctx, 0, 4)
	for i := 0; i < 4; i++ {
		c, err := q.GetCtx()
		require.NoError(t, err)
		ctxs = append(ctxs, c)
	}
	_, err = q.GetCtx()
	assert.True(t, errors.Is(err, ErrExhausted))

	require.NoError(t, q.PutCtx(ctxs[1]))
	require.NoError(t, q.PutCtx(ctxs[3]))
	c, err := q.GetCtx()
	require.NoError(t, err)
	assert.Same(t, ctxs[3], c, "most recently released comes back first")
	c, err = q.GetCtx()
	require.NoError(t, err)
	assert.Same(t, ctxs[1], c)
}

func TestCtxPoolReleaseValidation(t *testing.T) {
	dev, _ := openMock(t, nil)
	q, err := NewQueue(dev, 2, 0)
	require.NoError(t, err)
	defer q.Term()
	other, err := NewQueue(dev, 2, 0)
	require.NoError(t, err)
	defer other.Term()

	c, err := q.GetCtx()
	require.NoError(t, err)
	require.NoError(t, q.PutCtx(c))
	assert.True(t, errors.Is(q.PutCtx(c), ErrInvalidArgument), "double release")

	oc, err := other.GetCtx()
	require.NoError(t, err)
	assert.True(t, errors.Is(q.PutCtx(oc), ErrInvalidArgument), "foreign context")
	assert.True(t, errors.Is(q.PutCtx(dev.NewCtx()), ErrInvalidArgument), "standalone context")
}

func TestQueueStampsCallback(t *testing.T) {
	dev, _ := openMock(t, nil)
	q, err := NewQueue(dev, 4, 0)
	require.NoError(t, err)
	defer q.Term()

	var got []any
	q.SetCallback(func(_ *Ctx, arg any) { got = append(got, arg) }, "queue")

	c1, _ := q.GetCtx()
	c2, _ := q.GetCtx()
	c2.SetCallback(func(_ *Ctx, arg any) { got = append(got, arg) }, "override")
	assert.Same(t, q, c1.Async.Queue)
	assert.Equal(t, CmdAsync, c1.Opts)

	require.NoError(t, Write(c1, 1, 0, 0, make([]byte, MockBlockSize), nil))
	require.NoError(t, Write(c2, 1, 1, 0, make([]byte, MockBlockSize), nil))
	n, err := q.Poke(0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []any{"queue", "override"}, got)

	// a released context gets the queue callback back on its next acquire
	c, _ := q.GetCtx()
	assert.Equal(t, "queue", c.Async.CbArg)
}

func TestQueueBusyDoesNotMutate(t *testing.T) {
	dev, m := openMock(t, nil)
	q, err := NewQueue(dev, 2, 0)
	require.NoError(t, err)
	defer q.Term()

	for i := 0; i < 2; i++ {
		c, err := q.GetCtx()
		require.NoError(t, err)
		require.NoError(t, Write(c, 1, uint64(i), 0, make([]byte, MockBlockSize), nil))
	}
	require.Equal(t, uint32(2), q.Outstanding())

	extra := dev.NewCtx()
	extra.Opts = CmdAsync
	extra.Async.Queue = q
	err = Write(extra, 1, 2, 0, make([]byte, MockBlockSize), nil)
	assert.True(t, errors.Is(err, ErrBusy))
	assert.Equal(t, uint32(2), q.Outstanding())
	assert.Equal(t, 2, m.Calls("async.io"))

	n, err := q.Poke(0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, q.Outstanding())
}

func TestQueueRejectsInflightReuse(t *testing.T) {
	dev, _ := openMock(t, nil)
	q, err := NewQueue(dev, 4, 0)
	require.NoError(t, err)
	defer q.Term()

	c, _ := q.GetCtx()
	require.NoError(t, Write(c, 1, 0, 0, make([]byte, MockBlockSize), nil))
	assert.True(t, c.InFlight())
	assert.True(t, errors.Is(Write(c, 1, 0, 0, make([]byte, MockBlockSize), nil), ErrBusy))
	assert.True(t, errors.Is(q.PutCtx(c), ErrBusy))
	assert.Equal(t, uint32(1), q.Outstanding())
}

func TestQueueSubmitErrorRollsBack(t *testing.T) {
	dev, m := openMock(t, nil)
	q, err := NewQueue(dev, 4, 0)
	require.NoError(t, err)
	defer q.Term()

	m.SubmitErr = NewError("mock.submit", ErrCodeIOError, "injected")
	c, _ := q.GetCtx()
	err = Write(c, 1, 0, 0, make([]byte, MockBlockSize), nil)
	assert.True(t, IsCode(err, ErrCodeIOError))
	assert.Zero(t, q.Outstanding())
	assert.False(t, c.InFlight())
}

func TestQueuePokeMax(t *testing.T) {
	dev, _ := openMock(t, nil)
	q, err := NewQueue(dev, 8, 0)
	require.NoError(t, err)
	defer q.Term()

	for i := 0; i < 5; i++ {
		c, _ := q.GetCtx()
		require.NoError(t, Write(c, 1, uint64(i), 0, make([]byte, MockBlockSize), nil))
	}
	n, err := q.Poke(2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint32(3), q.Outstanding())

	n, err = q.Drain()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Zero(t, q.Outstanding())

	n, err = q.Poke(0)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing outstanding")
}

func TestQueueCallbackResubmits(t *testing.T) {
	dev, _ := openMock(t, nil)
	q, err := NewQueue(dev, 1, 0)
	require.NoError(t, err)
	defer q.Term()

	calls := 0
	q.SetCallback(func(c *Ctx, _ any) {
		calls++
		if calls == 1 {
			c.Cpl = Cpl{}
			require.NoError(t, Write(c, 1, 1, 0, make([]byte, MockBlockSize), nil))
		}
	}, nil)

	c, _ := q.GetCtx()
	require.NoError(t, Write(c, 1, 0, 0, make([]byte, MockBlockSize), nil))

	n, err := q.Poke(0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint32(1), q.Outstanding(), "resubmitted from the callback")
	assert.True(t, c.InFlight())

	n, err = q.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, calls)
	assert.Zero(t, q.Outstanding())

	_, err = q.GetCtx()
	assert.NoError(t, err, "context returned to the pool after the last completion")
}

func TestQueueCallbackReleasesAndReacquires(t *testing.T) {
	dev, _ := openMock(t, nil)
	q, err := NewQueue(dev, 2, 0)
	require.NoError(t, err)
	defer q.Term()

	var held *Ctx
	q.SetCallback(func(c *Ctx, _ any) {
		require.NoError(t, q.PutCtx(c))
		var gerr error
		held, gerr = q.GetCtx()
		require.NoError(t, gerr)
	}, nil)

	c, _ := q.GetCtx()
	require.NoError(t, Write(c, 1, 0, 0, make([]byte, MockBlockSize), nil))
	n, err := q.Poke(0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Same(t, c, held, "LIFO pool hands the released context straight back")

	next, err := q.GetCtx()
	require.NoError(t, err)
	assert.NotSame(t, held, next, "context kept by the callback stays out of the pool")

	_, err = q.GetCtx()
	assert.True(t, IsCode(err, ErrCodeExhausted))

	require.NoError(t, q.PutCtx(held))
	require.NoError(t, q.PutCtx(next))
}

func TestQueueTermFromCallback(t *testing.T) {
	dev, _ := openMock(t, nil)
	q, err := NewQueue(dev, 2, 0)
	require.NoError(t, err)

	q.SetCallback(func(*Ctx, any) { require.NoError(t, q.Term()) }, nil)
	c, _ := q.GetCtx()
	require.NoError(t, Write(c, 1, 0, 0, make([]byte, MockBlockSize), nil))

	_, err = q.Poke(0)
	require.NoError(t, err)
	assert.Equal(t, QueueTerminated, q.State())

	_, err = q.Poke(0)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestQueueCompleteNotInFlight(t *testing.T) {
	dev, _ := openMock(t, nil)
	q, err := NewQueue(dev, 2, 0)
	require.NoError(t, err)
	defer q.Term()

	c, _ := q.GetCtx()
	assert.True(t, errors.Is(q.Complete(c), ErrInternal))
}

func TestQueueCallbackSeesFailure(t *testing.T) {
	dev, _ := openMock(t, nil)
	q, err := NewQueue(dev, 2, 0)
	require.NoError(t, err)
	defer q.Term()

	var status error
	q.SetCallback(func(c *Ctx, _ any) { status = c.CplError() }, nil)
	c, _ := q.GetCtx()
	require.NoError(t, Read(c, 1, mockSize/MockBlockSize, 0, make([]byte, MockBlockSize), nil))
	_, err = q.Poke(0)
	require.NoError(t, err)
	assert.True(t, IsCode(status, ErrCodeIOError))
	assert.Equal(t, uint64(1), dev.MetricsSnapshot().ReadErrors)
}

func TestQueueTermThenUse(t *testing.T) {
	dev, _ := openMock(t, nil)
	q, err := NewQueue(dev, 2, 0)
	require.NoError(t, err)
	c, _ := q.GetCtx()
	require.NoError(t, q.Term())
	require.NoError(t, q.Term())

	assert.True(t, errors.Is(Write(c, 1, 0, 0, make([]byte, MockBlockSize), nil), ErrInvalidArgument))
	_, err = q.Poke(0)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestAsyncEndToEnd(t *testing.T) {
	dev, _ := openMock(t, nil)
	q, err := NewQueue(dev, 8, 0)
	require.NoError(t, err)
	defer q.Term()

	seen := make(map[*Ctx]int)
	q.SetCallback(func(c *Ctx, _ any) {
		seen[c]++
		assert.False(t, c.Cpl.Failed())
	}, nil)

	for i := 0; i < 8; i++ {
		c, err := q.GetCtx()
		require.NoError(t, err)
		require.NoError(t, Write(c, 1, uint64(i), 0, pattern(MockBlockSize, byte(i)), nil))
	}
	assert.Equal(t, uint32(8), q.Outstanding())

	n, err := q.Poke(0)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Zero(t, q.Outstanding())
	assert.Len(t, seen, 8)
	for _, v := range seen {
		assert.Equal(t, 1, v)
	}

	snap := dev.MetricsSnapshot()
	assert.Equal(t, uint64(8), snap.WriteOps)
	assert.Equal(t, uint32(8), snap.MaxQueueDepth)
}
