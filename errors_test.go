package blkio

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredError(t *testing.T) {
	err := NewError("queue.init", ErrCodeInvalidArgument, "invalid queue depth")

	assert.Equal(t, "queue.init", err.Op)
	assert.Equal(t, ErrCodeInvalidArgument, err.Code)
	assert.Equal(t, syscall.EINVAL, err.Errno)
	assert.Equal(t, "blkio: invalid queue depth (op=queue.init errno=22)", err.Error())
}

func TestQueueErrorFields(t *testing.T) {
	err := NewQueueError("cmd.submit", "1GB", 8, ErrCodeBusy, "queue full")
	assert.Equal(t, "blkio: queue full (op=cmd.submit uri=1GB qdepth=8 errno=16)", err.Error())
	assert.Equal(t, -int(syscall.EBUSY), Status(err))
}

func TestWrapError(t *testing.T) {
	err := WrapError("dev.open", syscall.ENOENT)
	require.NotNil(t, err)

	assert.Equal(t, ErrCodeNoDevice, err.Code)
	assert.Equal(t, syscall.ENOENT, err.Errno)
	assert.True(t, errors.Is(err, syscall.ENOENT))
	assert.True(t, errors.Is(err, ErrNoDevice))

	assert.Nil(t, WrapError("noop", nil))
}

func TestWrapStructuredError(t *testing.T) {
	inner := NewDeviceError("cmd.io", "/dev/nvme0n1", ErrCodeIOError, "transfer failed")
	outer := WrapError("queue.poke", inner)

	assert.Equal(t, "/dev/nvme0n1", outer.URI)
	assert.Equal(t, ErrCodeIOError, outer.Code)
	assert.Same(t, inner, outer.Unwrap())
}

func TestWrapSentinelAndPlain(t *testing.T) {
	e := WrapError("op", fmt.Errorf("ctx: %w", ErrBusy))
	assert.Equal(t, ErrCodeBusy, e.Code)
	assert.Equal(t, syscall.EBUSY, e.Errno)

	e = WrapError("op", errors.New("something"))
	assert.Equal(t, ErrCodeIOError, e.Code)
	assert.Equal(t, syscall.EIO, e.Errno)
}

func TestErrorIs(t *testing.T) {
	err := NewError("sgl.add", ErrCodeInvalidArgument, "descriptor limit reached")

	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.False(t, errors.Is(err, ErrNotSupported))
	assert.True(t, errors.Is(err, &Error{Code: ErrCodeInvalidArgument}))
	assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", err), ErrInvalidArgument))
}

func TestErrnoMapping(t *testing.T) {
	tests := []struct {
		errno syscall.Errno
		code  ErrorCode
	}{
		{syscall.EINVAL, ErrCodeInvalidArgument},
		{syscall.ENOSYS, ErrCodeNotSupported},
		{syscall.EOPNOTSUPP, ErrCodeNotSupported},
		{syscall.EBUSY, ErrCodeBusy},
		{syscall.EAGAIN, ErrCodeExhausted},
		{syscall.ENOMEM, ErrCodeNoMemory},
		{syscall.EPERM, ErrCodePermission},
		{syscall.EACCES, ErrCodePermission},
		{syscall.ENODEV, ErrCodeNoDevice},
		{syscall.EIO, ErrCodeIOError},
	}
	for _, tt := range tests {
		t.Run(tt.errno.Error(), func(t *testing.T) {
			err := NewErrorWithErrno("test", tt.errno)
			assert.Equal(t, tt.code, err.Code)
			assert.True(t, IsCode(err, tt.code))
			assert.True(t, IsErrno(err, tt.errno))
		})
	}
}

func TestStatus(t *testing.T) {
	assert.Equal(t, 0, Status(nil))
	assert.Equal(t, -int(syscall.ENOSYS), Status(ErrNotSupported))
	assert.Equal(t, -int(syscall.EPERM), Status(syscall.EPERM))
	assert.Equal(t, -int(syscall.EIO), Status(errors.New("opaque")))
	assert.Equal(t, -int(syscall.ENOMEM), Status(NewError("sgl.add", ErrCodeNoMemory, "")))
}
