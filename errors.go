package blkio

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Error is a structured blkio error carrying the failing operation, the
// device and queue it concerns, and an errno mirroring the platform value
type Error struct {
	Op    string        // Operation that failed (e.g. "queue.init", "dev.open")
	URI   string        // Device URI ("" if not applicable)
	Queue int           // Queue depth (0 if not applicable)
	Code  ErrorCode     // High-level error category
	Errno syscall.Errno // Platform errno (0 if not applicable)
	Msg   string        // Human-readable message
	Inner error         // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}
	if e.URI != "" {
		parts = append(parts, "uri="+e.URI)
	}
	if e.Queue > 0 {
		parts = append(parts, fmt.Sprintf("qdepth=%d", e.Queue))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", int(e.Errno)))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("blkio: %s (%s)", msg, strings.Join(parts, " "))
	}
	return "blkio: " + msg
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches sentinel BlkError values and other *Error values by code
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case BlkError:
		return e.Code == ErrorCode(t)
	case *Error:
		return e.Code == t.Code
	}
	return false
}

// ErrorCode represents high-level error categories
type ErrorCode string

const (
	ErrCodeInvalidArgument ErrorCode = "invalid argument"
	ErrCodeNotSupported    ErrorCode = "not supported"
	ErrCodeBusy            ErrorCode = "resource busy"
	ErrCodeExhausted       ErrorCode = "resource exhausted"
	ErrCodeNoMemory        ErrorCode = "out of memory"
	ErrCodeIOError         ErrorCode = "I/O error"
	ErrCodeInternal        ErrorCode = "internal inconsistency"
	ErrCodePermission      ErrorCode = "permission denied"
	ErrCodeNoDevice        ErrorCode = "no such device"
)

// BlkError is a sentinel error comparable with errors.Is
type BlkError string

func (e BlkError) Error() string {
	return string(e)
}

const (
	ErrInvalidArgument BlkError = BlkError(ErrCodeInvalidArgument)
	ErrNotSupported    BlkError = BlkError(ErrCodeNotSupported)
	ErrBusy            BlkError = BlkError(ErrCodeBusy)
	ErrExhausted       BlkError = BlkError(ErrCodeExhausted)
	ErrNoMemory        BlkError = BlkError(ErrCodeNoMemory)
	ErrIO              BlkError = BlkError(ErrCodeIOError)
	ErrInternal        BlkError = BlkError(ErrCodeInternal)
	ErrPermission      BlkError = BlkError(ErrCodePermission)
	ErrNoDevice        BlkError = BlkError(ErrCodeNoDevice)
)

var codeErrno = map[ErrorCode]syscall.Errno{
	ErrCodeInvalidArgument: syscall.EINVAL,
	ErrCodeNotSupported:    syscall.ENOSYS,
	ErrCodeBusy:            syscall.EBUSY,
	ErrCodeExhausted:       syscall.EAGAIN,
	ErrCodeNoMemory:        syscall.ENOMEM,
	ErrCodeIOError:         syscall.EIO,
	ErrCodeInternal:        syscall.EIO,
	ErrCodePermission:      syscall.EPERM,
	ErrCodeNoDevice:        syscall.ENXIO,
}

// NewError creates a structured error whose errno follows from its code
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{
		Op:    op,
		Code:  code,
		Errno: codeErrno[code],
		Msg:   msg,
	}
}

// NewErrorf is NewError with a formatted message
func NewErrorf(op string, code ErrorCode, format string, args ...any) *Error {
	return NewError(op, code, fmt.Sprintf(format, args...))
}

// NewErrorWithErrno creates a structured error from an errno
func NewErrorWithErrno(op string, errno syscall.Errno) *Error {
	return &Error{
		Op:    op,
		Code:  mapErrnoToCode(errno),
		Errno: errno,
		Msg:   errno.Error(),
	}
}

// NewDeviceError creates an error attributed to one device
func NewDeviceError(op, uri string, code ErrorCode, msg string) *Error {
	e := NewError(op, code, msg)
	e.URI = uri
	return e
}

// NewQueueError creates an error attributed to one queue
func NewQueueError(op, uri string, depth int, code ErrorCode, msg string) *Error {
	e := NewDeviceError(op, uri, code, msg)
	e.Queue = depth
	return e
}

// WrapError wraps an existing error with blkio context
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	var be *Error
	if errors.As(inner, &be) {
		return &Error{
			Op:    op,
			URI:   be.URI,
			Queue: be.Queue,
			Code:  be.Code,
			Errno: be.Errno,
			Msg:   be.Msg,
			Inner: inner,
		}
	}

	var sentinel BlkError
	if errors.As(inner, &sentinel) {
		code := ErrorCode(sentinel)
		return &Error{Op: op, Code: code, Errno: codeErrno[code], Msg: inner.Error(), Inner: inner}
	}

	var errno syscall.Errno
	if errors.As(inner, &errno) {
		return &Error{
			Op:    op,
			Code:  mapErrnoToCode(errno),
			Errno: errno,
			Msg:   inner.Error(),
			Inner: inner,
		}
	}

	return &Error{
		Op:    op,
		Code:  ErrCodeIOError,
		Errno: syscall.EIO,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// mapErrnoToCode maps syscall errno to blkio error codes
func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.EINVAL, syscall.E2BIG, syscall.ERANGE:
		return ErrCodeInvalidArgument
	case syscall.ENOSYS, syscall.EOPNOTSUPP:
		return ErrCodeNotSupported
	case syscall.EBUSY:
		return ErrCodeBusy
	case syscall.EAGAIN:
		return ErrCodeExhausted
	case syscall.ENOMEM, syscall.ENOSPC:
		return ErrCodeNoMemory
	case syscall.EPERM, syscall.EACCES:
		return ErrCodePermission
	case syscall.ENXIO, syscall.ENOENT, syscall.ENODEV:
		return ErrCodeNoDevice
	default:
		return ErrCodeIOError
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	var sentinel BlkError
	if errors.As(err, &sentinel) {
		return ErrorCode(sentinel) == code
	}
	return false
}

// IsErrno checks if an error carries a specific errno
func IsErrno(err error, errno syscall.Errno) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Errno == errno
	}
	var raw syscall.Errno
	if errors.As(err, &raw) {
		return raw == errno
	}
	return false
}

// Status converts an error into a negative errno, 0 for nil
func Status(err error) int {
	if err == nil {
		return 0
	}
	var be *Error
	if errors.As(err, &be) && be.Errno != 0 {
		return -int(be.Errno)
	}
	var sentinel BlkError
	if errors.As(err, &sentinel) {
		if errno, ok := codeErrno[ErrorCode(sentinel)]; ok {
			return -int(errno)
		}
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return -int(errno)
	}
	return -int(syscall.EIO)
}
