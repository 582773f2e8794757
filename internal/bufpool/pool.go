// Package bufpool provides page-aligned byte slices recycled through
// size-bucketed sync.Pools.
//
// Buckets are powers of two from 4KB to 1MB. Larger requests are served
// with a fresh aligned allocation and are not pooled. Uses the *[]byte
// pattern to avoid sync.Pool interface allocation overhead.
package bufpool

import (
	"sync"
	"unsafe"

	"github.com/ncw/directio"
)

// Bucket sizes
const (
	size4k   = 4 * 1024
	size64k  = 64 * 1024
	size256k = 256 * 1024
	size1m   = 1024 * 1024
)

// Align is the alignment every buffer handed out by Get satisfies
const Align = directio.AlignSize

func aligned(n int) []byte {
	b := directio.AlignedBlock(n)
	return b[:n:n]
}

func newBucket(n int) *sync.Pool {
	return &sync.Pool{New: func() any { b := aligned(n); return &b }}
}

var buckets = [...]struct {
	size int
	pool *sync.Pool
}{
	{size4k, newBucket(size4k)},
	{size64k, newBucket(size64k)},
	{size256k, newBucket(size256k)},
	{size1m, newBucket(size1m)},
}

// Get returns an aligned, zeroed buffer of exactly n bytes.
// Buffers up to 1MB come from a pool; callers should Put them back.
func Get(n int) []byte {
	if n <= 0 {
		return nil
	}
	for _, b := range buckets {
		if n <= b.size {
			buf := (*b.pool.Get().(*[]byte))[:n]
			clear(buf)
			return buf
		}
	}
	return aligned(n)
}

// Put returns a buffer obtained from Get. Buffers whose capacity does not
// match a bucket are left to the garbage collector.
func Put(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	for _, b := range buckets {
		if c == b.size {
			b.pool.Put(&buf)
			return
		}
	}
}

// IsAligned reports whether buf starts on an Align boundary
func IsAligned(buf []byte) bool {
	if len(buf) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(&buf[0]))&(Align-1) == 0
}
