package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet_SizeBuckets(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		expectCap int
	}{
		{"4KB bucket - small", 512, size4k},
		{"4KB bucket - exact", size4k, size4k},
		{"64KB bucket", 5 * 1024, size64k},
		{"256KB bucket", 200 * 1024, size256k},
		{"1MB bucket - exact", size1m, size1m},
		{"oversized", 3 * 1024 * 1024, 3 * 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Get(tt.size)
			assert.Len(t, buf, tt.size)
			assert.Equal(t, tt.expectCap, cap(buf))
			assert.True(t, IsAligned(buf))
			Put(buf)
		})
	}
}

func TestGet_Zeroed(t *testing.T) {
	buf := Get(size4k)
	for i := range buf {
		buf[i] = 0xAB
	}
	Put(buf)

	again := Get(size4k)
	for i, b := range again {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %#x", i, b)
		}
	}
	Put(again)
}

func TestGet_NonPositive(t *testing.T) {
	assert.Nil(t, Get(0))
	assert.Nil(t, Get(-1))
	assert.True(t, IsAligned(nil))
}

func TestPut_NonStandardCap(t *testing.T) {
	// must not panic
	Put(make([]byte, 100*1024))
	Put(nil)
}

func BenchmarkGet_4KB(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Put(Get(size4k))
	}
}

func BenchmarkGet_1MB(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Put(Get(size1m))
	}
}
