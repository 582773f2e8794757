package ramdisk

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreReadWrite(t *testing.T) {
	s := newStore(1024)

	data := []byte("Hello, ramdisk!")
	require.NoError(t, s.writev([][]byte{data}, 100))

	got := make([]byte, len(data))
	require.NoError(t, s.readv([][]byte{got}, 100))
	assert.Equal(t, data, got)
}

func TestStoreVectors(t *testing.T) {
	s := newStore(1024)

	require.NoError(t, s.writev([][]byte{[]byte("abc"), []byte("defg")}, 10))

	a, b := make([]byte, 2), make([]byte, 5)
	require.NoError(t, s.readv([][]byte{a, b}, 10))
	assert.Equal(t, "ab", string(a))
	assert.Equal(t, "cdefg", string(b))
}

func TestStoreBoundaries(t *testing.T) {
	s := newStore(100)

	assert.NoError(t, s.writev([][]byte{make([]byte, 4)}, 96), "write ending at the last byte")
	assert.Error(t, s.writev([][]byte{make([]byte, 4)}, 98))
	assert.Error(t, s.readv([][]byte{make([]byte, 50)}, 80))
	assert.Error(t, s.readv([][]byte{make([]byte, 1)}, -1))
	assert.Error(t, s.zero(90, 20))
}

func TestStoreZero(t *testing.T) {
	s := newStore(100)
	data := []byte("Hello, World!")
	require.NoError(t, s.writev([][]byte{data}, 0))

	require.NoError(t, s.zero(0, 5))

	got := make([]byte, len(data))
	require.NoError(t, s.readv([][]byte{got}, 0))
	assert.Equal(t, make([]byte, 5), got[:5])
	assert.Equal(t, data[5:], got[5:], "data outside the range is unchanged")
}

func TestStoreRelease(t *testing.T) {
	s := newStore(100)
	s.release()
	assert.Error(t, s.readv([][]byte{make([]byte, 1)}, 0))
}

func TestStoreShards(t *testing.T) {
	s := newStore(3*shardSize + 512)
	assert.Len(t, s.shards, 4)

	// a transfer spanning a shard boundary
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, s.writev([][]byte{data}, shardSize-512))
	got := make([]byte, 1024)
	require.NoError(t, s.readv([][]byte{got}, shardSize-512))
	assert.Equal(t, data, got)
}

func TestStoreConcurrentShards(t *testing.T) {
	s := newStore(8 * shardSize)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buf := bytes.Repeat([]byte{byte(i + 1)}, shardSize)
			for j := 0; j < 16; j++ {
				assert.NoError(t, s.writev([][]byte{buf}, int64(i)*shardSize))
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		got := make([]byte, shardSize)
		require.NoError(t, s.readv([][]byte{got}, int64(i)*shardSize))
		assert.Equal(t, bytes.Repeat([]byte{byte(i + 1)}, shardSize), got)
	}
}
