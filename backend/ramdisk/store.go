package ramdisk

import (
	"fmt"
	"sync"
)

// shardSize is the span of one data lock. Commands on disjoint shards run
// in parallel under the thread-pool queue.
const shardSize = 64 * 1024

// store is the RAM backing a ramdisk device. life guards data and size
// against release; shards serialize overlapping transfers.
type store struct {
	life   sync.RWMutex
	data   []byte
	size   int64
	shards []sync.RWMutex
}

func newStore(size int64) *store {
	return &store{
		data:   make([]byte, size),
		size:   size,
		shards: make([]sync.RWMutex, (size+shardSize-1)/shardSize),
	}
}

func (s *store) check(off, n int64) error {
	if off < 0 || n < 0 || off+n > s.size {
		return fmt.Errorf("range [%d, %d) beyond end of device (%d bytes)", off, off+n, s.size)
	}
	return nil
}

// lock takes the shard locks covering [off, off+n) and returns the matching
// unlock
func (s *store) lock(off, n int64, write bool) func() {
	if n == 0 {
		return func() {}
	}
	first, last := int(off/shardSize), int((off+n-1)/shardSize)
	for i := first; i <= last; i++ {
		if write {
			s.shards[i].Lock()
		} else {
			s.shards[i].RLock()
		}
	}
	return func() {
		for i := first; i <= last; i++ {
			if write {
				s.shards[i].Unlock()
			} else {
				s.shards[i].RUnlock()
			}
		}
	}
}

// readv fills vec from off
func (s *store) readv(vec [][]byte, off int64) error {
	s.life.RLock()
	defer s.life.RUnlock()

	n := vecLen(vec)
	if err := s.check(off, n); err != nil {
		return err
	}
	defer s.lock(off, n, false)()
	for _, v := range vec {
		off += int64(copy(v, s.data[off:]))
	}
	return nil
}

// writev stores vec at off
func (s *store) writev(vec [][]byte, off int64) error {
	s.life.RLock()
	defer s.life.RUnlock()

	n := vecLen(vec)
	if err := s.check(off, n); err != nil {
		return err
	}
	defer s.lock(off, n, true)()
	for _, v := range vec {
		off += int64(copy(s.data[off:], v))
	}
	return nil
}

// zero clears [off, off+n)
func (s *store) zero(off, n int64) error {
	s.life.RLock()
	defer s.life.RUnlock()

	if err := s.check(off, n); err != nil {
		return err
	}
	defer s.lock(off, n, true)()
	clear(s.data[off : off+n])
	return nil
}

func (s *store) release() {
	s.life.Lock()
	defer s.life.Unlock()
	s.data = nil
	s.size = 0
	s.shards = nil
}

func vecLen(vec [][]byte) int64 {
	var n int64
	for _, v := range vec {
		n += int64(len(v))
	}
	return n
}
