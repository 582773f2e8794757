package blkio

import (
	"sync"

	"github.com/ehrlich-b/go-blkio/internal/constants"
	"github.com/ehrlich-b/go-blkio/internal/nvme"
)

// SGL is a growable scatter-gather list. Descriptors live in a buffer from
// the device's memory mixin; the fragments themselves stay referenced so
// software backends can gather and scatter through them.
type SGL struct {
	dev      *Device
	descr    []byte // ndescr descriptors, capacity len(descr)/16
	indirect []byte // one descriptor pointing at descr
	frags    [][]byte
	ndescr   int
	nbytes   uint64
}

// NewSGL creates a list with room for ndescr descriptors
func NewSGL(dev *Device, ndescr int) (*SGL, error) {
	if dev == nil || dev.be == nil {
		return nil, NewError("sgl.create", ErrCodeInvalidArgument, "device is not open")
	}
	if ndescr < 0 || ndescr > constants.MaxSGLDescriptors {
		return nil, NewDeviceError("sgl.create", dev.ident.URI, ErrCodeInvalidArgument, "descriptor count out of range")
	}

	indirect, err := dev.be.Mem.Alloc(dev, nvme.SGLDescriptorSize)
	if err != nil {
		return nil, err
	}
	s := &SGL{dev: dev, indirect: indirect}
	if ndescr > 0 {
		descr, err := dev.be.Mem.Alloc(dev, ndescr*nvme.SGLDescriptorSize)
		if err != nil {
			_ = dev.be.Mem.Free(dev, indirect)
			return nil, err
		}
		s.descr = descr
		s.frags = make([][]byte, 0, ndescr)
	}
	return s, nil
}

func (s *SGL) NDescr() int         { return s.ndescr }
func (s *SGL) Len() uint64         { return s.nbytes }
func (s *SGL) Fragments() [][]byte { return s.frags }

// Capacity is the number of descriptors that fit without growing
func (s *SGL) Capacity() int {
	return len(s.descr) / nvme.SGLDescriptorSize
}

// Descriptor returns descriptor i
func (s *SGL) Descriptor(i int) SGLDescriptor {
	off := i * nvme.SGLDescriptorSize
	return nvme.Descriptor(s.descr[off : off+nvme.SGLDescriptorSize])
}

// Add appends buf as a data block descriptor, doubling the descriptor
// buffer when full. A failed add leaves the list unchanged.
func (s *SGL) Add(buf []byte) error {
	dev := s.dev
	if len(buf) == 0 {
		return NewDeviceError("sgl.add", dev.ident.URI, ErrCodeInvalidArgument, "empty fragment")
	}
	if s.ndescr >= constants.MaxSGLDescriptors {
		return NewDeviceError("sgl.add", dev.ident.URI, ErrCodeInvalidArgument, "descriptor limit reached")
	}

	phys, err := dev.be.Mem.VtoPhys(dev, buf)
	if err != nil {
		return err
	}

	if s.ndescr == s.Capacity() {
		ncap := s.Capacity() * 2
		if ncap == 0 {
			ncap = 1
		}
		var grown []byte
		if s.descr == nil {
			grown, err = dev.be.Mem.Alloc(dev, ncap*nvme.SGLDescriptorSize)
		} else {
			grown, err = dev.be.Mem.Realloc(dev, s.descr, ncap*nvme.SGLDescriptorSize)
		}
		if err != nil {
			e := NewDeviceError("sgl.add", dev.ident.URI, ErrCodeNoMemory, "growing descriptor buffer")
			e.Inner = err
			return e
		}
		s.descr = grown
	}

	d := SGLDescriptor{Addr: phys, Len: uint32(len(buf))}
	d.SetDescrType(nvme.SGLDataBlock)
	off := s.ndescr * nvme.SGLDescriptorSize
	nvme.PutDescriptor(s.descr[off:off+nvme.SGLDescriptorSize], &d)

	s.frags = append(s.frags, buf)
	s.ndescr++
	s.nbytes += uint64(len(buf))
	return nil
}

// Reset empties the list, keeping the descriptor buffer
func (s *SGL) Reset() {
	s.ndescr = 0
	s.nbytes = 0
	clear(s.frags)
	s.frags = s.frags[:0]
}

// Destroy frees the descriptor buffers
func (s *SGL) Destroy() error {
	if s.dev == nil {
		return nil
	}
	var err error
	if s.descr != nil {
		err = s.dev.be.Mem.Free(s.dev, s.descr)
	}
	if ferr := s.dev.be.Mem.Free(s.dev, s.indirect); err == nil {
		err = ferr
	}
	s.descr, s.indirect, s.frags = nil, nil, nil
	s.ndescr, s.nbytes = 0, 0
	s.dev = nil
	return err
}

// SGLPool recycles lists for one device
type SGLPool struct {
	dev  *Device
	mu   sync.Mutex
	free []*SGL
}

// NewSGLPool creates an empty pool bound to dev
func NewSGLPool(dev *Device) *SGLPool {
	return &SGLPool{dev: dev}
}

// Alloc returns a recycled list, or a new one with room for ndescr
func (p *SGLPool) Alloc(ndescr int) (*SGL, error) {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		s := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()
	return NewSGL(p.dev, ndescr)
}

// Free resets s and keeps it for reuse
func (p *SGLPool) Free(s *SGL) error {
	if s == nil || s.dev != p.dev {
		return NewError("sglpool.free", ErrCodeInvalidArgument, "sgl not from this pool's device")
	}
	s.Reset()
	p.mu.Lock()
	p.free = append(p.free, s)
	p.mu.Unlock()
	return nil
}

// Len is the number of idle lists held
func (p *SGLPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Destroy frees every idle list
func (p *SGLPool) Destroy() error {
	p.mu.Lock()
	free := p.free
	p.free = nil
	p.mu.Unlock()

	var first error
	for _, s := range free {
		if err := s.Destroy(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
