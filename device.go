package blkio

import (
	"sync"

	"github.com/ehrlich-b/go-blkio/internal/logging"
)

// Device is an opened handle. It owns its identity, geometry, cached
// identify data and the backend composed for it.
type Device struct {
	ident Ident
	geo   Geometry
	be    *Backend
	opts  Opts

	idfyCtrlr IdfyCtrlr
	idfyNs    IdfyNs

	// backend-private state, set by the dev mixin during open
	state any

	log      *logging.Logger
	metrics  *Metrics
	observer Observer

	mu      sync.Mutex
	opening bool
	closed  bool
}

func newDevice(ident Ident, opts Opts, log *logging.Logger) *Device {
	metrics := NewMetrics()
	var observer Observer = NewMetricsObserver(metrics)
	if opts.Observer != nil {
		observer = opts.Observer
	}
	if log == nil {
		log = logging.Default()
	}
	return &Device{
		ident:    ident,
		opts:     opts,
		log:      log.WithDevice(ident.URI),
		metrics:  metrics,
		observer: observer,
	}
}

func (d *Device) Ident() Ident            { return d.ident }
func (d *Device) Geo() Geometry           { return d.geo }
func (d *Device) Opts() Opts              { return d.opts }
func (d *Device) Backend() *Backend       { return d.be }
func (d *Device) NSID() uint32            { return d.ident.NSID }
func (d *Device) CSI() uint8              { return d.ident.CSI }
func (d *Device) IdfyCtrlr() IdfyCtrlr    { return d.idfyCtrlr }
func (d *Device) IdfyNs() IdfyNs          { return d.idfyNs }
func (d *Device) Logger() *logging.Logger { return d.log }

// Metrics returns the device's built-in metrics
func (d *Device) Metrics() *Metrics {
	return d.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of the device metrics
func (d *Device) MetricsSnapshot() MetricsSnapshot {
	return d.metrics.Snapshot()
}

// State returns backend-private device state
func (d *Device) State() any {
	return d.state
}

// SetState stores backend-private device state
func (d *Device) SetState(state any) {
	d.state = state
}

// SetType records the device type, command set and namespace. The type
// can be set only once, by the dev mixin during open.
func (d *Device) SetType(dtype DevType, csi uint8, nsid uint32) error {
	if d.ident.DType != DevTypeUnknown {
		return NewDeviceError("dev.settype", d.ident.URI, ErrCodeInvalidArgument, "device type already set")
	}
	d.ident.DType = dtype
	d.ident.CSI = csi
	d.ident.NSID = nsid
	return nil
}

// SetSubNQN records the subsystem NQN reported by the backend
func (d *Device) SetSubNQN(nqn string) {
	d.ident.SubNQN = nqn
}

// SetGeometry lets a backend that cannot answer identify provide the
// geometry itself. Only valid while the device is being opened.
func (d *Device) SetGeometry(geo Geometry) error {
	if !d.opening {
		return NewDeviceError("dev.setgeo", d.ident.URI, ErrCodeInvalidArgument, "geometry is read-only after open")
	}
	d.geo = geo
	return nil
}

// BufAlloc allocates an I/O buffer through the bound memory mixin
func (d *Device) BufAlloc(nbytes int) ([]byte, error) {
	if nbytes <= 0 {
		return nil, NewDeviceError("buf.alloc", d.ident.URI, ErrCodeInvalidArgument, "non-positive size")
	}
	return d.be.Mem.Alloc(d, nbytes)
}

// BufRealloc resizes buf, preserving its contents up to the smaller size
func (d *Device) BufRealloc(buf []byte, nbytes int) ([]byte, error) {
	if nbytes <= 0 {
		return nil, NewDeviceError("buf.realloc", d.ident.URI, ErrCodeInvalidArgument, "non-positive size")
	}
	return d.be.Mem.Realloc(d, buf, nbytes)
}

// BufFree releases a buffer obtained from BufAlloc or BufRealloc
func (d *Device) BufFree(buf []byte) error {
	if buf == nil {
		return nil
	}
	return d.be.Mem.Free(d, buf)
}

// BufVtoPhys translates a buffer address to the address a device uses
func (d *Device) BufVtoPhys(buf []byte) (uint64, error) {
	if len(buf) == 0 {
		return 0, NewDeviceError("buf.vtophys", d.ident.URI, ErrCodeInvalidArgument, "empty buffer")
	}
	return d.be.Mem.VtoPhys(d, buf)
}

// Close releases the device. Only the first call reaches the backend.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	if d.be != nil {
		d.be.Dev.Close(d)
	}
	d.metrics.Stop()
	d.log.Debug("device closed")
}

func (d *Device) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
