package blkio

import (
	"strings"
	"sync"
	"syscall"

	"golang.org/x/exp/slices"

	"github.com/ehrlich-b/go-blkio/internal/logging"
	"github.com/ehrlich-b/go-blkio/internal/nvme"
)

// Registry holds backend definitions in registration order. Open and
// Enumerate try enabled backends in that order.
type Registry struct {
	mu       sync.RWMutex
	defs     []*Def
	defaults Opts
	log      *logging.Logger
}

// NewRegistry creates a registry holding defs, in order
func NewRegistry(defs ...Def) (*Registry, error) {
	r := &Registry{
		defaults: DefaultOpts(),
		log:      logging.Default(),
	}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends a backend definition
func (r *Registry) Register(def Def) error {
	if def.Attr.Name == "" {
		return NewError("registry.register", ErrCodeInvalidArgument, "backend without name")
	}
	for i := range def.Mixins {
		m := &def.Mixins[i]
		if m.Name == "" || !m.valid() {
			return NewErrorf("registry.register", ErrCodeInvalidArgument,
				"backend %s: mixin %d (%s %q) does not implement its kind", def.Attr.Name, i, m.Kind, m.Name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index(def.Attr.Name) >= 0 {
		return NewErrorf("registry.register", ErrCodeInvalidArgument, "backend %s already registered", def.Attr.Name)
	}
	d := def
	d.Mixins = slices.Clone(def.Mixins)
	r.defs = append(r.defs, &d)
	return nil
}

func (r *Registry) index(name string) int {
	return slices.IndexFunc(r.defs, func(d *Def) bool { return d.Attr.Name == name })
}

// Lookup returns the definition registered under name
func (r *Registry) Lookup(name string) (Def, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.index(name)
	if i < 0 {
		return Def{}, false
	}
	return *r.defs[i], true
}

// Backends returns the attributes of every registered backend
func (r *Registry) Backends() []Attr {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Attr, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d.Attr)
	}
	return out
}

// SetEnabled toggles a backend
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(name)
	if i < 0 {
		return NewErrorf("registry.enable", ErrCodeInvalidArgument, "unknown backend %s", name)
	}
	r.defs[i].Attr.Enabled = enabled
	return nil
}

// SetLogger replaces the logger handed to opened devices
func (r *Registry) SetLogger(log *logging.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = log
}

// Configure applies enabled flags, default options and logging from cfg
func (r *Registry) Configure(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	defaults, err := mergeOpts(&cfg.Defaults, DefaultOpts())
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range cfg.Backends {
		if r.index(name) < 0 {
			return NewErrorf("registry.configure", ErrCodeInvalidArgument, "unknown backend %s", name)
		}
	}
	for _, d := range r.defs {
		d.Attr.Enabled = cfg.Enabled(d.Attr.Name, d.Attr.Enabled)
	}
	r.defaults = defaults
	r.log = cfg.Logger()
	return nil
}

// candidates returns the enabled definitions Open or Enumerate should try
func (r *Registry) candidates(name, uri string) []*Def {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Def
	for _, d := range r.defs {
		if !d.Attr.Enabled {
			continue
		}
		if name != "" && name != AutoBackend && d.Attr.Name != name {
			continue
		}
		out = append(out, d)
	}

	// a URI scheme claimed by some backend narrows the search to them
	if scheme, ok := uriScheme(uri); ok {
		claimed := slices.DeleteFunc(slices.Clone(out), func(d *Def) bool { return !d.HasScheme(scheme) })
		if len(claimed) > 0 {
			return claimed
		}
	}
	return out
}

func uriScheme(uri string) (string, bool) {
	i := strings.Index(uri, "://")
	if i <= 0 {
		return "", false
	}
	return uri[:i], true
}

// Open opens uri on the first enabled backend that accepts it. A
// permission failure ends the search; other failures move on to the next
// backend.
func (r *Registry) Open(uri string, opts *Opts) (*Device, error) {
	r.mu.RLock()
	defaults, log := r.defaults, r.log
	r.mu.RUnlock()

	o, err := mergeOpts(opts, defaults)
	if err != nil {
		return nil, err
	}
	ident, err := NewIdent(uri, o.NSID)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, def := range r.candidates(o.Backend, uri) {
		dev, err := r.openWith(def, ident, o, log)
		if err == nil {
			dev.log.Debug("device opened", "be", def.Attr.Name, "dtype", dev.ident.DType.String())
			return dev, nil
		}
		lastErr = err
		log.Debug("backend rejected device", "be", def.Attr.Name, "uri", uri, "err", err)
		if IsCode(err, ErrCodePermission) || IsErrno(err, syscall.EPERM) {
			return nil, err
		}
	}

	e := NewDeviceError("dev.open", uri, ErrCodeNoDevice, "no backend could open the device")
	e.Inner = lastErr
	return nil, e
}

func (r *Registry) openWith(def *Def, ident Ident, o Opts, log *logging.Logger) (*Device, error) {
	dev := newDevice(ident, o, log)
	be, err := compose(def, dev, &dev.opts)
	if err != nil {
		return nil, err
	}

	dev.opening = true
	if err := be.Dev.Open(dev); err != nil {
		return nil, err
	}
	if err := dev.identify(); err != nil {
		be.Dev.Close(dev)
		return nil, err
	}
	dev.opening = false
	return dev, nil
}

// identify caches identify data and derives the geometry. A backend
// without admin support must have set the geometry during open.
func (d *Device) identify() error {
	ctrlr, err := d.IdentifyCtrlr()
	if err != nil {
		if IsCode(err, ErrCodeNotSupported) && d.geo.NBytes != 0 {
			return nil
		}
		return err
	}
	ns, err := d.IdentifyNs(d.ident.NSID)
	if err != nil {
		return err
	}

	geo, err := deriveGeometry(&ctrlr, &ns)
	if err != nil {
		return err
	}
	if geo.NBytes == 0 {
		return NewDeviceError("dev.identify", d.ident.URI, ErrCodeInvalidArgument, "zero logical block size")
	}
	d.idfyCtrlr = ctrlr
	d.idfyNs = ns
	d.geo = geo
	if ctrlr.SUBNQN != "" && d.ident.SubNQN == "" {
		d.ident.SubNQN = ctrlr.SUBNQN
	}
	return nil
}

// Enumerate reports devices found by every enabled backend (or the one
// named in opts). Backends that cannot enumerate are skipped.
func (r *Registry) Enumerate(sysURI string, opts *Opts, fn EnumerateFunc) error {
	r.mu.RLock()
	defaults, log := r.defaults, r.log
	r.mu.RUnlock()

	o, err := mergeOpts(opts, defaults)
	if err != nil {
		return err
	}
	// support predicates see a device that carries only the system URI
	bare := newDevice(Ident{URI: sysURI, DType: DevTypeUnknown, NSID: o.NSID, CSI: nvme.CSIUnknown}, o, log)
	for _, def := range r.candidates(o.Backend, sysURI) {
		m, ok := def.pick(MixinDev, &o, bare)
		if !ok {
			continue
		}
		err := m.Impl.(Dev).Enumerate(sysURI, &o, fn)
		if err != nil && !IsCode(err, ErrCodeNotSupported) {
			return err
		}
	}
	return nil
}
