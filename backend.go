// Package blkio provides a uniform block I/O interface over pluggable
// backends. A backend is composed at open time from independently
// implemented mixins for memory, synchronous I/O, asynchronous queues,
// admin commands and the device lifecycle.
package blkio

import (
	"golang.org/x/exp/slices"
)

// Attr describes a backend
type Attr struct {
	Name    string   `yaml:"name"`
	Descr   string   `yaml:"descr,omitempty"`
	Enabled bool     `yaml:"enabled"`
	Schemes []string `yaml:"schemes,omitempty"`
}

// Def declares a backend: its attributes and every candidate mixin, in
// preference order within each kind
type Def struct {
	Attr   Attr
	Mixins []Mixin
}

// mixins returns the candidates of one kind, in registration order
func (d *Def) mixins(kind MixinKind) []Mixin {
	var out []Mixin
	for _, m := range d.Mixins {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// HasScheme reports whether the backend claims the URI scheme
func (d *Def) HasScheme(scheme string) bool {
	return slices.Contains(d.Attr.Schemes, scheme)
}

// Backend is the composed set of sub-interfaces bound to one device.
// Every slot is non-nil; unsupported kinds hold the nosys stub.
type Backend struct {
	Attr  Attr
	Mem   Mem
	Sync  Sync
	Async Async
	Admin Admin
	Dev   Dev

	// Mixins records the chosen mixin per kind, in binding order
	Mixins []Mixin
}

// Mixin returns the mixin bound for kind
func (b *Backend) Mixin(kind MixinKind) (Mixin, bool) {
	i := slices.IndexFunc(b.Mixins, func(m Mixin) bool { return m.Kind == kind })
	if i < 0 {
		return Mixin{}, false
	}
	return b.Mixins[i], true
}

func (b *Backend) bind(m Mixin) {
	switch m.Kind {
	case MixinMem:
		b.Mem = m.Impl.(Mem)
	case MixinAdmin:
		b.Admin = m.Impl.(Admin)
	case MixinSync:
		b.Sync = m.Impl.(Sync)
	case MixinAsync:
		b.Async = m.Impl.(Async)
	case MixinDev:
		b.Dev = m.Impl.(Dev)
	}
	b.Mixins = append(b.Mixins, m)
}

// pick returns the first valid candidate of kind that supports dev. A
// preferred name in opts restricts the candidates to that name.
func (d *Def) pick(kind MixinKind, opts *Opts, dev *Device) (Mixin, bool) {
	candidates := d.mixins(kind)
	if want := opts.preferred(kind); want != "" {
		candidates = slices.DeleteFunc(candidates, func(m Mixin) bool { return m.Name != want })
	}
	for i := range candidates {
		if candidates[i].valid() && candidates[i].supports(dev) {
			return candidates[i], true
		}
	}
	return Mixin{}, false
}

// compose selects one mixin per kind for dev. A preferred name restricts
// the candidates to mixins of that name. The chosen backend is installed
// on dev before each support check so later predicates can see earlier
// choices.
func compose(def *Def, dev *Device, opts *Opts) (*Backend, error) {
	be := &Backend{Attr: def.Attr}
	dev.be = be

	for _, kind := range mixinKinds {
		m, ok := def.pick(kind, opts, dev)
		if !ok {
			if kind == MixinDev {
				return nil, NewDeviceError("backend.compose", dev.ident.URI, ErrCodeNotSupported,
					"backend "+def.Attr.Name+" has no supported dev mixin")
			}
			be.bind(nosysMixin(kind))
			continue
		}
		be.bind(m)
	}

	if dev.log != nil {
		for _, m := range be.Mixins {
			dev.log.Debug("mixin bound", "be", def.Attr.Name, "kind", m.Kind.String(), "name", m.Name)
		}
	}
	return be, nil
}
