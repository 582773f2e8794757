package blkio

import "fmt"

// MixinKind identifies which sub-interface a mixin implements
type MixinKind uint32

const (
	MixinMem   MixinKind = 1 << 0
	MixinAdmin MixinKind = 1 << 1
	MixinSync  MixinKind = 1 << 2
	MixinAsync MixinKind = 1 << 3
	MixinDev   MixinKind = 1 << 4
)

// mixinKinds is the order in which composition binds sub-interfaces
var mixinKinds = [...]MixinKind{MixinMem, MixinAdmin, MixinSync, MixinAsync, MixinDev}

func (k MixinKind) String() string {
	switch k {
	case MixinMem:
		return "mem"
	case MixinAdmin:
		return "admin"
	case MixinSync:
		return "sync"
	case MixinAsync:
		return "async"
	case MixinDev:
		return "dev"
	}
	return fmt.Sprintf("mixin(%d)", uint32(k))
}

// SupportFunc reports whether a mixin can serve the device being opened.
// It sees the device in its partially opened state.
type SupportFunc func(dev *Device) bool

// Mixin is one named candidate implementation of a single sub-interface.
// Mixins are built once when a backend definition is declared and are not
// modified afterwards.
type Mixin struct {
	Kind      MixinKind
	Name      string
	Descr     string
	Impl      any
	Supported SupportFunc
}

func (m *Mixin) supports(dev *Device) bool {
	return m.Supported == nil || m.Supported(dev)
}

// valid reports whether Impl satisfies the interface named by Kind
func (m *Mixin) valid() bool {
	var ok bool
	switch m.Kind {
	case MixinMem:
		_, ok = m.Impl.(Mem)
	case MixinAdmin:
		_, ok = m.Impl.(Admin)
	case MixinSync:
		_, ok = m.Impl.(Sync)
	case MixinAsync:
		_, ok = m.Impl.(Async)
	case MixinDev:
		_, ok = m.Impl.(Dev)
	}
	return ok
}

func MemMixin(name, descr string, impl Mem, supported SupportFunc) Mixin {
	return Mixin{Kind: MixinMem, Name: name, Descr: descr, Impl: impl, Supported: supported}
}

func SyncMixin(name, descr string, impl Sync, supported SupportFunc) Mixin {
	return Mixin{Kind: MixinSync, Name: name, Descr: descr, Impl: impl, Supported: supported}
}

func AsyncMixin(name, descr string, impl Async, supported SupportFunc) Mixin {
	return Mixin{Kind: MixinAsync, Name: name, Descr: descr, Impl: impl, Supported: supported}
}

func AdminMixin(name, descr string, impl Admin, supported SupportFunc) Mixin {
	return Mixin{Kind: MixinAdmin, Name: name, Descr: descr, Impl: impl, Supported: supported}
}

func DevMixin(name, descr string, impl Dev, supported SupportFunc) Mixin {
	return Mixin{Kind: MixinDev, Name: name, Descr: descr, Impl: impl, Supported: supported}
}
