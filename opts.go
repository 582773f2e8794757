package blkio

import (
	"os"
	"strconv"

	"dario.cat/mergo"

	"github.com/ehrlich-b/go-blkio/internal/constants"
)

// AutoBackend lets Open try every enabled backend in registration order
const AutoBackend = "auto"

// Opts control how a device is opened and which mixins are preferred.
// An empty mixin name means "first supported".
type Opts struct {
	Backend string `yaml:"backend"`
	Mem     string `yaml:"mem,omitempty"`
	Sync    string `yaml:"sync,omitempty"`
	Async   string `yaml:"async,omitempty"`
	Admin   string `yaml:"admin,omitempty"`
	Dev     string `yaml:"dev,omitempty"`

	NSID uint32 `yaml:"nsid"`

	RdOnly     bool        `yaml:"rdonly,omitempty"`
	WrOnly     bool        `yaml:"wronly,omitempty"`
	RdWr       bool        `yaml:"rdwr,omitempty"`
	Create     bool        `yaml:"create,omitempty"`
	Truncate   bool        `yaml:"truncate,omitempty"`
	Direct     bool        `yaml:"direct,omitempty"`
	CreateMode os.FileMode `yaml:"create_mode,omitempty"`

	PollIO      bool `yaml:"poll_io,omitempty"`
	PollSQ      bool `yaml:"poll_sq,omitempty"`
	ThreadCount int  `yaml:"thread_count,omitempty"`

	// Observer receives per-command metrics (if nil, the device's built-in
	// Metrics are used)
	Observer Observer `yaml:"-"`
}

// DefaultOpts returns the options applied beneath caller-supplied ones
func DefaultOpts() Opts {
	return Opts{
		Backend:    AutoBackend,
		NSID:       constants.DefaultNSID,
		CreateMode: 0600,
	}
}

// mergeOpts fills unset fields of opts from defaults
func mergeOpts(opts *Opts, defaults Opts) (Opts, error) {
	var merged Opts
	if opts != nil {
		merged = *opts
	}
	if err := mergo.Merge(&merged, defaults); err != nil {
		return Opts{}, WrapError("opts.merge", err)
	}
	return merged, nil
}

// preferred returns the variant name requested for kind
func (o *Opts) preferred(kind MixinKind) string {
	switch kind {
	case MixinMem:
		return o.Mem
	case MixinAdmin:
		return o.Admin
	case MixinSync:
		return o.Sync
	case MixinAsync:
		return o.Async
	case MixinDev:
		return o.Dev
	}
	return ""
}

// OpenFlags maps the access options to os.OpenFile flags. With none of
// RdOnly, WrOnly and RdWr set the device is opened read-write.
func (o *Opts) OpenFlags() int {
	var flags int
	switch {
	case o.RdOnly:
		flags = os.O_RDONLY
	case o.WrOnly:
		flags = os.O_WRONLY
	default:
		flags = os.O_RDWR
	}
	if o.Create {
		flags |= os.O_CREATE
	}
	if o.Truncate {
		flags |= os.O_TRUNC
	}
	return flags
}

// ThreadPoolSize resolves the worker count for thread-pool backed queues:
// the environment override wins, then opts, then the default.
func (o *Opts) ThreadPoolSize() (int, error) {
	n := o.ThreadCount
	if env := os.Getenv(constants.ThreadCountEnv); env != "" {
		v, err := strconv.Atoi(env)
		if err != nil {
			return 0, NewErrorf("opts.threads", ErrCodeInvalidArgument, "%s=%q: %v", constants.ThreadCountEnv, env, err)
		}
		n = v
	}
	if n == 0 {
		n = constants.DefaultThreadCount
	}
	if n < 1 || n >= constants.MaxThreadCount {
		return 0, NewErrorf("opts.threads", ErrCodeInvalidArgument, "thread count %d out of range [1, %d)", n, constants.MaxThreadCount)
	}
	return n, nil
}
