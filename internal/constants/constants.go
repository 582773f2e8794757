package constants

// Queue limits
const (
	// DefaultQueueDepth is the queue depth used when callers do not pick one
	DefaultQueueDepth = 64

	// MaxQueueDepth is the exclusive upper bound on queue depth
	MaxQueueDepth = 4096

	// NilQueueDepthMax is the deepest queue the nil async mixin accepts
	NilQueueDepthMax = 29
)

// Scatter-gather limits
const (
	// MaxSGLDescriptors is the descriptor count that fits one last-segment page
	MaxSGLDescriptors = 256

	// SGLDescriptorSize is the wire size of one descriptor in bytes
	SGLDescriptorSize = 16
)

// Identity and geometry constants
const (
	// IdentURILen bounds the length of a device URI (exclusive)
	IdentURILen = 384

	// DefaultNSID is the namespace opened when none is given
	DefaultNSID = 1

	// DefaultLogicalBlockSize is the logical block size emulated backends report
	DefaultLogicalBlockSize = 512

	// DefaultMDTSBytes is the max data transfer size when the controller reports none
	DefaultMDTSBytes = 1 << 20

	// MinPageSize is the controller memory page size used to scale MDTS
	MinPageSize = 4096

	// IdentifyDataSize is the size of one identify record
	IdentifyDataSize = 4096
)

// Thread-pool defaults
const (
	// DefaultThreadCount is the worker count for the thread-pool async mixin
	DefaultThreadCount = 4

	// MaxThreadCount is the exclusive upper bound on thread-pool workers
	MaxThreadCount = 1024

	// ThreadCountEnv overrides the thread-pool worker count
	ThreadCountEnv = "BLKIO_THRPOOL_NTHREADS"
)
