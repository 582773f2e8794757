package blkio

import "github.com/ehrlich-b/go-blkio/internal/constants"

// Re-export constants for public API
const (
	DefaultQueueDepth       = constants.DefaultQueueDepth
	MaxQueueDepth           = constants.MaxQueueDepth
	MaxSGLDescriptors       = constants.MaxSGLDescriptors
	IdentURILen             = constants.IdentURILen
	DefaultNSID             = constants.DefaultNSID
	DefaultLogicalBlockSize = constants.DefaultLogicalBlockSize
	DefaultMDTSBytes        = constants.DefaultMDTSBytes
	DefaultThreadCount      = constants.DefaultThreadCount
	MaxThreadCount          = constants.MaxThreadCount
	ThreadCountEnv          = constants.ThreadCountEnv
)
