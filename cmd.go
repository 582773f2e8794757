package blkio

import "github.com/ehrlich-b/go-blkio/internal/nvme"

// Wire records moved by the dispatcher. The core treats them as opaque
// except for the data/metadata pointer fields it fills for SGL upload.
type (
	Cmd           = nvme.Cmd
	Cpl           = nvme.Cpl
	SGLDescriptor = nvme.SGLDescriptor
	IdfyCtrlr     = nvme.IdfyCtrlr
	IdfyNs        = nvme.IdfyNs
	LBAFormat     = nvme.LBAFormat
)

// Commonly used opcodes
const (
	OpcFlush       = nvme.OpcFlush
	OpcWrite       = nvme.OpcWrite
	OpcRead        = nvme.OpcRead
	OpcWriteZeroes = nvme.OpcWriteZeroes
	OpcDSM         = nvme.OpcDSM

	OpcIdentify = nvme.OpcIdentify
	OpcGetFeat  = nvme.OpcGetFeat
	OpcSetFeat  = nvme.OpcSetFeat
	OpcGetLog   = nvme.OpcGetLog

	PseudoShowRegs        = nvme.PseudoShowRegs
	PseudoControllerReset = nvme.PseudoControllerReset
	PseudoSubsystemReset  = nvme.PseudoSubsystemReset
	PseudoNamespaceRescan = nvme.PseudoNamespaceRescan
)

// CmdOpt selects how a context is dispatched. Exactly one of CmdSync and
// CmdAsync must be set for I/O; the SGL bits request descriptor upload.
type CmdOpt uint32

const (
	CmdSync    CmdOpt = 1 << 0
	CmdAsync   CmdOpt = 1 << 1
	CmdSGLData CmdOpt = 1 << 2
	CmdSGLMeta CmdOpt = 1 << 3

	cmdMaskIOMode = CmdSync | CmdAsync
	cmdMaskUpload = CmdSGLData | CmdSGLMeta
)

func (o CmdOpt) String() string {
	s := "none"
	switch o & cmdMaskIOMode {
	case CmdSync:
		s = "sync"
	case CmdAsync:
		s = "async"
	case cmdMaskIOMode:
		s = "sync|async"
	}
	if o&CmdSGLData != 0 {
		s += "|sgl-data"
	}
	if o&CmdSGLMeta != 0 {
		s += "|sgl-meta"
	}
	return s
}
