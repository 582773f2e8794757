// Package nvme defines the fixed-size command, completion and identify
// records moved by the dispatch core, and their little-endian codec.
package nvme

// Admin opcodes
const (
	OpcGetLog   = 0x02
	OpcIdentify = 0x06
	OpcSetFeat  = 0x09
	OpcGetFeat  = 0x0A
)

// NVM command set opcodes
const (
	OpcFlush       = 0x00
	OpcWrite       = 0x01
	OpcRead        = 0x02
	OpcWriteZeroes = 0x08
	OpcDSM         = 0x09
)

// Pseudo opcodes are out-of-protocol control operations
const (
	PseudoShowRegs        = 0x02
	PseudoControllerReset = 0x10
	PseudoSubsystemReset  = 0x11
	PseudoNamespaceRescan = 0x12
)

// Identify CNS values
const (
	CNSNs     = 0x00
	CNSCtrlr  = 0x01
	CNSNsList = 0x02
)

// Command set identifiers
const (
	CSINVM     = 0x00
	CSIKV      = 0x01
	CSIZoned   = 0x02
	CSIUnknown = 0xFF
)

// Feature identifiers
const (
	FIDArbitration = 0x01
	FIDPowerMgmt   = 0x02
	FIDNQueues     = 0x07
)

// PSDT selects how the data pointer is interpreted
const (
	PSDTPRP              = 0x0
	PSDTSGLMPTRContig    = 0x1
	PSDTSGLMPTRSGL       = 0x2
	psdtShift            = 6
	psdtMask       uint8 = 0x3 << psdtShift
)

// SGL descriptor types (high nibble of the type byte)
const (
	SGLDataBlock   = 0x0
	SGLBitBucket   = 0x1
	SGLSegment     = 0x2
	SGLLastSegment = 0x3
)

// Status code types
const (
	SCTGeneric      = 0x0
	SCTCommandSpec  = 0x1
	SCTMediaErrors  = 0x2
	SCTVendorSpecif = 0x7
)

// Generic status codes
const (
	SCSuccess           = 0x00
	SCInvalidOpcode     = 0x01
	SCInvalidField      = 0x02
	SCDataTransferError = 0x04
	SCInternal          = 0x06
	SCLBAOutOfRange     = 0x80
)

// Record sizes
const (
	CmdSize            = 64
	CplSize            = 16
	SGLDescriptorSize  = 16
	IdentifyRecordSize = 4096
)
