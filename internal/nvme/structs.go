package nvme

import "unsafe"

// SGLDescriptor is one scatter-gather entry as it appears on the wire
type SGLDescriptor struct {
	Addr uint64
	Len  uint32
	Rsvd [3]uint8
	Type uint8 // descriptor type in bits 4-7, subtype in bits 0-3
}

var _ [SGLDescriptorSize]byte = [unsafe.Sizeof(SGLDescriptor{})]byte{}

// DescrType returns the descriptor type nibble
func (d *SGLDescriptor) DescrType() uint8 {
	return d.Type >> 4
}

// SetDescrType sets the descriptor type nibble, clearing the subtype
func (d *SGLDescriptor) SetDescrType(t uint8) {
	d.Type = t << 4
}

// Cmd is the 64-byte submission record. DPTR doubles as a PRP pair
// (Addr holds PRP1) or a single SGL descriptor depending on PSDT.
type Cmd struct {
	Opcode uint8
	Flags  uint8 // fuse in bits 0-1, PSDT in bits 6-7
	CID    uint16
	NSID   uint32
	CDW2   uint32
	CDW3   uint32
	MPTR   uint64
	DPTR   SGLDescriptor
	CDW10  uint32
	CDW11  uint32
	CDW12  uint32
	CDW13  uint32
	CDW14  uint32
	CDW15  uint32
}

var _ [CmdSize]byte = [unsafe.Sizeof(Cmd{})]byte{}

// PSDT returns the data pointer selector
func (c *Cmd) PSDT() uint8 {
	return (c.Flags & psdtMask) >> psdtShift
}

// SetPSDT sets the data pointer selector
func (c *Cmd) SetPSDT(psdt uint8) {
	c.Flags = (c.Flags &^ psdtMask) | ((psdt << psdtShift) & psdtMask)
}

// SLBA returns the starting LBA of an NVM read/write
func (c *Cmd) SLBA() uint64 {
	return uint64(c.CDW10) | uint64(c.CDW11)<<32
}

// SetSLBA sets the starting LBA
func (c *Cmd) SetSLBA(slba uint64) {
	c.CDW10 = uint32(slba)
	c.CDW11 = uint32(slba >> 32)
}

// NLB returns the zero-based number of logical blocks
func (c *Cmd) NLB() uint16 {
	return uint16(c.CDW12)
}

// SetNLB sets the zero-based number of logical blocks
func (c *Cmd) SetNLB(nlb uint16) {
	c.CDW12 = (c.CDW12 &^ 0xFFFF) | uint32(nlb)
}

// CNS returns the identify controller-or-namespace structure selector
func (c *Cmd) CNS() uint8 {
	return uint8(c.CDW10)
}

// CSI returns the identify command set identifier
func (c *Cmd) CSI() uint8 {
	return uint8(c.CDW11 >> 24)
}

// FID returns the feature identifier of a get/set-features command
func (c *Cmd) FID() uint8 {
	return uint8(c.CDW10)
}

// Cpl is the 16-byte completion record
type Cpl struct {
	CDW0   uint32
	Rsvd1  uint32
	SQHD   uint16
	SQID   uint16
	CID    uint16
	Status uint16 // phase bit 0, sc bits 1-8, sct bits 9-11
}

var _ [CplSize]byte = [unsafe.Sizeof(Cpl{})]byte{}

// SC returns the status code
func (c *Cpl) SC() uint8 {
	return uint8(c.Status >> 1)
}

// SCT returns the status code type
func (c *Cpl) SCT() uint8 {
	return uint8((c.Status >> 9) & 0x7)
}

// SetStatus sets status code type and status code, keeping the phase bit
func (c *Cpl) SetStatus(sct, sc uint8) {
	c.Status = (c.Status & 0x1) | uint16(sc)<<1 | uint16(sct&0x7)<<9
}

// Failed reports whether the completion carries a non-success status
func (c *Cpl) Failed() bool {
	return c.SC() != 0 || c.SCT() != 0
}

// LBAFormat describes one namespace LBA format
type LBAFormat struct {
	MS uint16 // metadata bytes per LBA
	DS uint8  // LBA data size as a power of two
	RP uint8  // relative performance
}

// IdfyCtrlr is the subset of the identify-controller record the core uses
type IdfyCtrlr struct {
	VID    uint16
	SSVID  uint16
	SN     string
	MN     string
	FR     string
	MDTS   uint8
	CNTLID uint16
	VER    uint32
	NN     uint32
	SUBNQN string
}

// IdfyNs is the subset of the identify-namespace record the core uses
type IdfyNs struct {
	NSZE   uint64
	NCAP   uint64
	NUSE   uint64
	NSFEAT uint8
	NLBAF  uint8 // zero-based count of valid LBAF entries
	FLBAS  uint8
	LBAF   [16]LBAFormat
}

// FormatIndex returns the in-use LBA format index
func (n *IdfyNs) FormatIndex() int {
	return int(n.FLBAS & 0xF)
}

// Extended reports whether metadata is transferred inline with data
func (n *IdfyNs) Extended() bool {
	return n.FLBAS&(1<<4) != 0
}
