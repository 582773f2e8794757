package nvme

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInsufficientData is returned when a buffer is shorter than the record
var ErrInsufficientData = errors.New("insufficient data for unmarshaling")

// Identify-controller field offsets
const (
	offCtrlrVID    = 0
	offCtrlrSSVID  = 2
	offCtrlrSN     = 4
	offCtrlrMN     = 24
	offCtrlrFR     = 64
	offCtrlrMDTS   = 77
	offCtrlrCNTLID = 78
	offCtrlrVER    = 80
	offCtrlrNN     = 516
	offCtrlrSUBNQN = 768

	lenCtrlrSN     = 20
	lenCtrlrMN     = 40
	lenCtrlrFR     = 8
	lenCtrlrSUBNQN = 256
)

// Identify-namespace field offsets
const (
	offNsNSZE   = 0
	offNsNCAP   = 8
	offNsNUSE   = 16
	offNsNSFEAT = 24
	offNsNLBAF  = 25
	offNsFLBAS  = 26
	offNsLBAF   = 128
)

// Marshal encodes a record into its wire form
func Marshal(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case *IdfyCtrlr:
		buf := make([]byte, IdentifyRecordSize)
		marshalCtrlr(buf, val)
		return buf, nil
	case *IdfyNs:
		buf := make([]byte, IdentifyRecordSize)
		marshalNs(buf, val)
		return buf, nil
	case *SGLDescriptor:
		buf := make([]byte, SGLDescriptorSize)
		PutDescriptor(buf, val)
		return buf, nil
	default:
		return nil, fmt.Errorf("nvme: cannot marshal %T", v)
	}
}

// Unmarshal decodes a wire record into v
func Unmarshal(data []byte, v interface{}) error {
	switch val := v.(type) {
	case *IdfyCtrlr:
		if len(data) < IdentifyRecordSize {
			return ErrInsufficientData
		}
		unmarshalCtrlr(data, val)
	case *IdfyNs:
		if len(data) < IdentifyRecordSize {
			return ErrInsufficientData
		}
		unmarshalNs(data, val)
	case *SGLDescriptor:
		if len(data) < SGLDescriptorSize {
			return ErrInsufficientData
		}
		*val = Descriptor(data)
	default:
		return fmt.Errorf("nvme: cannot unmarshal into %T", v)
	}
	return nil
}

// PutCtrlr encodes an identify-controller record into buf, which must hold
// IdentifyRecordSize bytes
func PutCtrlr(buf []byte, c *IdfyCtrlr) error {
	if len(buf) < IdentifyRecordSize {
		return ErrInsufficientData
	}
	marshalCtrlr(buf, c)
	return nil
}

// PutNs encodes an identify-namespace record into buf
func PutNs(buf []byte, n *IdfyNs) error {
	if len(buf) < IdentifyRecordSize {
		return ErrInsufficientData
	}
	marshalNs(buf, n)
	return nil
}

// PutDescriptor writes one SGL descriptor into the first 16 bytes of buf
func PutDescriptor(buf []byte, d *SGLDescriptor) {
	binary.LittleEndian.PutUint64(buf[0:8], d.Addr)
	binary.LittleEndian.PutUint32(buf[8:12], d.Len)
	copy(buf[12:15], d.Rsvd[:])
	buf[15] = d.Type
}

// Descriptor reads one SGL descriptor from the first 16 bytes of buf
func Descriptor(buf []byte) SGLDescriptor {
	var d SGLDescriptor
	d.Addr = binary.LittleEndian.Uint64(buf[0:8])
	d.Len = binary.LittleEndian.Uint32(buf[8:12])
	copy(d.Rsvd[:], buf[12:15])
	d.Type = buf[15]
	return d
}

func putString(buf []byte, s string) {
	// ASCII fields are space padded; subnqn is NUL padded by the caller
	n := copy(buf, s)
	for i := n; i < len(buf); i++ {
		buf[i] = ' '
	}
}

func getString(buf []byte) string {
	return string(bytes.TrimRight(bytes.TrimRight(buf, "\x00"), " "))
}

func marshalCtrlr(buf []byte, c *IdfyCtrlr) {
	clear(buf[:IdentifyRecordSize])
	binary.LittleEndian.PutUint16(buf[offCtrlrVID:], c.VID)
	binary.LittleEndian.PutUint16(buf[offCtrlrSSVID:], c.SSVID)
	putString(buf[offCtrlrSN:offCtrlrSN+lenCtrlrSN], c.SN)
	putString(buf[offCtrlrMN:offCtrlrMN+lenCtrlrMN], c.MN)
	putString(buf[offCtrlrFR:offCtrlrFR+lenCtrlrFR], c.FR)
	buf[offCtrlrMDTS] = c.MDTS
	binary.LittleEndian.PutUint16(buf[offCtrlrCNTLID:], c.CNTLID)
	binary.LittleEndian.PutUint32(buf[offCtrlrVER:], c.VER)
	binary.LittleEndian.PutUint32(buf[offCtrlrNN:], c.NN)
	copy(buf[offCtrlrSUBNQN:offCtrlrSUBNQN+lenCtrlrSUBNQN], c.SUBNQN)
}

func unmarshalCtrlr(data []byte, c *IdfyCtrlr) {
	c.VID = binary.LittleEndian.Uint16(data[offCtrlrVID:])
	c.SSVID = binary.LittleEndian.Uint16(data[offCtrlrSSVID:])
	c.SN = getString(data[offCtrlrSN : offCtrlrSN+lenCtrlrSN])
	c.MN = getString(data[offCtrlrMN : offCtrlrMN+lenCtrlrMN])
	c.FR = getString(data[offCtrlrFR : offCtrlrFR+lenCtrlrFR])
	c.MDTS = data[offCtrlrMDTS]
	c.CNTLID = binary.LittleEndian.Uint16(data[offCtrlrCNTLID:])
	c.VER = binary.LittleEndian.Uint32(data[offCtrlrVER:])
	c.NN = binary.LittleEndian.Uint32(data[offCtrlrNN:])
	c.SUBNQN = getString(data[offCtrlrSUBNQN : offCtrlrSUBNQN+lenCtrlrSUBNQN])
}

func marshalNs(buf []byte, n *IdfyNs) {
	clear(buf[:IdentifyRecordSize])
	binary.LittleEndian.PutUint64(buf[offNsNSZE:], n.NSZE)
	binary.LittleEndian.PutUint64(buf[offNsNCAP:], n.NCAP)
	binary.LittleEndian.PutUint64(buf[offNsNUSE:], n.NUSE)
	buf[offNsNSFEAT] = n.NSFEAT
	buf[offNsNLBAF] = n.NLBAF
	buf[offNsFLBAS] = n.FLBAS
	for i, f := range n.LBAF {
		off := offNsLBAF + i*4
		binary.LittleEndian.PutUint16(buf[off:], f.MS)
		buf[off+2] = f.DS
		buf[off+3] = f.RP & 0x3
	}
}

func unmarshalNs(data []byte, n *IdfyNs) {
	n.NSZE = binary.LittleEndian.Uint64(data[offNsNSZE:])
	n.NCAP = binary.LittleEndian.Uint64(data[offNsNCAP:])
	n.NUSE = binary.LittleEndian.Uint64(data[offNsNUSE:])
	n.NSFEAT = data[offNsNSFEAT]
	n.NLBAF = data[offNsNLBAF]
	n.FLBAS = data[offNsFLBAS]
	for i := range n.LBAF {
		off := offNsLBAF + i*4
		n.LBAF[i] = LBAFormat{
			MS: binary.LittleEndian.Uint16(data[off:]),
			DS: data[off+2],
			RP: data[off+3] & 0x3,
		}
	}
}
