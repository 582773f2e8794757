package blkio

import (
	"fmt"
	"math/bits"

	"github.com/ehrlich-b/go-blkio/internal/constants"
)

// GeoType tags the addressing model of a device
type GeoType uint32

const (
	GeoUnknown GeoType = iota
	GeoConventional
	GeoZoned
	GeoKV
)

func (t GeoType) String() string {
	switch t {
	case GeoUnknown:
		return "unknown"
	case GeoConventional:
		return "conventional"
	case GeoZoned:
		return "zoned"
	case GeoKV:
		return "kv"
	}
	return fmt.Sprintf("geotype(%d)", uint32(t))
}

func (t GeoType) MarshalYAML() (any, error) {
	return t.String(), nil
}

// Geometry is the device layout derived at open time
type Geometry struct {
	Type GeoType `yaml:"type"`

	NPUGrp uint32 `yaml:"npugrp"`
	NPUnit uint32 `yaml:"npunit"`
	NZone  uint32 `yaml:"nzone"`
	NSect  uint64 `yaml:"nsect"`

	NBytes    uint32 `yaml:"nbytes"`     // logical block size
	NBytesOOB uint32 `yaml:"nbytes_oob"` // metadata bytes per block

	TBytes     uint64 `yaml:"tbytes"`
	MDTSNBytes uint64 `yaml:"mdts_nbytes"`

	LBANBytes   uint32 `yaml:"lba_nbytes"`
	LBAExtended bool   `yaml:"lba_extended"`
	SSW         uint8  `yaml:"ssw"` // log2(nbytes)
}

// deriveGeometry computes a conventional geometry from identify data
func deriveGeometry(ctrlr *IdfyCtrlr, ns *IdfyNs) (Geometry, error) {
	lbaf := ns.LBAF[ns.FormatIndex()]
	if lbaf.DS == 0 || lbaf.DS >= 32 {
		return Geometry{}, NewErrorf("geo.derive", ErrCodeInvalidArgument, "invalid lba data size 2^%d", lbaf.DS)
	}

	geo := Geometry{
		Type:      GeoConventional,
		NPUGrp:    1,
		NPUnit:    1,
		NZone:     1,
		NSect:     ns.NSZE,
		NBytes:    1 << lbaf.DS,
		NBytesOOB: uint32(lbaf.MS),
	}
	geo.LBAExtended = ns.Extended() && lbaf.MS > 0
	geo.LBANBytes = geo.NBytes
	if geo.LBAExtended {
		geo.LBANBytes += geo.NBytesOOB
	}
	geo.TBytes = geo.NSect * uint64(geo.NBytes)
	geo.SSW = uint8(bits.TrailingZeros32(geo.NBytes))

	if ctrlr.MDTS == 0 {
		geo.MDTSNBytes = constants.DefaultMDTSBytes
	} else {
		geo.MDTSNBytes = (1 << ctrlr.MDTS) * constants.MinPageSize
	}
	return geo, nil
}
