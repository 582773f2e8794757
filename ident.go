package blkio

import (
	"fmt"

	"github.com/ehrlich-b/go-blkio/internal/constants"
	"github.com/ehrlich-b/go-blkio/internal/nvme"
)

// DevType tags what kind of device a handle refers to
type DevType uint32

const (
	DevTypeUnknown DevType = iota
	DevTypeNVMeController
	DevTypeNVMeNamespace
	DevTypeBlockDevice
	DevTypeFSFile
	DevTypeRamdisk
)

var devTypeNames = map[DevType]string{
	DevTypeUnknown:        "unknown",
	DevTypeNVMeController: "nvme-controller",
	DevTypeNVMeNamespace:  "nvme-namespace",
	DevTypeBlockDevice:    "block-device",
	DevTypeFSFile:         "fs-file",
	DevTypeRamdisk:        "ramdisk",
}

func (t DevType) String() string {
	if s, ok := devTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("devtype(%d)", uint32(t))
}

// MarshalYAML prints the type by name
func (t DevType) MarshalYAML() (any, error) {
	return t.String(), nil
}

// Ident identifies an opened or enumerated device
type Ident struct {
	URI    string  `yaml:"uri"`
	DType  DevType `yaml:"dtype"`
	NSID   uint32  `yaml:"nsid"`
	CSI    uint8   `yaml:"csi"`
	SubNQN string  `yaml:"subnqn,omitempty"`
}

// NewIdent validates uri and returns an identity with unknown type and
// command set
func NewIdent(uri string, nsid uint32) (Ident, error) {
	if uri == "" {
		return Ident{}, NewError("ident.new", ErrCodeInvalidArgument, "empty uri")
	}
	if len(uri) >= constants.IdentURILen {
		return Ident{}, NewErrorf("ident.new", ErrCodeInvalidArgument,
			"uri length %d exceeds %d", len(uri), constants.IdentURILen-1)
	}
	return Ident{
		URI:   uri,
		DType: DevTypeUnknown,
		NSID:  nsid,
		CSI:   nvme.CSIUnknown,
	}, nil
}
