// Package backend assembles the built-in backends into a registry
package backend

import (
	"github.com/ehrlich-b/go-blkio"
	"github.com/ehrlich-b/go-blkio/backend/posix"
	"github.com/ehrlich-b/go-blkio/backend/ramdisk"
)

// Defs returns the built-in backend definitions in the order Open tries
// them. The ramdisk comes first since it only accepts its own URIs; the
// portable file backend comes last.
func Defs() []blkio.Def {
	defs := []blkio.Def{ramdisk.Def()}
	defs = append(defs, platformDefs()...)
	return append(defs, posix.Def())
}

// NewRegistry registers every built-in backend and applies cfg, which may
// be nil
func NewRegistry(cfg *blkio.Config) (*blkio.Registry, error) {
	reg, err := blkio.NewRegistry(Defs()...)
	if err != nil {
		return nil, err
	}
	if err := reg.Configure(cfg); err != nil {
		return nil, err
	}
	return reg, nil
}
