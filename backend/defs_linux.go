//go:build linux

package backend

import (
	"github.com/ehrlich-b/go-blkio"
	"github.com/ehrlich-b/go-blkio/backend/linux"
)

func platformDefs() []blkio.Def {
	return []blkio.Def{linux.Def()}
}
