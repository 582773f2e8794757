//go:build !linux

package backend

import "github.com/ehrlich-b/go-blkio"

func platformDefs() []blkio.Def {
	return nil
}
