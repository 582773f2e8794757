//go:build !linux

package uring

func newRing(Config) (Ring, error) {
	return nil, ErrUnsupported
}
