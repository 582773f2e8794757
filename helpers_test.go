package blkio

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-blkio/internal/logging"
)

const mockSize = 1 << 20

func newMockRegistry(t *testing.T, defs ...Def) *Registry {
	t.Helper()
	reg, err := NewRegistry(defs...)
	require.NoError(t, err)
	reg.SetLogger(logging.Nop())
	return reg
}

func openMock(t *testing.T, opts *Opts) (*Device, *MockBackend) {
	t.Helper()
	m := NewMockBackend(mockSize)
	dev, err := newMockRegistry(t, m.Def()).Open("mock://0", opts)
	require.NoError(t, err)
	t.Cleanup(dev.Close)
	m.Reset()
	return dev, m
}

func pattern(n int, seed byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = seed + byte(i)
	}
	return buf
}
