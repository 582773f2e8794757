package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(args, &out)
	return out.String(), err
}

func TestInfoRamdisk(t *testing.T) {
	out, err := runCmd(t, "info", "ramdisk://1MB")
	require.NoError(t, err)
	assert.Contains(t, out, "uri: ramdisk://1MB")
	assert.Contains(t, out, "dtype: ramdisk")
	assert.Contains(t, out, "thrpool")
}

func TestInfoMixinSelection(t *testing.T) {
	out, err := runCmd(t, "info", "--async", "emu", "ramdisk://1MB")
	require.NoError(t, err)
	assert.Contains(t, out, "name: emu")
	assert.NotContains(t, out, "name: thrpool")
}

func TestIORamdisk(t *testing.T) {
	for _, async := range []string{"emu", "thrpool"} {
		t.Run(async, func(t *testing.T) {
			out, err := runCmd(t, "io", "--async", async, "--qdepth", "8", "--count", "100", "ramdisk://1MB")
			require.NoError(t, err)
			assert.Contains(t, out, "# 100 blocks of 512 bytes, qdepth 8")
			assert.Contains(t, out, "write_ops: 100")
			assert.Contains(t, out, "read_ops: 100")
		})
	}
}

func TestIOFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 64*1024), 0600))

	out, err := runCmd(t, "io", "--be", "posix", "--count", "1000", path)
	require.NoError(t, err)
	assert.Contains(t, out, "# 128 blocks", "count is capped by the device size")
}

func TestIONilMovesNoData(t *testing.T) {
	_, err := runCmd(t, "io", "--async", "nil", "--qdepth", "16", "--count", "32", "ramdisk://1MB")
	assert.ErrorContains(t, err, "differs")
}

func TestEnumDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.img"), nil, 0600))

	out, err := runCmd(t, "enum", "--be", "posix", dir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "a.img"))

	out, err = runCmd(t, "enum", "--be", "posix", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "no devices found")
}

func TestList(t *testing.T) {
	out, err := runCmd(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "name: ramdisk")
	assert.Contains(t, out, "name: posix")
	assert.Contains(t, out, "name: file_as_ns")
}

func TestConfigFile(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "blkio.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("backends:\n  ramdisk: false\nlogging:\n  level: error\n"), 0600))

	_, err := runCmd(t, "info", "--config", cfg, "ramdisk://1MB")
	assert.Error(t, err)

	_, err = runCmd(t, "info", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "ramdisk://1MB")
	assert.Error(t, err)
}

func TestUsageErrors(t *testing.T) {
	_, err := runCmd(t)
	assert.Error(t, err)

	_, err = runCmd(t, "frobnicate")
	assert.ErrorContains(t, err, "unknown command")

	_, err = runCmd(t, "info")
	assert.ErrorContains(t, err, "needs a device uri")

	_, err = runCmd(t, "io", "--qdepth", "abc", "ramdisk://1MB")
	assert.Error(t, err)

	out, err := runCmd(t, "help")
	require.NoError(t, err)
	assert.Contains(t, out, "usage: blkio")
}
