package firmware

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionFor(t *testing.T) {
	tests := []struct {
		filename  string
		partition string
		ok        bool
	}{
		{"uefi_sec.mbn", "uefisecapp", true},
		{"qupv3fw.elf", "qupfw", true},
		{"NON-HLOS.bin", "modem", true},
		{"km4.mbn", "keymaster", true},
		{"BTFM.bin", "bluetooth", true},
		{"dspso.bin", "dsp", true},

		// Unknown firmware flashes to the partition named after its stem.
		{"xbl.img", "xbl", true},
		{"tz.mbn", "tz", true},
		{"abl.elf", "abl", true},

		// Excluded from firmware injection entirely.
		{"boot.img", "", false},
		{"dtbo.img", "", false},
		{"cust.img", "", false},
		{"dtbo_custom.img", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.filename, func(t *testing.T) {
			partition, ok := PartitionFor(tc.filename)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.partition, partition)
		})
	}
}

func TestCollect(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()

	for _, name := range []string{"xbl.img", "tz.img"} {
		require.NoError(t, os.WriteFile(filepath.Join(src, name), []byte("fw"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("x"), 0o644))

	moved, err := Collect(src, dest)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	assert.FileExists(t, filepath.Join(dest, "xbl.img"))
	assert.FileExists(t, filepath.Join(dest, "tz.img"))
	assert.NoFileExists(t, filepath.Join(dest, "notes.txt"))

	// Source staging dir is gone afterwards.
	assert.NoDirExists(t, src)
}

func TestCollectMissingSource(t *testing.T) {
	dest := t.TempDir()

	moved, err := Collect(filepath.Join(dest, "nope"), dest)
	require.NoError(t, err)
	assert.Zero(t, moved)
}
