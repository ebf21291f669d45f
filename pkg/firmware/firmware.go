// Package firmware relocates the non-dynamic firmware images staged earlier
// in the pipeline and maps firmware file names to the device partitions they
// flash to.
package firmware

import (
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"porttools/pkg/fsutil"
)

// partitionNames maps firmware file names whose flash target does not match
// their stem. Everything else flashes to a partition named after the stem.
// This table mirrors the factory flash scripts; keep it in sync with them.
var partitionNames = map[string]string{
	"uefi_sec.mbn": "uefisecapp",
	"qupv3fw.elf":  "qupfw",
	"NON-HLOS.bin": "modem",
	"km4.mbn":      "keymaster",
	"BTFM.bin":     "bluetooth",
	"dspso.bin":    "dsp",
}

// PartitionFor returns the flash target partition for a firmware file name.
// ok is false for files that must not get a firmware-flash command: boot.img
// is flashed by the boot-image flow and dtbo/cust images are handled on
// their own.
func PartitionFor(filename string) (partition string, ok bool) {
	if filename == "boot.img" {
		return "", false
	}
	if strings.Contains(filename, "dtbo") || strings.Contains(filename, "cust") {
		return "", false
	}

	if part, found := partitionNames[filename]; found {
		return part, true
	}

	stem := filename
	if i := strings.Index(filename, "."); i >= 0 {
		stem = filename[:i]
	}
	return stem, true
}

// Collect moves every staged firmware image from srcDir into destDir,
// unmodified, and removes srcDir afterwards. A missing source directory is
// not an error: not every ROM ships loose firmware.
func Collect(srcDir, destDir string) (int, error) {
	if _, err := os.Stat(srcDir); err != nil {
		log.WithField("dir", srcDir).Info("No staged firmware directory, skipping collection")
		return 0, nil
	}

	moved := 0
	for _, name := range fsutil.Glob(srcDir, "*.img") {
		if err := fsutil.MoveFile(filepath.Join(srcDir, name), filepath.Join(destDir, name)); err != nil {
			return moved, err
		}
		log.WithField("firmware", name).Debug("Collected firmware image")
		moved++
	}

	if err := os.RemoveAll(srcDir); err != nil {
		log.WithField("dir", srcDir).WithError(err).Warn("Failed to remove firmware staging directory")
	}

	log.WithField("count", moved).Info("Collected firmware images")
	return moved, nil
}
