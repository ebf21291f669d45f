package buildctx

import (
	"os/exec"
	"path/filepath"
	"runtime"

	log "github.com/sirupsen/logrus"
)

// Toolchain holds the resolved paths of every external tool the pipeline
// invokes. It is resolved once at startup and never mutated afterwards.
type Toolchain struct {
	MkfsErofs string
	Mke2fs    string
	E2fsdroid string
	Resize2fs string
	Tune2fs   string
	Lpmake    string
	OtaTool   string
}

// ResolveToolchain locates the packaging tools. Tools bundled under binRoot
// take precedence, using the platform layout bin/<os>/<arch>; anything not
// bundled is taken from PATH. lpmake and ota_from_target_files live in the
// otatools distribution and are only ever looked up there.
func ResolveToolchain(binRoot, otaToolsDir string) Toolchain {
	platformDir := platformBinDir(binRoot)
	log.WithField("dir", platformDir).Info("Platform binary dir resolved")

	return Toolchain{
		MkfsErofs: findTool(platformDir, "mkfs.erofs"),
		Mke2fs:    findTool(platformDir, "mke2fs"),
		E2fsdroid: findTool(platformDir, "e2fsdroid"),
		Resize2fs: findTool(platformDir, "resize2fs"),
		Tune2fs:   findTool(platformDir, "tune2fs"),
		Lpmake:    filepath.Join(otaToolsDir, "bin", "lpmake"),
		OtaTool:   filepath.Join(otaToolsDir, "bin", "ota_from_target_files"),
	}
}

func platformBinDir(binRoot string) string {
	osDir := "linux"
	switch runtime.GOOS {
	case "darwin":
		osDir = "macos"
	case "windows":
		osDir = "windows"
	}

	arch := "x86_64"
	if runtime.GOARCH == "arm64" {
		arch = "arm64"
	}

	dir := filepath.Join(binRoot, osDir, arch)
	if exists(dir) {
		return dir
	}
	// Older tool bundles are not split by architecture.
	return filepath.Join(binRoot, osDir)
}

func findTool(platformDir, name string) string {
	if runtime.GOOS == "windows" {
		name += ".exe"
	}

	bundled := filepath.Join(platformDir, name)
	if exists(bundled) {
		return bundled
	}

	if path, err := exec.LookPath(name); err == nil {
		return path
	}

	log.WithField("tool", name).Warn("Tool not found in bundle or PATH")
	return bundled
}
