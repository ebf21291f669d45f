// Package assemble stages built images into a distributable package: either
// a hybrid fastboot+recovery flashable zip or an OTA payload package.
package assemble

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"porttools/pkg/buildctx"
	"porttools/pkg/firmware"
	"porttools/pkg/fsutil"
	"porttools/pkg/superimage"
)

// Hybrid assembles the fastboot+recovery flashable package. superPath is the
// composed container to embed ("" when composition was skipped). It returns
// the path of the deliverable: the final zip, or the staging directory when
// running unattended.
func Hybrid(ctx *buildctx.Context, superPath string) (string, error) {
	ctx.Log.Info("Generating hybrid flashing package")

	staging := filepath.Join(ctx.Paths.OutDir,
		fmt.Sprintf("%s_%s_hybrid", ctx.Facts.DeviceCode, ctx.Facts.TargetVersion))
	if err := os.RemoveAll(staging); err != nil {
		return "", fmt.Errorf("failed to clear staging directory: %w", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	if exists(ctx.Paths.TemplateDir) {
		ctx.Log.WithField("template", ctx.Paths.TemplateDir).Info("Seeding staging from template")
		if err := ctx.Copy.CopyTree(ctx.Paths.TemplateDir, staging); err != nil {
			return "", fmt.Errorf("failed to seed staging from template: %w", err)
		}
	}

	imagesDir := filepath.Join(staging, "images")
	metaInf := filepath.Join(staging, "META-INF", "com", "google", "android")
	for _, dir := range []string{filepath.Join(staging, "bin"), imagesDir, metaInf} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	hasSuper := false
	superName := ""
	if superPath != "" && exists(superPath) {
		superName = filepath.Base(superPath)
		if err := fsutil.MoveFile(superPath, filepath.Join(imagesDir, superName)); err != nil {
			return "", fmt.Errorf("failed to move super container: %w", err)
		}
		hasSuper = true
	}

	if err := gatherImages(ctx, imagesDir, hasSuper); err != nil {
		return "", err
	}

	if _, err := firmware.Collect(ctx.Paths.FirmwareDir, imagesDir); err != nil {
		return "", fmt.Errorf("failed to collect firmware images: %w", err)
	}

	firmwareFiles := fsutil.Glob(imagesDir, "*")

	if err := patchDesktopScripts(ctx, staging, firmwareFiles); err != nil {
		return "", err
	}
	if err := installUpdateBinary(ctx, metaInf, firmwareFiles); err != nil {
		return "", err
	}

	// Some recovery environments refuse a package without an updater-script.
	dummy := filepath.Join(metaInf, "updater-script")
	if err := os.WriteFile(dummy, []byte("# dummy\n"), 0o644); err != nil {
		return "", fmt.Errorf("failed to write updater-script: %w", err)
	}

	if ctx.Unattended {
		ctx.Log.WithField("staging", staging).Info("Unattended build: skipping zip, staging directory is the deliverable")
		return staging, nil
	}

	return zipHybrid(ctx, staging, superName)
}

// gatherImages relocates the remaining partition images into the staging
// images folder. Images of dynamic partitions are redundant once a super
// container exists and are deleted instead.
func gatherImages(ctx *buildctx.Context, imagesDir string, hasSuper bool) error {
	for _, name := range fsutil.Glob(ctx.Paths.TargetDir, "*.img") {
		if name == "super.img" {
			continue
		}
		src := filepath.Join(ctx.Paths.TargetDir, name)
		stem := strings.TrimSuffix(name, ".img")

		if hasSuper && superimage.IsDynamicPartition(stem) {
			log.WithField("image", name).Info("Deleting redundant dynamic partition image (contained in super)")
			if err := os.Remove(src); err != nil {
				return fmt.Errorf("failed to remove redundant image %s: %w", name, err)
			}
			continue
		}

		if err := fsutil.MoveFile(src, filepath.Join(imagesDir, name)); err != nil {
			return fmt.Errorf("failed to move image %s: %w", name, err)
		}
	}
	return nil
}

// patchDesktopScripts runs placeholder substitution, A-only rewriting and
// firmware command injection over the top-level shell and batch scripts.
func patchDesktopScripts(ctx *buildctx.Context, staging string, firmwareFiles []string) error {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return fmt.Errorf("failed to list staging directory: %w", err)
	}

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".sh" && ext != ".bat") {
			continue
		}

		style := StyleShell
		if ext == ".bat" {
			style = StyleBatch
		}

		path := filepath.Join(staging, entry.Name())
		log.WithField("script", entry.Name()).Info("Patching flashing script")

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read script %s: %w", entry.Name(), err)
		}

		content := SubstitutePlaceholders(string(raw), ctx.Facts)
		if !ctx.Facts.IsAB {
			content = StripSlotSuffixes(content)
		}

		content, ok := InjectFirmwareCommands(content, firmwareFiles, ctx.Facts.IsAB, style)
		if !ok {
			log.WithField("script", entry.Name()).Warn("Firmware marker not found, firmware flashing commands not injected")
		}

		if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
			return fmt.Errorf("failed to write script %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// installUpdateBinary seeds the recovery update program and its helper
// binary from the flash template, then patches it like the desktop scripts.
func installUpdateBinary(ctx *buildctx.Context, metaInf string, firmwareFiles []string) error {
	flashTemplate := filepath.Join(ctx.Paths.BinRoot, "flash")
	src := filepath.Join(flashTemplate, "update-binary")
	if !exists(src) {
		log.WithField("template", flashTemplate).Warn("No update-binary template, recovery flashing unavailable")
		return nil
	}

	raw, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read update-binary template: %w", err)
	}

	content := SubstitutePlaceholders(string(raw), ctx.Facts)
	if !ctx.Facts.IsAB {
		content = PatchRecoveryAOnly(content)
	}
	content, ok := InjectFirmwareCommands(content, firmwareFiles, ctx.Facts.IsAB, StyleRecovery)
	if !ok {
		log.Warn("Firmware marker not found in update-binary, firmware flashing commands not injected")
	}

	dst := filepath.Join(metaInf, "update-binary")
	if err := os.WriteFile(dst, []byte(content), 0o755); err != nil {
		return fmt.Errorf("failed to write update-binary: %w", err)
	}

	// The recovery-side decompressor ships next to META-INF/com.
	zstdHelper := filepath.Join(flashTemplate, "zstd")
	if exists(zstdHelper) {
		metaRoot := filepath.Dir(filepath.Dir(filepath.Dir(metaInf)))
		if err := copyRegular(zstdHelper, filepath.Join(metaRoot, "zstd")); err != nil {
			return fmt.Errorf("failed to copy zstd helper: %w", err)
		}
	}
	return nil
}

func zipHybrid(ctx *buildctx.Context, staging, superName string) (string, error) {
	ctx.Log.Info("Zipping hybrid package")
	timestamp := time.Now().Format("20060102150405")

	workName := fmt.Sprintf("%s-hybrid-%s-%s.zip", ctx.Facts.DeviceCode, ctx.Facts.TargetVersion, timestamp)
	workPath := filepath.Join(ctx.Paths.OutDir, workName)

	if err := writeZip(staging, workPath, storedEntries(superName)); err != nil {
		return "", err
	}

	checksum, err := checksumTag(workPath)
	if err != nil {
		return "", err
	}

	// The recovery update program parses the underscore-separated fields of
	// its own zip name to self-verify, so the order here is load-bearing.
	finalName := fmt.Sprintf("%s_Hybrid_%s_%s_%s.zip", ctx.Facts.DeviceCode, ctx.Facts.TargetVersion, checksum, timestamp)
	finalPath := filepath.Join(ctx.Paths.OutDir, finalName)
	if err := os.Rename(workPath, finalPath); err != nil {
		return "", fmt.Errorf("failed to rename package: %w", err)
	}

	if err := os.RemoveAll(staging); err != nil {
		log.WithField("staging", staging).WithError(err).Warn("Failed to remove staging directory")
	}

	ctx.Log.WithField("package", finalPath).Info("Hybrid package generated")
	return finalPath, nil
}

// storedEntries names the zip entries written without compression. Only a
// zstd container qualifies: when compression degraded, the raw super.img
// still benefits from deflate like everything else.
func storedEntries(superName string) map[string]bool {
	if strings.HasSuffix(superName, ".zst") {
		return map[string]bool{superName: true}
	}
	return nil
}

func copyRegular(src, dst string) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, raw, 0o755)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
