package assemble

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"porttools/pkg/buildctx"
	"porttools/pkg/fsutil"
	"porttools/pkg/shellcmd"
	"porttools/pkg/superimage"
)

// bootOverrides maps a glob in the per-device override directory to the
// image name it replaces in the target-files tree.
var bootOverrides = []struct {
	glob string
	dest string
}{
	{"boot*.img", "boot.img"},
	{"dtbo*.img", "dtbo.img"},
	{"recovery.img", "recovery.img"},
	{"init_boot-kernelsu.img", "init_boot.img"},
}

// propFolders maps partitions to the uppercase target-files folder their
// property file is copied into.
var propFolders = map[string]string{
	"system":     "SYSTEM",
	"product":    "PRODUCT",
	"system_ext": "SYSTEM_EXT",
	"vendor":     "VENDOR",
	"odm":        "ODM",
}

// Ota assembles the OTA payload package: it lays out an Android target-files
// tree, generates the META descriptors and hands the tree to the external
// payload generator. It returns the final package path.
func Ota(ctx *buildctx.Context) (string, error) {
	ctx.Log.Info("Starting OTA payload packing")

	productOut := filepath.Join(ctx.Paths.OutDir, "target", "product", ctx.Facts.DeviceCode)
	imagesOut := filepath.Join(productOut, "IMAGES")
	metaOut := filepath.Join(productOut, "META")

	if err := os.RemoveAll(productOut); err != nil {
		return "", errors.Wrap(err, "failed to clear target-files tree")
	}
	for _, dir := range []string{imagesOut, metaOut} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrapf(err, "failed to create %s", dir)
		}
	}
	for _, part := range []string{"SYSTEM", "SYSTEM_EXT", "PRODUCT", "VENDOR", "ODM", "MI_EXT"} {
		if err := os.MkdirAll(filepath.Join(productOut, part), 0o755); err != nil {
			return "", errors.Wrapf(err, "failed to create %s", part)
		}
	}

	ctx.Log.Info("Collecting partition images")
	for _, name := range fsutil.Glob(ctx.Paths.TargetDir, "*.img") {
		src := filepath.Join(ctx.Paths.TargetDir, name)
		if err := copyRegular(src, filepath.Join(imagesOut, name)); err != nil {
			return "", errors.Wrapf(err, "failed to copy %s", name)
		}
	}

	ctx.Log.Info("Collecting firmware images")
	if exists(ctx.Paths.FirmwareDir) {
		for _, name := range fsutil.Glob(ctx.Paths.FirmwareDir, "*.img") {
			src := filepath.Join(ctx.Paths.FirmwareDir, name)
			if err := copyRegular(src, filepath.Join(imagesOut, name)); err != nil {
				return "", errors.Wrapf(err, "failed to copy firmware %s", name)
			}
		}
	}

	applyDeviceOverrides(ctx, imagesOut)

	if err := writeMetaInfo(ctx, imagesOut, metaOut); err != nil {
		return "", err
	}
	copyBuildProps(ctx, productOut)

	return runPayloadTool(ctx, productOut)
}

// applyDeviceOverrides replaces boot-class images with per-device overrides
// (patched kernels, custom recovery) when the devices directory carries
// them.
func applyDeviceOverrides(ctx *buildctx.Context, imagesOut string) {
	overrideDir := filepath.Join(ctx.Paths.DevicesDir, ctx.Facts.DeviceCode)
	if !exists(overrideDir) {
		return
	}

	for _, override := range bootOverrides {
		matches := fsutil.Glob(overrideDir, override.glob)
		if len(matches) == 0 {
			continue
		}
		src := filepath.Join(overrideDir, matches[0])
		if err := copyRegular(src, filepath.Join(imagesOut, override.dest)); err != nil {
			log.WithField("image", override.dest).WithError(err).Warn("Failed to apply device override")
			continue
		}
		log.WithField("image", override.dest).WithField("override", matches[0]).Info("Applied device override image")
	}
}

func writeMetaInfo(ctx *buildctx.Context, imagesOut, metaOut string) error {
	ctx.Log.Info("Generating META info")

	var stems []string
	for _, name := range fsutil.Glob(imagesOut, "*.img") {
		stems = append(stems, strings.TrimSuffix(name, ".img"))
	}
	names := abPartitionList(stems)

	files := map[string]string{
		"ab_partitions.txt":           abPartitionsContent(names),
		"dynamic_partitions_info.txt": dynamicPartitionsInfo(superimage.SuperSize(ctx.Facts.DeviceCode), names),
		"misc_info.txt":               miscInfoContent(),
		"update_engine_config.txt":    updateEngineConfigContent(),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(metaOut, name), []byte(content), 0o644); err != nil {
			return errors.Wrapf(err, "failed to write META/%s", name)
		}
	}
	return nil
}

// copyBuildProps copies each partition's property file into its uppercase
// folder so the payload tool can read the build fingerprint. Best-effort: a
// missing property file degrades the OTA metadata, it does not stop the
// build.
func copyBuildProps(ctx *buildctx.Context, productOut string) {
	for partition, folder := range propFolders {
		src := findBuildProp(filepath.Join(ctx.Paths.TargetDir, partition))
		if src == "" {
			log.WithField("partition", partition).Warn("build.prop not found, OTA metadata may be incomplete")
			continue
		}
		if err := copyRegular(src, filepath.Join(productOut, folder, "build.prop")); err != nil {
			log.WithField("partition", partition).WithError(err).Warn("Failed to copy build.prop")
		}
	}
}

// findBuildProp checks the conventional property file locations within a
// staged partition tree.
func findBuildProp(partDir string) string {
	for _, rel := range []string{"build.prop", "system/build.prop", "etc/build.prop"} {
		path := filepath.Join(partDir, rel)
		if exists(path) {
			return path
		}
	}
	return ""
}

// runPayloadTool invokes ota_from_target_files with an isolated scratch
// TMPDIR and the otatools bin directory on PATH, then stamps the output name
// with device, version, timestamp, checksum and Android version.
func runPayloadTool(ctx *buildctx.Context, productOut string) (string, error) {
	ctx.Log.Info("Running ota_from_target_files")

	timestamp := time.Now().Format("20060102150405")
	workPath := filepath.Join(ctx.Paths.OutDir, fmt.Sprintf("%s-ota_full-%s.zip", ctx.Facts.DeviceCode, timestamp))

	keyPath := filepath.Join(ctx.Paths.OtaToolsDir, "security", "testkey")
	if !exists(keyPath + ".pk8") {
		log.WithField("key", keyPath).Warn("Signing key not found in otatools/security")
	}

	scratch := filepath.Join(ctx.Paths.OutDir, "tmp")
	if err := os.RemoveAll(scratch); err != nil {
		return "", errors.Wrap(err, "failed to clear scratch directory")
	}
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create scratch directory")
	}

	err := shellcmd.Cmd(ctx.Tools.OtaTool, "-v", "-k", keyPath, productOut, workPath).
		WithEnv(
			"TMPDIR="+scratch,
			"PATH="+filepath.Join(ctx.Paths.OtaToolsDir, "bin")+string(os.PathListSeparator)+os.Getenv("PATH"),
		).
		Run()
	if err != nil {
		return "", errors.Wrap(err, "OTA payload generation failed")
	}

	checksum, err := checksumTag(workPath)
	if err != nil {
		return "", err
	}

	finalName := fmt.Sprintf("%s-ota_full-%s-%s-%s-%s.zip",
		ctx.Facts.DeviceCode, ctx.Facts.TargetVersion, timestamp, checksum, ctx.Facts.PortAndroidVersion)
	finalPath := filepath.Join(ctx.Paths.OutDir, finalName)
	if err := os.Rename(workPath, finalPath); err != nil {
		return "", errors.Wrap(err, "failed to rename OTA package")
	}

	ctx.Log.WithField("package", finalPath).Info("OTA package generated")
	return finalPath, nil
}
