// Package superimage composes built partition images into one dynamic
// "super" container with lpmake and compresses the result for distribution.
package superimage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"porttools/pkg/buildctx"
	"porttools/pkg/shellcmd"
)

// Container parameters fixed across all supported devices.
const (
	metadataSize  = 65536
	blockSize     = 4096
	containerName = "super"

	aOnlyGroup = "qti_dynamic_partitions"
)

// ErrComposerUnavailable is returned when the lpmake binary is missing from
// the otatools distribution. Composition is skipped, not fatal.
var ErrComposerUnavailable = errors.New("lpmake not found")

// PartitionImage is one built image declared to the composer.
type PartitionImage struct {
	Name string
	Path string
	Size int64
}

type Mode int

const (
	ModeAOnly Mode = iota
	ModeVirtualAB
)

// ComposeArgs synthesizes the lpmake argument list for the given layout.
//
// A-only: one group sized to the device budget, two metadata slots, each
// image declared once at its real size. Virtual A/B: mirrored _a/_b groups
// each sized to the full budget, three metadata slots, each image declared
// at its real size under _a and at size zero under _b; the b slot is
// populated on device by the updater, never at build time.
func ComposeArgs(mode Mode, superSize int64, outPath string, images []PartitionImage) []string {
	args := []string{
		"--metadata-size", strconv.Itoa(metadataSize),
		"--super-name", containerName,
		"--block-size", strconv.Itoa(blockSize),
		"--device", fmt.Sprintf("%s:%d", containerName, superSize),
		"--output", outPath,
	}

	switch mode {
	case ModeAOnly:
		args = append(args,
			"--metadata-slots", "2",
			"--group", fmt.Sprintf("%s:%d", aOnlyGroup, superSize),
			"-F",
		)
		for _, img := range images {
			args = append(args,
				"--partition", fmt.Sprintf("%s:none:%d:%s", img.Name, img.Size, aOnlyGroup),
				"--image", fmt.Sprintf("%s=%s", img.Name, img.Path),
			)
		}
	case ModeVirtualAB:
		args = append(args,
			"--virtual-ab",
			"--metadata-slots", "3",
			"--group", fmt.Sprintf("%s_a:%d", aOnlyGroup, superSize),
			"--group", fmt.Sprintf("%s_b:%d", aOnlyGroup, superSize),
			"-F",
		)
		for _, img := range images {
			args = append(args,
				"--partition", fmt.Sprintf("%s_a:none:%d:%s_a", img.Name, img.Size, aOnlyGroup),
				"--image", fmt.Sprintf("%s_a=%s", img.Name, img.Path),
				"--partition", fmt.Sprintf("%s_b:none:0:%s_b", img.Name, aOnlyGroup),
			)
		}
	}

	return args
}

// FindImages scans dir for composable partition images, in declaration
// order. Partitions whose build failed are simply absent.
func FindImages(dir string) []PartitionImage {
	var images []PartitionImage
	for _, name := range MemberCandidates() {
		path := filepath.Join(dir, name+".img")
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		log.WithField("partition", name).WithField("size", humanize.Bytes(uint64(info.Size()))).Info("Declaring partition in super")
		images = append(images, PartitionImage{Name: name, Path: path, Size: info.Size()})
	}
	return images
}

// Compose builds super.img in the target directory from the present
// partition images and compresses it to super.zst. It returns the path of
// the artifact to ship: the compressed container, or the raw one if
// compression degraded.
func Compose(ctx *buildctx.Context) (string, error) {
	if _, err := os.Stat(ctx.Tools.Lpmake); err != nil {
		return "", fmt.Errorf("%w at %s", ErrComposerUnavailable, ctx.Tools.Lpmake)
	}

	images := FindImages(ctx.Paths.TargetDir)
	if len(images) == 0 {
		return "", errors.New("no partition images to compose")
	}

	mode := ModeAOnly
	if ctx.Facts.IsAB {
		mode = ModeVirtualAB
		ctx.Log.Info("Packing virtual A/B super image")
	} else {
		ctx.Log.Info("Packing A-only super image")
	}

	superPath := filepath.Join(ctx.Paths.TargetDir, "super.img")
	args := ComposeArgs(mode, SuperSize(ctx.Facts.DeviceCode), superPath, images)
	if err := shellcmd.Run(ctx.Tools.Lpmake, args...); err != nil {
		return "", fmt.Errorf("failed to compose super image: %w", err)
	}
	ctx.Log.Info("super.img generated")

	zstPath := filepath.Join(ctx.Paths.TargetDir, "super.zst")
	if err := compressFile(superPath, zstPath); err != nil {
		// Degradation, not failure: the raw container still flashes.
		ctx.Log.WithError(err).Warn("zstd compression failed, keeping uncompressed super.img")
		os.Remove(zstPath)
		return superPath, nil
	}

	ctx.Log.Info("super.zst generated")
	return zstPath, nil
}
