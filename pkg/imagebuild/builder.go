// Package imagebuild turns a staged partition tree plus its ownership and
// security-label manifests into a single filesystem image, either EROFS
// (read-only, compressed) or ext4 (writable block image).
package imagebuild

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"porttools/pkg/buildctx"
	"porttools/pkg/fsutil"
	"porttools/pkg/shellcmd"
)

// FixedTimestamp is stamped into every image so that repeated runs over the
// same input produce identical bits.
const FixedTimestamp = "1230768000"

// shrinkExemptPartition is never rebuilt in the second fit pass. The vendor
// partition layout references mi_ext's image size downstream, so its size
// must stay stable across repacks. This is a device-family quirk kept as a
// named exception, not a general policy.
const shrinkExemptPartition = "mi_ext"

type Format string

const (
	FormatErofs Format = "erofs"
	FormatExt4  Format = "ext4"
)

// Request describes one partition image build.
type Request struct {
	Name         string
	TreeDir      string
	OutPath      string
	FSConfig     string
	FileContexts string
	Format       Format

	// ReadWrite builds the ext4 image without de-duplication sharing so the
	// filesystem stays safely writable on device.
	ReadWrite bool
}

type Builder struct {
	tools buildctx.Toolchain
}

func NewBuilder(tools buildctx.Toolchain) *Builder {
	return &Builder{tools: tools}
}

// Build produces the image for one partition. The manifests are expected to
// have been applied to the tree already; a missing manifest is logged and
// the image is built without it.
func (b *Builder) Build(req Request) error {
	log.WithField("partition", req.Name).WithField("format", req.Format).Info("Packing partition image")

	if !exists(req.FSConfig) {
		log.WithField("partition", req.Name).Warn("fs_config not found, building without ownership manifest")
		req.FSConfig = ""
	}
	if !exists(req.FileContexts) {
		log.WithField("partition", req.Name).Warn("file_contexts not found, building without label manifest")
		req.FileContexts = ""
	}

	if req.Format == FormatExt4 {
		return b.buildExt4(req)
	}
	return b.buildErofs(req)
}

// buildErofs runs one deterministic mkfs.erofs invocation and deletes the
// source tree on success to bound disk usage. The deletion is irreversible
// and therefore sequenced strictly after manifest patching.
func (b *Builder) buildErofs(req Request) error {
	args := []string{
		"-zlz4hc,8",
		"-T", FixedTimestamp,
		"--mount-point", "/" + req.Name,
	}
	if req.FSConfig != "" {
		args = append(args, "--fs-config-file", req.FSConfig)
	}
	if req.FileContexts != "" {
		args = append(args, "--file-contexts", req.FileContexts)
	}
	args = append(args, req.OutPath, req.TreeDir)

	if err := shellcmd.Run(b.tools.MkfsErofs, args...); err != nil {
		return fmt.Errorf("failed to pack %s as erofs: %w", req.Name, err)
	}

	log.WithField("partition", req.Name).Info("Packed EROFS image, removing source tree")
	if err := os.RemoveAll(req.TreeDir); err != nil {
		log.WithField("dir", req.TreeDir).WithError(err).Warn("Failed to remove source tree")
	}
	return nil
}

// buildExt4 runs the two-pass fit: build at a conservative initial size,
// shrink to minimum, then rebuild once at the post-shrink size to reclaim
// the remaining free blocks. Two passes are needed because mke2fs cannot be
// told an exact minimal size up front.
func (b *Builder) buildExt4(req Request) error {
	treeBytes := fsutil.TreeSize(req.TreeDir)
	size := InitialSize(treeBytes)
	log.WithField("partition", req.Name).
		WithField("tree", humanize.Bytes(uint64(treeBytes))).
		WithField("image", humanize.Bytes(uint64(size))).
		Info("Computed initial ext4 size")

	// mke2fs refuses to populate without lost+found present in the tree.
	if err := os.MkdirAll(filepath.Join(req.TreeDir, "lost+found"), 0o755); err != nil {
		return fmt.Errorf("failed to create lost+found for %s: %w", req.Name, err)
	}

	inodes := inodeCount(req.FSConfig)

	if err := b.makeExt4(req, size, inodes); err != nil {
		return err
	}
	if err := shellcmd.Run(b.tools.Resize2fs, "-f", "-M", req.OutPath); err != nil {
		return fmt.Errorf("failed to shrink %s: %w", req.Name, err)
	}

	free := b.freeBlocks(req.OutPath)
	if !needsSecondPass(req.Name, free) {
		return nil
	}

	info, err := os.Stat(req.OutPath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", req.OutPath, err)
	}
	newSize := align(info.Size() - free*BlockSize)

	log.WithField("partition", req.Name).
		WithField("size", humanize.Bytes(uint64(newSize))).
		Info("Rebuilding image at optimized size")
	if err := os.Remove(req.OutPath); err != nil {
		return fmt.Errorf("failed to remove first-pass image: %w", err)
	}

	if err := b.makeExt4(req, newSize, inodes); err != nil {
		return err
	}
	if err := shellcmd.Run(b.tools.Resize2fs, "-f", "-M", req.OutPath); err != nil {
		return fmt.Errorf("failed to shrink %s: %w", req.Name, err)
	}
	return nil
}

// needsSecondPass decides whether the post-shrink image is rebuilt at a
// tighter size. The exempt partition keeps its first-pass size; otherwise a
// rebuild only pays off when the shrunk filesystem still reports free
// blocks.
func needsSecondPass(name string, freeBlocks int64) bool {
	return name != shrinkExemptPartition && freeBlocks > 0
}

// makeExt4 creates an empty ext4 image with mke2fs and populates it from the
// tree with e2fsdroid.
func (b *Builder) makeExt4(req Request, size int64, inodes int) error {
	mkfsArgs := []string{
		"-O", "^has_journal",
		"-L", req.Name,
		"-I", "256",
		"-N", strconv.Itoa(inodes),
		"-M", "/" + req.Name,
		"-m", "0",
		"-t", "ext4",
		"-b", strconv.Itoa(BlockSize),
		req.OutPath,
		strconv.FormatInt(size/BlockSize, 10),
	}
	if err := shellcmd.Run(b.tools.Mke2fs, mkfsArgs...); err != nil {
		return fmt.Errorf("mke2fs failed for %s: %w", req.Name, err)
	}

	populateArgs := []string{"-e", "-T", FixedTimestamp}
	if req.FSConfig != "" {
		populateArgs = append(populateArgs, "-C", req.FSConfig)
	}
	if req.FileContexts != "" {
		populateArgs = append(populateArgs, "-S", req.FileContexts)
	}
	populateArgs = append(populateArgs, "-f", req.TreeDir, "-a", "/"+req.Name)
	if !req.ReadWrite {
		// Share identical blocks between files; only safe read-only.
		populateArgs = append(populateArgs, "-s")
	}
	populateArgs = append(populateArgs, req.OutPath)

	if err := shellcmd.Run(b.tools.E2fsdroid, populateArgs...); err != nil {
		return fmt.Errorf("e2fsdroid failed for %s: %w", req.Name, err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
