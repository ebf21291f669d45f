package imagebuild

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"porttools/pkg/shellcmd"
)

const (
	// BlockSize is the filesystem block size used for every ext4 image.
	BlockSize = 4096

	mib = 1 << 20
	gib = 1 << 30

	// fallbackInodeCount is used when the ownership manifest cannot be read.
	fallbackInodeCount = 5000

	// manifestInodeReserve covers the filesystem's own bookkeeping inodes
	// (root, lost+found, reserved inodes) on top of one inode per manifest
	// record.
	manifestInodeReserve = 8
)

// InitialSize computes the first-pass ext4 image size for a tree of
// treeBytes. Small trees get generous headroom, large ones progressively
// less; the result is always 4KiB-aligned and never below 1MiB. The image is
// shrunk to its real minimum afterwards, this only has to be big enough for
// population to succeed.
func InitialSize(treeBytes int64) int64 {
	var size int64
	switch {
	case treeBytes < mib:
		size = mib
	case treeBytes < 100*mib:
		size = treeBytes + treeBytes*15/100
	case treeBytes < gib:
		size = treeBytes + treeBytes*8/100
	default:
		size = treeBytes + treeBytes*3/100
	}
	return align(size)
}

func align(size int64) int64 {
	return size / BlockSize * BlockSize
}

// inodeCount derives the inode budget from the ownership manifest: one inode
// per record plus a fixed reserve. An unreadable manifest falls back to a
// generous constant.
func inodeCount(fsConfigPath string) int {
	file, err := os.Open(fsConfigPath)
	if err != nil {
		log.WithField("manifest", fsConfigPath).WithError(err).Warn("Cannot read fs_config, using fallback inode count")
		return fallbackInodeCount
	}
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		log.WithField("manifest", fsConfigPath).WithError(err).Warn("Failed scanning fs_config, using fallback inode count")
		return fallbackInodeCount
	}
	return count + manifestInodeReserve
}

// freeBlocks probes a built image for its free block count via tune2fs.
// Probe failures count as zero free blocks, which simply skips the second
// fit pass.
func (b *Builder) freeBlocks(imagePath string) int64 {
	out, err := shellcmd.Cmd(b.tools.Tune2fs, "-l", imagePath).Output()
	if err != nil {
		return 0
	}
	return parseFreeBlocks(out)
}

func parseFreeBlocks(tune2fsOutput string) int64 {
	for _, line := range strings.Split(tune2fsOutput, "\n") {
		after, found := strings.CutPrefix(line, "Free blocks:")
		if !found {
			continue
		}
		blocks, err := strconv.ParseInt(strings.TrimSpace(after), 10, 64)
		if err != nil {
			return 0
		}
		return blocks
	}
	return 0
}
