package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	log "github.com/sirupsen/logrus"

	"porttools/pkg/shellcmd"
)

// CopyStrategy merges the contents of a directory tree into dst, creating it
// if needed. The native strategy uses cp with reflink support; the portable
// strategy walks the tree from Go. The strategy is picked once at startup by
// DetectCopyStrategy.
type CopyStrategy interface {
	CopyTree(src, dst string) error
}

// DetectCopyStrategy probes for a usable cp binary and returns the native
// strategy when one is available, the portable one otherwise.
func DetectCopyStrategy() CopyStrategy {
	if runtime.GOOS != "windows" {
		if _, err := exec.LookPath("cp"); err == nil {
			return nativeCopy{}
		}
	}
	log.Warn("cp not available, using portable tree copy")
	return portableCopy{}
}

type nativeCopy struct{}

func (nativeCopy) CopyTree(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	// Archive mode preserves symlinks and modes; reflink is a no-op on
	// filesystems without CoW support.
	err := shellcmd.Run("cp", "-a", "--reflink=auto", src+"/.", dst)
	if err != nil {
		log.WithError(err).Warn("native copy failed, falling back to portable copy")
		return portableCopy{}.CopyTree(src, dst)
	}
	return nil
}

type portableCopy struct{}

func (portableCopy) CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm())
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("failed to read symlink %s: %w", path, err)
			}
			os.Remove(target)
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			return copyFile(path, target)
		default:
			// Sockets and device nodes have no business in a partition tree.
			return nil
		}
	})
}
