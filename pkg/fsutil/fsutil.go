// Package fsutil provides file tree helpers shared by the image builder and
// the package assemblers.
package fsutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"porttools/pkg/shellcmd"
)

// TreeSize returns the total byte size of the files under dir. It shells out
// to `du -sb` which is much faster than walking from Go; if that fails it
// falls back to a full walk, which reports at least 4096 so an empty or
// unreadable tree still yields a usable image size.
func TreeSize(dir string) int64 {
	out, err := shellcmd.Cmd("du", "-sb", dir).Output()
	if err == nil {
		fields := strings.Fields(out)
		if len(fields) > 0 {
			if size, perr := strconv.ParseInt(fields[0], 10, 64); perr == nil {
				return size
			}
		}
	}

	log.WithField("dir", dir).WithError(err).Warn("du failed, falling back to tree walk")
	return walkSize(dir)
}

func walkSize(dir string) int64 {
	var total int64
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil
		}
		if info, ierr := d.Info(); ierr == nil {
			total += info.Size()
		}
		return nil
	})
	if total <= 0 {
		return 4096
	}
	return total
}

// MoveFile renames src to dst, copying across filesystems when rename is not
// possible.
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}

// Glob returns the file names (not paths) under dir matching pattern.
func Glob(dir, pattern string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	return names
}
