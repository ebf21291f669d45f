package assemble

import (
	"archive/zip"
	"crypto/md5"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// writeZip packs the staging tree into zipPath. Entries named in stored are
// written uncompressed: the super container is already zstd-compressed and
// deflating it again only burns CPU on both ends. Paths use forward slashes
// regardless of host OS.
func writeZip(stagingDir, zipPath string, stored map[string]bool) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return errors.Wrap(err, "failed to create package zip")
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	err = filepath.WalkDir(stagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(stagingDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		method := zip.Deflate
		if stored[d.Name()] {
			log.WithField("entry", name).Info("Storing pre-compressed entry")
			method = zip.Store
		}

		writer, err := zw.CreateHeader(&zip.FileHeader{
			Name:   name,
			Method: method,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to create zip entry %s", name)
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = io.Copy(writer, file)
		return err
	})
	if err != nil {
		zw.Close()
		return errors.Wrap(err, "failed to write package zip")
	}

	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "failed to finish package zip")
	}
	return out.Close()
}

// checksumTag returns the truncated hex MD5 embedded in package file names.
// The recovery update program cross-checks this against the zip contents, so
// the length must stay at ten characters.
func checksumTag(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to open package for checksum")
	}
	defer file.Close()

	hasher := md5.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", errors.Wrap(err, "failed to checksum package")
	}
	return hex.EncodeToString(hasher.Sum(nil))[:10], nil
}
