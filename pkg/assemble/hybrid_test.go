package assemble

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"porttools/pkg/buildctx"
)

func TestGatherImagesDropsRedundantDynamicImages(t *testing.T) {
	targetDir := t.TempDir()
	imagesDir := t.TempDir()

	for _, name := range []string{"system.img", "vendor.img", "boot.img", "vbmeta.img"} {
		if err := os.WriteFile(filepath.Join(targetDir, name), []byte("img"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ctx := &buildctx.Context{Paths: buildctx.Paths{TargetDir: targetDir}}
	if err := gatherImages(ctx, imagesDir, true); err != nil {
		t.Fatal(err)
	}

	// Dynamic partition images are deleted, not shipped alongside super.
	for _, name := range []string{"system.img", "vendor.img"} {
		if _, err := os.Stat(filepath.Join(imagesDir, name)); !os.IsNotExist(err) {
			t.Errorf("%s retained despite super container", name)
		}
		if _, err := os.Stat(filepath.Join(targetDir, name)); !os.IsNotExist(err) {
			t.Errorf("%s left behind in target dir", name)
		}
	}

	// Boot-class images are kept for standalone flashing.
	for _, name := range []string{"boot.img", "vbmeta.img"} {
		if _, err := os.Stat(filepath.Join(imagesDir, name)); err != nil {
			t.Errorf("%s missing from images dir: %v", name, err)
		}
	}
}

func TestGatherImagesWithoutSuperKeepsEverything(t *testing.T) {
	targetDir := t.TempDir()
	imagesDir := t.TempDir()

	for _, name := range []string{"system.img", "boot.img"} {
		if err := os.WriteFile(filepath.Join(targetDir, name), []byte("img"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ctx := &buildctx.Context{Paths: buildctx.Paths{TargetDir: targetDir}}
	if err := gatherImages(ctx, imagesDir, false); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"system.img", "boot.img"} {
		if _, err := os.Stat(filepath.Join(imagesDir, name)); err != nil {
			t.Errorf("%s missing from images dir: %v", name, err)
		}
	}
}

func TestWriteZipStoresPreCompressedEntries(t *testing.T) {
	staging := t.TempDir()
	imagesDir := filepath.Join(staging, "images")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(imagesDir, "super.zst"), []byte("compressed container"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(staging, "flash.sh"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	zipPath := filepath.Join(t.TempDir(), "pkg.zip")
	if err := writeZip(staging, zipPath, map[string]bool{"super.zst": true}); err != nil {
		t.Fatal(err)
	}

	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	methods := map[string]uint16{}
	for _, f := range reader.File {
		methods[f.Name] = f.Method
	}

	if methods["images/super.zst"] != zip.Store {
		t.Errorf("super.zst method = %d, want Store", methods["images/super.zst"])
	}
	if methods["flash.sh"] != zip.Deflate {
		t.Errorf("flash.sh method = %d, want Deflate", methods["flash.sh"])
	}
}

func TestStoredEntries(t *testing.T) {
	tests := []struct {
		name      string
		superName string
		stored    []string
	}{
		{"compressed container stored", "super.zst", []string{"super.zst"}},
		{"degraded raw container deflated", "super.img", nil},
		{"no container at all", "", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := storedEntries(tc.superName)
			if len(got) != len(tc.stored) {
				t.Fatalf("storedEntries(%q) = %v, want %v", tc.superName, got, tc.stored)
			}
			for _, name := range tc.stored {
				if !got[name] {
					t.Errorf("storedEntries(%q) missing %q", tc.superName, name)
				}
			}
		})
	}
}

func TestChecksumTag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkg.zip")
	if err := os.WriteFile(path, []byte("package bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	tag, err := checksumTag(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(tag) != 10 {
		t.Errorf("checksum tag %q has length %d, want 10", tag, len(tag))
	}

	again, err := checksumTag(path)
	if err != nil || again != tag {
		t.Errorf("checksum not stable: %q vs %q (err %v)", tag, again, err)
	}
}
