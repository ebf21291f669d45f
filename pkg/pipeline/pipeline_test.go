package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverPartitions(t *testing.T) {
	targetDir := t.TempDir()
	for _, dir := range []string{"system", "vendor", "config", "repack_images"} {
		if err := os.MkdirAll(filepath.Join(targetDir, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(targetDir, "stray.img"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	partitions, err := discoverPartitions(targetDir)
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]bool{"system": true, "vendor": true}
	if len(partitions) != len(want) {
		t.Fatalf("discoverPartitions = %v, want system and vendor only", partitions)
	}
	for _, p := range partitions {
		if !want[p] {
			t.Errorf("unexpected partition %q", p)
		}
	}
}

func TestDiscoverPartitionsMissingDir(t *testing.T) {
	if _, err := discoverPartitions(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing target directory")
	}
}
