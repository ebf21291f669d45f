package superimage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestCompressFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "super.img")
	dst := filepath.Join(dir, "super.zst")

	payload := bytes.Repeat([]byte("sparse super container "), 4096)
	if err := os.WriteFile(src, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := compressFile(src, dst); err != nil {
		t.Fatal(err)
	}

	// Source stays in place as the fallback artifact.
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("source removed by compression: %v", err)
	}

	compressed, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(compressed) >= len(payload) {
		t.Errorf("compression did not shrink payload: %d >= %d", len(compressed), len(payload))
	}

	zr, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	decoded, err := zr.DecodeAll(compressed, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Error("round-tripped payload differs")
	}
}
