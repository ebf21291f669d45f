// Package pipeline drives a packaging run: per-partition image builds on
// the worker pool, the join barrier, super composition and final package
// assembly.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"porttools/pkg/assemble"
	"porttools/pkg/buildctx"
	"porttools/pkg/imagebuild"
	"porttools/pkg/superimage"
	"porttools/pkg/taskpool"
)

type PackageKind string

const (
	PackageHybrid PackageKind = "hybrid"
	PackageOta    PackageKind = "ota"
)

type Options struct {
	Format    imagebuild.Format `mapstructure:"format"`
	ReadWrite bool              `mapstructure:"read_write"`
	Package   PackageKind       `mapstructure:"package"`
	Workers   int               `mapstructure:"workers"`
}

// Run executes the full packaging pipeline and returns the deliverable path.
func Run(ctx *buildctx.Context, opts Options) (string, error) {
	partitions, err := discoverPartitions(ctx.Paths.TargetDir)
	if err != nil {
		return "", err
	}
	if len(partitions) == 0 {
		return "", errors.New("no staged partitions to package")
	}

	buildImages(ctx, opts, partitions)

	switch opts.Package {
	case PackageOta:
		return assemble.Ota(ctx)
	default:
		superPath, err := superimage.Compose(ctx)
		if err != nil {
			// Composition prerequisites missing or the composer failed; the
			// hybrid package is still assembled from standalone images.
			ctx.Log.WithError(err).Error("Super composition skipped")
		}
		return assemble.Hybrid(ctx, superPath)
	}
}

// discoverPartitions lists the staged partition trees. The config and
// firmware staging directories live alongside them and are not partitions.
func discoverPartitions(targetDir string) ([]string, error) {
	entries, err := os.ReadDir(targetDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list target directory: %w", err)
	}

	var partitions []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if entry.Name() == "config" || entry.Name() == "repack_images" {
			continue
		}
		partitions = append(partitions, entry.Name())
	}
	return partitions, nil
}

// buildImages fans the per-partition builds out over the worker pool and
// joins. A failed partition is logged and left out of the image set; its
// siblings are unaffected.
func buildImages(ctx *buildctx.Context, opts Options, partitions []string) {
	ctx.Log.WithField("format", opts.Format).WithField("partitions", len(partitions)).Info("Starting partition image builds")

	builder := imagebuild.NewBuilder(ctx.Tools)
	tasks := make([]taskpool.Task, 0, len(partitions))
	for _, name := range partitions {
		req := imagebuild.Request{
			Name:         name,
			TreeDir:      filepath.Join(ctx.Paths.TargetDir, name),
			OutPath:      filepath.Join(ctx.Paths.TargetDir, name+".img"),
			FSConfig:     ctx.FSConfigPath(name),
			FileContexts: ctx.FileContextsPath(name),
			Format:       opts.Format,
			ReadWrite:    opts.ReadWrite,
		}
		tasks = append(tasks, taskpool.Task{
			Name: name,
			Run:  func() error { return builder.Build(req) },
		})
	}

	results := taskpool.Run(opts.Workers, tasks)
	for _, failure := range taskpool.Failed(results) {
		log.WithField("partition", failure.Name).WithError(failure.Err).Error("Partition build failed, continuing without it")
	}
}
