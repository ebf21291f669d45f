// Package buildctx defines the run context passed to every packaging
// component: output locations, device facts, the resolved toolchain and the
// structured log sink. There is no shared mutable global state; everything a
// component needs travels through the Context.
package buildctx

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"porttools/pkg/fsutil"
	"porttools/pkg/romfacts"
)

// Paths groups the directory layout of one packaging run. TargetDir holds
// one staged subtree per partition plus the produced .img files; ConfigDir
// holds the per-partition fs_config / file_contexts manifests.
type Paths struct {
	OutDir      string `mapstructure:"out_dir"`
	TargetDir   string `mapstructure:"target_dir"`
	ConfigDir   string `mapstructure:"config_dir"`
	FirmwareDir string `mapstructure:"firmware_dir"`
	TemplateDir string `mapstructure:"template_dir"`
	DevicesDir  string `mapstructure:"devices_dir"`
	OtaToolsDir string `mapstructure:"otatools_dir"`
	BinRoot     string `mapstructure:"bin_root"`
}

type Context struct {
	RunID string
	Facts romfacts.Facts
	Paths Paths
	Tools Toolchain
	Copy  fsutil.CopyStrategy

	// Unattended suppresses final zipping and keeps the staging directory as
	// the deliverable (CI uploads the tree as an artifact itself).
	Unattended bool

	Log *log.Entry
}

func New(paths Paths, facts romfacts.Facts) *Context {
	runID := uuid.New().String()
	return &Context{
		RunID:      runID,
		Facts:      facts,
		Paths:      paths,
		Tools:      ResolveToolchain(paths.BinRoot, paths.OtaToolsDir),
		Copy:       fsutil.DetectCopyStrategy(),
		Unattended: os.Getenv("GITHUB_ACTIONS") == "true",
		Log:        log.WithField("run", runID[:8]).WithField("device", facts.DeviceCode),
	}
}

// FSConfigPath returns the ownership manifest path for a partition.
func (c *Context) FSConfigPath(partition string) string {
	return filepath.Join(c.Paths.ConfigDir, partition+"_fs_config")
}

// FileContextsPath returns the security label manifest path for a partition.
func (c *Context) FileContextsPath(partition string) string {
	return filepath.Join(c.Paths.ConfigDir, partition+"_file_contexts")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
