// packrom assembles a flashable firmware package from a staged directory
// tree of partition contents.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"porttools/pkg/buildctx"
	"porttools/pkg/imagebuild"
	"porttools/pkg/pipeline"
	"porttools/pkg/romfacts"
)

var configFile string
var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "packrom",
		Short: "Assemble a flashable firmware package from staged partition trees",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(log.TraceLevel)
			}
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "packrom.yaml", "Pack configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable trace logging")

	rootCmd.AddCommand(packCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// packConfig is the on-disk shape of the pack configuration file.
type packConfig struct {
	Facts romfacts.Facts   `mapstructure:"facts"`
	Paths buildctx.Paths   `mapstructure:"paths"`
	Pack  pipeline.Options `mapstructure:"pack"`
}

func packCmd() *cobra.Command {
	var format string
	var readWrite bool
	var packageKind string

	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Build partition images, compose super and assemble the package",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("format") {
				cfg.Pack.Format = imagebuild.Format(format)
			}
			if cmd.Flags().Changed("rw") {
				cfg.Pack.ReadWrite = readWrite
			}
			if cmd.Flags().Changed("package") {
				cfg.Pack.Package = pipeline.PackageKind(packageKind)
			}

			if cfg.Facts.DeviceCode == "" {
				// Facts not inlined in the config; the extraction stage
				// leaves them next to the partition manifests.
				facts, err := romfacts.Load(filepath.Join(cfg.Paths.ConfigDir, "romfacts.yaml"))
				if err != nil {
					return err
				}
				cfg.Facts = facts
			}
			cfg.Facts.Normalize()

			ctx := buildctx.New(cfg.Paths, cfg.Facts)
			ctx.Log.WithField("package", cfg.Pack.Package).Info("Starting packaging run")

			deliverable, err := pipeline.Run(ctx, cfg.Pack)
			if err != nil {
				color.Red("Packaging failed: %v", err)
				return err
			}

			color.Green("Package ready: %s", deliverable)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", string(imagebuild.FormatErofs), "Partition image format (erofs or ext4)")
	cmd.Flags().BoolVar(&readWrite, "rw", false, "Build writable ext4 images (disables block sharing)")
	cmd.Flags().StringVar(&packageKind, "package", string(pipeline.PackageHybrid), "Package kind (hybrid or ota)")

	return cmd
}

func loadConfig() (*packConfig, error) {
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
	}

	cfg := &packConfig{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", configFile, err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *packConfig) {
	if cfg.Paths.TargetDir == "" {
		cfg.Paths.TargetDir = filepath.Join("build", "target")
	}
	if cfg.Paths.ConfigDir == "" {
		cfg.Paths.ConfigDir = filepath.Join(cfg.Paths.TargetDir, "config")
	}
	if cfg.Paths.FirmwareDir == "" {
		cfg.Paths.FirmwareDir = filepath.Join(cfg.Paths.TargetDir, "repack_images")
	}
	if cfg.Paths.OutDir == "" {
		cfg.Paths.OutDir = "out"
	}
	if cfg.Paths.BinRoot == "" {
		cfg.Paths.BinRoot = "bin"
	}
	if cfg.Paths.OtaToolsDir == "" {
		cfg.Paths.OtaToolsDir = "otatools"
	}
	if cfg.Paths.TemplateDir == "" {
		cfg.Paths.TemplateDir = "template"
	}
	if cfg.Paths.DevicesDir == "" {
		cfg.Paths.DevicesDir = "devices"
	}
	if cfg.Pack.Format == "" {
		cfg.Pack.Format = imagebuild.FormatErofs
	}
	if cfg.Pack.Package == "" {
		cfg.Pack.Package = pipeline.PackageHybrid
	}
}
