// Command regrid runs a tiled regrid job from a YAML job file.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"regrid-pipeline/internal/config"
	"regrid-pipeline/internal/grid"
	"regrid-pipeline/internal/model"
	"regrid-pipeline/internal/pipeline"
	"regrid-pipeline/internal/store"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:     "regrid",
		Short:   "Tiled regridding of large grids on a batch cluster",
		Long:    "regrid partitions a high-resolution regridding task into tiles, dispatches them as scheduler batch jobs, and stitches the results back together.",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.InitLogger(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newTilesCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var jobFile string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a regrid job",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadJobSpec(jobFile)
			if err != nil {
				return err
			}
			if dbPath == "" {
				dbPath = filepath.Join(spec.OutDir, "regrid.db")
			}
			if err := store.InitDB(dbPath); err != nil {
				return fmt.Errorf("failed to open registry db: %w", err)
			}

			jobID := uuid.New().String()
			if err := store.SaveJob(jobID, *spec); err != nil {
				return fmt.Errorf("failed to register job: %w", err)
			}
			if err := pipeline.Run(cmd.Context(), jobID, *spec); err != nil {
				if pipeline.IsConfigError(err) {
					return fmt.Errorf("job configuration rejected: %w", err)
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&jobFile, "job", "j", "", "YAML job file (required)")
	cmd.Flags().StringVar(&dbPath, "db", "", "registry database path (default <out_dir>/regrid.db)")
	cmd.MarkFlagRequired("job")
	return cmd
}

// newTilesCmd prints the tile selection for a job without running anything,
// useful for sizing a run before submitting it to the cluster.
func newTilesCmd() *cobra.Command {
	var jobFile string

	cmd := &cobra.Command{
		Use:   "tiles",
		Short: "Show the tiles a job would process",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadJobSpec(jobFile)
			if err != nil {
				return err
			}
			source, err := grid.Open(spec.SourcePath, spec.SafeVariable())
			if err != nil {
				return fmt.Errorf("failed to open source grid: %w", err)
			}
			target, err := grid.Open(spec.TargetPath, "")
			if err != nil {
				return fmt.Errorf("failed to open target grid: %w", err)
			}
			source, err = source.Subset(target.BBox())
			if err != nil {
				return fmt.Errorf("%w: %s", model.ErrNoOverlap, err)
			}

			tiles := pipeline.SelectTilesForExtent(pipeline.BuildGlobalTiles(spec.SizeTiles), source.BBox())
			for _, t := range tiles {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d tiles, %d batches of up to %d\n",
				len(tiles), (len(tiles)+spec.Tuning.BatchSize-1)/spec.Tuning.BatchSize, spec.Tuning.BatchSize)
			return nil
		},
	}
	cmd.Flags().StringVarP(&jobFile, "job", "j", "", "YAML job file (required)")
	cmd.MarkFlagRequired("job")
	return cmd
}

func loadJobSpec(path string) (*model.RegridJobSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	var spec model.RegridJobSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse job file: %w", err)
	}
	spec.ApplyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}
