package main

import (
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// IngestCmd runs both phases in order against the same depot/manifest and
// source. It registers its own --depot/--manifest/--source/--source-kind/
// --sidecar-dir flags, bound to the same variables IngestLooseCmd uses.
var IngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "run loose ingest followed by bundled ingest",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfiguration()
		if err != nil {
			return err
		}
		if err := configureLogging(cfg); err != nil {
			return err
		}

		bar := progressbar.Default(2, "ingesting")
		if err := runLoose(cfg); err != nil {
			return err
		}
		_ = bar.Add(1)
		if err := runBundled(cfg); err != nil {
			return err
		}
		_ = bar.Add(1)
		return bar.Finish()
	},
}

func init() {
	addDepotFlags(IngestCmd)
	IngestCmd.Flags().StringSliceVar(&flagSidecarDirs, "sidecar-dir", nil, "external directory searched for a depot manifest sidecar (repeatable)")
}
