package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pale-court/krangler-go/internal/config"
	"github.com/pale-court/krangler-go/internal/depot"
	"github.com/pale-court/krangler-go/internal/dcontext"
	"github.com/pale-court/krangler-go/internal/ingest"
)

var (
	flagDepot       uint32
	flagManifest    uint64
	flagSourcePath  string
	flagSourceKind  string
	flagSidecarDirs []string
)

func addDepotFlags(cmd *cobra.Command) {
	cmd.Flags().Uint32Var(&flagDepot, "depot", 0, "depot id")
	cmd.Flags().Uint64Var(&flagManifest, "manifest", 0, "manifest id")
	cmd.Flags().StringVar(&flagSourcePath, "source", "", "path to the depot tree or staged archive")
	cmd.Flags().StringVar(&flagSourceKind, "source-kind", "dir", "source kind: dir or zip")
	_ = cmd.MarkFlagRequired("depot")
	_ = cmd.MarkFlagRequired("manifest")
	_ = cmd.MarkFlagRequired("source")
}

// IngestLooseCmd runs C7 alone.
var IngestLooseCmd = &cobra.Command{
	Use:   "ingest-loose",
	Short: "run the loose ingest phase for one depot/manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfiguration()
		if err != nil {
			return err
		}
		if err := configureLogging(cfg); err != nil {
			return err
		}
		return runLoose(cfg)
	},
}

func init() {
	addDepotFlags(IngestLooseCmd)
	IngestLooseCmd.Flags().StringSliceVar(&flagSidecarDirs, "sidecar-dir", nil, "external directory searched for a depot manifest sidecar (repeatable)")
}

func runLoose(cfg *config.Configuration) error {
	id := depot.ID{Depot: flagDepot, Manifest: flagManifest}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	em, err := openExtentMap(cfg)
	if err != nil {
		return err
	}
	defer em.Close()

	src, closeSrc, err := openSource(flagSourceKind, flagSourcePath)
	if err != nil {
		return err
	}
	if closeSrc != nil {
		defer closeSrc()
	}

	ctx := setupContext(flagDepot, flagManifest, "loose")
	opts := ingest.LooseOptions{
		SidecarDirs: append(append([]string(nil), flagSidecarDirs...), cfg.Ingest.SidecarDirs...),
		SizeBudget:  cfg.Ingest.SizeBudget,
		CountBudget: cfg.Ingest.CountBudget,
	}
	if err := ingest.Loose(ctx, st, em, src, id, opts); err != nil {
		return fmt.Errorf("loose ingest %s: %w", id, err)
	}
	dcontext.IngestLogger(ctx).Infof("loose ingest complete for %s", id)
	return nil
}
