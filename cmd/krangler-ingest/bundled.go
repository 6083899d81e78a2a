package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pale-court/krangler-go/internal/config"
	"github.com/pale-court/krangler-go/internal/dcontext"
	"github.com/pale-court/krangler-go/internal/depot"
	"github.com/pale-court/krangler-go/internal/ingest"
)

// IngestBundledCmd runs C8 alone; it requires a prior loose ingest of the
// same depot/manifest (§4.5 step 1 precondition).
var IngestBundledCmd = &cobra.Command{
	Use:   "ingest-bundled",
	Short: "run the bundled ingest phase for one depot/manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfiguration()
		if err != nil {
			return err
		}
		if err := configureLogging(cfg); err != nil {
			return err
		}
		return runBundled(cfg)
	},
}

func init() {
	cmd := IngestBundledCmd
	cmd.Flags().Uint32Var(&flagDepot, "depot", 0, "depot id")
	cmd.Flags().Uint64Var(&flagManifest, "manifest", 0, "manifest id")
	_ = cmd.MarkFlagRequired("depot")
	_ = cmd.MarkFlagRequired("manifest")
}

func runBundled(cfg *config.Configuration) error {
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

	ctx := setupContext(flagDepot, flagManifest, "bundled")
	opts := ingest.BundledOptions{
		SizeBudget:  cfg.Ingest.SizeBudget,
		CountBudget: cfg.Ingest.CountBudget,
	}
	if err := ingest.Bundled(ctx, st, em, id, opts); err != nil {
		return fmt.Errorf("bundled ingest %s: %w", id, err)
	}
	dcontext.IngestLogger(ctx).Infof("bundled ingest complete for %s", id)
	return nil
}
