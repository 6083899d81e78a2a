package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/pale-court/krangler-go/internal/ggpk"
)

var inspectGGPKPath string

// InspectGGPKCmd is a read-only debug subcommand modeled on
// `krangler/scripts/ggpk_ls.py`: list every reconstructed path in a
// Content.ggpk pack without performing a full ingest.
var InspectGGPKCmd = &cobra.Command{
	Use:   "inspect-ggpk",
	Short: "list every file path reconstructed from a Content.ggpk pack",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(inspectGGPKPath)
		if err != nil {
			return fmt.Errorf("open %s: %w", inspectGGPKPath, err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return err
		}

		pack, err := ggpk.Parse(f, info.Size())
		if err != nil {
			return fmt.Errorf("parse %s: %w", inspectGGPKPath, err)
		}

		return listEntries(cmd.OutOrStdout(), pack)
	},
}

func listEntries(w io.Writer, pack *ggpk.Pack) error {
	entries := pack.Entries()
	bar := progressbar.Default(int64(len(entries)), "reconstructing paths")
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", e.Path, humanize.Bytes(uint64(e.DataSize))); err != nil {
			return err
		}
		_ = bar.Add(1)
	}
	return bar.Finish()
}

func init() {
	InspectGGPKCmd.Flags().StringVar(&inspectGGPKPath, "pack", "", "path to a Content.ggpk file")
	_ = InspectGGPKCmd.MarkFlagRequired("pack")
}
