// Command krangler-ingest drives the two ingest phases against a
// configured store and extent map. It corresponds to the spec's
// explicitly out-of-scope "CLI plumbing" — it exists only to exercise
// the core, not as a spec'd component.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pale-court/krangler-go/internal/config"
	"github.com/pale-court/krangler-go/internal/dcontext"
	"github.com/pale-court/krangler-go/internal/extentmap"
	"github.com/pale-court/krangler-go/internal/store"
	"github.com/pale-court/krangler-go/internal/store/filesystem"
	"github.com/pale-court/krangler-go/internal/store/relational"
	"github.com/pale-court/krangler-go/version"
)

var (
	cfgPath     string
	showVersion bool
)

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgPath, "config", "krangler.yml", "path to the configuration file")
	RootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "show the version and exit")
	RootCmd.AddCommand(IngestLooseCmd)
	RootCmd.AddCommand(IngestBundledCmd)
	RootCmd.AddCommand(IngestCmd)
	RootCmd.AddCommand(InspectGGPKCmd)
}

// RootCmd is the main command for the krangler-ingest binary.
var RootCmd = &cobra.Command{
	Use:   "krangler-ingest",
	Short: "content-addressed depot ingestion",
	Long:  "krangler-ingest runs the loose and bundled ingest phases against a configured artifact store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			version.PrintVersion()
			return nil
		}
		return cmd.Usage()
	},
}

func loadConfiguration() (*config.Configuration, error) {
	f, err := os.Open(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", cfgPath, err)
	}
	defer f.Close()
	return config.Parse(f)
}

// configureLogging prepares logrus the way the teacher's
// registry.configureLogging does, from Configuration.Log.
func configureLogging(cfg *config.Configuration) error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
		logrus.Warnf("error parsing level %q: %v, using %q", cfg.Log.Level, err, level)
	}
	logrus.SetLevel(level)
	logrus.SetReportCaller(cfg.Log.ReportCaller)

	switch cfg.Log.Formatter {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339Nano})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		return fmt.Errorf("unsupported logging formatter: %q", cfg.Log.Formatter)
	}
	return nil
}

// openStore constructs the configured store.Store backend. The returned
// closer is nil when the backend has no resources to release (the
// filesystem backend needs none).
func openStore(cfg *config.Configuration) (store.Store, func() error, error) {
	switch cfg.Store.Backend {
	case "filesystem":
		d, err := filesystem.New(cfg.Store.Filesystem.Root)
		if err != nil {
			return nil, nil, err
		}
		return d, nil, nil
	case "relational":
		d, err := relational.Open(cfg.Store.Relational.DSN)
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func openExtentMap(cfg *config.Configuration) (*extentmap.Map, error) {
	return extentmap.Open(cfg.ExtentMap.Dir)
}

// setupContext wires the process-level logger into ctx and attaches the
// ingest scope fields used by every log line a phase emits.
func setupContext(depot uint32, manifest uint64, kind string) context.Context {
	ctx := context.Background()
	ctx = dcontext.WithLogger(ctx, dcontext.GetLogger(ctx))
	ctx = dcontext.WithIngestScope(ctx, depot, manifest, kind)
	return ctx
}
