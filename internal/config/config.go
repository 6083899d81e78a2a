// Package config defines the on-disk configuration shape for
// krangler-go, loaded from a YAML document and optionally overridden by
// environment variables, in the shape of the teacher's
// configuration/configuration.go: a versioned top-level struct, one
// nested struct per concern, yaml tags, env overrides applied after
// parse.
package config

import "fmt"

// Version is a major/minor pair identifying the configuration format.
type Version string

// MajorMinorVersion constructs a Version from its components.
func MajorMinorVersion(major, minor uint) Version {
	return Version(fmt.Sprintf("%d.%d", major, minor))
}

// Configuration is the root configuration document.
//
// Note that yaml field names should never include `_` characters, since
// that's the separator used in environment variable names (KRANGLER_...).
type Configuration struct {
	// Version is the configuration format version.
	Version Version `yaml:"version"`

	// Log configures the logging subsystem (Appendix A).
	Log Log `yaml:"log"`

	// Store selects and configures the artifact store backend (§4.6).
	Store Store `yaml:"store"`

	// ExtentMap configures the extent memoization database (§4.2).
	ExtentMap ExtentMap `yaml:"extentmap"`

	// Ingest configures both ingest phases (§4.4, §4.5, Appendix C).
	Ingest Ingest `yaml:"ingest"`
}

// Log configures the logging subsystem.
type Log struct {
	// Level is the granularity at which ingest operations are logged.
	Level string `yaml:"level,omitempty"`

	// Formatter overrides the default formatter. Options are "text" and
	// "json".
	Formatter string `yaml:"formatter,omitempty"`

	// ReportCaller has the logger report the caller of each log call.
	ReportCaller bool `yaml:"reportcaller,omitempty"`
}

// Store selects and configures the artifact store backend (§4.6).
type Store struct {
	// Backend names the backend in use: "filesystem" or "relational".
	Backend string `yaml:"backend"`

	// Filesystem configures the filesystem backend, used when Backend is
	// "filesystem".
	Filesystem FilesystemStore `yaml:"filesystem,omitempty"`

	// Relational configures the relational backend, used when Backend is
	// "relational".
	Relational RelationalStore `yaml:"relational,omitempty"`
}

// FilesystemStore configures internal/store/filesystem.
type FilesystemStore struct {
	// Root is the directory under which data/, index/, and state/ live.
	Root string `yaml:"root"`
}

// RelationalStore configures internal/store/relational.
type RelationalStore struct {
	// DSN is the driver-specific data source name (a sqlite3 file path,
	// standing in for the Postgres DSN this backend would take in
	// production — see DESIGN.md).
	DSN string `yaml:"dsn"`
}

// ExtentMap configures internal/extentmap's badger-backed store.
type ExtentMap struct {
	// Dir is the badger database directory.
	Dir string `yaml:"dir"`
}

// Ingest configures both ingest phases.
type Ingest struct {
	// SidecarDirs are external directories searched for a depot manifest
	// sidecar before falling back to the source's own .DepotDownloader/
	// (§4.4 step 1).
	SidecarDirs []string `yaml:"sidecardirs,omitempty"`

	// SizeBudget and CountBudget size the batching queue (C4); zero
	// disables that dimension's auto-flush trigger.
	SizeBudget  int64 `yaml:"sizebudget,omitempty"`
	CountBudget int   `yaml:"countbudget,omitempty"`

	// GroupMaxBytes and GroupMaxFiles are parsed and defaulted but not read
	// by the ingest code: bundled-ingest groups (§4.5 step 4) are bounded by
	// internal/ingest's fixed caps of 1 GiB uncompressed and 100 000 files,
	// whatever these fields hold.
	GroupMaxBytes int64 `yaml:"groupmaxbytes,omitempty"`
	GroupMaxFiles int   `yaml:"groupmaxfiles,omitempty"`
}

const defaultVersion = Version("0.1")

func defaults() Configuration {
	return Configuration{
		Version: defaultVersion,
		Log: Log{
			Level:     "info",
			Formatter: "text",
		},
		Ingest: Ingest{
			SizeBudget:    1 << 30,
			CountBudget:   10_000,
			GroupMaxBytes: 1 << 30,
			GroupMaxFiles: 100_000,
		},
	}
}

// Validate checks that the configuration is internally consistent,
// mirroring the teacher's "no storage configuration provided" check in
// configuration.Parse.
func (c *Configuration) Validate() error {
	switch c.Store.Backend {
	case "filesystem":
		if c.Store.Filesystem.Root == "" {
			return fmt.Errorf("config: store.filesystem.root is required")
		}
	case "relational":
		if c.Store.Relational.DSN == "" {
			return fmt.Errorf("config: store.relational.dsn is required")
		}
	case "":
		return fmt.Errorf("config: no store backend configured")
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.ExtentMap.Dir == "" {
		return fmt.Errorf("config: extentmap.dir is required")
	}
	return nil
}
