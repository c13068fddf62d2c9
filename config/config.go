// Package config loads the TOML-driven run configuration, grounded on the
// teacher's config.go: defaults applied before decode, unknown keys
// rejected, cross-field validation after decode.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the full run configuration: two connections, the table list,
// and the engine options from spec.md §6.
type Config struct {
	Source ConnectionConfig `toml:"source"`
	Target ConnectionConfig `toml:"target"`

	LedgerSchema             string `toml:"ledger_schema"`
	LedgerTable              string `toml:"ledger_table"`
	BatchSize                int    `toml:"batch_size"`
	MaxParallelTables        int    `toml:"max_parallel_tables"`
	ConnectionTimeoutSeconds int    `toml:"connection_timeout_seconds"`
	CommandTimeoutSeconds    int    `toml:"command_timeout_seconds"`

	Tables []TableConfig `toml:"tables"`

	configDir string
}

// ConnectionConfig identifies one SQL Server connection by DSN.
type ConnectionConfig struct {
	DSN string `toml:"dsn"`
}

// TableConfig is one [[tables]] entry: the destination/source table to
// sync plus any overrides, mirroring original_source/config.py's
// TableSyncConfig. A table listed here is selected by virtue of being
// listed; Disabled lets it be kept in the file but skipped for a run.
type TableConfig struct {
	Schema            string   `toml:"schema"`
	Table             string   `toml:"table"`
	PrimaryKeyColumns []string `toml:"primary_key_columns"`
	WhereClause       string   `toml:"where_clause"`
	Disabled          bool     `toml:"disabled"`
}

// LoadConfig reads path, applies defaults, decodes the TOML document,
// rejects unknown keys, and validates cross-field invariants.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Config{
		LedgerSchema:             "dbo",
		LedgerTable:              "SyncMetadata",
		BatchSize:                1000,
		MaxParallelTables:        5,
		ConnectionTimeoutSeconds: 30,
		CommandTimeoutSeconds:    300,
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys: %s", strings.Join(keys, ", "))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path: %w", err)
	}
	cfg.configDir = filepath.Dir(absPath)

	if cfg.Source.DSN == "" {
		return nil, fmt.Errorf("config: source.dsn is required")
	}
	if cfg.Target.DSN == "" {
		return nil, fmt.Errorf("config: target.dsn is required")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("config: batch_size must be positive")
	}
	if cfg.MaxParallelTables <= 0 {
		return nil, fmt.Errorf("config: max_parallel_tables must be positive")
	}
	if cfg.ConnectionTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("config: connection_timeout_seconds must be positive")
	}
	if cfg.CommandTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("config: command_timeout_seconds must be positive")
	}
	if strings.TrimSpace(cfg.LedgerSchema) == "" {
		return nil, fmt.Errorf("config: ledger_schema is required")
	}
	if strings.TrimSpace(cfg.LedgerTable) == "" {
		return nil, fmt.Errorf("config: ledger_table is required")
	}

	for i, t := range cfg.Tables {
		if t.Schema == "" {
			return nil, fmt.Errorf("config: tables[%d].schema is required", i)
		}
		if t.Table == "" {
			return nil, fmt.Errorf("config: tables[%d].table is required", i)
		}
	}

	return &cfg, nil
}
