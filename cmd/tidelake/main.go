package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tidelake/tidelake/cdc"
	"github.com/tidelake/tidelake/config"
	"github.com/tidelake/tidelake/store"
	"github.com/tidelake/tidelake/store/postgres"
	"github.com/tidelake/tidelake/store/sqlite"
)

type app struct {
	cfg  *config.Config
	keys *config.KeySpec
	log  *logrus.Logger
	st   store.Store
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var (
		sqliteFile  string
		keySpecFile string
	)
	root := &cobra.Command{
		Use:           "tidelake",
		Short:         "Snapshot-level change data capture for versioned tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if sqliteFile != "" {
				cfg.SQLiteFile = sqliteFile
			}
			if keySpecFile != "" {
				cfg.KeySpecFile = keySpecFile
			}
			a.cfg = cfg

			a.log = logrus.New()
			a.log.SetOutput(os.Stderr)
			level, err := logrus.ParseLevel(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
			}
			a.log.SetLevel(level)

			if a.keys, err = config.LoadKeySpec(cfg.KeySpecFile); err != nil {
				return err
			}
			if a.st, err = openStore(cfg); err != nil {
				return err
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.st != nil {
				return a.st.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&sqliteFile, "db", "", "sqlite database file (overrides TIDELAKE_SQLITE_FILE)")
	root.PersistentFlags().StringVar(&keySpecFile, "keys-file", "", "key spec YAML file (overrides TIDELAKE_KEYSPEC_FILE)")

	root.AddCommand(
		newCreateTableCmd(a),
		newTablesCmd(a),
		newSnapshotsCmd(a),
		newInsertCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newChangesCmd(a),
		newChangeLogCmd(a),
		newSummaryCmd(a),
		newExportCmd(a),
		newReplayCmd(a),
	)
	return root
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.PgDatabaseUrl != "" {
		return postgres.New(cfg.PgDatabaseUrl)
	}
	return sqlite.New(cfg.SQLiteFile)
}

// keyColumns resolves the key columns for a table: an explicit --key flag
// wins, then the key-spec file; an empty result falls back to the first
// schema column inside the tracker.
func (a *app) keyColumns(table string, flagKeys []string) []string {
	if len(flagKeys) > 0 {
		return flagKeys
	}
	return a.keys.KeyColumns(table)
}

func (a *app) tracker() *cdc.Tracker {
	return cdc.NewTracker(a.st, a.log)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
