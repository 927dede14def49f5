package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tidelake/tidelake/cdc"
	"github.com/tidelake/tidelake/store"
)

func newCreateTableCmd(a *app) *cobra.Command {
	var columns []string
	cmd := &cobra.Command{
		Use:   "create-table TABLE",
		Short: "Create a versioned table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cols := make([]store.Column, 0, len(columns))
			for _, spec := range columns {
				name, typ, ok := strings.Cut(spec, ":")
				if !ok {
					return fmt.Errorf("invalid column spec %q, want name:TYPE", spec)
				}
				cols = append(cols, store.Column{Name: name, Type: typ})
			}
			return a.st.CreateTable(cmd.Context(), args[0], cols)
		},
	}
	cmd.Flags().StringArrayVar(&columns, "column", nil, "column as name:TYPE (repeatable)")
	cmd.MarkFlagRequired("column")
	return cmd
}

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := a.st.ListTables(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(tables)
		},
	}
}

func newSnapshotsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots TABLE",
		Short: "List a table's snapshots in creation order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshots, err := a.st.ListSnapshots(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(snapshots)
		},
	}
}

func newInsertCmd(a *app) *cobra.Command {
	var rowsJSON, file string
	cmd := &cobra.Command{
		Use:   "insert TABLE",
		Short: "Insert rows from a JSON array, committing a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := []byte(rowsJSON)
			if file != "" {
				var err error
				if data, err = os.ReadFile(file); err != nil {
					return fmt.Errorf("failed to read rows file: %w", err)
				}
			}
			var rows []store.Row
			if err := json.Unmarshal(data, &rows); err != nil {
				return fmt.Errorf("failed to parse rows: %w", err)
			}
			n, err := a.st.InsertRows(cmd.Context(), args[0], rows)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"inserted": n})
		},
	}
	cmd.Flags().StringVar(&rowsJSON, "rows", "", "rows as a JSON array")
	cmd.Flags().StringVar(&file, "file", "", "file containing a JSON array of rows")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var filter, setJSON string
	cmd := &cobra.Command{
		Use:   "update TABLE",
		Short: "Update rows matching a filter, committing a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var updates map[string]any
			if err := json.Unmarshal([]byte(setJSON), &updates); err != nil {
				return fmt.Errorf("failed to parse updates: %w", err)
			}
			n, err := a.st.UpdateRows(cmd.Context(), args[0], filter, updates)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"updated": n})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "SQL boolean predicate selecting rows")
	cmd.Flags().StringVar(&setJSON, "set", "", "updates as a JSON object")
	cmd.MarkFlagRequired("filter")
	cmd.MarkFlagRequired("set")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "delete TABLE",
		Short: "Delete rows matching a filter, committing a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.st.DeleteRows(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"deleted": n})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "SQL boolean predicate selecting rows")
	cmd.MarkFlagRequired("filter")
	return cmd
}

func newChangesCmd(a *app) *cobra.Command {
	var fromRef, toRef string
	var keys []string
	cmd := &cobra.Command{
		Use:   "changes TABLE",
		Short: "Show row-level changes between two snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, err := a.tracker().Changes(cmd.Context(), args[0], fromRef, toRef, a.keyColumns(args[0], keys))
			if err != nil {
				return err
			}
			return printJSON(cs)
		},
	}
	cmd.Flags().StringVar(&fromRef, "from", "", "from snapshot id or ISO timestamp (default: second-most-recent)")
	cmd.Flags().StringVar(&toRef, "to", "", "to snapshot id or ISO timestamp (default: current)")
	cmd.Flags().StringSliceVar(&keys, "key", nil, "key columns for update detection")
	return cmd
}

func newChangeLogCmd(a *app) *cobra.Command {
	var limit int
	var keys []string
	cmd := &cobra.Command{
		Use:   "changelog TABLE",
		Short: "Show the change log across snapshot history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.tracker().ChangeLog(cmd.Context(), args[0], limit, a.keyColumns(args[0], keys))
			if err != nil {
				return err
			}
			return printJSON(entries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of snapshot transitions")
	cmd.Flags().StringSliceVar(&keys, "key", nil, "key columns for update detection")
	return cmd
}

func newSummaryCmd(a *app) *cobra.Command {
	var fromRef, toRef string
	var keys []string
	cmd := &cobra.Command{
		Use:   "summary TABLE",
		Short: "Summarize changes between two snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := a.tracker().Summary(cmd.Context(), args[0], fromRef, toRef, a.keyColumns(args[0], keys))
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
	cmd.Flags().StringVar(&fromRef, "from", "", "from snapshot id or ISO timestamp")
	cmd.Flags().StringVar(&toRef, "to", "", "to snapshot id or ISO timestamp")
	cmd.Flags().StringSliceVar(&keys, "key", nil, "key columns for update detection")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var fromRef, toRef, format, outFile string
	var keys []string
	cmd := &cobra.Command{
		Use:   "export TABLE",
		Short: "Export changes between two snapshots as JSON or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.tracker().Export(cmd.Context(), args[0], fromRef, toRef, format, a.keyColumns(args[0], keys))
			if err != nil {
				return err
			}
			if outFile != "" {
				return os.WriteFile(outFile, []byte(out), 0o644)
			}
			fmt.Print(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&fromRef, "from", "", "from snapshot id or ISO timestamp")
	cmd.Flags().StringVar(&toRef, "to", "", "to snapshot id or ISO timestamp")
	cmd.Flags().StringVar(&format, "format", cdc.FormatJSON, "export format: json or csv")
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().StringSliceVar(&keys, "key", nil, "key columns for update detection")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func newReplayCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "replay TARGET_TABLE",
		Short: "Apply a previously exported JSON change list to a target table",
		Long: "Replay applies each change in order and never aborts the batch on a\n" +
			"single failure. Inspect the errors field of the result: partial\n" +
			"application is an accepted outcome.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read change file: %w", err)
			}
			var export struct {
				Changes json.RawMessage `json:"changes"`
			}
			if err := json.Unmarshal(data, &export); err != nil {
				return fmt.Errorf("failed to parse change file: %w", err)
			}
			changes, err := cdc.UnmarshalChanges(export.Changes)
			if err != nil {
				return err
			}
			result := cdc.Replay(cmd.Context(), changes, args[0], a.st, a.log)
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON export produced by the export command")
	cmd.MarkFlagRequired("file")
	return cmd
}
