package main

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
	"github.com/spf13/cobra"
)

func (a *app) syncCmd() *cobra.Command {
	var keyAttr, file string
	cmd := &cobra.Command{
		Use:   "sync <table>",
		Short: "Register the keys of JSON records as new rows",
		Long: `Reads a JSON array of objects and adds a row for every key not yet in the
table. Existing rows are never changed. The table is created when missing.`,
		Example: `  refdata sync producttype --key-attribute Produkt --file products.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(cmd, file)
			if err != nil {
				return err
			}
			added, err := a.engine.SyncMapping(cmd.Context(), records, keyAttr, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d new keys to %s\n", added, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&keyAttr, "key-attribute", "", "record attribute holding the key")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with the records (default: stdin)")
	_ = cmd.MarkFlagRequired("key-attribute")
	return cmd
}

func (a *app) readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <table>",
		Short: "Print every row of a table as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := a.engine.ReadMapping(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rows)
		},
	}
}

// parseAttributes reads NAME=VALUE pairs. Values are typed like JSON
// scalars: true, 12.5 and null are not strings.
func parseAttributes(pairs []string) (table.Attributes, error) {
	attrs := make(table.Attributes, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, errs.InvalidArgument("parse attributes", "attribute "+p, "is not NAME=VALUE")
		}
		attrs[name] = table.ParseScalar(value)
	}
	return attrs, nil
}

func (a *app) upsertCmd() *cobra.Command {
	var raw string
	cmd := &cobra.Command{
		Use:   "upsert <table> <key> [NAME=VALUE ...]",
		Short: "Set the attributes of a row, creating it if needed",
		Long: `Replaces all attributes of the row with the given key (matched
case-insensitively) and marks it curated. Attributes come from NAME=VALUE
arguments, from --json, or both.`,
		Example: `  refdata upsert producttype VTP001 Category=Insurance Weight=3
  refdata upsert producttype VTP001 --json '{"Tags": ["a", "b"]}'`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := parseAttributes(args[2:])
			if err != nil {
				return err
			}
			if raw != "" {
				var extra table.Attributes
				if err := json.Unmarshal([]byte(raw), &extra); err != nil {
					return fmt.Errorf("decode --json: %w", err)
				}
				for k, v := range extra {
					attrs[k] = v
				}
			}
			if err := a.engine.AddOrUpdateRow(cmd.Context(), args[0], args[1], attrs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "upserted %s in %s\n", args[1], args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&raw, "json", "", "attributes as a JSON object")
	return cmd
}

func (a *app) rowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rows",
		Short: "Manage single rows",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <table> <key>",
		Short: "Remove a row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := a.engine.DeleteRow(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s from %s\n", args[1], args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s has no row %s\n", args[0], args[1])
			}
			return nil
		},
	})
	return cmd
}

func (a *app) pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending <table>",
		Short: "Print the keys registered by sync that were never curated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := a.engine.PendingKeys(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}
