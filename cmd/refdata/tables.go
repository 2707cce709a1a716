package main

import (
	"fmt"
	"strings"

	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/mappingio"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/refstore"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
	"github.com/spf13/cobra"
)

func (a *app) tablesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List, create, show and delete reference tables",
	}
	cmd.AddCommand(a.tablesListCmd(), a.tablesCreateCmd(), a.tablesShowCmd(), a.tablesDeleteCmd())
	return cmd
}

func (a *app) tablesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the names of all tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := a.engine.GetAllTableNames(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

// parseColumn reads NAME[:TYPE[:DESCRIPTION]].
func parseColumn(def string, order int) (table.Column, error) {
	parts := strings.SplitN(def, ":", 3)
	col := table.Column{Name: strings.TrimSpace(parts[0]), DataType: "string", Order: order}
	if col.Name == "" {
		return col, errs.InvalidArgument("parse column", "column "+def, "has no name")
	}
	if len(parts) > 1 && parts[1] != "" {
		col.DataType = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		col.Description = parts[2]
	}
	return col, nil
}

func (a *app) tablesCreateCmd() *cobra.Command {
	var (
		columns []string
		hidden  bool
		notify  bool
		source  table.Source
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty table",
		Example: `  refdata tables create producttype \
    --column Category:string:"Product category" --column Weight:int --notify`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cols := make([]table.Column, 0, len(columns))
			for i, def := range columns {
				col, err := parseColumn(def, i+1)
				if err != nil {
					return err
				}
				cols = append(cols, col)
			}
			t, err := a.engine.CreateReferenceTable(cmd.Context(), args[0], cols,
				mappingio.WithVisible(!hidden),
				mappingio.WithNotifyOnNewMapping(notify),
				mappingio.WithSource(source),
			)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", t.Name)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&columns, "column", nil, "column as NAME[:TYPE[:DESCRIPTION]], repeatable")
	f.BoolVar(&hidden, "hidden", false, "create the table hidden")
	f.BoolVar(&notify, "notify", false, "flag new keys registered by sync for curation")
	f.StringVar(&source.LakehouseItemID, "source-lakehouse", "", "lakehouse item id the keys come from")
	f.StringVar(&source.WorkspaceID, "source-workspace", "", "workspace id the keys come from")
	f.StringVar(&source.TableName, "source-table", "", "source table name")
	f.StringVar(&source.OneLakeLink, "source-link", "", "OneLake link of the source table")
	return cmd
}

type tableView struct {
	refstore.ConfigDocument
	RowCount     int `json:"rowCount"`
	PendingCount int `json:"pendingCount"`
}

func (a *app) tablesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a table's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.engine.GetReferenceTable(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if t == nil {
				return errs.TableNotFound("show", args[0])
			}
			view := tableView{ConfigDocument: refstore.ConfigOf(t), RowCount: len(t.Rows)}
			for _, r := range t.Rows {
				if r.IsNew {
					view.PendingCount++
				}
			}
			return writeJSON(cmd.OutOrStdout(), view)
		},
	}
}

func (a *app) tablesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a table and all its rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := a.engine.DeleteReferenceTable(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s does not exist\n", args[0])
			}
			return nil
		},
	}
}
