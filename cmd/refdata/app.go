package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/attrmap"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/config"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/logging"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/mappingio"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds what the commands share once the root command has loaded the
// configuration.
type app struct {
	configPath string

	cfg    config.Config
	log    zerolog.Logger
	engine *mappingio.Engine
	mapper *attrmap.Engine
	close  func() error
}

// newRootCmd returns the command tree and a func releasing the storage the
// executed command opened. Cobra skips post-run hooks when a command fails,
// so callers run the release func after Execute either way.
func newRootCmd() (*cobra.Command, func() error) {
	a := &app{}
	root := &cobra.Command{
		Use:               "refdata",
		Short:             "Manage reference tables",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to the config file (default: nearest "+config.FileName+")")

	root.AddCommand(
		a.tablesCmd(),
		a.syncCmd(),
		a.readCmd(),
		a.upsertCmd(),
		a.rowsCmd(),
		a.pendingCmd(),
		a.mapCmd(),
		a.configCmd(),
	)
	return root, a.teardown
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	store, closeStore, err := openStorage(cmd.Context(), cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}
	engine, err := mappingio.New(store, mappingio.WithLogger(log))
	if err != nil {
		_ = closeStore()
		return err
	}
	mapper, err := attrmap.New(cfg.Mapping, attrmap.WithLogger(log))
	if err != nil {
		_ = closeStore()
		return err
	}

	a.cfg, a.log, a.engine, a.mapper, a.close = cfg, log, engine, mapper, closeStore
	log.Debug().Str("backend", cfg.Storage.Backend).Msg("storage opened")
	return nil
}

func (a *app) teardown() error {
	if a.close == nil {
		return nil
	}
	err := a.close()
	a.close = nil
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readRecords decodes a JSON array of objects from file, or from stdin
// when file is empty or "-". Numbers stay json.Number so large integer
// keys keep every digit.
func readRecords(cmd *cobra.Command, file string) ([]map[string]any, error) {
	var r io.Reader = cmd.InOrStdin()
	if file != "" && file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open records: %w", err)
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}
