// Package filestore persists reference tables as JSON documents on the
// local file system.
//
// Each table is split into a config document and a data document:
//
//	{base}/ReferenceTableConfigurations/{name}_config.json
//	{base}/ReferenceTableData/{name}_data.json
//
// Documents are written to a temporary file and renamed into place, so a
// reader never sees a half-written document. The two renames are not atomic
// as a pair; a crash between them leaves the previous data document next to
// the new config.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/refstore"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
	"github.com/rs/zerolog"
)

const (
	ConfigDir    = "ReferenceTableConfigurations"
	DataDir      = "ReferenceTableData"
	configSuffix = "_config.json"
	dataSuffix   = "_data.json"
)

// Storage is a refstore.Storage on a base directory.
type Storage struct {
	// Locks serves LockTable for callers doing read-modify-write cycles.
	refstore.Locks

	basePath string
	files    refstore.Locks
	now      refstore.Clock
	log      zerolog.Logger
}

var (
	_ refstore.Storage     = (*Storage)(nil)
	_ refstore.TableLocker = (*Storage)(nil)
)

type Option func(*Storage)

func WithClock(now refstore.Clock) Option {
	return func(s *Storage) { s.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Storage) { s.log = log }
}

// New returns a storage rooted at basePath. The directory tree is created
// if it does not exist.
func New(basePath string, opts ...Option) (*Storage, error) {
	if basePath == "" {
		return nil, errs.InvalidArgument("file store", "base path", "is empty")
	}
	s := &Storage{
		basePath: basePath,
		now:      refstore.UTCNow,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, dir := range []string{s.configDir(), s.dataDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("file store: create %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Storage) BasePath() string { return s.basePath }

func (s *Storage) configDir() string { return filepath.Join(s.basePath, ConfigDir) }

func (s *Storage) dataDir() string { return filepath.Join(s.basePath, DataDir) }

func (s *Storage) paths(op, name string) (config, data string, err error) {
	if err := table.ValidateName(name); err != nil {
		return "", "", errs.InvalidArgument(op, "table name", err.Error())
	}
	return filepath.Join(s.configDir(), name+configSuffix),
		filepath.Join(s.dataDir(), name+dataSuffix), nil
}

func (s *Storage) GetReferenceTable(ctx context.Context, name string) (*table.ReferenceTable, error) {
	const op = "file store: get reference table"
	configPath, dataPath, err := s.paths(op, name)
	if err != nil {
		return nil, err
	}

	unlock := s.files.Lock(name)
	defer unlock()

	configBytes, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", op, name, err)
	}
	t, err := refstore.DecodeConfig(configBytes)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", op, name, err)
	}

	dataBytes, err := os.ReadFile(dataPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.log.Debug().Str("table", name).Msg("data document missing, reading empty row set")
		return t, nil
	case err != nil:
		return nil, fmt.Errorf("%s %q: %w", op, name, err)
	}
	rows, err := refstore.DecodeRows(dataBytes)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", op, name, err)
	}
	t.Rows = rows
	return t, nil
}

func (s *Storage) SaveReferenceTable(ctx context.Context, t *table.ReferenceTable) error {
	const op = "file store: save reference table"
	if err := refstore.CheckSave(op, t); err != nil {
		return err
	}
	configPath, dataPath, err := s.paths(op, t.Name)
	if err != nil {
		return err
	}

	unlock := s.files.Lock(t.Name)
	defer unlock()

	t.UpdatedAt = s.now()
	configBytes, err := refstore.EncodeConfig(t)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	dataBytes, err := refstore.EncodeRows(t)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := writeFile(configPath, configBytes); err != nil {
		return fmt.Errorf("%s %q: %w", op, t.Name, err)
	}
	if err := writeFile(dataPath, dataBytes); err != nil {
		return fmt.Errorf("%s %q: %w", op, t.Name, err)
	}
	s.log.Debug().Str("table", t.Name).Int("rows", len(t.Rows)).Msg("saved reference table")
	return nil
}

// writeFile replaces path with data via a temporary file in the same
// directory.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

func (s *Storage) DeleteReferenceTable(ctx context.Context, name string) (bool, error) {
	const op = "file store: delete reference table"
	configPath, dataPath, err := s.paths(op, name)
	if err != nil {
		return false, err
	}

	unlock := s.files.Lock(name)
	defer unlock()

	removed := false
	for _, p := range []string{configPath, dataPath} {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed = true
		case errors.Is(err, fs.ErrNotExist):
		default:
			return removed, fmt.Errorf("%s %q: %w", op, name, err)
		}
	}
	return removed, nil
}

// GetAllTableNames lists the tables that have a config document.
func (s *Storage) GetAllTableNames(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.configDir())
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file store: list tables: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || isTempFile(e.Name()) {
			continue
		}
		if name, ok := strings.CutSuffix(e.Name(), configSuffix); ok && name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// isTempFile matches the names writeFile gives its temporary files.
func isTempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp")
}

func (s *Storage) TableExists(ctx context.Context, name string) (bool, error) {
	const op = "file store: table exists"
	configPath, _, err := s.paths(op, name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(configPath)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%s %q: %w", op, name, err)
	}
}
