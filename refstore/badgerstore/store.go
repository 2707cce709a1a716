// Package badgerstore persists reference tables in an embedded BadgerDB.
//
// A table's config document and its changed rows are written in a single
// badger transaction, so readers observe either the old or the new table.
// Rows whose stored value is unchanged are not rewritten, so appending to a
// large table stays cheap. A save that changes more rows than one badger
// transaction can hold fails with badger.ErrTxnTooBig; the limit scales with
// Options.MemTableSize.
package badgerstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/refstore"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
	"github.com/rs/zerolog"
)

// Store is a refstore.Storage backed by BadgerDB.
type Store struct {
	refstore.Locks

	db  *badger.DB
	now refstore.Clock
}

var (
	_ refstore.Storage     = (*Store)(nil)
	_ refstore.TableLocker = (*Store)(nil)
	_ refstore.Creator     = (*Store)(nil)
)

// Options configures the BadgerDB store.
type Options struct {
	// Path to the database directory. If empty, uses in-memory mode.
	Path string
	// InMemory forces in-memory mode even if Path is set.
	InMemory bool
	// MemTableSize overrides badger's memtable size, which also caps the
	// size of one transaction. Zero keeps the default.
	MemTableSize int64
	// Logger receives badger's own log output. If nil, logging is disabled.
	Logger *zerolog.Logger
	// Clock stamps UpdatedAt on save. Defaults to refstore.UTCNow.
	Clock refstore.Clock
}

// New opens the database described by opts.
func New(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)

	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.MemTableSize > 0 {
		// badger refuses a value threshold above the transaction size.
		badgerOpts = badgerOpts.WithMemTableSize(opts.MemTableSize).
			WithValueThreshold(min(badgerOpts.ValueThreshold, opts.MemTableSize/10))
	}

	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(badgerLogger{log: *opts.Logger})
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	now := opts.Clock
	if now == nil {
		now = refstore.UTCNow
	}
	return &Store{db: db, now: now}, nil
}

// Close closes the BadgerDB database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetReferenceTable(ctx context.Context, name string) (*table.ReferenceTable, error) {
	var t *table.ReferenceTable
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(configKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			t, err = refstore.DecodeConfig(val)
			return err
		}); err != nil {
			return err
		}

		prefix := rowsPrefix(name)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := rowKeyFrom(prefix, it.Item().Key())
			if err := it.Item().Value(func(val []byte) error {
				row, err := decodeRow(key, val)
				if err != nil {
					return fmt.Errorf("row %q: %w", key, err)
				}
				t.Rows = append(t.Rows, row)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger store: get reference table %q: %w", name, err)
	}
	return t, nil
}

func (s *Store) SaveReferenceTable(ctx context.Context, t *table.ReferenceTable) error {
	return s.write("badger store: save reference table", t, false)
}

// CreateReferenceTable writes t only if no table with its name exists.
// The check and the write share one transaction.
func (s *Store) CreateReferenceTable(ctx context.Context, t *table.ReferenceTable) error {
	return s.write("badger store: create reference table", t, true)
}

func (s *Store) write(op string, t *table.ReferenceTable, create bool) error {
	if err := refstore.CheckSave(op, t); err != nil {
		return err
	}
	t.UpdatedAt = s.now()

	config, err := refstore.EncodeConfig(t)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if create {
			_, err := txn.Get(configKey(t.Name))
			if err == nil {
				return errs.TableExists(op, t.Name)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		stored, err := rowValues(txn, rowsPrefix(t.Name))
		if err != nil {
			return err
		}
		if err := txn.Set(configKey(t.Name), config); err != nil {
			return err
		}
		for _, r := range t.Rows {
			val, err := encodeRow(r)
			if err != nil {
				return fmt.Errorf("encode row %q: %w", r.Key, err)
			}
			k := rowKey(t.Name, r.Key)
			old, ok := stored[string(k)]
			delete(stored, string(k))
			if ok && bytes.Equal(old, val) {
				continue
			}
			if err := txn.Set(k, val); err != nil {
				return err
			}
		}
		for k := range stored {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("%s %q: %d rows do not fit one transaction, raise MemTableSize: %w", op, t.Name, len(t.Rows), err)
	}
	if errors.Is(err, errs.ErrAlreadyExists) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%s %q: %w", op, t.Name, err)
	}
	return nil
}

// rowValues returns the stored value of every key under prefix.
func rowValues(txn *badger.Txn, prefix []byte) (map[string][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	vals := make(map[string][]byte)
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		vals[string(it.Item().Key())] = val
	}
	return vals, nil
}

// deletePrefix removes every key under prefix. Keys are collected before
// deleting so the iterator does not observe its own writes.
func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false

	var keys [][]byte
	it := txn.NewIterator(opts)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DeleteReferenceTable(ctx context.Context, name string) (bool, error) {
	var existed bool
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(configKey(name))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			existed = true
			if err := txn.Delete(configKey(name)); err != nil {
				return err
			}
		}
		return deletePrefix(txn, rowsPrefix(name))
	})
	if err != nil {
		return false, fmt.Errorf("badger store: delete reference table %q: %w", name, err)
	}
	return existed, nil
}

// GetAllTableNames returns names in key order, which is sorted order for
// names without control bytes.
func (s *Store) GetAllTableNames(ctx context.Context) ([]string, error) {
	names := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = configPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(configPrefix); it.ValidForPrefix(configPrefix); it.Next() {
			names = append(names, nameFromConfigKey(it.Item().Key()))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger store: list tables: %w", err)
	}
	return names, nil
}

func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(configKey(name))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("badger store: table exists %q: %w", name, err)
	}
}
