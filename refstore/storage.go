// Package refstore provides the persistence abstraction for reference
// tables and its in-memory implementation.
//
// Persistent backends live in subpackages:
//
//	filestore    two JSON documents per table under a base directory
//	badgerstore  embedded BadgerDB, config and rows in one transaction
//	ddbstore     one DynamoDB item per table
//
// All implementations are safe for concurrent use within one process.
package refstore

import (
	"context"
	"time"

	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
)

// Storage persists reference tables by name.
type Storage interface {
	// GetReferenceTable returns nil and no error when the table does not exist.
	GetReferenceTable(ctx context.Context, name string) (*table.ReferenceTable, error)
	// SaveReferenceTable creates or replaces the table and sets its UpdatedAt.
	SaveReferenceTable(ctx context.Context, t *table.ReferenceTable) error
	// DeleteReferenceTable reports whether a table existed and was removed.
	DeleteReferenceTable(ctx context.Context, name string) (bool, error)
	GetAllTableNames(ctx context.Context) ([]string, error)
	TableExists(ctx context.Context, name string) (bool, error)
}

// TableLocker is implemented by storages that serialize read-modify-write
// cycles on a single table. The lock is independent of any lock the
// storage takes inside its own methods, so storage calls may be made while
// it is held.
type TableLocker interface {
	LockTable(name string) (unlock func())
}

// Creator is implemented by storages that can create a table atomically.
// CreateReferenceTable fails with errs.ErrAlreadyExists when the name is
// taken, and otherwise behaves like SaveReferenceTable.
type Creator interface {
	CreateReferenceTable(ctx context.Context, t *table.ReferenceTable) error
}

// Clock returns the current time. Storages take one so tests can pin
// timestamps.
type Clock func() time.Time

// UTCNow is the default Clock.
func UTCNow() time.Time { return time.Now().UTC() }

// CheckSave validates the arguments every SaveReferenceTable shares.
func CheckSave(op string, t *table.ReferenceTable) error {
	if t == nil {
		return errs.InvalidArgument(op, "table", "is nil")
	}
	if t.Name == "" {
		return errs.InvalidArgument(op, "table name", "is empty")
	}
	return nil
}
