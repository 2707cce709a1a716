package mappingio

import (
	"context"
	"fmt"

	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
)

// SyncMapping registers the keys found in records as new rows of
// tableName and returns how many were added.
//
// records is a slice or array of structs, struct pointers or string-keyed
// maps; keyAttributeName names a struct field (by Go name or json tag) or
// map key. Every key is read before storage is touched, so a record type
// without the attribute fails the whole call with an
// *errs.MissingPropertyError. Records whose key is nil or empty are
// skipped.
//
// Keys already present in the table, compared case-insensitively, are left
// alone, as are duplicates within the batch. New rows have no attributes
// and IsNew set. The table is created with no columns if it does not exist,
// unless there is nothing to add. The table is saved once per call.
func (e *Engine) SyncMapping(ctx context.Context, records any, keyAttributeName, tableName string) (int, error) {
	const op = "sync mapping"
	if tableName == "" {
		return 0, errs.InvalidArgument(op, "table name", "is empty")
	}
	if keyAttributeName == "" {
		return 0, errs.InvalidArgument(op, "key attribute name", "is empty")
	}

	keys, err := extractKeys(records, keyAttributeName)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", op, tableName, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	unlock := e.locker.LockTable(tableName)
	defer unlock()

	t, err := e.store.GetReferenceTable(ctx, tableName)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", op, tableName, err)
	}
	created := t == nil
	if created {
		if err := table.ValidateName(tableName); err != nil {
			return 0, errs.InvalidArgument(op, "table name", err.Error())
		}
		t = table.New(tableName, nil, e.now())
	}

	seen := t.KeySet()
	added := 0
	for _, key := range keys {
		folded := table.FoldKey(key)
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		t.Rows = append(t.Rows, table.Row{Key: key, Attributes: table.Attributes{}, IsNew: true})
		added++
	}

	if !created && added == 0 {
		e.log.Debug().Str("table", tableName).Int("records", len(keys)).Msg("sync found no new keys")
		return 0, nil
	}
	if err := e.store.SaveReferenceTable(ctx, t); err != nil {
		return 0, fmt.Errorf("%s %q: %w", op, tableName, err)
	}

	if created {
		e.metrics.tablesCreated.Inc()
		e.log.Info().Str("table", tableName).Msg("created reference table on sync")
	}
	e.metrics.keysAdded.WithLabelValues(tableName).Add(float64(added))
	e.log.Info().Str("table", tableName).Int("records", len(keys)).Int("added", added).Msg("synced mapping keys")
	return added, nil
}
