package mappingio

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
)

// ReadMapping returns every row of the table keyed by row key. Each row map
// holds the row's attributes plus the key under table.KeyColumnName.
func (e *Engine) ReadMapping(ctx context.Context, tableName string) (map[string]table.Attributes, error) {
	t, err := e.load(ctx, "read mapping", tableName)
	if err != nil {
		return nil, err
	}
	out := make(map[string]table.Attributes, len(t.Rows))
	for _, r := range t.Rows {
		out[r.Key] = r.ReadView()
	}
	return out, nil
}

// AddOrUpdateRow replaces the attributes of the row matching key
// case-insensitively, or appends a new row. Either way the row is marked
// curated and the table saved. An attribute named like the key column is
// dropped; the key lives in Row.Key.
func (e *Engine) AddOrUpdateRow(ctx context.Context, tableName, key string, attributes table.Attributes) error {
	const op = "add or update row"
	if key == "" {
		return errs.InvalidArgument(op, "key", "is empty")
	}

	unlock := e.locker.LockTable(tableName)
	defer unlock()

	t, err := e.load(ctx, op, tableName)
	if err != nil {
		return err
	}

	attrs := attributes.Clone()
	delete(attrs, table.KeyColumnName)

	i, found := t.FindRow(key)
	if found {
		t.Rows[i].Attributes = attrs
		t.Rows[i].IsNew = false
	} else {
		t.Rows = append(t.Rows, table.Row{Key: key, Attributes: attrs})
	}

	if err := e.store.SaveReferenceTable(ctx, t); err != nil {
		return fmt.Errorf("%s %q: %w", op, tableName, err)
	}
	e.metrics.rowsUpserted.WithLabelValues(tableName).Inc()
	e.log.Debug().Str("table", tableName).Str("key", key).Bool("created", !found).Msg("upserted row")
	return nil
}

// DeleteRow removes the row matching key case-insensitively and reports
// whether there was one.
func (e *Engine) DeleteRow(ctx context.Context, tableName, key string) (bool, error) {
	const op = "delete row"
	unlock := e.locker.LockTable(tableName)
	defer unlock()

	t, err := e.load(ctx, op, tableName)
	if err != nil {
		return false, err
	}
	i, found := t.FindRow(key)
	if !found {
		return false, nil
	}
	t.Rows = append(t.Rows[:i], t.Rows[i+1:]...)

	if err := e.store.SaveReferenceTable(ctx, t); err != nil {
		return false, fmt.Errorf("%s %q: %w", op, tableName, err)
	}
	e.log.Debug().Str("table", tableName).Str("key", key).Msg("deleted row")
	return true, nil
}

// PendingKeys returns the keys registered by sync that were never curated,
// in table order.
func (e *Engine) PendingKeys(ctx context.Context, tableName string) ([]string, error) {
	t, err := e.load(ctx, "pending keys", tableName)
	if err != nil {
		return nil, err
	}
	keys := []string{}
	for _, r := range t.Rows {
		if r.IsNew {
			keys = append(keys, r.Key)
		}
	}
	return keys, nil
}

// ReadTypedMapping is ReadMapping with every row decoded into T. Fields are
// matched by json tag or name, case-insensitively, and scalar values are
// converted loosely ("12" fills an int).
func ReadTypedMapping[T any](ctx context.Context, e *Engine, tableName string) (map[string]T, error) {
	const op = "read typed mapping"
	rows, err := e.ReadMapping(ctx, tableName)
	if err != nil {
		return nil, err
	}

	out := make(map[string]T, len(rows))
	for key, attrs := range rows {
		var v T
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "json",
			WeaklyTypedInput: true,
			Result:           &v,
		})
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", op, tableName, err)
		}
		if err := dec.Decode(attrs.Native()); err != nil {
			return nil, fmt.Errorf("%s %q: row %q: %w", op, tableName, key, err)
		}
		out[key] = v
	}
	return out, nil
}
