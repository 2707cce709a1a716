// Package table holds the reference table data model: tables, columns,
// rows and the attribute values they carry.
package table

import (
	"strings"
	"time"
)

// KeyColumnName is the column under which every row's key is surfaced in
// read results. It is the same for all tables.
const KeyColumnName = "key"

// Column is declarative metadata. Rows are not validated against it.
type Column struct {
	Name        string
	DataType    string // free-form tag such as "string" or "int"
	Description string
	Order       int
}

// Source records where a table's identities originate. It is set at
// creation time and never changed by sync.
type Source struct {
	LakehouseItemID string
	WorkspaceID     string
	TableName       string
	OneLakeLink     string
}

// Row is one key of a reference table and its curated attributes.
type Row struct {
	Key        string
	Attributes Attributes
	// IsNew is true for rows registered by sync that were never curated.
	IsNew bool
}

// ReferenceTable maps external keys to curated attributes. Rows keep the
// order in which keys were first registered.
type ReferenceTable struct {
	Name               string
	KeyColumnName      string
	Columns            []Column
	Rows               []Row
	IsVisible          bool
	NotifyOnNewMapping bool
	Source             Source
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// New returns an empty, visible table with the fixed key column name.
func New(name string, columns []Column, now time.Time) *ReferenceTable {
	if columns == nil {
		columns = []Column{}
	}
	return &ReferenceTable{
		Name:          name,
		KeyColumnName: KeyColumnName,
		Columns:       columns,
		Rows:          []Row{},
		IsVisible:     true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// FoldKey returns the case-insensitive identity of a row key.
func FoldKey(key string) string {
	return strings.ToLower(key)
}

// FindRow returns the index of the row whose key matches case-insensitively.
func (t *ReferenceTable) FindRow(key string) (int, bool) {
	folded := FoldKey(key)
	for i := range t.Rows {
		if FoldKey(t.Rows[i].Key) == folded {
			return i, true
		}
	}
	return -1, false
}

// KeySet returns the folded keys of all rows.
func (t *ReferenceTable) KeySet() map[string]struct{} {
	set := make(map[string]struct{}, len(t.Rows))
	for _, r := range t.Rows {
		set[FoldKey(r.Key)] = struct{}{}
	}
	return set
}

// Column looks a column up by name, case-insensitively.
func (t *ReferenceTable) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Clone returns a deep copy so stored tables are never aliased by callers.
func (t *ReferenceTable) Clone() *ReferenceTable {
	if t == nil {
		return nil
	}
	out := *t
	out.Columns = append([]Column{}, t.Columns...)
	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		out.Rows[i] = Row{
			Key:        r.Key,
			Attributes: r.Attributes.Clone(),
			IsNew:      r.IsNew,
		}
	}
	return &out
}

// ReadView returns the row as it appears in read results: every attribute
// plus the synthesized key column.
func (r Row) ReadView() Attributes {
	out := r.Attributes.Clone()
	out[KeyColumnName] = String(r.Key)
	return out
}
