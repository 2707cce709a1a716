package refstore

import (
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
)

// ConfigDocument is the persisted form of a table's metadata.
type ConfigDocument struct {
	Name                  string           `json:"name"`
	KeyColumnName         string           `json:"keyColumnName"`
	Columns               []ColumnDocument `json:"columns"`
	IsVisible             bool             `json:"isVisible"`
	NotifyOnNewMapping    bool             `json:"notifyOnNewMapping"`
	SourceLakehouseItemID *string          `json:"sourceLakehouseItemId"`
	SourceWorkspaceID     *string          `json:"sourceWorkspaceId"`
	SourceTableName       *string          `json:"sourceTableName"`
	SourceOneLakeLink     *string          `json:"sourceOneLakeLink"`
	CreatedAt             time.Time        `json:"createdAt"`
	UpdatedAt             time.Time        `json:"updatedAt"`
}

type ColumnDocument struct {
	Name        string  `json:"name"`
	DataType    string  `json:"dataType"`
	Description *string `json:"description"`
	Order       int     `json:"order"`
}

// RowsDocument is the persisted row payload: key to attributes. The key
// column is not repeated inside the attributes.
type RowsDocument map[string]table.Attributes

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ConfigOf extracts the metadata document of a table.
func ConfigOf(t *table.ReferenceTable) ConfigDocument {
	cols := make([]ColumnDocument, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = ColumnDocument{
			Name:        c.Name,
			DataType:    c.DataType,
			Description: optional(c.Description),
			Order:       c.Order,
		}
	}
	keyCol := t.KeyColumnName
	if keyCol == "" {
		keyCol = table.KeyColumnName
	}
	return ConfigDocument{
		Name:                  t.Name,
		KeyColumnName:         keyCol,
		Columns:               cols,
		IsVisible:             t.IsVisible,
		NotifyOnNewMapping:    t.NotifyOnNewMapping,
		SourceLakehouseItemID: optional(t.Source.LakehouseItemID),
		SourceWorkspaceID:     optional(t.Source.WorkspaceID),
		SourceTableName:       optional(t.Source.TableName),
		SourceOneLakeLink:     optional(t.Source.OneLakeLink),
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
}

// Table rebuilds a table from its metadata document, without rows.
func (d ConfigDocument) Table() *table.ReferenceTable {
	cols := make([]table.Column, len(d.Columns))
	for i, c := range d.Columns {
		cols[i] = table.Column{
			Name:        c.Name,
			DataType:    c.DataType,
			Description: deref(c.Description),
			Order:       c.Order,
		}
	}
	return &table.ReferenceTable{
		Name:               d.Name,
		KeyColumnName:      table.KeyColumnName,
		Columns:            cols,
		Rows:               []table.Row{},
		IsVisible:          d.IsVisible,
		NotifyOnNewMapping: d.NotifyOnNewMapping,
		Source: table.Source{
			LakehouseItemID: deref(d.SourceLakehouseItemID),
			WorkspaceID:     deref(d.SourceWorkspaceID),
			TableName:       deref(d.SourceTableName),
			OneLakeLink:     deref(d.SourceOneLakeLink),
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// RowsOf extracts the row payload of a table.
func RowsOf(t *table.ReferenceTable) RowsDocument {
	doc := make(RowsDocument, len(t.Rows))
	for _, r := range t.Rows {
		attrs := r.Attributes.Clone()
		delete(attrs, table.KeyColumnName)
		doc[r.Key] = attrs
	}
	return doc
}

// Rows turns the payload back into rows ordered by key. IsNew is not part
// of the document, so loaded rows are reported as curated.
func (d RowsDocument) Rows() []table.Row {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]table.Row, 0, len(keys))
	for _, k := range keys {
		attrs := d[k]
		if attrs == nil {
			attrs = table.Attributes{}
		}
		rows = append(rows, table.Row{Key: k, Attributes: attrs})
	}
	return rows
}

// EncodeConfig renders the metadata document as indented JSON.
func EncodeConfig(t *table.ReferenceTable) ([]byte, error) {
	b, err := json.MarshalIndent(ConfigOf(t), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode config of %q: %w", t.Name, err)
	}
	return b, nil
}

func DecodeConfig(data []byte) (*table.ReferenceTable, error) {
	var doc ConfigDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return doc.Table(), nil
}

// EncodeRows renders the row payload as indented JSON with keys sorted.
func EncodeRows(t *table.ReferenceTable) ([]byte, error) {
	b, err := json.MarshalIndent(RowsOf(t), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode rows of %q: %w", t.Name, err)
	}
	return b, nil
}

func DecodeRows(data []byte) ([]table.Row, error) {
	var doc RowsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return doc.Rows(), nil
}
