package badgerstore

import (
	"bytes"

	"github.com/goccy/go-json"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
)

// Key layout:
//
//	cfg 0x00 [table]              config document
//	row 0x00 [table] 0x00 [key]   one row
//
// Table names and row keys are escaped so the separator byte never occurs
// inside a component.

const keySeparator byte = 0x00

var (
	configPrefix = []byte("cfg\x00")
	rowPrefix    = []byte("row\x00")
)

func configKey(name string) []byte {
	var buf bytes.Buffer
	buf.Write(configPrefix)
	buf.Write(escapeBytes([]byte(name)))
	return buf.Bytes()
}

// rowsPrefix covers every row of one table.
func rowsPrefix(name string) []byte {
	var buf bytes.Buffer
	buf.Write(rowPrefix)
	buf.Write(escapeBytes([]byte(name)))
	buf.WriteByte(keySeparator)
	return buf.Bytes()
}

func rowKey(name, key string) []byte {
	return append(rowsPrefix(name), escapeBytes([]byte(key))...)
}

func nameFromConfigKey(k []byte) string {
	return string(unescapeBytes(bytes.TrimPrefix(k, configPrefix)))
}

func rowKeyFrom(prefix, k []byte) string {
	return string(unescapeBytes(bytes.TrimPrefix(k, prefix)))
}

// escapeBytes maps 0x00 to 0x01 0x01 and 0x01 to 0x01 0x02.
func escapeBytes(b []byte) []byte {
	var buf bytes.Buffer
	for _, c := range b {
		switch c {
		case 0x00:
			buf.WriteByte(0x01)
			buf.WriteByte(0x01)
		case 0x01:
			buf.WriteByte(0x01)
			buf.WriteByte(0x02)
		default:
			buf.WriteByte(c)
		}
	}
	return buf.Bytes()
}

func unescapeBytes(b []byte) []byte {
	var buf bytes.Buffer
	for i := 0; i < len(b); i++ {
		if b[i] == 0x01 && i+1 < len(b) {
			switch b[i+1] {
			case 0x01:
				buf.WriteByte(0x00)
				i++
				continue
			case 0x02:
				buf.WriteByte(0x01)
				i++
				continue
			}
		}
		buf.WriteByte(b[i])
	}
	return buf.Bytes()
}

// rowValue is what a row key stores. Unlike the file format, the row state
// is kept.
type rowValue struct {
	Attributes table.Attributes `json:"attributes"`
	IsNew      bool             `json:"isNew,omitempty"`
}

func encodeRow(r table.Row) ([]byte, error) {
	attrs := r.Attributes.Clone()
	delete(attrs, table.KeyColumnName)
	return json.Marshal(rowValue{Attributes: attrs, IsNew: r.IsNew})
}

func decodeRow(key string, val []byte) (table.Row, error) {
	var v rowValue
	if err := json.Unmarshal(val, &v); err != nil {
		return table.Row{}, err
	}
	if v.Attributes == nil {
		v.Attributes = table.Attributes{}
	}
	return table.Row{Key: key, Attributes: v.Attributes, IsNew: v.IsNew}, nil
}
