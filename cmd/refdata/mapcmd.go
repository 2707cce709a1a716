package main

import (
	"fmt"
	"go/token"
	"maps"
	"reflect"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/attrmap"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
	"github.com/spf13/cobra"
)

// columnType is the Go type values of a column are converted to. Unknown
// data types keep the decoded JSON value.
func columnType(dataType string) reflect.Type {
	switch strings.ToLower(strings.TrimSpace(dataType)) {
	case "string", "text":
		return reflect.TypeFor[*string]()
	case "int", "integer", "long":
		return reflect.TypeFor[*int64]()
	case "float", "double", "number", "decimal":
		return reflect.TypeFor[*float64]()
	case "bool", "boolean":
		return reflect.TypeFor[*bool]()
	case "date", "datetime", "time", "timestamp":
		return reflect.TypeFor[*time.Time]()
	}
	return reflect.TypeFor[any]()
}

// fieldName turns a column name into an exported Go identifier.
func fieldName(column string) string {
	var b strings.Builder
	for _, r := range column {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	s = string(unicode.ToUpper(r)) + s[size:]
	if !token.IsExported(s) {
		s = "X" + s
	}
	return s
}

// schema is a struct type with one field per table column. Records are
// mapped onto it so every value arrives converted to its column's type.
type schema struct {
	typ     reflect.Type
	columns []string
}

func newSchema(columns []table.Column) schema {
	var s schema
	fields := make([]reflect.StructField, 0, len(columns))
	seen := map[string]bool{}
	for _, c := range columns {
		name := fieldName(c.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		fields = append(fields, reflect.StructField{Name: name, Type: columnType(c.DataType)})
		s.columns = append(s.columns, c.Name)
	}
	s.typ = reflect.StructOf(fields)
	return s
}

// attributes maps record onto the schema and returns the converted values
// keyed by column name. Columns the record leaves out are omitted.
func (s schema) attributes(mapper *attrmap.Engine, record map[string]any) (table.Attributes, error) {
	target := reflect.New(s.typ)
	if err := mapper.MapToExisting(record, target.Interface()); err != nil {
		return nil, err
	}

	attrs := make(table.Attributes, len(s.columns))
	v := target.Elem()
	for i, col := range s.columns {
		f := v.Field(i)
		if f.IsNil() {
			continue
		}
		x := f.Elem().Interface()
		if t, ok := x.(time.Time); ok {
			attrs[col] = table.String(t.Format(time.RFC3339Nano))
			continue
		}
		val, err := table.ValueOf(x)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		attrs[col] = val
	}
	return attrs, nil
}

func (a *app) mapCmd() *cobra.Command {
	var keyAttr, file string
	cmd := &cobra.Command{
		Use:   "map <table>",
		Short: "Curate rows from JSON records typed by the table's columns",
		Long: `Reads a JSON array of objects. Each record's key attribute selects the row;
the remaining attributes are matched to the table's columns and converted to
each column's data type (string, int, float, bool, datetime) under the
mapping policy of the config file. The matched values replace the row's
attributes.`,
		Example: `  refdata map producttype --key-attribute Produkt --file curated.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := a.engine.GetReferenceTable(ctx, args[0])
			if err != nil {
				return err
			}
			if t == nil {
				return errs.TableNotFound("map", args[0])
			}
			records, err := readRecords(cmd, file)
			if err != nil {
				return err
			}

			s := newSchema(t.Columns)
			conv := a.mapper.Converter()
			mapped := 0
			for i, rec := range records {
				raw, ok := rec[keyAttr]
				if !ok {
					return fmt.Errorf("record %d: %w", i, &errs.MissingPropertyError{Type: "record", Property: keyAttr})
				}
				key, err := attrmap.ConvertTo[string](conv, raw)
				if err != nil {
					return fmt.Errorf("record %d: key: %w", i, err)
				}
				if key == "" {
					a.log.Debug().Int("record", i).Msg("skipped record without key")
					continue
				}

				fields := maps.Clone(rec)
				delete(fields, keyAttr)
				attrs, err := s.attributes(a.mapper, fields)
				if err != nil {
					return fmt.Errorf("record %d: %w", i, err)
				}
				if err := a.engine.AddOrUpdateRow(ctx, t.Name, key, attrs); err != nil {
					return err
				}
				mapped++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mapped %d records into %s\n", mapped, t.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyAttr, "key-attribute", "", "record attribute holding the key")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with the records (default: stdin)")
	_ = cmd.MarkFlagRequired("key-attribute")
	return cmd
}
