package mappingio

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
)

// keyAccessor reads the key attribute of one record. ok is false for a
// record with no key to register (nil pointer, nil or empty value).
type keyAccessor func(rv reflect.Value) (key string, ok bool, err error)

// extractKeys resolves attr on the element type of records and reads it
// from every element. Records must be a slice or array of structs, struct
// pointers or string-keyed maps. Elements of interface type are resolved
// on their dynamic type.
func extractKeys(records any, attr string) ([]string, error) {
	if records == nil {
		return nil, errs.InvalidArgument("extract keys", "records", "is nil")
	}
	rv := reflect.ValueOf(records)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, errs.InvalidArgument("extract keys", "records", "is nil")
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return nil, errs.InvalidArgument("extract keys", "records", "is nil")
		}
	case reflect.Array:
	default:
		return nil, errs.InvalidArgument("extract keys", "records", fmt.Sprintf("must be a slice or array, got %s", rv.Type()))
	}

	static, err := accessorFor(rv.Type().Elem(), attr)
	if err != nil {
		return nil, err
	}

	dynamic := map[reflect.Type]keyAccessor{}
	keys := make([]string, 0, rv.Len())
	for i := range rv.Len() {
		ev := rv.Index(i)
		acc := static
		if acc == nil {
			if ev.IsNil() {
				continue
			}
			ev = ev.Elem()
			var ok bool
			if acc, ok = dynamic[ev.Type()]; !ok {
				if acc, err = accessorFor(ev.Type(), attr); err != nil {
					return nil, err
				}
				if acc == nil {
					return nil, errs.InvalidArgument("extract keys", "records", fmt.Sprintf("element %d has unsupported type %s", i, ev.Type()))
				}
				dynamic[ev.Type()] = acc
			}
		}
		key, ok, err := acc(ev)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// accessorFor returns nil for interface types, which are resolved per
// element.
func accessorFor(t reflect.Type, attr string) (keyAccessor, error) {
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}

	switch base.Kind() {
	case reflect.Interface:
		return nil, nil
	case reflect.Struct:
		idx, ok := fieldIndex(base, attr)
		if !ok {
			return nil, &errs.MissingPropertyError{Type: base.String(), Property: attr}
		}
		return func(rv reflect.Value) (string, bool, error) {
			rv, ok := derefValue(rv)
			if !ok {
				return "", false, nil
			}
			f, err := rv.FieldByIndexErr(idx)
			if err != nil {
				// nil embedded pointer on the way to the field
				return "", false, nil
			}
			return stringify(f)
		}, nil
	case reflect.Map:
		if base.Key().Kind() != reflect.String {
			return nil, errs.InvalidArgument("extract keys", "records", fmt.Sprintf("map key type %s is not a string", base.Key()))
		}
		key := reflect.ValueOf(attr).Convert(base.Key())
		return func(rv reflect.Value) (string, bool, error) {
			rv, ok := derefValue(rv)
			if !ok || rv.IsNil() {
				return "", false, nil
			}
			v := rv.MapIndex(key)
			if !v.IsValid() {
				return "", false, &errs.MissingPropertyError{Type: base.String(), Property: attr}
			}
			return stringify(v)
		}, nil
	default:
		return nil, errs.InvalidArgument("extract keys", "records", fmt.Sprintf("element type %s has no properties", t))
	}
}

// fieldIndex finds an exported field by Go name, falling back to its json
// tag name.
func fieldIndex(t reflect.Type, attr string) ([]int, bool) {
	fields := reflect.VisibleFields(t)
	for _, f := range fields {
		if f.IsExported() && f.Name == attr {
			return f.Index, true
		}
	}
	for _, f := range fields {
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name != "" && name != "-" && name == attr {
			return f.Index, true
		}
	}
	return nil, false
}

func derefValue(rv reflect.Value) (reflect.Value, bool) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return rv, false
		}
		rv = rv.Elem()
	}
	return rv, true
}

func stringify(rv reflect.Value) (string, bool, error) {
	rv, ok := derefValue(rv)
	if !ok {
		return "", false, nil
	}
	// Integers and string kinds (json.Number included) are formatted
	// directly; a float64 round trip would merge keys above 2^53.
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), rv.Len() > 0, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true, nil
	}
	if !rv.CanInterface() {
		return "", false, fmt.Errorf("key attribute of type %s is not accessible", rv.Type())
	}
	v, err := table.ValueOf(rv.Interface())
	if err != nil {
		return "", false, err
	}
	if v.IsNull() {
		return "", false, nil
	}
	s := v.String()
	return s, s != "", nil
}
