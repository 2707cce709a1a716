// Package attrmap copies values between unrelated struct shapes.
//
// Source fields are matched to target fields by name. A `mapping:"Name"`
// tag on a source field redirects it to target field Name and
// `mapping:"-"` leaves it out. Every value passes through a Converter on
// its way to the target field type, and nested structs, pointers to
// structs, slices and maps of structs are mapped recursively up to
// Config.MaxDepth levels.
//
// Sources may also be string-keyed maps, whose keys act as field names.
//
// What happens on a failure (an unmapped field or a value that does not
// convert) is decided by the Engine's Config: either the first failure is
// returned, or the field is skipped and the failure recorded.
package attrmap

import (
	"cmp"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"slices"
	"sync"

	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
	"github.com/rs/zerolog"
)

// Engine maps values under a fixed Config. It is safe for concurrent use.
// Field plans are resolved once per source and target type and cached.
type Engine struct {
	cfg  Config
	conv Converter
	log  zerolog.Logger

	profiles sync.Map // profileKey -> *profile
	targets  sync.Map // reflect.Type -> *targetIndex
}

type Option func(*Engine)

// WithLogger sets the logger skipped failures are reported to at debug
// level.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("attrmap: invalid config: %w", err)
	}
	e := &Engine{cfg: cfg, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Converter() Converter { return e.conv }

// Result is the outcome of MapWithResult.
type Result[T any] struct {
	Success bool
	Value   T
	// Errors describes every field that was skipped because it failed.
	Errors []string
}

// Map returns a new T filled from source. T is a struct or a pointer to
// one; source is a struct, a pointer to one or a string-keyed map.
func Map[T, S any](e *Engine, source S) (T, error) {
	res, err := mapNew[T](e, "map", source)
	return res.Value, err
}

// MapWithResult is Map that also reports the fields it had to skip. With
// Config.ThrowOnError set it fails on the first failure like Map.
func MapWithResult[T, S any](e *Engine, source S) (Result[T], error) {
	return mapNew[T](e, "map with result", source)
}

// MapCollection maps every element of sources lazily. The returned
// sequence can be ranged over again when sources can. A failing element
// yields its error; with Config.ThrowOnError set the sequence ends there.
func MapCollection[T, S any](e *Engine, sources iter.Seq[S]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for src := range sources {
			v, err := Map[T](e, src)
			if !yield(v, err) {
				return
			}
			if err != nil && e.cfg.ThrowOnError {
				return
			}
		}
	}
}

// MapSlice maps every element of sources and returns the first error.
func MapSlice[T, S any](e *Engine, sources []S) ([]T, error) {
	out := make([]T, 0, len(sources))
	for v, err := range MapCollection[T](e, slices.Values(sources)) {
		if err != nil {
			return nil, fmt.Errorf("map slice: element %d: %w", len(out), err)
		}
		out = append(out, v)
	}
	return out, nil
}

// MapToExisting fills the struct target points to from source, leaving
// fields without a source value untouched.
func (e *Engine) MapToExisting(source, target any) error {
	const op = "map to existing"
	src, err := sourceValue(op, source)
	if err != nil {
		return err
	}
	tv := reflect.ValueOf(target)
	if tv.Kind() != reflect.Pointer || tv.IsNil() || !mappable(tv.Type().Elem()) {
		return errs.InvalidArgument(op, "target", "is not a non-nil pointer to a struct")
	}
	st := &mapState{e: e}
	if err := e.mapStruct(st, src, tv.Elem(), 1, ""); err != nil {
		return fmt.Errorf("%s %s to %s: %w", op, src.Type(), tv.Elem().Type(), err)
	}
	return nil
}

func mapNew[T any](e *Engine, op string, source any) (Result[T], error) {
	var res Result[T]
	src, err := sourceValue(op, source)
	if err != nil {
		return res, err
	}

	var v T
	target := reflect.ValueOf(&v).Elem()
	if target.Kind() == reflect.Pointer && mappable(target.Type().Elem()) {
		target.Set(reflect.New(target.Type().Elem()))
		target = target.Elem()
	}
	if !mappable(target.Type()) {
		return res, errs.InvalidArgument(op, "target type "+target.Type().String(), "is not a struct")
	}

	st := &mapState{e: e}
	if err := e.mapStruct(st, src, target, 1, ""); err != nil {
		return res, fmt.Errorf("%s %s to %s: %w", op, src.Type(), target.Type(), err)
	}
	res.Value = v
	res.Errors = st.errors
	res.Success = len(st.errors) == 0
	return res, nil
}

func sourceValue(op string, source any) (reflect.Value, error) {
	v := reflect.ValueOf(source)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v, errs.InvalidArgument(op, "source", "is nil")
		}
		v = v.Elem()
	}
	switch {
	case !v.IsValid():
		return v, errs.InvalidArgument(op, "source", "is nil")
	case v.Kind() == reflect.Map && v.IsNil():
		return v, errs.InvalidArgument(op, "source", "is nil")
	case !nestable(v.Type()):
		return v, errs.InvalidArgument(op, "source type "+v.Type().String(), "is not a struct or string-keyed map")
	}
	return v, nil
}

// mappable reports whether t is a struct mapped field by field, as opposed
// to a struct the Converter treats as a scalar.
func mappable(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && classify(t) == notScalar
}

func nestable(t reflect.Type) bool {
	return mappable(t) || (t.Kind() == reflect.Map && t.Key().Kind() == reflect.String)
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

type mapState struct {
	e      *Engine
	errors []string
}

// fail applies the failure policy. It returns err when mapping must stop
// and records it otherwise.
func (st *mapState) fail(err error) error {
	if st.e.cfg.ThrowOnError {
		return err
	}
	st.errors = append(st.errors, err.Error())
	st.e.log.Debug().Err(err).Msg("skipped field")
	return nil
}

func (e *Engine) mapStruct(st *mapState, src, dst reflect.Value, depth int, path string) error {
	if src.Kind() == reflect.Map {
		return e.mapDynamic(st, src, dst, depth, path)
	}
	for _, f := range e.profileOf(src.Type(), dst.Type()).fields {
		if f.dst == nil {
			if err := e.unmapped(st, dst.Type(), f.target); err != nil {
				return err
			}
			continue
		}
		if err := e.assign(st, readField(src, f.index), dst, f.dst, depth, join(path, f.name)); err != nil {
			return err
		}
	}
	return nil
}

// mapDynamic maps a string-keyed map, treating each key as a field name.
// Keys are visited in sorted order.
func (e *Engine) mapDynamic(st *mapState, src, dst reflect.Value, depth int, path string) error {
	type entry struct {
		name  string
		value reflect.Value
	}
	entries := make([]entry, 0, src.Len())
	it := src.MapRange()
	for it.Next() {
		entries = append(entries, entry{name: it.Key().String(), value: it.Value()})
	}
	slices.SortFunc(entries, func(a, b entry) int { return cmp.Compare(a.name, b.name) })

	targets := e.targetsOf(dst.Type())
	for _, en := range entries {
		tf, ok := targets.lookup(en.name, e.cfg.CaseSensitive)
		if !ok {
			if err := e.unmapped(st, dst.Type(), en.name); err != nil {
				return err
			}
			continue
		}
		if err := e.assign(st, en.value, dst, tf, depth, join(path, en.name)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) unmapped(st *mapState, dst reflect.Type, name string) error {
	if e.cfg.IgnoreUnmapped {
		return nil
	}
	return st.fail(&errs.MissingPropertyError{Type: dst.String(), Property: name})
}

func (e *Engine) assign(st *mapState, val, dst reflect.Value, tf *targetField, depth int, prop string) error {
	if isNil(val) {
		if e.cfg.MapNullValues {
			writeField(dst, tf.index).Set(reflect.Zero(tf.typ))
		}
		return nil
	}
	out, err := e.value(st, val, tf.typ, depth, prop)
	if err != nil {
		return st.fail(err)
	}
	writeField(dst, tf.index).Set(out)
	return nil
}

// value converts v to type to, recursing into nested structs.
func (e *Engine) value(st *mapState, v reflect.Value, to reflect.Type, depth int, prop string) (reflect.Value, error) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Zero(to), nil
		}
		if v.Type().AssignableTo(to) {
			break
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return reflect.Zero(to), nil
	}
	if v.Type().AssignableTo(to) {
		return e.convert(v, to, prop)
	}

	target := to
	if target.Kind() == reflect.Pointer {
		target = target.Elem()
	}
	switch {
	case mappable(target) && nestable(v.Type()):
		return e.nested(st, v, to, depth, prop)
	case to.Kind() == reflect.Slice && (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) && hasNested(to.Elem()):
		out := reflect.MakeSlice(to, v.Len(), v.Len())
		for i := range v.Len() {
			elem, err := e.value(st, v.Index(i), to.Elem(), depth, fmt.Sprintf("%s[%d]", prop, i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(elem)
		}
		return out, nil
	case to.Kind() == reflect.Map && v.Kind() == reflect.Map && hasNested(to.Elem()):
		out := reflect.MakeMapWithSize(to, v.Len())
		it := v.MapRange()
		for it.Next() {
			key, err := e.convert(it.Key(), to.Key(), prop)
			if err != nil {
				return reflect.Value{}, err
			}
			elem, err := e.value(st, it.Value(), to.Elem(), depth, fmt.Sprintf("%s[%v]", prop, key.Interface()))
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(key, elem)
		}
		return out, nil
	}
	return e.convert(v, to, prop)
}

func hasNested(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return mappable(t)
}

func (e *Engine) nested(st *mapState, v reflect.Value, to reflect.Type, depth int, prop string) (reflect.Value, error) {
	if depth >= e.cfg.MaxDepth {
		return reflect.Value{}, fmt.Errorf("property %q: %w: limit is %d", prop, errs.ErrMaxDepthExceeded, e.cfg.MaxDepth)
	}
	ptr := to.Kind() == reflect.Pointer
	structType := to
	if ptr {
		structType = to.Elem()
	}
	out := reflect.New(structType)
	if err := e.mapStruct(st, v, out.Elem(), depth+1, prop); err != nil {
		return reflect.Value{}, err
	}
	if ptr {
		return out, nil
	}
	return out.Elem(), nil
}

func (e *Engine) convert(v reflect.Value, to reflect.Type, prop string) (reflect.Value, error) {
	out, err := e.conv.convert(v, to)
	if err != nil {
		var ce *errs.ConversionError
		if errors.As(err, &ce) && ce.Property == "" {
			ce.Property = prop
		}
		return reflect.Value{}, err
	}
	return out, nil
}
