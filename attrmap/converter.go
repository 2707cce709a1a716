package attrmap

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
)

var (
	errOverflow    = errors.New("value out of range")
	errFraction    = errors.New("value has a fractional part")
	errUnsupported = errors.New("no conversion path")
)

// Converter converts values between Go types. The zero value is ready to
// use.
//
// Scalars convert across kinds: signed and unsigned integers, floats,
// bools, strings, time.Time (RFC 3339 text or Unix seconds), time.Duration
// (Go duration text, nanoseconds or float seconds) and big.Rat decimals.
// Strings are parsed with the strconv rules of the target kind. Values that
// do not fit the target, including fractions into integers, fail with an
// *errs.ConversionError.
//
// Pointers are dereferenced or allocated as the target needs, nil converts
// to the zero value, and slices and maps convert element by element.
type Converter struct{}

type scalarKind int

const (
	notScalar scalarKind = iota
	scalarInt
	scalarUint
	scalarFloat
	scalarBool
	scalarString
	scalarTime
	scalarDuration
	scalarDecimal
)

var (
	timeType     = reflect.TypeFor[time.Time]()
	durationType = reflect.TypeFor[time.Duration]()
	decimalType  = reflect.TypeFor[big.Rat]()
	stringerType = reflect.TypeFor[fmt.Stringer]()
)

func classify(t reflect.Type) scalarKind {
	switch t {
	case timeType:
		return scalarTime
	case durationType:
		return scalarDuration
	case decimalType:
		return scalarDecimal
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return scalarInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return scalarUint
	case reflect.Float32, reflect.Float64:
		return scalarFloat
	case reflect.Bool:
		return scalarBool
	case reflect.String:
		return scalarString
	}
	return notScalar
}

func (k scalarKind) numeric() bool {
	return k == scalarInt || k == scalarUint || k == scalarFloat || k == scalarDecimal
}

func (k scalarKind) integer() bool {
	return k == scalarInt || k == scalarUint
}

// scalarPath reports whether a conversion between two scalar kinds exists.
func scalarPath(from, to scalarKind) bool {
	switch {
	case from == to, from == scalarString, to == scalarString:
		return true
	case from.numeric() && to.numeric():
		return true
	case from == scalarBool:
		return to.integer() || to == scalarFloat
	case to == scalarBool:
		return from.integer() || from == scalarFloat
	case from == scalarTime:
		return to.integer()
	case to == scalarTime:
		return from.integer()
	case from == scalarDuration:
		return to.integer() || to == scalarFloat
	case to == scalarDuration:
		return from.integer() || from == scalarFloat
	}
	return false
}

// usesStringer reports whether a kind formats through its String method
// rather than through the scalar rules.
func usesStringer(k scalarKind) bool {
	return k == notScalar || k == scalarInt || k == scalarUint || k == scalarFloat || k == scalarBool
}

// Convert returns value converted to target.
func (c Converter) Convert(value any, target reflect.Type) (any, error) {
	if target == nil {
		return nil, errs.InvalidArgument("convert", "target type", "is nil")
	}
	out, err := c.convert(reflect.ValueOf(value), target)
	if err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

// ConvertTo is Convert with the target given as a type parameter.
func ConvertTo[T any](c Converter, value any) (T, error) {
	var zero T
	out, err := c.Convert(value, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	return out.(T), nil
}

// CanConvert reports whether values of type from can be converted to type
// to. Interface sources report true; whether their dynamic value converts
// is only known at conversion time.
func (c Converter) CanConvert(from, to reflect.Type) bool {
	if to == nil {
		return false
	}
	if from == nil || from == to || from.AssignableTo(to) {
		return true
	}
	if from.Kind() == reflect.Interface {
		return true
	}
	if from.Kind() == reflect.Pointer {
		return c.CanConvert(from.Elem(), to)
	}
	if to.Kind() == reflect.Pointer {
		return c.CanConvert(from, to.Elem())
	}

	fk, tk := classify(from), classify(to)
	if tk == scalarString && usesStringer(fk) && from.Implements(stringerType) {
		return true
	}
	if fk != notScalar && tk != notScalar {
		return scalarPath(fk, tk)
	}
	switch {
	case to.Kind() == reflect.Slice && (from.Kind() == reflect.Slice || from.Kind() == reflect.Array):
		return c.CanConvert(from.Elem(), to.Elem())
	case to.Kind() == reflect.Map && from.Kind() == reflect.Map:
		return c.CanConvert(from.Key(), to.Key()) && c.CanConvert(from.Elem(), to.Elem())
	}
	return from.Kind() == to.Kind() && from.ConvertibleTo(to)
}

func (c Converter) convert(v reflect.Value, to reflect.Type) (reflect.Value, error) {
	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			v = reflect.Value{}
			break
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return reflect.Zero(to), nil
	}

	from := v.Type()
	if from == to {
		return v, nil
	}
	if from.AssignableTo(to) {
		out := reflect.New(to).Elem()
		out.Set(v)
		return out, nil
	}
	if from.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Zero(to), nil
		}
		return c.convert(v.Elem(), to)
	}
	if to.Kind() == reflect.Pointer {
		elem, err := c.convert(v, to.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(to.Elem())
		p.Elem().Set(elem)
		return p, nil
	}

	fk, tk := classify(from), classify(to)
	if tk == scalarString && usesStringer(fk) && from.Implements(stringerType) && v.CanInterface() {
		out := reflect.New(to).Elem()
		out.SetString(v.Interface().(fmt.Stringer).String())
		return out, nil
	}
	if fk != notScalar && tk != notScalar {
		if !scalarPath(fk, tk) {
			return reflect.Value{}, conversionError(v, to, errUnsupported)
		}
		out, err := convertScalar(v, fk, to, tk)
		if err != nil {
			return reflect.Value{}, conversionError(v, to, err)
		}
		return out, nil
	}

	switch {
	case to.Kind() == reflect.Slice && (from.Kind() == reflect.Slice || from.Kind() == reflect.Array):
		if from.Kind() == reflect.Slice && v.IsNil() {
			return reflect.Zero(to), nil
		}
		out := reflect.MakeSlice(to, v.Len(), v.Len())
		for i := range v.Len() {
			e, err := c.convert(v.Index(i), to.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(e)
		}
		return out, nil
	case to.Kind() == reflect.Map && from.Kind() == reflect.Map:
		if v.IsNil() {
			return reflect.Zero(to), nil
		}
		out := reflect.MakeMapWithSize(to, v.Len())
		it := v.MapRange()
		for it.Next() {
			k, err := c.convert(it.Key(), to.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			e, err := c.convert(it.Value(), to.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(k, e)
		}
		return out, nil
	}

	if from.Kind() == to.Kind() && from.ConvertibleTo(to) {
		return v.Convert(to), nil
	}
	return reflect.Value{}, conversionError(v, to, errUnsupported)
}

func conversionError(v reflect.Value, to reflect.Type, err error) *errs.ConversionError {
	var value any
	if v.CanInterface() {
		value = v.Interface()
	}
	return &errs.ConversionError{
		From:  v.Type().String(),
		To:    to.String(),
		Value: value,
		Err:   err,
	}
}

func convertScalar(v reflect.Value, from scalarKind, to reflect.Type, tk scalarKind) (reflect.Value, error) {
	out := reflect.New(to).Elem()
	switch tk {
	case scalarString:
		out.SetString(formatScalar(v, from))
	case scalarInt:
		i, err := toInt64(v, from)
		if err != nil {
			return out, err
		}
		if out.OverflowInt(i) {
			return out, errOverflow
		}
		out.SetInt(i)
	case scalarUint:
		u, err := toUint64(v, from)
		if err != nil {
			return out, err
		}
		if out.OverflowUint(u) {
			return out, errOverflow
		}
		out.SetUint(u)
	case scalarFloat:
		f, err := toFloat64(v, from, to.Bits())
		if err != nil {
			return out, err
		}
		if !math.IsInf(f, 0) && !math.IsNaN(f) && out.OverflowFloat(f) {
			return out, errOverflow
		}
		out.SetFloat(f)
	case scalarBool:
		b, err := toBool(v, from)
		if err != nil {
			return out, err
		}
		out.SetBool(b)
	case scalarTime:
		t, err := toTime(v, from)
		if err != nil {
			return out, err
		}
		out.Set(reflect.ValueOf(t))
	case scalarDuration:
		d, err := toDuration(v, from)
		if err != nil {
			return out, err
		}
		out.SetInt(int64(d))
	case scalarDecimal:
		r, err := toDecimal(v, from)
		if err != nil {
			return out, err
		}
		out.Set(reflect.ValueOf(r).Elem())
	default:
		return out, errUnsupported
	}
	return out, nil
}

func timeOf(v reflect.Value) time.Time {
	return v.Convert(timeType).Interface().(time.Time)
}

func decimalOf(v reflect.Value) *big.Rat {
	src := v.Convert(decimalType).Interface().(big.Rat)
	return new(big.Rat).Set(&src)
}

func formatScalar(v reflect.Value, from scalarKind) string {
	switch from {
	case scalarInt:
		return strconv.FormatInt(v.Int(), 10)
	case scalarUint:
		return strconv.FormatUint(v.Uint(), 10)
	case scalarFloat:
		return strconv.FormatFloat(v.Float(), 'f', -1, v.Type().Bits())
	case scalarBool:
		return strconv.FormatBool(v.Bool())
	case scalarTime:
		return timeOf(v).Format(time.RFC3339Nano)
	case scalarDuration:
		return time.Duration(v.Int()).String()
	case scalarDecimal:
		return decimalString(decimalOf(v))
	default:
		return v.String()
	}
}

// decimalString renders r in positional notation when it has a finite
// decimal expansion and as a fraction otherwise.
func decimalString(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	d := new(big.Int).Set(r.Denom())
	digits := 0
	for _, p := range []int64{2, 5} {
		prime := big.NewInt(p)
		n := 0
		q, m := new(big.Int), new(big.Int)
		for {
			q.QuoRem(d, prime, m)
			if m.Sign() != 0 {
				break
			}
			d.Set(q)
			n++
		}
		digits = max(digits, n)
	}
	if d.Cmp(big.NewInt(1)) != 0 {
		return r.RatString()
	}
	return r.FloatString(digits)
}

func floatToInt64(f float64) (int64, error) {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return 0, errOverflow
	case f != math.Trunc(f):
		return 0, errFraction
	case f < -(1<<63) || f >= 1<<63:
		return 0, errOverflow
	}
	return int64(f), nil
}

func toInt64(v reflect.Value, from scalarKind) (int64, error) {
	switch from {
	case scalarInt, scalarDuration:
		return v.Int(), nil
	case scalarUint:
		u := v.Uint()
		if u > math.MaxInt64 {
			return 0, errOverflow
		}
		return int64(u), nil
	case scalarFloat:
		return floatToInt64(v.Float())
	case scalarBool:
		if v.Bool() {
			return 1, nil
		}
		return 0, nil
	case scalarString:
		return strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
	case scalarTime:
		return timeOf(v).Unix(), nil
	case scalarDecimal:
		r := decimalOf(v)
		if !r.IsInt() {
			return 0, errFraction
		}
		if !r.Num().IsInt64() {
			return 0, errOverflow
		}
		return r.Num().Int64(), nil
	}
	return 0, errUnsupported
}

func toUint64(v reflect.Value, from scalarKind) (uint64, error) {
	switch from {
	case scalarUint:
		return v.Uint(), nil
	case scalarInt, scalarDuration:
		i := v.Int()
		if i < 0 {
			return 0, errOverflow
		}
		return uint64(i), nil
	case scalarFloat:
		f := v.Float()
		switch {
		case math.IsNaN(f) || f < 0 || f >= 1<<64:
			return 0, errOverflow
		case f != math.Trunc(f):
			return 0, errFraction
		}
		return uint64(f), nil
	case scalarBool:
		if v.Bool() {
			return 1, nil
		}
		return 0, nil
	case scalarString:
		return strconv.ParseUint(strings.TrimSpace(v.String()), 10, 64)
	case scalarTime:
		sec := timeOf(v).Unix()
		if sec < 0 {
			return 0, errOverflow
		}
		return uint64(sec), nil
	case scalarDecimal:
		r := decimalOf(v)
		if !r.IsInt() {
			return 0, errFraction
		}
		if r.Sign() < 0 || !r.Num().IsUint64() {
			return 0, errOverflow
		}
		return r.Num().Uint64(), nil
	}
	return 0, errUnsupported
}

func toFloat64(v reflect.Value, from scalarKind, bits int) (float64, error) {
	switch from {
	case scalarFloat:
		return v.Float(), nil
	case scalarInt:
		return float64(v.Int()), nil
	case scalarUint:
		return float64(v.Uint()), nil
	case scalarBool:
		if v.Bool() {
			return 1, nil
		}
		return 0, nil
	case scalarString:
		return strconv.ParseFloat(strings.TrimSpace(v.String()), bits)
	case scalarDuration:
		return time.Duration(v.Int()).Seconds(), nil
	case scalarDecimal:
		f, _ := decimalOf(v).Float64()
		return f, nil
	}
	return 0, errUnsupported
}

func parseBool(s string) (bool, error) {
	return strconv.ParseBool(strings.TrimSpace(s))
}

func toBool(v reflect.Value, from scalarKind) (bool, error) {
	switch from {
	case scalarBool:
		return v.Bool(), nil
	case scalarInt:
		return v.Int() != 0, nil
	case scalarUint:
		return v.Uint() != 0, nil
	case scalarFloat:
		return v.Float() != 0, nil
	case scalarString:
		return parseBool(v.String())
	}
	return false, errUnsupported
}

func toTime(v reflect.Value, from scalarKind) (time.Time, error) {
	switch from {
	case scalarTime:
		return timeOf(v), nil
	case scalarString:
		return time.Parse(time.RFC3339Nano, strings.TrimSpace(v.String()))
	case scalarInt:
		return time.Unix(v.Int(), 0).UTC(), nil
	case scalarUint:
		u := v.Uint()
		if u > math.MaxInt64 {
			return time.Time{}, errOverflow
		}
		return time.Unix(int64(u), 0).UTC(), nil
	}
	return time.Time{}, errUnsupported
}

func toDuration(v reflect.Value, from scalarKind) (time.Duration, error) {
	switch from {
	case scalarDuration, scalarInt:
		return time.Duration(v.Int()), nil
	case scalarUint:
		u := v.Uint()
		if u > math.MaxInt64 {
			return 0, errOverflow
		}
		return time.Duration(u), nil
	case scalarFloat:
		ns := v.Float() * float64(time.Second)
		if math.IsNaN(ns) || ns < math.MinInt64 || ns >= math.MaxInt64 {
			return 0, errOverflow
		}
		return time.Duration(ns), nil
	case scalarString:
		return time.ParseDuration(strings.TrimSpace(v.String()))
	}
	return 0, errUnsupported
}

func toDecimal(v reflect.Value, from scalarKind) (*big.Rat, error) {
	switch from {
	case scalarDecimal:
		return decimalOf(v), nil
	case scalarInt:
		return new(big.Rat).SetInt64(v.Int()), nil
	case scalarUint:
		return new(big.Rat).SetInt(new(big.Int).SetUint64(v.Uint())), nil
	case scalarFloat:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errOverflow
		}
		r, _ := new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, v.Type().Bits()))
		return r, nil
	case scalarString:
		r, ok := new(big.Rat).SetString(strings.TrimSpace(v.String()))
		if !ok {
			return nil, fmt.Errorf("invalid decimal %q", v.String())
		}
		return r, nil
	}
	return nil, errUnsupported
}
