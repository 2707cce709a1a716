package attrmap

import (
	"reflect"
	"strings"
)

// TagName is the struct tag holding per-field directives. `mapping:"Name"`
// writes the field to the target field Name; `mapping:"-"` never maps it.
const TagName = "mapping"

type directive struct {
	target  string
	ignored bool
}

func parseDirective(f reflect.StructField) directive {
	tag, ok := f.Tag.Lookup(TagName)
	if !ok {
		return directive{target: f.Name}
	}
	if idx := strings.IndexByte(tag, ','); idx >= 0 {
		tag = tag[:idx]
	}
	tag = strings.TrimSpace(tag)
	switch tag {
	case "-":
		return directive{ignored: true}
	case "":
		return directive{target: f.Name}
	}
	return directive{target: tag}
}

// targetField is a writable field of a target struct.
type targetField struct {
	name  string
	index []int
	typ   reflect.Type
}

// targetIndex resolves target field names for one struct type.
type targetIndex struct {
	exact  map[string]*targetField
	folded map[string]*targetField
}

func newTargetIndex(t reflect.Type) *targetIndex {
	ti := &targetIndex{
		exact:  map[string]*targetField{},
		folded: map[string]*targetField{},
	}
	for _, f := range reflect.VisibleFields(t) {
		if f.Anonymous || !f.IsExported() || !settablePath(t, f.Index) {
			continue
		}
		tf := &targetField{name: f.Name, index: f.Index, typ: f.Type}
		ti.exact[f.Name] = tf
		key := strings.ToLower(f.Name)
		if _, taken := ti.folded[key]; !taken {
			ti.folded[key] = tf
		}
	}
	return ti
}

// settablePath reports whether writeField can reach the field at index,
// which fails only through an unexported embedded pointer.
func settablePath(t reflect.Type, index []int) bool {
	for _, x := range index[:len(index)-1] {
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		f := t.Field(x)
		if f.Type.Kind() == reflect.Pointer && !f.IsExported() {
			return false
		}
		t = f.Type
	}
	return true
}

func (ti *targetIndex) lookup(name string, caseSensitive bool) (*targetField, bool) {
	if tf, ok := ti.exact[name]; ok {
		return tf, true
	}
	if caseSensitive {
		return nil, false
	}
	tf, ok := ti.folded[strings.ToLower(name)]
	return tf, ok
}

// fieldPlan is one readable source field and where it goes.
type fieldPlan struct {
	name   string
	index  []int
	target string
	// dst is nil when the target has no such field.
	dst *targetField
}

// profile is the resolved field plan from one struct type to another.
type profile struct {
	fields []fieldPlan
}

type profileKey struct {
	src, dst reflect.Type
}

func buildProfile(src reflect.Type, targets *targetIndex, caseSensitive bool) *profile {
	p := &profile{}
	for _, f := range reflect.VisibleFields(src) {
		if f.Anonymous || !f.IsExported() {
			continue
		}
		d := parseDirective(f)
		if d.ignored {
			continue
		}
		plan := fieldPlan{name: f.Name, index: f.Index, target: d.target}
		if tf, ok := targets.lookup(d.target, caseSensitive); ok {
			plan.dst = tf
		}
		p.fields = append(p.fields, plan)
	}
	return p
}

func (e *Engine) targetsOf(t reflect.Type) *targetIndex {
	if ti, ok := e.targets.Load(t); ok {
		return ti.(*targetIndex)
	}
	ti, _ := e.targets.LoadOrStore(t, newTargetIndex(t))
	return ti.(*targetIndex)
}

func (e *Engine) profileOf(src, dst reflect.Type) *profile {
	key := profileKey{src: src, dst: dst}
	if p, ok := e.profiles.Load(key); ok {
		return p.(*profile)
	}
	p, _ := e.profiles.LoadOrStore(key, buildProfile(src, e.targetsOf(dst), e.cfg.CaseSensitive))
	return p.(*profile)
}

// readField reads a possibly promoted field. A nil embedded pointer on the
// way yields an invalid Value.
func readField(v reflect.Value, index []int) reflect.Value {
	f, err := v.FieldByIndexErr(index)
	if err != nil {
		return reflect.Value{}
	}
	return f
}

// writeField returns the settable field at index, allocating nil embedded
// pointers on the way.
func writeField(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}
