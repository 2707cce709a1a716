package attrmap

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirective(t *testing.T) {
	type sample struct {
		Plain    string
		Renamed  string `mapping:"Other"`
		Ignored  string `mapping:"-"`
		Options  string `mapping:"Target,omitempty"`
		Empty    string `mapping:""`
		Spaced   string `mapping:" Padded "`
		JSONOnly string `json:"json_only"`
	}
	want := map[string]directive{
		"Plain":    {target: "Plain"},
		"Renamed":  {target: "Other"},
		"Ignored":  {ignored: true},
		"Options":  {target: "Target"},
		"Empty":    {target: "Empty"},
		"Spaced":   {target: "Padded"},
		"JSONOnly": {target: "JSONOnly"},
	}
	for _, f := range reflect.VisibleFields(reflect.TypeFor[sample]()) {
		assert.Equal(t, want[f.Name], parseDirective(f), f.Name)
	}
}

func TestProfileCache(t *testing.T) {
	type src struct {
		A string
		b string
		C string `mapping:"-"`
	}
	type dst struct{ A string }

	e, err := New(DefaultConfig())
	require.NoError(t, err)

	srcT, dstT := reflect.TypeFor[src](), reflect.TypeFor[dst]()
	p := e.profileOf(srcT, dstT)
	assert.Same(t, p, e.profileOf(srcT, dstT))
	assert.Same(t, e.targetsOf(dstT), e.targetsOf(dstT))

	require.Len(t, p.fields, 1)
	assert.Equal(t, "A", p.fields[0].name)
	require.NotNil(t, p.fields[0].dst)
	assert.Equal(t, []int{0}, p.fields[0].dst.index)
}

type hidden struct{ Owner string }

func TestTargetIndex_SkipsUnreachableFields(t *testing.T) {
	type dst struct {
		*hidden
		Name string
	}
	ti := newTargetIndex(reflect.TypeFor[dst]())

	_, ok := ti.lookup("Owner", false)
	assert.False(t, ok, "promoted through an unexported embedded pointer")

	tf, ok := ti.lookup("name", false)
	require.True(t, ok)
	assert.Equal(t, "Name", tf.name)

	_, ok = ti.lookup("name", true)
	assert.False(t, ok)
}
