package table

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindRow_CaseInsensitive(t *testing.T) {
	tbl := New("producttype", nil, time.Now())
	tbl.Rows = append(tbl.Rows, Row{Key: "VTP001", Attributes: Attributes{}})

	i, ok := tbl.FindRow("vtp001")
	require.True(t, ok)
	assert.Equal(t, 0, i)
	assert.Equal(t, "VTP001", tbl.Rows[i].Key)

	_, ok = tbl.FindRow("VTP002")
	assert.False(t, ok)
}

func TestNew_Defaults(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tbl := New("t", nil, now)

	assert.Equal(t, KeyColumnName, tbl.KeyColumnName)
	assert.True(t, tbl.IsVisible)
	assert.False(t, tbl.NotifyOnNewMapping)
	assert.NotNil(t, tbl.Columns)
	assert.NotNil(t, tbl.Rows)
	assert.Equal(t, now, tbl.CreatedAt)
	assert.Equal(t, now, tbl.UpdatedAt)
}

func TestClone_DoesNotAlias(t *testing.T) {
	tbl := New("t", []Column{{Name: "Category", DataType: "string", Order: 1}}, time.Now())
	tbl.Rows = append(tbl.Rows, Row{Key: "a", Attributes: Attributes{"x": String("1")}})

	c := tbl.Clone()
	c.Rows[0].Attributes["x"] = String("2")
	c.Columns[0].Name = "Other"

	assert.Equal(t, "1", tbl.Rows[0].Attributes["x"].String())
	assert.Equal(t, "Category", tbl.Columns[0].Name)
}

func TestReadView_SynthesizesKey(t *testing.T) {
	r := Row{Key: "VTP001", Attributes: Attributes{"Category": String("Insurance")}}

	view := r.ReadView()

	assert.Equal(t, String("VTP001"), view[KeyColumnName])
	assert.Equal(t, String("Insurance"), view["Category"])
	_, stored := r.Attributes[KeyColumnName]
	assert.False(t, stored, "key must not leak into stored attributes")
}

func TestValue_JSON(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"null", Null(), `null`},
		{"string", String("abc"), `"abc"`},
		{"int", Int(123), `123`},
		{"float", Float(1.5), `1.5`},
		{"bool", Bool(true), `true`},
		{"map", Map(map[string]Value{"a": Int(1), "b": Null()}), `{"a":1,"b":null}`},
		{"list", List(String("x"), Bool(false)), `["x",false]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.in)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))

			var back Value
			require.NoError(t, json.Unmarshal(b, &back))
			assert.True(t, tt.in.Equal(back), "got %v", back)
		})
	}
}

func TestValueOf(t *testing.T) {
	type status string
	var nilPtr *int
	seven := 7

	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null()},
		{"nil pointer", nilPtr, Null()},
		{"pointer", &seven, Int(7)},
		{"int32", int32(5), Int(5)},
		{"uint8", uint8(9), Int(9)},
		{"named string", status("active"), String("active")},
		{"float32", float32(0.5), Number(0.5)},
		{"typed map", map[string]int{"a": 1}, Map(map[string]Value{"a": Int(1)})},
		{"slice", []string{"a", "b"}, List(String("a"), String("b"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValueOf(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v got %v", tt.want, got)
		})
	}

	_, err := ValueOf(map[int]string{1: "a"})
	assert.Error(t, err)
}

func TestValue_String(t *testing.T) {
	assert.Equal(t, "123", Int(123).String())
	assert.Equal(t, "1.25", Number(1.25).String())
	assert.Equal(t, "", Null().String())
	assert.Equal(t, "true", Bool(true).String())
}

func TestParseScalar(t *testing.T) {
	assert.Equal(t, Null(), ParseScalar("null"))
	assert.Equal(t, Bool(true), ParseScalar("true"))
	assert.Equal(t, Number(42), ParseScalar("42"))
	assert.Equal(t, String("Insurance"), ParseScalar("Insurance"))
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("producttype"))
	assert.NoError(t, ValidateName("Product Type 2"))
	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName("a/b"))
	assert.Error(t, ValidateName(`a\b`))
	assert.Error(t, ValidateName(".."))
}

func TestValidateColumns(t *testing.T) {
	require.NoError(t, ValidateColumns([]Column{{Name: "Category", DataType: "string", Order: 1}}))

	err := ValidateColumns([]Column{{Name: "Category"}, {Name: "category"}})
	assert.ErrorContains(t, err, "duplicates")

	assert.Error(t, ValidateColumns([]Column{{Name: ""}}))
}
