package refstore_test

import (
	"testing"
	"time"

	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/refstore"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func goldenTable() *table.ReferenceTable {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	t := table.New("producttype", []table.Column{
		{Name: "Category", DataType: "string", Description: "Product category", Order: 1},
	}, at)
	t.Source = table.Source{LakehouseItemID: "lh-1", WorkspaceID: "ws-1", TableName: "products"}
	t.Rows = []table.Row{
		{Key: "VTP002", Attributes: table.Attributes{}},
		{Key: "VTP001", Attributes: table.Attributes{"Category": table.String("Insurance"), "key": table.String("VTP001")}},
	}
	return t
}

func TestEncodeConfig_Golden(t *testing.T) {
	b, err := refstore.EncodeConfig(goldenTable())
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "config", b)
}

func TestEncodeRows_Golden(t *testing.T) {
	b, err := refstore.EncodeRows(goldenTable())
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "rows", b)
}

func TestDecodeConfig_RoundTrip(t *testing.T) {
	want := goldenTable()
	b, err := refstore.EncodeConfig(want)
	require.NoError(t, err)

	got, err := refstore.DecodeConfig(b)
	require.NoError(t, err)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Columns, got.Columns)
	assert.Equal(t, want.Source, got.Source)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Empty(t, got.Rows)
	assert.NotNil(t, got.Rows)
}

func TestDecodeRows_SortsAndMarksCurated(t *testing.T) {
	rows, err := refstore.DecodeRows([]byte(`{"b": {"x": 1}, "a": null, "c": {"flag": true, "n": null}}`))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "a", rows[0].Key)
	assert.NotNil(t, rows[0].Attributes)
	assert.Empty(t, rows[0].Attributes)

	n, ok := rows[1].Attributes["x"].AsNumber()
	assert.True(t, ok)
	assert.Equal(t, float64(1), n)

	assert.True(t, rows[2].Attributes["n"].IsNull())
	for _, r := range rows {
		assert.False(t, r.IsNew)
	}
}

func TestRowsOf_StripsKeyColumn(t *testing.T) {
	doc := refstore.RowsOf(goldenTable())
	assert.NotContains(t, doc["VTP001"], table.KeyColumnName)
	assert.Contains(t, doc, "VTP002")
}

func TestDecodeConfig_Malformed(t *testing.T) {
	_, err := refstore.DecodeConfig([]byte(`{"name": `))
	assert.Error(t, err)
}
