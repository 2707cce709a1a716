package mappingio_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/mappingio"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/refstore"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/refstore/filestore"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestEngine(t *testing.T, opts ...mappingio.Option) (*mappingio.Engine, *refstore.Memory) {
	t.Helper()
	store := refstore.NewMemory()
	e, err := mappingio.New(store, opts...)
	require.NoError(t, err)
	return e, store
}

// spyStorage hides the wrapped storage's optional interfaces and counts
// calls.
type spyStorage struct {
	inner refstore.Storage
	gets  atomic.Int64
	saves atomic.Int64
}

func (s *spyStorage) GetReferenceTable(ctx context.Context, name string) (*table.ReferenceTable, error) {
	s.gets.Add(1)
	return s.inner.GetReferenceTable(ctx, name)
}

func (s *spyStorage) SaveReferenceTable(ctx context.Context, t *table.ReferenceTable) error {
	s.saves.Add(1)
	return s.inner.SaveReferenceTable(ctx, t)
}

func (s *spyStorage) DeleteReferenceTable(ctx context.Context, name string) (bool, error) {
	return s.inner.DeleteReferenceTable(ctx, name)
}

func (s *spyStorage) GetAllTableNames(ctx context.Context) ([]string, error) {
	return s.inner.GetAllTableNames(ctx)
}

func (s *spyStorage) TableExists(ctx context.Context, name string) (bool, error) {
	return s.inner.TableExists(ctx, name)
}

func newSpyEngine(t *testing.T) (*mappingio.Engine, *spyStorage) {
	t.Helper()
	spy := &spyStorage{inner: refstore.NewMemory()}
	e, err := mappingio.New(spy)
	require.NoError(t, err)
	return e, spy
}

var productColumns = []table.Column{{Name: "Category", DataType: "string", Order: 1}}

func TestEngine_ProductTypeScenario(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.CreateReferenceTable(ctx, "producttype", productColumns)
	require.NoError(t, err)

	records := []map[string]any{
		{"Produkt": "VTP001", "Name": "A"},
		{"Produkt": "VTP002", "Name": "B"},
	}
	added, err := e.SyncMapping(ctx, records, "Produkt", "producttype")
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	got, err := e.ReadMapping(ctx, "producttype")
	require.NoError(t, err)
	want := map[string]table.Attributes{
		"VTP001": {"key": table.String("VTP001")},
		"VTP002": {"key": table.String("VTP002")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadMapping() mismatch (-want +got):\n%s", diff)
	}

	err = e.AddOrUpdateRow(ctx, "producttype", "VTP001", table.Attributes{"Category": table.String("Insurance")})
	require.NoError(t, err)

	got, err = e.ReadMapping(ctx, "producttype")
	require.NoError(t, err)
	want = map[string]table.Attributes{
		"VTP001": {"key": table.String("VTP001"), "Category": table.String("Insurance")},
		"VTP002": {"key": table.String("VTP002")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadMapping() after upsert mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_SyncMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("empty records add nothing and create no table", func(t *testing.T) {
		e, spy := newSpyEngine(t)
		added, err := e.SyncMapping(ctx, []map[string]string{}, "id", "t")
		require.NoError(t, err)
		assert.Equal(t, 0, added)

		exists, err := spy.TableExists(ctx, "t")
		require.NoError(t, err)
		assert.False(t, exists)
		assert.Zero(t, spy.saves.Load())
	})

	t.Run("existing rows are never touched", func(t *testing.T) {
		e, store := newTestEngine(t)
		added, err := e.SyncMapping(ctx, []map[string]any{{"id": "A"}, {"id": "B"}}, "id", "t")
		require.NoError(t, err)
		require.Equal(t, 2, added)
		require.NoError(t, e.AddOrUpdateRow(ctx, "t", "A", table.Attributes{"Category": table.String("Insurance")}))

		added, err = e.SyncMapping(ctx, []map[string]any{{"id": "a"}, {"id": "b"}, {"id": "C"}}, "id", "t")
		require.NoError(t, err)
		assert.Equal(t, 1, added)

		got, err := store.GetReferenceTable(ctx, "t")
		require.NoError(t, err)
		want := []table.Row{
			{Key: "A", Attributes: table.Attributes{"Category": table.String("Insurance")}},
			{Key: "B", Attributes: table.Attributes{}, IsNew: true},
			{Key: "C", Attributes: table.Attributes{}, IsNew: true},
		}
		if diff := cmp.Diff(want, got.Rows); diff != "" {
			t.Errorf("rows mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("keys match case-insensitively", func(t *testing.T) {
		e, _ := newTestEngine(t)
		_, err := e.CreateReferenceTable(ctx, "t", nil)
		require.NoError(t, err)
		require.NoError(t, e.AddOrUpdateRow(ctx, "t", "KEY1", table.Attributes{}))

		added, err := e.SyncMapping(ctx, []map[string]any{{"id": "key1"}}, "id", "t")
		require.NoError(t, err)
		assert.Equal(t, 0, added)

		rows, err := e.ReadMapping(ctx, "t")
		require.NoError(t, err)
		assert.Len(t, rows, 1)
		assert.Contains(t, rows, "KEY1")
	})

	t.Run("large integer keys stay distinct", func(t *testing.T) {
		type order struct{ ID int64 }
		e, _ := newTestEngine(t)
		added, err := e.SyncMapping(ctx, []order{{ID: 9007199254740993}, {ID: 9007199254740992}}, "ID", "orders")
		require.NoError(t, err)
		assert.Equal(t, 2, added)

		pending, err := e.PendingKeys(ctx, "orders")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"9007199254740993", "9007199254740992"}, pending)
	})
}

func TestEngine_CreateReferenceTable(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	t.Run("defaults", func(t *testing.T) {
		e, _ := newTestEngine(t, mappingio.WithClock(func() time.Time { return created }))
		tbl, err := e.CreateReferenceTable(ctx, "defaults", productColumns)
		require.NoError(t, err)
		assert.True(t, tbl.IsVisible)
		assert.False(t, tbl.NotifyOnNewMapping)
		assert.Equal(t, table.KeyColumnName, tbl.KeyColumnName)
		assert.Equal(t, created, tbl.CreatedAt)
		assert.Empty(t, tbl.Rows)
	})

	t.Run("options", func(t *testing.T) {
		e, _ := newTestEngine(t)
		src := table.Source{LakehouseItemID: "lh", WorkspaceID: "ws", TableName: "products", OneLakeLink: "https://onelake.example/products"}
		_, err := e.CreateReferenceTable(ctx, "opts", nil,
			mappingio.WithVisible(false),
			mappingio.WithNotifyOnNewMapping(true),
			mappingio.WithSource(src),
		)
		require.NoError(t, err)

		got, err := e.GetReferenceTable(ctx, "opts")
		require.NoError(t, err)
		assert.False(t, got.IsVisible)
		assert.True(t, got.NotifyOnNewMapping)
		assert.Equal(t, src, got.Source)
	})

	t.Run("already exists", func(t *testing.T) {
		e, _ := newTestEngine(t)
		_, err := e.CreateReferenceTable(ctx, "dup", nil)
		require.NoError(t, err)
		_, err = e.CreateReferenceTable(ctx, "dup", nil)
		assert.ErrorIs(t, err, errs.ErrAlreadyExists)
	})

	t.Run("already exists without atomic create", func(t *testing.T) {
		e, _ := newSpyEngine(t)
		_, err := e.CreateReferenceTable(ctx, "dup", nil)
		require.NoError(t, err)
		_, err = e.CreateReferenceTable(ctx, "dup", nil)
		assert.ErrorIs(t, err, errs.ErrAlreadyExists)
	})

	t.Run("invalid input", func(t *testing.T) {
		e, _ := newTestEngine(t)
		_, err := e.CreateReferenceTable(ctx, "", nil)
		assert.ErrorIs(t, err, errs.ErrInvalidArgument)

		_, err = e.CreateReferenceTable(ctx, "a/b", nil)
		assert.ErrorIs(t, err, errs.ErrInvalidArgument)

		_, err = e.CreateReferenceTable(ctx, "cols", []table.Column{{Name: "A"}, {Name: "a"}})
		assert.ErrorIs(t, err, errs.ErrInvalidArgument)
	})
}

func TestEngine_Passthroughs(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	got, err := e.GetReferenceTable(ctx, "doesnotexist")
	require.NoError(t, err)
	assert.Nil(t, got)

	deleted, err := e.DeleteReferenceTable(ctx, "doesnotexist")
	require.NoError(t, err)
	assert.False(t, deleted)

	for _, n := range []string{"b", "a"} {
		_, err := e.CreateReferenceTable(ctx, n, nil)
		require.NoError(t, err)
	}
	names, err := e.GetAllTableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	deleted, err = e.DeleteReferenceTable(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestEngine_MissingTableErrors(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.ReadMapping(ctx, "doesnotexist")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	err = e.AddOrUpdateRow(ctx, "doesnotexist", "K", table.Attributes{})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = e.DeleteRow(ctx, "doesnotexist", "K")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = e.PendingKeys(ctx, "doesnotexist")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestEngine_AddOrUpdateRow(t *testing.T) {
	ctx := context.Background()

	t.Run("curates synced row and keeps its casing", func(t *testing.T) {
		e, store := newTestEngine(t)
		_, err := e.SyncMapping(ctx, []map[string]string{{"id": "VTP001"}}, "id", "products")
		require.NoError(t, err)

		require.NoError(t, e.AddOrUpdateRow(ctx, "products", "vtp001", table.Attributes{"Category": table.String("Car")}))

		tbl, err := store.GetReferenceTable(ctx, "products")
		require.NoError(t, err)
		require.Len(t, tbl.Rows, 1)
		assert.Equal(t, "VTP001", tbl.Rows[0].Key)
		assert.False(t, tbl.Rows[0].IsNew)
	})

	t.Run("second upsert keeps IsNew false", func(t *testing.T) {
		e, store := newTestEngine(t)
		_, err := e.CreateReferenceTable(ctx, "products", nil)
		require.NoError(t, err)

		for range 2 {
			require.NoError(t, e.AddOrUpdateRow(ctx, "products", "K1", table.Attributes{"A": table.Int(1)}))
			tbl, err := store.GetReferenceTable(ctx, "products")
			require.NoError(t, err)
			require.Len(t, tbl.Rows, 1)
			assert.False(t, tbl.Rows[0].IsNew)
		}
	})

	t.Run("replaces attributes and drops key attribute", func(t *testing.T) {
		e, store := newTestEngine(t)
		_, err := e.CreateReferenceTable(ctx, "products", nil)
		require.NoError(t, err)

		require.NoError(t, e.AddOrUpdateRow(ctx, "products", "K1", table.Attributes{"A": table.Int(1), "B": table.Int(2)}))
		require.NoError(t, e.AddOrUpdateRow(ctx, "products", "K1", table.Attributes{"C": table.Null(), "key": table.String("spoofed")}))

		tbl, err := store.GetReferenceTable(ctx, "products")
		require.NoError(t, err)
		attrs := tbl.Rows[0].Attributes
		assert.Equal(t, []string{"C"}, attrs.Names())
		assert.True(t, attrs["C"].IsNull())

		read, err := e.ReadMapping(ctx, "products")
		require.NoError(t, err)
		k, _ := read["K1"]["key"].AsString()
		assert.Equal(t, "K1", k)
	})

	t.Run("caller map is not aliased", func(t *testing.T) {
		e, _ := newTestEngine(t)
		_, err := e.CreateReferenceTable(ctx, "products", nil)
		require.NoError(t, err)

		attrs := table.Attributes{"A": table.Int(1)}
		require.NoError(t, e.AddOrUpdateRow(ctx, "products", "K1", attrs))
		_, hasKey := attrs["key"]
		assert.False(t, hasKey)
	})

	t.Run("empty key", func(t *testing.T) {
		e, _ := newTestEngine(t)
		_, err := e.CreateReferenceTable(ctx, "products", nil)
		require.NoError(t, err)
		assert.ErrorIs(t, e.AddOrUpdateRow(ctx, "products", "", nil), errs.ErrInvalidArgument)
	})
}

func TestEngine_DeleteRowAndPendingKeys(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.SyncMapping(ctx, []string{}, "x", "products")
	assert.ErrorIs(t, err, errs.ErrInvalidArgument, "strings have no properties")

	_, err = e.SyncMapping(ctx, []map[string]any{{"k": "A"}, {"k": "B"}, {"k": "C"}}, "k", "products")
	require.NoError(t, err)
	require.NoError(t, e.AddOrUpdateRow(ctx, "products", "b", table.Attributes{}))

	pending, err := e.PendingKeys(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, pending)

	deleted, err := e.DeleteRow(ctx, "products", "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = e.DeleteRow(ctx, "products", "a")
	require.NoError(t, err)
	assert.False(t, deleted)

	pending, err = e.PendingKeys(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, pending)
}

type productRow struct {
	Category string `json:"Category"`
	Weight   int    `json:"weight"`
	Key      string `json:"key"`
}

func TestReadTypedMapping(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	_, err := e.CreateReferenceTable(ctx, "products", nil)
	require.NoError(t, err)

	require.NoError(t, e.AddOrUpdateRow(ctx, "products", "K1", table.Attributes{
		"Category": table.String("Car"),
		"weight":   table.String("12"),
	}))
	require.NoError(t, e.AddOrUpdateRow(ctx, "products", "K2", table.Attributes{"Weight": table.Int(3)}))

	got, err := mappingio.ReadTypedMapping[productRow](ctx, e, "products")
	require.NoError(t, err)
	want := map[string]productRow{
		"K1": {Category: "Car", Weight: 12, Key: "K1"},
		"K2": {Weight: 3, Key: "K2"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadTypedMapping() mismatch (-want +got):\n%s", diff)
	}

	_, err = mappingio.ReadTypedMapping[productRow](ctx, e, "doesnotexist")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestEngine_Metrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	e, _ := newTestEngine(t, mappingio.WithRegisterer(reg))

	_, err := e.CreateReferenceTable(ctx, "explicit", nil)
	require.NoError(t, err)
	_, err = e.SyncMapping(ctx, []map[string]int{{"id": 1}, {"id": 2}}, "id", "implicit")
	require.NoError(t, err)
	require.NoError(t, e.AddOrUpdateRow(ctx, "implicit", "1", table.Attributes{}))

	count, err := testutil.GatherAndCount(reg, "refdata_tables_created_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			values[mf.GetName()] += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, values["refdata_tables_created_total"])
	assert.Equal(t, 2.0, values["refdata_sync_keys_added_total"])
	assert.Equal(t, 1.0, values["refdata_rows_upserted_total"])

	_, err = mappingio.New(refstore.NewMemory(), mappingio.WithRegisterer(reg))
	assert.Error(t, err, "registering twice must fail")
}

func TestNew_RequiresStorage(t *testing.T) {
	_, err := mappingio.New(nil)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestEngine_FileStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fs1, err := filestore.New(dir)
	require.NoError(t, err)
	e1, err := mappingio.New(fs1)
	require.NoError(t, err)

	_, err = e1.CreateReferenceTable(ctx, "producttype", productColumns)
	require.NoError(t, err)

	var records []map[string]string
	for i := range 25 {
		records = append(records, map[string]string{"Produkt": fmt.Sprintf("VTP%03d", i)})
	}
	added, err := e1.SyncMapping(ctx, records, "Produkt", "producttype")
	require.NoError(t, err)
	require.Equal(t, 25, added)

	fs2, err := filestore.New(dir)
	require.NoError(t, err)
	e2, err := mappingio.New(fs2)
	require.NoError(t, err)

	tbl, err := e2.GetReferenceTable(ctx, "producttype")
	require.NoError(t, err)
	require.NotNil(t, tbl)
	assert.Len(t, tbl.Rows, 25)
	assert.Equal(t, productColumns, tbl.Columns)

	read, err := e2.ReadMapping(ctx, "producttype")
	require.NoError(t, err)
	for _, r := range records {
		assert.Contains(t, read, r["Produkt"])
	}
}

func TestEngine_ConcurrentSyncsDoNotDoubleInsert(t *testing.T) {
	storages := map[string]func() refstore.Storage{
		"memory": func() refstore.Storage { return refstore.NewMemory() },
		// the spy hides TableLocker, so the engine's own locks are used
		"engine locks": func() refstore.Storage { return &spyStorage{inner: refstore.NewMemory()} },
	}
	for name, newStorage := range storages {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e, err := mappingio.New(newStorage())
			require.NoError(t, err)

			const workers, keys = 8, 50
			var total atomic.Int64
			var g errgroup.Group
			for w := range workers {
				g.Go(func() error {
					records := make([]map[string]string, 0, keys)
					for i := range keys {
						// overlapping key sets with varying casing
						k := fmt.Sprintf("key-%03d", (i+w*7)%keys)
						if w%2 == 1 {
							k = fmt.Sprintf("KEY-%03d", (i+w*7)%keys)
						}
						records = append(records, map[string]string{"id": k})
					}
					n, err := e.SyncMapping(ctx, records, "id", "shared")
					total.Add(int64(n))
					return err
				})
			}
			require.NoError(t, g.Wait())

			assert.Equal(t, int64(keys), total.Load())
			tbl, err := e.GetReferenceTable(ctx, "shared")
			require.NoError(t, err)
			assert.Len(t, tbl.Rows, keys)
		})
	}
}
