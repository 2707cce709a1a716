// Package storetest is a conformance suite for refstore.Storage
// implementations. Each backend's tests call Run with a constructor.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/refstore"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// PreservesIsNew is false for formats that do not persist the row state.
	PreservesIsNew bool
}

// Fixture returns a populated table for round-trip checks.
func Fixture(name string) *table.ReferenceTable {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	t := table.New(name, []table.Column{
		{Name: "Category", DataType: "string", Description: "Product category", Order: 1},
		{Name: "Weight", DataType: "int", Order: 2},
	}, created)
	t.NotifyOnNewMapping = true
	t.Source = table.Source{
		LakehouseItemID: "lh-1",
		WorkspaceID:     "ws-1",
		TableName:       "products",
	}
	t.Rows = []table.Row{
		{Key: "VTP001", Attributes: table.Attributes{"Category": table.String("Insurance"), "Weight": table.Int(3)}},
		{Key: "VTP002", Attributes: table.Attributes{}, IsNew: true},
		{Key: "VTP003", Attributes: table.Attributes{"Category": table.Null()}},
	}
	return t
}

// Run executes the suite. newStorage must return a fresh, empty storage.
func Run(t *testing.T, newStorage func(t *testing.T) refstore.Storage, opts Options) {
	ctx := context.Background()

	t.Run("missing table is nil without error", func(t *testing.T) {
		s := newStorage(t)
		got, err := s.GetReferenceTable(ctx, "doesnotexist")
		require.NoError(t, err)
		assert.Nil(t, got)

		exists, err := s.TableExists(ctx, "doesnotexist")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("round trip", func(t *testing.T) {
		s := newStorage(t)
		want := Fixture("producttype")
		require.NoError(t, s.SaveReferenceTable(ctx, want))

		got, err := s.GetReferenceTable(ctx, "producttype")
		require.NoError(t, err)
		require.NotNil(t, got)

		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, table.KeyColumnName, got.KeyColumnName)
		assert.Equal(t, want.Columns, got.Columns)
		assert.Equal(t, want.IsVisible, got.IsVisible)
		assert.Equal(t, want.NotifyOnNewMapping, got.NotifyOnNewMapping)
		assert.Equal(t, want.Source, got.Source)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created %v != %v", want.CreatedAt, got.CreatedAt)
		assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updated %v != %v", want.UpdatedAt, got.UpdatedAt)

		require.Len(t, got.Rows, len(want.Rows))
		for _, wr := range want.Rows {
			i, ok := got.FindRow(wr.Key)
			require.True(t, ok, "row %q missing", wr.Key)
			gr := got.Rows[i]
			assert.Equal(t, wr.Key, gr.Key)
			assert.Len(t, gr.Attributes, len(wr.Attributes))
			for name, v := range wr.Attributes {
				assert.True(t, v.Equal(gr.Attributes[name]), "row %q attribute %q: want %v got %v", wr.Key, name, v, gr.Attributes[name])
			}
			if opts.PreservesIsNew {
				assert.Equal(t, wr.IsNew, gr.IsNew, "row %q IsNew", wr.Key)
			}
		}
	})

	t.Run("save refreshes UpdatedAt", func(t *testing.T) {
		s := newStorage(t)
		tbl := Fixture("stamped")
		before := tbl.UpdatedAt
		require.NoError(t, s.SaveReferenceTable(ctx, tbl))
		assert.True(t, tbl.UpdatedAt.After(before), "UpdatedAt not refreshed: %v", tbl.UpdatedAt)

		got, err := s.GetReferenceTable(ctx, "stamped")
		require.NoError(t, err)
		assert.True(t, tbl.UpdatedAt.Equal(got.UpdatedAt))
	})

	t.Run("save rejects invalid input", func(t *testing.T) {
		s := newStorage(t)
		err := s.SaveReferenceTable(ctx, nil)
		assert.ErrorIs(t, err, errs.ErrInvalidArgument)

		err = s.SaveReferenceTable(ctx, &table.ReferenceTable{})
		assert.ErrorIs(t, err, errs.ErrInvalidArgument)
	})

	t.Run("save replaces", func(t *testing.T) {
		s := newStorage(t)
		tbl := Fixture("replaced")
		require.NoError(t, s.SaveReferenceTable(ctx, tbl))

		tbl.Rows = tbl.Rows[:1]
		tbl.Columns = nil
		require.NoError(t, s.SaveReferenceTable(ctx, tbl))

		got, err := s.GetReferenceTable(ctx, "replaced")
		require.NoError(t, err)
		assert.Len(t, got.Rows, 1)
		assert.Empty(t, got.Columns)
	})

	t.Run("returned tables are copies", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.SaveReferenceTable(ctx, Fixture("copied")))

		got, err := s.GetReferenceTable(ctx, "copied")
		require.NoError(t, err)
		got.Rows = nil

		again, err := s.GetReferenceTable(ctx, "copied")
		require.NoError(t, err)
		assert.Len(t, again.Rows, 3)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.SaveReferenceTable(ctx, Fixture("doomed")))

		deleted, err := s.DeleteReferenceTable(ctx, "doomed")
		require.NoError(t, err)
		assert.True(t, deleted)

		got, err := s.GetReferenceTable(ctx, "doomed")
		require.NoError(t, err)
		assert.Nil(t, got)

		deleted, err = s.DeleteReferenceTable(ctx, "doomed")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("names and existence", func(t *testing.T) {
		s := newStorage(t)
		for _, name := range []string{"charlie", "alpha", "bravo"} {
			require.NoError(t, s.SaveReferenceTable(ctx, Fixture(name)))
		}

		names, err := s.GetAllTableNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "bravo", "charlie"}, names)

		exists, err := s.TableExists(ctx, "bravo")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("every existing table is listed", func(t *testing.T) {
		s := newStorage(t)
		for _, name := range []string{".archive", "a.tmp", ".b.tmp"} {
			require.NoError(t, s.SaveReferenceTable(ctx, Fixture(name)))

			exists, err := s.TableExists(ctx, name)
			require.NoError(t, err)
			assert.True(t, exists, name)
		}

		names, err := s.GetAllTableNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{".archive", ".b.tmp", "a.tmp"}, names)
	})

	t.Run("create is exclusive", func(t *testing.T) {
		s := newStorage(t)
		creator, ok := s.(refstore.Creator)
		if !ok {
			t.Skip("storage has no atomic create")
		}
		require.NoError(t, creator.CreateReferenceTable(ctx, Fixture("unique")))

		err := creator.CreateReferenceTable(ctx, Fixture("unique"))
		assert.ErrorIs(t, err, errs.ErrAlreadyExists)

		got, err := s.GetReferenceTable(ctx, "unique")
		require.NoError(t, err)
		assert.Len(t, got.Rows, 3)
	})

	t.Run("concurrent saves to different tables", func(t *testing.T) {
		s := newStorage(t)
		var g errgroup.Group
		for i := range 8 {
			name := fmt.Sprintf("parallel-%d", i)
			g.Go(func() error {
				return s.SaveReferenceTable(ctx, Fixture(name))
			})
		}
		require.NoError(t, g.Wait())

		names, err := s.GetAllTableNames(ctx)
		require.NoError(t, err)
		assert.Len(t, names, 8)
	})
}
