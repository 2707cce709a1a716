package refstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/refstore"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/refstore/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemory_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) refstore.Storage {
		return refstore.NewMemory()
	}, storetest.Options{PreservesIsNew: true})
}

func TestMemory_ClockStampsUpdatedAt(t *testing.T) {
	pinned := time.Date(2030, 5, 6, 7, 8, 9, 0, time.UTC)
	s := refstore.NewMemoryWithClock(func() time.Time { return pinned })

	tbl := storetest.Fixture("clocked")
	require.NoError(t, s.SaveReferenceTable(context.Background(), tbl))
	assert.Equal(t, pinned, tbl.UpdatedAt)

	got, err := s.GetReferenceTable(context.Background(), "clocked")
	require.NoError(t, err)
	assert.Equal(t, pinned, got.UpdatedAt)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), got.CreatedAt)
}

func TestMemory_SavedTableIsDetachedFromCaller(t *testing.T) {
	ctx := context.Background()
	s := refstore.NewMemory()

	tbl := storetest.Fixture("detached")
	require.NoError(t, s.SaveReferenceTable(ctx, tbl))
	tbl.Rows[0].Attributes["Category"] = tbl.Rows[0].Attributes["Weight"]

	got, err := s.GetReferenceTable(ctx, "detached")
	require.NoError(t, err)
	cat, _ := got.Rows[0].Attributes["Category"].AsString()
	assert.Equal(t, "Insurance", cat)
}

func TestMemory_NamesAreCaseSensitive(t *testing.T) {
	ctx := context.Background()
	s := refstore.NewMemory()
	require.NoError(t, s.SaveReferenceTable(ctx, storetest.Fixture("Products")))

	exists, err := s.TableExists(ctx, "products")
	require.NoError(t, err)
	assert.False(t, exists)
}
