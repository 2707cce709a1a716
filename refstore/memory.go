package refstore

import (
	"context"
	"sync"

	"github.com/google/btree"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
)

// Memory keeps tables for the lifetime of the process. Tables are kept in
// a B-tree ordered by name and copied on the way in and out, so callers
// never share state with the store.
type Memory struct {
	Locks

	mu     sync.RWMutex
	tables *btree.BTreeG[*table.ReferenceTable]
	now    Clock
}

var (
	_ Storage     = (*Memory)(nil)
	_ TableLocker = (*Memory)(nil)
	_ Creator     = (*Memory)(nil)
)

func lessByName(a, b *table.ReferenceTable) bool {
	return a.Name < b.Name
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return NewMemoryWithClock(UTCNow)
}

func NewMemoryWithClock(now Clock) *Memory {
	return &Memory{
		tables: btree.NewG(2, lessByName),
		now:    now,
	}
}

func probe(name string) *table.ReferenceTable {
	return &table.ReferenceTable{Name: name}
}

func (m *Memory) GetReferenceTable(ctx context.Context, name string) (*table.ReferenceTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables.Get(probe(name))
	if !ok {
		return nil, nil
	}
	return t.Clone(), nil
}

func (m *Memory) SaveReferenceTable(ctx context.Context, t *table.ReferenceTable) error {
	if err := CheckSave("memory store: save reference table", t); err != nil {
		return err
	}
	t.UpdatedAt = m.now()

	stored := t.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables.ReplaceOrInsert(stored)
	return nil
}

func (m *Memory) CreateReferenceTable(ctx context.Context, t *table.ReferenceTable) error {
	const op = "memory store: create reference table"
	if err := CheckSave(op, t); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tables.Has(probe(t.Name)) {
		return errs.TableExists(op, t.Name)
	}
	t.UpdatedAt = m.now()
	m.tables.ReplaceOrInsert(t.Clone())
	return nil
}

func (m *Memory) DeleteReferenceTable(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, found := m.tables.Delete(probe(name))
	return found, nil
}

func (m *Memory) GetAllTableNames(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, m.tables.Len())
	m.tables.Ascend(func(t *table.ReferenceTable) bool {
		names = append(names, t.Name)
		return true
	})
	return names, nil
}

func (m *Memory) TableExists(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.tables.Has(probe(name)), nil
}
