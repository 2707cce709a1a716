// Package mappingio is the reference table engine. It creates and deletes
// reference tables, registers new keys from external records (sync) and
// curates row attributes (upsert), on top of any refstore.Storage.
package mappingio

import (
	"context"
	"fmt"

	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/refstore"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Engine runs reference table operations against one storage. It is safe
// for concurrent use.
type Engine struct {
	store   refstore.Storage
	locker  refstore.TableLocker
	now     refstore.Clock
	log     zerolog.Logger
	metrics *metrics
	reg     prometheus.Registerer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock sets the clock used for CreatedAt of new tables. UpdatedAt is
// stamped by the storage.
func WithClock(now refstore.Clock) Option {
	return func(e *Engine) { e.now = now }
}

// WithRegisterer registers the engine's metrics. Without it metrics are
// still counted but not exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.reg = reg }
}

// New returns an engine over store. If store implements
// refstore.TableLocker its locks guard sync and upsert, otherwise the
// engine keeps its own.
func New(store refstore.Storage, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errs.InvalidArgument("new engine", "storage", "is nil")
	}
	e := &Engine{
		store:   store,
		now:     refstore.UTCNow,
		log:     zerolog.Nop(),
		metrics: newMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if locker, ok := store.(refstore.TableLocker); ok {
		e.locker = locker
	} else {
		e.locker = &refstore.Locks{}
	}

	if e.reg != nil {
		if err := e.metrics.register(e.reg); err != nil {
			return nil, fmt.Errorf("new engine: register metrics: %w", err)
		}
	}
	return e, nil
}

// Storage returns the storage the engine works on.
func (e *Engine) Storage() refstore.Storage { return e.store }

type createOptions struct {
	visible bool
	notify  bool
	source  table.Source
}

// CreateOption configures a table at creation.
type CreateOption func(*createOptions)

// WithVisible sets IsVisible. Tables are visible by default.
func WithVisible(visible bool) CreateOption {
	return func(o *createOptions) { o.visible = visible }
}

// WithNotifyOnNewMapping sets NotifyOnNewMapping. It is off by default.
func WithNotifyOnNewMapping(notify bool) CreateOption {
	return func(o *createOptions) { o.notify = notify }
}

// WithSource records the provenance of the table's keys.
func WithSource(src table.Source) CreateOption {
	return func(o *createOptions) { o.source = src }
}

// CreateReferenceTable creates an empty table. It fails with
// errs.ErrAlreadyExists if the name is taken.
func (e *Engine) CreateReferenceTable(ctx context.Context, name string, columns []table.Column, opts ...CreateOption) (*table.ReferenceTable, error) {
	const op = "create reference table"
	if err := table.ValidateName(name); err != nil {
		return nil, errs.InvalidArgument(op, "name", err.Error())
	}
	if err := table.ValidateColumns(columns); err != nil {
		return nil, errs.InvalidArgument(op, "columns", err.Error())
	}

	o := createOptions{visible: true}
	for _, opt := range opts {
		opt(&o)
	}

	t := table.New(name, append([]table.Column(nil), columns...), e.now())
	t.IsVisible = o.visible
	t.NotifyOnNewMapping = o.notify
	t.Source = o.source

	unlock := e.locker.LockTable(name)
	defer unlock()

	if creator, ok := e.store.(refstore.Creator); ok {
		if err := creator.CreateReferenceTable(ctx, t); err != nil {
			return nil, err
		}
	} else {
		exists, err := e.store.TableExists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", op, name, err)
		}
		if exists {
			return nil, errs.TableExists(op, name)
		}
		if err := e.store.SaveReferenceTable(ctx, t); err != nil {
			return nil, fmt.Errorf("%s %q: %w", op, name, err)
		}
	}

	e.metrics.tablesCreated.Inc()
	e.log.Info().Str("table", name).Int("columns", len(t.Columns)).Msg("created reference table")
	return t, nil
}

// GetReferenceTable returns nil without error when the table does not exist.
func (e *Engine) GetReferenceTable(ctx context.Context, name string) (*table.ReferenceTable, error) {
	return e.store.GetReferenceTable(ctx, name)
}

// DeleteReferenceTable reports false for a table that does not exist.
func (e *Engine) DeleteReferenceTable(ctx context.Context, name string) (bool, error) {
	unlock := e.locker.LockTable(name)
	defer unlock()

	deleted, err := e.store.DeleteReferenceTable(ctx, name)
	if err != nil {
		return false, err
	}
	if deleted {
		e.log.Info().Str("table", name).Msg("deleted reference table")
	}
	return deleted, nil
}

// GetAllTableNames lists every stored table in byte order.
func (e *Engine) GetAllTableNames(ctx context.Context) ([]string, error) {
	return e.store.GetAllTableNames(ctx)
}

// load returns the table or errs.ErrNotFound.
func (e *Engine) load(ctx context.Context, op, name string) (*table.ReferenceTable, error) {
	if name == "" {
		return nil, errs.InvalidArgument(op, "table name", "is empty")
	}
	t, err := e.store.GetReferenceTable(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", op, name, err)
	}
	if t == nil {
		return nil, errs.TableNotFound(op, name)
	}
	return t, nil
}
