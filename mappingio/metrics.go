package mappingio

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	tablesCreated prometheus.Counter
	keysAdded     *prometheus.CounterVec
	rowsUpserted  *prometheus.CounterVec
}

func newMetrics() *metrics {
	return &metrics{
		tablesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "refdata",
			Name:      "tables_created_total",
			Help:      "Reference tables created, explicitly or by sync.",
		}),
		keysAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refdata",
			Name:      "sync_keys_added_total",
			Help:      "New keys registered by sync.",
		}, []string{"table"}),
		rowsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refdata",
			Name:      "rows_upserted_total",
			Help:      "Rows created or replaced by upsert.",
		}, []string{"table"}),
	}
}

func (m *metrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.tablesCreated, m.keysAdded, m.rowsUpserted} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
