package bulk

import "github.com/prometheus/client_golang/prometheus"

var (
	// rowsInserted counts rows the loader actually inserted, by table.
	rowsInserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulk_rows_inserted_total",
			Help: "Rows inserted by the bulk loader, by table.",
		},
		[]string{"table"},
	)

	chunksCommitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bulk_chunks_committed_total",
			Help: "Bulk load chunks committed.",
		},
	)
)

func init() {
	prometheus.MustRegister(rowsInserted, chunksCommitted)
}
