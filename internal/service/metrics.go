package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	productsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_products_total",
			Help: "Products processed by the indexer by result (indexed, skipped, failed)",
		},
		[]string{"index", "result"},
	)

	documentsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_documents_submitted_total",
			Help: "Interval documents submitted to a search engine",
		},
		[]string{"index"},
	)

	indexDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "index_product_duration_seconds",
			Help:    "Time to rebuild and submit the documents of one product",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"index"},
	)

	deleteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_delete_failures_total",
			Help: "Deletes of previous product documents that failed before resubmission",
		},
		[]string{"index"},
	)

	missingPrices = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_missing_prices_total",
			Help: "Price fields left out because no price record applied",
		},
		[]string{"currency", "group"},
	)

	intervalFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "index_interval_failures_total",
			Help: "Validity intervals skipped because their document could not be assembled",
		},
	)

	reindexRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_reindex_runs_total",
			Help: "Full catalog reindex runs by outcome",
		},
		[]string{"result"},
	)
)
