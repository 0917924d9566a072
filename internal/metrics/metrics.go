// Package metrics declares the Prometheus collectors served on /metrics.
//
//   - shuttle_http_requests_total{route,status}
//   - shuttle_http_request_duration_seconds{route}
//   - shuttle_operations_total{kind,mode,outcome}
//   - shuttle_quote_fee_source_total{fee,source}
//   - shuttle_balance_poll_total{converged}
//   - shuttle_quote_log_dropped_total
//   - shuttle_history_records
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shuttle_http_requests_total",
			Help: "HTTP requests served, by route and status code.",
		},
		[]string{"route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shuttle_http_request_duration_seconds",
			Help:    "HTTP request latency by route. Owner-mode operations include the balance poll.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"route"},
	)

	Operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shuttle_operations_total",
			Help: "Deposit and withdraw operations, by kind, mode and outcome.",
		},
		[]string{"kind", "mode", "outcome"}, // outcome: ok|invalid|failed
	)

	QuoteFeeSource = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shuttle_quote_fee_source_total",
			Help: "Quote fee components by source (estimated or fallback).",
		},
		[]string{"fee", "source"},
	)

	BalancePolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shuttle_balance_poll_total",
			Help: "Balance convergence polls, by converged flag.",
		},
		[]string{"converged"},
	)

	QuoteLogDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shuttle_quote_log_dropped_total",
			Help: "Quotes not written to the quote log because its queue was full.",
		},
	)

	HistoryRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shuttle_history_records",
			Help: "Records currently retained by the history store.",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPDuration, Operations, QuoteFeeSource)
	prometheus.MustRegister(BalancePolls, QuoteLogDropped, HistoryRecords)
}

// ObservePoll records a convergence poll outcome.
func ObservePoll(converged bool) {
	BalancePolls.WithLabelValues(strconv.FormatBool(converged)).Inc()
}

// ObserveQuote records the fee sources of a quote.
func ObserveQuote(btcSource, starknetSource string) {
	QuoteFeeSource.WithLabelValues("btc_l1", btcSource).Inc()
	QuoteFeeSource.WithLabelValues("starknet", starknetSource).Inc()
}
