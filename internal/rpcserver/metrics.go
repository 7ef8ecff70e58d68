package rpcserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// rpcRequestsTotal and rpcRequestDuration are the Prometheus metrics
// exported at GET /metrics, labeled by RPC method and outcome so a single
// dashboard covers every operation dispatch.go routes.
var (
	rpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "localretrieve",
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "Count of RPC requests handled, by method and outcome.",
	}, []string{"method", "outcome"})

	rpcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "localretrieve",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "RPC request handling latency in seconds, by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)
