package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BarsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bars_fetched_total", Help: "Bar windows served per venue"},
		[]string{"venue"},
	)
	VenueFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "venue_fallbacks_total", Help: "Fallback advances per market"},
		[]string{"market", "op"},
	)
	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders placed per venue and side"},
		[]string{"venue", "side"},
	)
	SizingRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sizing_rejections_total", Help: "Rejected order plans by reason"},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(BarsFetched, VenueFallbacks, OrdersPlaced, SizingRejections)
}

// Serve exposes /metrics on addr and returns the server for shutdown.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
