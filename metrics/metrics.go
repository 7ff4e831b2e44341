// Package metrics provides Prometheus metrics for the re-entry engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TrackedOrders 当前看护中的订单数
	TrackedOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reentry_tracked_orders",
		Help: "Orders currently under watch",
	})

	// DiscoveryTicks 发现循环扫描次数
	DiscoveryTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reentry_discovery_ticks_total",
		Help: "Discovery loop iterations",
	})

	// ReentriesTotal 重入次数（按模式）
	ReentriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reentry_reentries_total",
		Help: "Completed re-entries by policy mode",
	}, []string{"mode"})

	// OrdersSubmitted 重入提交成功次数
	OrdersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reentry_orders_submitted_total",
		Help: "Orders submitted to the broker",
	})

	// BrokerErrors 网关调用错误（按操作）
	BrokerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reentry_broker_errors_total",
		Help: "Broker gateway call failures by operation",
	}, []string{"op"})

	// WatcherTransitions watcher 阶段推进次数（按目标阶段）
	WatcherTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reentry_watcher_transitions_total",
		Help: "Watcher phase transitions by target phase",
	}, []string{"phase"})

	// TickStreamConnects tick 流连接次数
	TickStreamConnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reentry_tick_stream_connects_total",
		Help: "Tick stream websocket connections",
	})

	// TickStreamFailures tick 流断开次数
	TickStreamFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reentry_tick_stream_failures_total",
		Help: "Tick stream websocket disconnects",
	})
)

// StartMetricsServer 启动Prometheus指标服务器
func StartMetricsServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
