package main

import (
	"sync/atomic"

	"go.uber.org/zap"

	"reentry-engine-go/gateway"
	"reentry-engine-go/infrastructure/logger"
	"reentry-engine-go/internal/engine"
)

// dryRunBroker 透传所有查询，拦截提交和撤单只记日志。
// 返回的 ticket 为负数，不会与真实 ticket 冲突。
type dryRunBroker struct {
	engine.Broker
	log  *logger.Logger
	next int64
}

func (d *dryRunBroker) Submit(req gateway.OrderRequest) (int64, error) {
	ticket := -atomic.AddInt64(&d.next, 1)
	d.log.Info("dry-run submit",
		zap.Int64("ticket", ticket),
		zap.String("symbol", req.Symbol),
		zap.String("direction", string(req.Direction)),
		zap.String("kind", string(req.Kind)),
		zap.Float64("volume", req.Volume),
		zap.Float64("price", req.Price),
		zap.Float64("sl", req.StopLoss),
		zap.Float64("tp", req.TakeProfit))
	return ticket, nil
}

func (d *dryRunBroker) Cancel(ticket int64) error {
	d.log.Info("dry-run cancel", zap.Int64("ticket", ticket))
	return nil
}
