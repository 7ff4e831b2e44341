package engine

import (
	"time"

	"go.uber.org/zap"

	"reentry-engine-go/gateway"
	"reentry-engine-go/internal/policy"
	"reentry-engine-go/metrics"
)

// automaticCandidate 计算 AUTOMATIC 模式等待期结束后的候选入场价。
// movement 是市场越过原止损后继续走出的带符号距离，adjustment 按
// 配置比例截取。只有候选价比原入场价"更差"（多单更低、空单更高）
// 时才允许调整，只追认进一步的亏损方向，绝不把入场价改得更有利。
func automaticCandidate(o *TrackedOrder, last float64) (candidate float64, apply bool) {
	movement := last - o.StopLoss
	adjustment := movement * o.Policy.AdjustPct / 100
	if o.long() {
		candidate = o.EntryPrice - adjustment
		apply = candidate < o.EntryPrice
	} else {
		candidate = o.EntryPrice + adjustment
		apply = candidate > o.EntryPrice
	}
	return candidate, apply
}

// manualLevels 计算 MANUAL 模式的新三价：以原止损为锚，按 pip 距离
// 平移，止损/止盈随入场价移动同一增量。
func manualLevels(o *TrackedOrder, point float64) (entry, sl, tp float64) {
	mult := 1.0
	if o.long() {
		mult = -1.0
	}
	delta := o.Policy.PipDistance * point * mult
	return o.StopLoss + delta, o.StopLoss + delta, o.TakeProfit + delta
}

// reenter 按订单捕获的策略执行重入，随后由 watcher 推进到 REENTERED。
func (e *Engine) reenter(o *TrackedOrder) {
	switch o.Policy.Mode {
	case policy.ModeManual:
		e.reenterManual(o)
	default:
		e.reenterAutomatic(o)
	}
	metrics.ReentriesTotal.WithLabelValues(string(o.Policy.Mode)).Inc()
}

// reenterAutomatic 先原价复制一张挂单，等待 adjust_wait 后检查行情，
// 仅当价格继续向亏损方向走时撤掉复制单、整体平移三价后重发。
// 无论是否调整，结束时这次重入都只留一张活跃挂单。
func (e *Engine) reenterAutomatic(o *TrackedOrder) {
	if o.Origin == OriginOpenPosition {
		// 市价持仓直接按市价重入，没有调整阶段
		e.submitMarketReentry(o)
		return
	}

	duplicate := e.submitLimit(o)

	// 有界等待；停机时让复制单留在场内直接退出
	select {
	case <-e.stopChan:
		return
	case <-time.After(o.Policy.AdjustWait):
	}

	tick, err := e.broker.Tick(o.Symbol)
	if err != nil {
		metrics.BrokerErrors.WithLabelValues("tick").Inc()
		e.log.Error("reentry tick query failed, duplicate left in place",
			zap.Int64("ticket", o.Ticket), zap.Error(err))
		return
	}

	candidate, apply := automaticCandidate(o, tick.Last)
	if !apply {
		e.log.Info("no adjustment, price did not move further against entry",
			zap.Int64("ticket", o.Ticket),
			zap.Float64("last", tick.Last),
			zap.Float64("entry", o.EntryPrice))
		return
	}

	delta := candidate - o.EntryPrice
	if duplicate != 0 {
		// 先打标记再撤单，避免复制单的 watcher 把消失当成成交
		e.markSelfCanceled(duplicate)
		if err := e.broker.Cancel(duplicate); err != nil {
			metrics.BrokerErrors.WithLabelValues("cancel").Inc()
			e.log.Error("cancel duplicate failed", zap.Int64("ticket", duplicate), zap.Error(err))
		}
		if !e.registry.Contains(duplicate) {
			e.unmarkSelfCanceled(duplicate)
		}
	}
	o.EntryPrice += delta
	o.StopLoss += delta
	o.TakeProfit += delta
	e.log.Info("auto adjustment applied",
		zap.Int64("ticket", o.Ticket),
		zap.Float64("delta", delta),
		zap.Float64("entry", o.EntryPrice),
		zap.Float64("sl", o.StopLoss),
		zap.Float64("tp", o.TakeProfit))
	e.submitLimit(o)
}

// reenterManual 按止损锚点平移三价后立即重入，无等待、无条件检查。
func (e *Engine) reenterManual(o *TrackedOrder) {
	info, err := e.broker.SymbolInfo(o.Symbol)
	if err != nil {
		metrics.BrokerErrors.WithLabelValues("symbol_info").Inc()
		e.log.Error("symbol info query failed, manual reentry skipped",
			zap.Int64("ticket", o.Ticket), zap.Error(err))
		return
	}
	entry, sl, tp := manualLevels(o, info.Point)
	o.EntryPrice, o.StopLoss, o.TakeProfit = entry, sl, tp
	e.log.Info("manual reentry levels",
		zap.Int64("ticket", o.Ticket),
		zap.Float64("entry", entry),
		zap.Float64("sl", sl),
		zap.Float64("tp", tp))
	if o.Origin == OriginOpenPosition {
		e.submitMarketReentry(o)
		return
	}
	e.submitLimit(o)
}

// submitLimit 提交限价重入单，失败只记录不重试（watcher 照常推进）。
func (e *Engine) submitLimit(o *TrackedOrder) int64 {
	ticket, err := e.broker.Submit(gateway.OrderRequest{
		Symbol:     o.Symbol,
		Volume:     o.Volume,
		Direction:  o.Direction,
		Kind:       gateway.KindLimit,
		Price:      o.EntryPrice,
		StopLoss:   o.StopLoss,
		TakeProfit: o.TakeProfit,
		Deviation:  e.cfg.Deviation,
		Magic:      e.cfg.Magic,
		Comment:    e.cfg.Comment,
	})
	if err != nil {
		metrics.BrokerErrors.WithLabelValues("submit").Inc()
		e.log.Error("limit reentry submit failed",
			zap.Int64("ticket", o.Ticket), zap.Error(err))
		return 0
	}
	metrics.OrdersSubmitted.Inc()
	e.log.Info("limit reentry submitted",
		zap.Int64("ticket", o.Ticket),
		zap.Int64("new_ticket", ticket),
		zap.Float64("price", o.EntryPrice))
	return ticket
}

// submitMarketReentry 市价重入：用当前 bid/ask 而不是计算价。
func (e *Engine) submitMarketReentry(o *TrackedOrder) {
	tick, err := e.broker.Tick(o.Symbol)
	if err != nil {
		metrics.BrokerErrors.WithLabelValues("tick").Inc()
		e.log.Error("market reentry tick query failed",
			zap.Int64("ticket", o.Ticket), zap.Error(err))
		return
	}
	price := tick.Ask
	if !o.long() {
		price = tick.Bid
	}
	ticket, err := e.broker.Submit(gateway.OrderRequest{
		Symbol:     o.Symbol,
		Volume:     o.Volume,
		Direction:  o.Direction,
		Kind:       gateway.KindMarket,
		Price:      price,
		StopLoss:   o.StopLoss,
		TakeProfit: o.TakeProfit,
		Deviation:  e.cfg.Deviation,
		Magic:      e.cfg.Magic,
		Comment:    e.cfg.Comment,
	})
	if err != nil {
		metrics.BrokerErrors.WithLabelValues("submit").Inc()
		e.log.Error("market reentry submit failed",
			zap.Int64("ticket", o.Ticket), zap.Error(err))
		return
	}
	metrics.OrdersSubmitted.Inc()
	e.log.Info("market reentry submitted",
		zap.Int64("ticket", o.Ticket),
		zap.Int64("new_ticket", ticket),
		zap.Float64("price", price))
}
