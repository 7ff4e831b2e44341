package engine

import (
	"go.uber.org/zap"

	"reentry-engine-go/metrics"
)

// watch 驱动一条订单走完整个生命周期：
// AWAITING_FILL → OPEN → CLOSED → REENTERED。
// 记录的数值字段只在这个协程里写；停机令牌在每个轮询点被观察，
// 停机退出时不触发重入。
func (e *Engine) watch(o *TrackedOrder) {
	defer e.watchers.Done()
	defer func() {
		e.registry.Unregister(o.Ticket)
		metrics.TrackedOrders.Set(float64(e.registry.Count()))
	}()

	if o.Origin == OriginPendingLimit {
		if !e.awaitFill(o) {
			return
		}
		e.advance(o, PhaseOpen)
		e.log.Info("order filled", zap.Int64("ticket", o.Ticket))
	}

	if !e.watchOpen(o) {
		return
	}
	e.advance(o, PhaseClosed)
	e.log.Info("position closed, sl/tp assumed hit", zap.Int64("ticket", o.Ticket))

	e.reenter(o)
	o.active = false
	e.advance(o, PhaseReentered)
	e.log.Info("reentry complete", zap.Int64("ticket", o.Ticket))
}

// awaitFill 等待挂单成交。挂单还在时同步人工拖动过的三价（改价
// 绝不导致停止看护）；记录从查询结果里消失即视为成交，立刻返回。
// 查询出错按"这一轮无事发生"处理，继续等。返回 false 表示停机。
func (e *Engine) awaitFill(o *TrackedOrder) bool {
	for o.active {
		select {
		case <-e.stopChan:
			return false
		default:
		}

		rec, err := e.broker.PendingOrder(o.Ticket)
		if err != nil {
			metrics.BrokerErrors.WithLabelValues("orders").Inc()
			e.log.Debug("pending order query failed", zap.Int64("ticket", o.Ticket), zap.Error(err))
			if !e.sleep(e.cfg.PollInterval) {
				return false
			}
			continue
		}
		if rec == nil {
			if e.consumeSelfCanceled(o.Ticket) {
				e.log.Info("duplicate withdrawn by the engine itself, watch ends without reentry",
					zap.Int64("ticket", o.Ticket))
				return false
			}
			return true // 不再是挂单，视为已成交
		}
		if rec.Price != o.EntryPrice || rec.StopLoss != o.StopLoss || rec.TakeProfit != o.TakeProfit {
			o.EntryPrice = rec.Price
			o.StopLoss = rec.StopLoss
			o.TakeProfit = rec.TakeProfit
			e.log.Info("pre-fill edit picked up",
				zap.Int64("ticket", o.Ticket),
				zap.Float64("entry", o.EntryPrice),
				zap.Float64("sl", o.StopLoss),
				zap.Float64("tp", o.TakeProfit))
		}
		if !e.sleep(e.cfg.PollInterval) {
			return false
		}
	}
	return false
}

// watchOpen 盯持仓直到消失。持仓在场时同步人工改过的止损止盈；
// 连续 ClosureConfirms 次空查询才判定平仓（默认 1 次，即原始行为）。
// 引擎无法区分触发止损、手动平仓还是一次连接抖动，一律按平仓处理，
// 查询错误不计入空次数。返回 false 表示停机。
func (e *Engine) watchOpen(o *TrackedOrder) bool {
	empty := 0
	for o.active {
		select {
		case <-e.stopChan:
			return false
		default:
		}

		pos, err := e.broker.Position(o.Ticket)
		if err != nil {
			metrics.BrokerErrors.WithLabelValues("positions").Inc()
			e.log.Debug("position query failed", zap.Int64("ticket", o.Ticket), zap.Error(err))
			if !e.sleep(e.cfg.PollInterval) {
				return false
			}
			continue
		}
		if pos != nil {
			empty = 0
			if pos.StopLoss != o.StopLoss || pos.TakeProfit != o.TakeProfit {
				o.StopLoss = pos.StopLoss
				o.TakeProfit = pos.TakeProfit
				e.log.Info("live sl/tp edit picked up",
					zap.Int64("ticket", o.Ticket),
					zap.Float64("sl", o.StopLoss),
					zap.Float64("tp", o.TakeProfit))
			}
			if !e.sleep(e.cfg.PollInterval) {
				return false
			}
			continue
		}

		empty++
		if empty >= e.cfg.ClosureConfirms {
			return true
		}
		if !e.sleep(e.cfg.PollInterval) {
			return false
		}
	}
	return false
}

// advance 推进阶段并计数；转换表保证只进不退，非法转换属于编程
// 错误，记下来但不让 watcher 崩掉。
func (e *Engine) advance(o *TrackedOrder, to Phase) {
	if err := o.advance(to); err != nil {
		e.log.Error("phase transition rejected", zap.Int64("ticket", o.Ticket), zap.Error(err))
		return
	}
	metrics.WatcherTransitions.WithLabelValues(string(to)).Inc()
}
