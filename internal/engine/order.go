package engine

import (
	"fmt"

	"reentry-engine-go/gateway"
	"reentry-engine-go/internal/policy"
)

// Phase 订单生命周期阶段，只允许单向推进。
type Phase string

const (
	PhaseAwaitingFill Phase = "AWAITING_FILL"
	PhaseOpen         Phase = "OPEN"
	PhaseClosed       Phase = "CLOSED"
	PhaseReentered    Phase = "REENTERED"
)

// Origin 标记订单被发现时的形态：挂单需要先等成交，持仓直接进入 OPEN。
type Origin string

const (
	OriginPendingLimit Origin = "PENDING_LIMIT"
	OriginOpenPosition Origin = "OPEN_POSITION"
)

// legalTransitions 合法的阶段转换表。没有回退、没有重试路径：
// 一个 ticket 走完 REENTERED 就结束，重入产生的新单只能由发现循环
// 重新注册成一条全新的记录。
var legalTransitions = map[Phase]Phase{
	PhaseAwaitingFill: PhaseOpen,
	PhaseOpen:         PhaseClosed,
	PhaseClosed:       PhaseReentered,
}

// ValidateTransition 校验阶段推进是否合法；相同阶段视作幂等。
func ValidateTransition(from, to Phase) error {
	if from == to {
		return nil
	}
	if legalTransitions[from] != to {
		return fmt.Errorf("illegal phase transition: %s -> %s", from, to)
	}
	return nil
}

// IsTerminal 判断是否终态。
func IsTerminal(p Phase) bool {
	return p == PhaseReentered
}

// TrackedOrder 一条被看护的订单/持仓。创建后数值字段只由它自己的
// watcher 写（盯盘期间同步人工改价），其他组件最多读 Ticket/Symbol
// 这类注册后不变的字段。
type TrackedOrder struct {
	Ticket     int64
	Symbol     string
	Direction  gateway.Direction
	Volume     float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Origin     Origin
	Policy     policy.Policy

	// phase/active 只归 watcher 所有
	phase  Phase
	active bool
}

// newTrackedOrder 从归一化记录构造跟踪记录并拷入策略快照。
func newTrackedFromOrder(rec gateway.OrderRecord, p policy.Policy) *TrackedOrder {
	return &TrackedOrder{
		Ticket:     rec.Ticket,
		Symbol:     rec.Symbol,
		Direction:  rec.Direction,
		Volume:     rec.Volume,
		EntryPrice: rec.Price,
		StopLoss:   rec.StopLoss,
		TakeProfit: rec.TakeProfit,
		Origin:     OriginPendingLimit,
		Policy:     p,
		phase:      PhaseAwaitingFill,
		active:     true,
	}
}

func newTrackedFromPosition(rec gateway.PositionRecord, p policy.Policy) *TrackedOrder {
	return &TrackedOrder{
		Ticket:     rec.Ticket,
		Symbol:     rec.Symbol,
		Direction:  rec.Direction,
		Volume:     rec.Volume,
		EntryPrice: rec.OpenPrice,
		StopLoss:   rec.StopLoss,
		TakeProfit: rec.TakeProfit,
		Origin:     OriginOpenPosition,
		Policy:     p,
		phase:      PhaseOpen,
		active:     true,
	}
}

// Phase 返回当前阶段（仅限 watcher 协程调用）。
func (o *TrackedOrder) Phase() Phase {
	return o.phase
}

// advance 推进阶段，非法转换直接报错给调用方。
func (o *TrackedOrder) advance(to Phase) error {
	if err := ValidateTransition(o.phase, to); err != nil {
		return err
	}
	o.phase = to
	return nil
}

func (o *TrackedOrder) long() bool {
	return o.Direction == gateway.DirectionLong
}
