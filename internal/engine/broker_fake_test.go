package engine

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"reentry-engine-go/gateway"
	"reentry-engine-go/infrastructure/logger"
	"reentry-engine-go/internal/policy"
)

// fakeBroker 内存网关，测试里用来编排挂单/持仓的出现与消失。
type fakeBroker struct {
	mu sync.Mutex

	connected  bool
	connectErr error
	orderErr   error
	posErr     error
	tickErr    error
	submitErr  error

	pending   map[int64]gateway.OrderRecord
	positions map[int64]gateway.PositionRecord
	ticks     map[string]gateway.Tick
	infos     map[string]gateway.SymbolInfo

	nextTicket int64
	submitted  []gateway.OrderRequest
	canceled   []int64
	ordQueries int
	posQueries int
}

var errTestBridge = errors.New("bridge unavailable")

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		pending:    make(map[int64]gateway.OrderRecord),
		positions:  make(map[int64]gateway.PositionRecord),
		ticks:      make(map[string]gateway.Tick),
		infos:      make(map[string]gateway.SymbolInfo),
		nextTicket: 5000,
	}
}

func (f *fakeBroker) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeBroker) Close() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeBroker) PendingOrders() ([]gateway.OrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	out := make([]gateway.OrderRecord, 0, len(f.pending))
	for _, rec := range f.pending {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeBroker) PendingOrder(ticket int64) (*gateway.OrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ordQueries++
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	rec, ok := f.pending[ticket]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeBroker) Positions() ([]gateway.PositionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.posErr != nil {
		return nil, f.posErr
	}
	out := make([]gateway.PositionRecord, 0, len(f.positions))
	for _, rec := range f.positions {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeBroker) Position(ticket int64) (*gateway.PositionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posQueries++
	if f.posErr != nil {
		return nil, f.posErr
	}
	rec, ok := f.positions[ticket]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeBroker) Tick(symbol string) (gateway.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tickErr != nil {
		return gateway.Tick{}, f.tickErr
	}
	tick, ok := f.ticks[symbol]
	if !ok {
		return gateway.Tick{}, errors.New("no tick for " + symbol)
	}
	return tick, nil
}

func (f *fakeBroker) SymbolInfo(symbol string) (gateway.SymbolInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.infos[symbol]
	if !ok {
		return gateway.SymbolInfo{}, errors.New("no symbol info for " + symbol)
	}
	return info, nil
}

// Submit 为限价请求生成新 ticket 并放回挂单表，模拟真实网关的回显。
func (f *fakeBroker) Submit(req gateway.OrderRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return 0, f.submitErr
	}
	f.nextTicket++
	ticket := f.nextTicket
	f.submitted = append(f.submitted, req)
	if req.Kind == gateway.KindLimit {
		f.pending[ticket] = gateway.OrderRecord{
			Ticket:     ticket,
			Symbol:     req.Symbol,
			Direction:  req.Direction,
			Kind:       req.Kind,
			Volume:     req.Volume,
			Price:      req.Price,
			StopLoss:   req.StopLoss,
			TakeProfit: req.TakeProfit,
		}
	}
	return ticket, nil
}

func (f *fakeBroker) Cancel(ticket int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, ticket)
	f.canceled = append(f.canceled, ticket)
	return nil
}

func (f *fakeBroker) setPending(rec gateway.OrderRecord) {
	f.mu.Lock()
	f.pending[rec.Ticket] = rec
	f.mu.Unlock()
}

func (f *fakeBroker) setPosition(rec gateway.PositionRecord) {
	f.mu.Lock()
	f.positions[rec.Ticket] = rec
	f.mu.Unlock()
}

func (f *fakeBroker) setTick(tick gateway.Tick) {
	f.mu.Lock()
	f.ticks[tick.Symbol] = tick
	f.mu.Unlock()
}

func (f *fakeBroker) setSymbolInfo(info gateway.SymbolInfo) {
	f.mu.Lock()
	f.infos[info.Symbol] = info
	f.mu.Unlock()
}

// fill 原子地把挂单变成同号持仓，模拟成交。
func (f *fakeBroker) fill(ticket int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.pending[ticket]
	if !ok {
		return
	}
	delete(f.pending, ticket)
	f.positions[ticket] = gateway.PositionRecord{
		Ticket:     rec.Ticket,
		Symbol:     rec.Symbol,
		Direction:  rec.Direction,
		Volume:     rec.Volume,
		OpenPrice:  rec.Price,
		StopLoss:   rec.StopLoss,
		TakeProfit: rec.TakeProfit,
	}
}

func (f *fakeBroker) removePosition(ticket int64) {
	f.mu.Lock()
	delete(f.positions, ticket)
	f.mu.Unlock()
}

func (f *fakeBroker) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeBroker) submittedRequests() []gateway.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]gateway.OrderRequest, len(f.submitted))
	copy(out, f.submitted)
	return out
}

func (f *fakeBroker) canceledTickets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.canceled))
	copy(out, f.canceled)
	return out
}

func (f *fakeBroker) orderQueries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ordQueries
}

func (f *fakeBroker) positionQueries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posQueries
}

func (f *fakeBroker) setOrderErr(err error) {
	f.mu.Lock()
	f.orderErr = err
	f.mu.Unlock()
}

func (f *fakeBroker) setPosErr(err error) {
	f.mu.Lock()
	f.posErr = err
	f.mu.Unlock()
}

func (f *fakeBroker) onlyPending() (gateway.OrderRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) != 1 {
		return gateway.OrderRecord{}, false
	}
	for _, rec := range f.pending {
		return rec, true
	}
	return gateway.OrderRecord{}, false
}

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

func automaticSettings(waitSec, pct float64) policy.Settings {
	s := policy.DefaultSettings()
	s.Mode = policy.ModeAutomatic
	s.AdjustWaitSec = waitSec
	s.AdjustPct = pct
	return s
}

func manualSettings(pips float64) policy.Settings {
	s := policy.DefaultSettings()
	s.Mode = policy.ModeManual
	s.PipDistance = pips
	return s
}
