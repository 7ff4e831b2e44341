package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"reentry-engine-go/gateway"
	"reentry-engine-go/infrastructure/logger"
	"reentry-engine-go/internal/policy"
	"reentry-engine-go/metrics"
)

// Config 引擎运行参数。
type Config struct {
	DiscoveryInterval time.Duration // 发现循环周期
	PollInterval      time.Duration // watcher 轮询周期
	ClosureConfirms   int           // 连续多少次空查询才判定平仓
	Deviation         int           // 下单滑点容忍（点）
	Magic             int64         // 订单标记
	Comment           string        // 订单注释
}

// Components 引擎依赖。
type Components struct {
	Broker   Broker
	Policies *policy.Store
	Logger   *logger.Logger
}

var (
	ErrAlreadyRunning = errors.New("engine already running")
	ErrNotRunning     = errors.New("engine not running")
)

// Engine 订单生命周期看护/重入引擎。持有自己的注册表、策略库和
// 停机令牌；多账户时起多个实例即可。
type Engine struct {
	cfg      Config
	broker   Broker
	policies *policy.Store
	registry *Registry
	log      *logger.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
	watchers sync.WaitGroup

	// 引擎自己撤掉的复制单。调整期内复制单可能已被发现循环注册，
	// 撤单后从挂单列表消失会被其 watcher 误读成"已成交"并引发一连串
	// 多余重入，这张表让 watcher 识别出是自己人撤的。
	cancelMu     sync.Mutex
	selfCanceled map[int64]struct{}
}

// New 创建引擎；依赖缺失直接报错。
func New(cfg Config, c Components) (*Engine, error) {
	if c.Broker == nil {
		return nil, errors.New("broker is required")
	}
	if c.Policies == nil {
		return nil, errors.New("policy store is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.DiscoveryInterval <= 0 {
		cfg.DiscoveryInterval = time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ClosureConfirms <= 0 {
		cfg.ClosureConfirms = 1
	}
	if cfg.Deviation <= 0 {
		cfg.Deviation = 10
	}
	if cfg.Comment == "" {
		cfg.Comment = "reentry-engine"
	}
	return &Engine{
		cfg:          cfg,
		broker:       c.Broker,
		policies:     c.Policies,
		registry:     NewRegistry(),
		log:          c.Logger,
		selfCanceled: make(map[int64]struct{}),
	}, nil
}

func (e *Engine) markSelfCanceled(ticket int64) {
	e.cancelMu.Lock()
	e.selfCanceled[ticket] = struct{}{}
	e.cancelMu.Unlock()
}

func (e *Engine) unmarkSelfCanceled(ticket int64) {
	e.cancelMu.Lock()
	delete(e.selfCanceled, ticket)
	e.cancelMu.Unlock()
}

// consumeSelfCanceled 查询并清除标记，只命中一次。
func (e *Engine) consumeSelfCanceled(ticket int64) bool {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	if _, ok := e.selfCanceled[ticket]; !ok {
		return false
	}
	delete(e.selfCanceled, ticket)
	return true
}

// Start 连接网关并启动发现循环；重复启动或连接失败都返回错误，
// 失败时引擎不进入运行态。
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyRunning
	}
	if err := e.broker.Connect(); err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	e.stopChan = make(chan struct{})
	e.doneChan = make(chan struct{})
	e.running = true

	e.log.Info("engine starting",
		zap.Duration("discovery_interval", e.cfg.DiscoveryInterval),
		zap.Duration("poll_interval", e.cfg.PollInterval),
		zap.Int("closure_confirms", e.cfg.ClosureConfirms))

	go e.discoverLoop()
	return nil
}

// Stop 翻转运行标记并断开网关。不强杀 watcher：每个循环在下一次
// 轮询点观察到停机令牌后自行退出，正在进行的重入提交不回滚。
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.running = false
	stop := e.stopChan
	done := e.doneChan
	e.mu.Unlock()

	e.log.Info("engine stopping")
	close(stop)

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		e.log.Warn("timeout waiting for discovery loop")
	}

	finished := make(chan struct{})
	go func() {
		e.watchers.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(10 * time.Second):
		e.log.Warn("timeout waiting for watchers")
	}

	if err := e.broker.Close(); err != nil {
		e.log.Error("broker close failed", zap.Error(err))
	}
	e.log.Info("engine stopped")
	return nil
}

// Running 返回引擎是否在运行。
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// TrackedCount 当前看护中的订单数，供状态接口展示。
func (e *Engine) TrackedCount() int {
	return e.registry.Count()
}

// discoverLoop 周期性扫描挂单（以及按配置扫描持仓），为每个新
// ticket 注册记录并拉起 watcher。循环本身从不改写已跟踪的订单。
func (e *Engine) discoverLoop() {
	defer close(e.doneChan)
	e.discover()
	ticker := time.NewTicker(e.cfg.DiscoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.discover()
		}
	}
}

func (e *Engine) discover() {
	metrics.DiscoveryTicks.Inc()

	pending, err := e.broker.PendingOrders()
	if err != nil {
		metrics.BrokerErrors.WithLabelValues("orders").Inc()
		e.log.Debug("pending orders query failed", zap.Error(err))
	}
	for _, rec := range pending {
		if rec.Kind != gateway.KindLimit {
			continue
		}
		if e.registry.Contains(rec.Ticket) {
			continue
		}
		o := newTrackedFromOrder(rec, e.policies.Snapshot(rec.Symbol))
		e.track(o)
	}

	if !e.policies.MarketTrackingEnabled() {
		return
	}
	positions, err := e.broker.Positions()
	if err != nil {
		metrics.BrokerErrors.WithLabelValues("positions").Inc()
		e.log.Debug("positions query failed", zap.Error(err))
	}
	for _, rec := range positions {
		if e.registry.Contains(rec.Ticket) {
			continue
		}
		o := newTrackedFromPosition(rec, e.policies.Snapshot(rec.Symbol))
		e.track(o)
	}
}

// track 注册并拉起 watcher；并发发现同一 ticket 时只有一个成功。
func (e *Engine) track(o *TrackedOrder) {
	if !e.registry.Register(o.Ticket, o) {
		return
	}
	metrics.TrackedOrders.Set(float64(e.registry.Count()))
	e.log.Info("tracking order",
		zap.Int64("ticket", o.Ticket),
		zap.String("symbol", o.Symbol),
		zap.String("origin", string(o.Origin)),
		zap.String("direction", string(o.Direction)),
		zap.Float64("entry", o.EntryPrice),
		zap.Float64("sl", o.StopLoss),
		zap.Float64("tp", o.TakeProfit),
		zap.String("mode", string(o.Policy.Mode)))
	e.watchers.Add(1)
	go e.watch(o)
}

// sleep 挂起一个轮询周期，停机时返回 false。
func (e *Engine) sleep(d time.Duration) bool {
	select {
	case <-e.stopChan:
		return false
	case <-time.After(d):
		return true
	}
}
