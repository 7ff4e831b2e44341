package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TickCache keeps the last tick per symbol with a freshness bound. A stale
// entry is treated as a miss so callers fall back to the REST query.
type TickCache struct {
	mu     sync.RWMutex
	ticks  map[string]Tick
	maxAge time.Duration
}

func NewTickCache(maxAge time.Duration) *TickCache {
	if maxAge <= 0 {
		maxAge = 2 * time.Second
	}
	return &TickCache{
		ticks:  make(map[string]Tick),
		maxAge: maxAge,
	}
}

// Get returns the cached tick if it is still fresh.
func (c *TickCache) Get(symbol string) (Tick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.ticks[symbol]
	if !ok || time.Since(t.Time) > c.maxAge {
		return Tick{}, false
	}
	return t, true
}

// Put stores a tick.
func (c *TickCache) Put(t Tick) {
	if t.Symbol == "" {
		return
	}
	c.mu.Lock()
	c.ticks[t.Symbol] = t
	c.mu.Unlock()
}

// TickStream 订阅桥接服务的 tick 推送并写入缓存。连接断开后按固定
// 退避自动重连；引擎不依赖这条流，纯粹是给 REST 查询减压。
type TickStream struct {
	Endpoint string // 如 ws://127.0.0.1:8787/ws/ticks
	Symbols  []string
	Cache    *TickCache
	Dialer   *websocket.Dialer

	OnConnect    func()
	OnDisconnect func(err error)
}

type streamTick struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	TimeMs int64   `json:"time_ms"`
}

// Run blocks until ctx is canceled, reconnecting on failure.
func (s *TickStream) Run(ctx context.Context) error {
	if s.Endpoint == "" {
		return fmt.Errorf("endpoint required")
	}
	if s.Cache == nil {
		return fmt.Errorf("cache required")
	}
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.readLoop(ctx, dialer)
		if s.OnDisconnect != nil && err != nil {
			s.OnDisconnect(err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
}

func (s *TickStream) readLoop(ctx context.Context, dialer *websocket.Dialer) error {
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return err
	}
	if len(s.Symbols) > 0 {
		q := u.Query()
		q.Set("symbols", strings.Join(s.Symbols, ","))
		u.RawQuery = q.Encode()
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	if s.OnConnect != nil {
		s.OnConnect()
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if t, ok := ParseStreamTick(msg); ok {
			s.Cache.Put(t)
		}
	}
}

// ParseStreamTick decodes one stream message. Malformed or partial messages
// are dropped rather than surfaced.
func ParseStreamTick(msg []byte) (Tick, bool) {
	var raw streamTick
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Tick{}, false
	}
	if raw.Symbol == "" || (raw.Bid <= 0 && raw.Ask <= 0 && raw.Last <= 0) {
		return Tick{}, false
	}
	ts := time.Now()
	if raw.TimeMs > 0 {
		ts = time.UnixMilli(raw.TimeMs)
	}
	return Tick{
		Symbol: raw.Symbol,
		Bid:    raw.Bid,
		Ask:    raw.Ask,
		Last:   raw.Last,
		Time:   ts,
	}, true
}
