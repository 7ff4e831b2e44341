package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// BridgeClient 通过 HTTP 桥接服务访问 MT5 终端。桥接进程跑在终端旁边，
// 把 orders/positions/tick 查询和下单请求翻译成终端调用。
// HTTPClient 可注入 httptest；Ticks 可选，命中缓存时省掉一次 REST 往返。
type BridgeClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Limiter    RateLimiter
	Ticks      *TickCache
}

// NewDefaultHTTPClient returns the client used for bridge calls when none is
// injected. The bridge is local so the timeout is short.
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}

type bridgeOrder struct {
	Ticket     int64   `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"`
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
}

type bridgePosition struct {
	Ticket     int64   `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"`
	Volume     float64 `json:"volume"`
	OpenPrice  float64 `json:"price_open"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
}

type bridgeTick struct {
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	TimeMs int64   `json:"time_ms"`
}

type bridgeSymbol struct {
	Point  float64 `json:"point"`
	Digits int     `json:"digits"`
}

type submitResp struct {
	Ticket  int64 `json:"ticket"`
	Retcode int   `json:"retcode"`
}

// Connect 建立终端连接；桥接服务在终端不可用时返回非 2xx。
func (c *BridgeClient) Connect() error {
	return c.post("/api/connect", nil, nil)
}

// Close 断开终端连接。
func (c *BridgeClient) Close() error {
	return c.post("/api/shutdown", nil, nil)
}

// PendingOrders 返回全部挂单快照。空列表与 HTTP 204 等价，都表示没有挂单。
func (c *BridgeClient) PendingOrders() ([]OrderRecord, error) {
	var raw []bridgeOrder
	if err := c.get("/api/orders", &raw); err != nil {
		return nil, err
	}
	out := make([]OrderRecord, 0, len(raw))
	for _, o := range raw {
		out = append(out, normalizeOrder(o))
	}
	return out, nil
}

// PendingOrder 按 ticket 查询挂单；不存在时返回 (nil, nil)。
func (c *BridgeClient) PendingOrder(ticket int64) (*OrderRecord, error) {
	var raw []bridgeOrder
	if err := c.get(fmt.Sprintf("/api/orders?ticket=%d", ticket), &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	rec := normalizeOrder(raw[0])
	return &rec, nil
}

// Positions 返回全部持仓快照。
func (c *BridgeClient) Positions() ([]PositionRecord, error) {
	var raw []bridgePosition
	if err := c.get("/api/positions", &raw); err != nil {
		return nil, err
	}
	out := make([]PositionRecord, 0, len(raw))
	for _, p := range raw {
		out = append(out, normalizePosition(p))
	}
	return out, nil
}

// Position 按 ticket 查询持仓；不存在时返回 (nil, nil)。
func (c *BridgeClient) Position(ticket int64) (*PositionRecord, error) {
	var raw []bridgePosition
	if err := c.get(fmt.Sprintf("/api/positions?ticket=%d", ticket), &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	rec := normalizePosition(raw[0])
	return &rec, nil
}

// Tick 返回符号当前报价，优先走 WS 缓存。
func (c *BridgeClient) Tick(symbol string) (Tick, error) {
	if c.Ticks != nil {
		if t, ok := c.Ticks.Get(symbol); ok {
			return t, nil
		}
	}
	var raw bridgeTick
	if err := c.get("/api/tick/"+url.PathEscape(symbol), &raw); err != nil {
		return Tick{}, err
	}
	return Tick{
		Symbol: symbol,
		Bid:    raw.Bid,
		Ask:    raw.Ask,
		Last:   raw.Last,
		Time:   time.UnixMilli(raw.TimeMs),
	}, nil
}

// SymbolInfo 返回符号元数据（point 等）。
func (c *BridgeClient) SymbolInfo(symbol string) (SymbolInfo, error) {
	var raw bridgeSymbol
	if err := c.get("/api/symbols/"+url.PathEscape(symbol), &raw); err != nil {
		return SymbolInfo{}, err
	}
	if raw.Point <= 0 {
		return SymbolInfo{}, fmt.Errorf("symbol %s: invalid point %v", symbol, raw.Point)
	}
	return SymbolInfo{Symbol: symbol, Point: raw.Point, Digits: raw.Digits}, nil
}

// Submit 提交订单并返回终端分配的 ticket。
func (c *BridgeClient) Submit(req OrderRequest) (int64, error) {
	body := map[string]interface{}{
		"symbol":    req.Symbol,
		"volume":    req.Volume,
		"type":      denormalizeType(req.Direction, req.Kind),
		"price":     req.Price,
		"sl":        req.StopLoss,
		"tp":        req.TakeProfit,
		"deviation": req.Deviation,
		"magic":     req.Magic,
		"comment":   req.Comment,
	}
	var resp submitResp
	if err := c.post("/api/orders", body, &resp); err != nil {
		return 0, err
	}
	if resp.Ticket == 0 {
		return 0, fmt.Errorf("submit rejected: retcode %d", resp.Retcode)
	}
	return resp.Ticket, nil
}

// Modify 原地修改挂单的价格与止损止盈。
func (c *BridgeClient) Modify(ticket int64, req OrderRequest) error {
	body := map[string]interface{}{
		"price": req.Price,
		"sl":    req.StopLoss,
		"tp":    req.TakeProfit,
	}
	return c.post(fmt.Sprintf("/api/orders/%d/modify", ticket), body, nil)
}

// Cancel 撤销挂单。
func (c *BridgeClient) Cancel(ticket int64) error {
	return c.post(fmt.Sprintf("/api/orders/%d/cancel", ticket), nil, nil)
}

func (c *BridgeClient) get(path string, out interface{}) error {
	if c == nil || c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		c.Limiter.Wait()
	}
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if c.APIKey != "" {
		req.Header.Set("X-Bridge-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *BridgeClient) post(path string, body, out interface{}) error {
	if c == nil || c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		c.Limiter.Wait()
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-Bridge-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// normalizeOrder 在边界处归一化订单类型，核心逻辑不再做字段分支。
func normalizeOrder(o bridgeOrder) OrderRecord {
	dir, kind := parseOrderType(o.Type)
	return OrderRecord{
		Ticket:     o.Ticket,
		Symbol:     o.Symbol,
		Direction:  dir,
		Kind:       kind,
		Volume:     o.Volume,
		Price:      o.Price,
		StopLoss:   o.StopLoss,
		TakeProfit: o.TakeProfit,
	}
}

func normalizePosition(p bridgePosition) PositionRecord {
	dir, _ := parseOrderType(p.Type)
	return PositionRecord{
		Ticket:     p.Ticket,
		Symbol:     p.Symbol,
		Direction:  dir,
		Volume:     p.Volume,
		OpenPrice:  p.OpenPrice,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
	}
}

func parseOrderType(t string) (Direction, OrderKind) {
	switch t {
	case "BUY_LIMIT":
		return DirectionLong, KindLimit
	case "SELL_LIMIT":
		return DirectionShort, KindLimit
	case "BUY":
		return DirectionLong, KindMarket
	case "SELL":
		return DirectionShort, KindMarket
	default:
		// stop/stop-limit orders are reported but never tracked
		return "", ""
	}
}

func denormalizeType(d Direction, k OrderKind) string {
	if k == KindMarket {
		if d == DirectionLong {
			return "BUY"
		}
		return "SELL"
	}
	if d == DirectionLong {
		return "BUY_LIMIT"
	}
	return "SELL_LIMIT"
}
