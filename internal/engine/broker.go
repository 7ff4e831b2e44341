package engine

import "reentry-engine-go/gateway"

// Broker 引擎依赖的经纪商网关最小契约，由 gateway.BridgeClient 实现。
// 查询返回 (nil, nil) 与空列表等价，都表示"没有找到"。
type Broker interface {
	Connect() error
	Close() error

	PendingOrders() ([]gateway.OrderRecord, error)
	PendingOrder(ticket int64) (*gateway.OrderRecord, error)
	Positions() ([]gateway.PositionRecord, error)
	Position(ticket int64) (*gateway.PositionRecord, error)

	Tick(symbol string) (gateway.Tick, error)
	SymbolInfo(symbol string) (gateway.SymbolInfo, error)

	Submit(req gateway.OrderRequest) (int64, error)
	Cancel(ticket int64) error
}
