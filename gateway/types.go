package gateway

import "time"

// Direction is the side of a trade.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// OrderKind distinguishes resting limit orders from immediate market orders.
type OrderKind string

const (
	KindLimit  OrderKind = "LIMIT"
	KindMarket OrderKind = "MARKET"
)

// OrderRecord is the normalized view of a pending order as reported by the
// terminal bridge. Normalization happens once at the boundary; callers never
// branch on optional fields.
type OrderRecord struct {
	Ticket     int64
	Symbol     string
	Direction  Direction
	Kind       OrderKind
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
}

// PositionRecord is the normalized view of an open position.
type PositionRecord struct {
	Ticket     int64
	Symbol     string
	Direction  Direction
	Volume     float64
	OpenPrice  float64
	StopLoss   float64
	TakeProfit float64
}

// Tick is a single quote snapshot for a symbol.
type Tick struct {
	Symbol string
	Bid    float64
	Ask    float64
	Last   float64
	Time   time.Time
}

// SymbolInfo carries per-symbol contract metadata.
type SymbolInfo struct {
	Symbol string
	Point  float64 // minimal price increment
	Digits int
}

// OrderRequest is a submission spec. Price is ignored for market orders;
// the terminal fills at current bid/ask within Deviation points.
type OrderRequest struct {
	Symbol     string
	Volume     float64
	Direction  Direction
	Kind       OrderKind
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Deviation  int
	Magic      int64
	Comment    string
}
