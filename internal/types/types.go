package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

// Time returns the candle timestamp in UTC.
func (c Candle) Time() time.Time { return time.Unix(c.Ts, 0).UTC() }

type Interval string

const (
	IntervalDay     Interval = "day"
	IntervalFiveMin Interval = "5minute"
)

// Account is a point-in-time snapshot of the brokerage account.
type Account struct {
	Equity decimal.Decimal `json:"equity"`
	Cash   decimal.Decimal `json:"cash"`
}

type ActionType string

const (
	BuyToOpen   ActionType = "BUY_TO_OPEN"
	SellToOpen  ActionType = "SELL_TO_OPEN"
	BuyToClose  ActionType = "BUY_TO_CLOSE"
	SellToClose ActionType = "SELL_TO_CLOSE"
)

// Action is a processor's trading decision for one symbol.
type Action struct {
	Symbol  string     `json:"symbol"`
	Type    ActionType `json:"type"`
	Percent float64    `json:"percent"`
	Price   float64    `json:"price"`
}

type OrderReq struct {
	Symbol, Side string
	Qty          int
	Tag          string
}

type OrderResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Signal labels used by the predictor.
const (
	Short = -1
	Flat  = 0
	Long  = 1
)
