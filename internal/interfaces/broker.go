package interfaces

import (
	"context"
	"time"

	"trading-toolkit/internal/types"
)

type Broker interface {
	Account(ctx context.Context) (types.Account, error)
	HistoricalCandles(ctx context.Context, symbol string, interval types.Interval, from, to time.Time) ([]types.Candle, error)
	PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error)
}

// CandleSource is the read-only slice of Broker used by dataset loading.
type CandleSource interface {
	HistoricalCandles(ctx context.Context, symbol string, interval types.Interval, from, to time.Time) ([]types.Candle, error)
}
