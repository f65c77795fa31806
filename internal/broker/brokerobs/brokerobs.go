package brokerobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"trading-toolkit/internal/interfaces"
	"trading-toolkit/internal/logger"
	"trading-toolkit/internal/trace"
	"trading-toolkit/internal/types"
)

// observableBroker wraps a Broker with logging and tracing
type observableBroker struct {
	broker interfaces.Broker
}

var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{broker: broker}
}

func (ob *observableBroker) Account(ctx context.Context) (types.Account, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Account")
	defer span.End()

	acct, err := ob.broker.Account(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch account", err)
		return types.Account{}, err
	}

	logger.Info(ctx, "Account refreshed", "equity", acct.Equity.String(), "cash", acct.Cash.String())
	return acct, nil
}

func (ob *observableBroker) HistoricalCandles(ctx context.Context, symbol string, interval types.Interval, from, to time.Time) ([]types.Candle, error) {
	ctx, span := trace.StartSpan(ctx, "broker.HistoricalCandles",
		attribute.String("symbol", symbol),
		attribute.String("interval", string(interval)),
	)
	defer span.End()

	logger.Debug(ctx, "Fetching historical candles",
		"symbol", symbol,
		"interval", string(interval),
		"from", from.Format(time.DateOnly),
		"to", to.Format(time.DateOnly),
	)

	candles, err := ob.broker.HistoricalCandles(ctx, symbol, interval, from, to)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch candles", err, "symbol", symbol)
		return nil, err
	}

	logger.Debug(ctx, "Candles fetched successfully", "symbol", symbol, "count", len(candles))
	return candles, nil
}

func (ob *observableBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceOrder",
		attribute.String("symbol", req.Symbol),
		attribute.String("side", req.Side),
	)
	defer span.End()

	logger.Info(ctx, "Placing order",
		"symbol", req.Symbol,
		"side", req.Side,
		"qty", req.Qty,
		"tag", req.Tag,
	)

	resp, err := ob.broker.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to place order", err,
			"symbol", req.Symbol,
			"side", req.Side,
			"qty", req.Qty,
		)
		return types.OrderResp{}, err
	}

	logger.Info(ctx, "Order placed successfully",
		"symbol", req.Symbol,
		"order_id", resp.OrderID,
		"status", resp.Status,
	)
	return resp, nil
}
