// Package processor defines the per-run strategy units the trading
// orchestrator builds from factories.
package processor

import (
	"context"
	"time"

	"trading-toolkit/internal/types"
)

// LookbackWindow is the history range processors may read for a run.
type LookbackWindow struct {
	Start time.Time
	End   time.Time
}

func NewLookbackWindow(now time.Time, days int) LookbackWindow {
	return LookbackWindow{Start: now.AddDate(0, 0, -days), End: now}
}

type Params struct {
	Window     LookbackWindow
	DataSource string
}

// MarketState is what a processor sees for one symbol on one cycle.
// Candles are oldest first; Interday holds completed daily bars only.
type MarketState struct {
	Symbol   string
	Time     time.Time
	Price    float64
	Interday []types.Candle
	Intraday []types.Candle
}

type Processor interface {
	// Universe lists the symbols the processor wants to see at t.
	Universe(t time.Time) []string
	OnCycle(ctx context.Context, state MarketState) ([]types.Action, error)
}

type Factory interface {
	Name() string
	Create(ctx context.Context, p Params) (Processor, error)
}
