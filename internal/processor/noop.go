package processor

import (
	"context"
	"time"

	"trading-toolkit/internal/types"
)

var noopUniverse = []string{"AAPL", "AMZN", "GOOG", "META", "MSFT"}

// Noop opens half a position at the 09:30 bar and closes it at noon.
type Noop struct{}

func (n *Noop) Universe(time.Time) []string {
	return append([]string(nil), noopUniverse...)
}

func (n *Noop) OnCycle(_ context.Context, st MarketState) ([]types.Action, error) {
	h, m, _ := st.Time.Clock()
	switch {
	case h == 9 && m == 30:
		return []types.Action{{Symbol: st.Symbol, Type: types.BuyToOpen, Percent: 0.5, Price: st.Price}}, nil
	case h == 12 && m == 0:
		return []types.Action{{Symbol: st.Symbol, Type: types.SellToClose, Percent: 1, Price: st.Price}}, nil
	}
	return nil, nil
}

type NoopFactory struct{}

func (NoopFactory) Name() string { return "noop" }

func (NoopFactory) Create(context.Context, Params) (Processor, error) {
	return &Noop{}, nil
}
