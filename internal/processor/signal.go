package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-toolkit/internal/artifact"
	"trading-toolkit/internal/dataset"
	"trading-toolkit/internal/logger"
	"trading-toolkit/internal/model"
	"trading-toolkit/internal/types"
)

// Scorer produces raw model scores in [-1, 1].
type Scorer interface {
	Raw(features [][]float64) ([]float64, error)
}

type SignalConfig struct {
	Symbols  []string
	Lookback int
	// Enter opens a long when the score is above it; Exit closes an open
	// long when the score drops below it.
	Enter float64
	Exit  float64
	Model model.Config
}

func DefaultSignalConfig() SignalConfig {
	return SignalConfig{Lookback: 20, Enter: 0.5, Exit: 0.25, Model: model.DefaultConfig()}
}

// SignalFactory builds Signal processors backed by the artifact store.
type SignalFactory struct {
	store *artifact.Store
	cfg   SignalConfig
	load  func(path string) (Scorer, error)
}

func NewSignalFactory(store *artifact.Store, cfg SignalConfig) *SignalFactory {
	f := &SignalFactory{store: store, cfg: cfg}
	f.load = func(path string) (Scorer, error) {
		m := model.New(cfg.Model)
		if err := m.Load(path); err != nil {
			return nil, err
		}
		return m, nil
	}
	return f
}

func (f *SignalFactory) Name() string { return "signal" }

func (f *SignalFactory) Create(ctx context.Context, _ Params) (Processor, error) {
	if f.cfg.Enter <= f.cfg.Exit {
		return nil, fmt.Errorf("signal: enter %.2f must be above exit %.2f", f.cfg.Enter, f.cfg.Exit)
	}
	for _, sym := range f.cfg.Symbols {
		splits, err := f.store.Splits(sym)
		if err != nil {
			return nil, fmt.Errorf("signal: list models for %s: %w", sym, err)
		}
		if len(splits) == 0 {
			logger.Warn(ctx, "No trained models for symbol", "symbol", sym)
			continue
		}
		logger.Debug(ctx, "Signal models available", "symbol", sym, "latest", splits[len(splits)-1], "count", len(splits))
	}
	return &Signal{
		factory: f,
		models:  make(map[string]Scorer),
		open:    make(map[string]bool),
	}, nil
}

// Signal trades on the model trained for the current month. It holds at
// most one long per symbol.
type Signal struct {
	factory *SignalFactory
	models  map[string]Scorer
	open    map[string]bool
}

func (s *Signal) Universe(time.Time) []string {
	return append([]string(nil), s.factory.cfg.Symbols...)
}

func (s *Signal) OnCycle(ctx context.Context, st MarketState) ([]types.Action, error) {
	score, err := s.score(ctx, st)
	if errors.Is(err, dataset.ErrNoData) {
		logger.Debug(ctx, "Skipping cycle with short history", "symbol", st.Symbol, "bars", len(st.Interday))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cfg := s.factory.cfg
	if s.open[st.Symbol] {
		if score < cfg.Exit {
			delete(s.open, st.Symbol)
			return []types.Action{{Symbol: st.Symbol, Type: types.SellToClose, Percent: 1, Price: st.Price}}, nil
		}
		return nil, nil
	}
	if score > cfg.Enter {
		s.open[st.Symbol] = true
		return []types.Action{{Symbol: st.Symbol, Type: types.BuyToOpen, Percent: 1, Price: st.Price}}, nil
	}
	return nil, nil
}

func (s *Signal) score(ctx context.Context, st MarketState) (float64, error) {
	m, err := s.model(ctx, st.Symbol, st.Time.Format("2006-01"))
	if err != nil {
		return 0, err
	}
	open := st.Price
	if len(st.Intraday) > 0 {
		open = st.Intraday[0].Open
	}
	row, err := dataset.Features(st.Interday, s.factory.cfg.Lookback, open)
	if err != nil {
		return 0, err
	}
	raw, err := m.Raw([][]float64{row})
	if err != nil {
		return 0, err
	}
	return raw[0], nil
}

func (s *Signal) model(ctx context.Context, symbol, split string) (Scorer, error) {
	key := symbol + "/" + split
	if m, ok := s.models[key]; ok {
		return m, nil
	}
	m, err := s.factory.load(s.factory.store.ModelPath(symbol, split))
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", key, err)
	}
	logger.Info(ctx, "Signal model loaded", "symbol", symbol, "split", split)
	s.models[key] = m
	return m, nil
}
