package processor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-toolkit/internal/artifact"
	"trading-toolkit/internal/model"
	"trading-toolkit/internal/types"
)

var cycle = time.Date(2021, 3, 15, 9, 30, 0, 0, time.UTC)

func TestLookbackWindow(t *testing.T) {
	w := NewLookbackWindow(cycle, 30)
	assert.Equal(t, time.Date(2021, 2, 13, 9, 30, 0, 0, time.UTC), w.Start)
	assert.Equal(t, cycle, w.End)
}

func TestNoop(t *testing.T) {
	p, err := NoopFactory{}.Create(context.Background(), Params{Window: NewLookbackWindow(cycle, 30), DataSource: "STATIC"})
	require.NoError(t, err)
	assert.Len(t, p.Universe(cycle), 5)

	tests := []struct {
		name string
		at   time.Time
		want []types.Action
	}{
		{"open", cycle, []types.Action{{Symbol: "MSFT", Type: types.BuyToOpen, Percent: 0.5, Price: 200}}},
		{"midday", cycle.Add(2*time.Hour + 30*time.Minute), []types.Action{{Symbol: "MSFT", Type: types.SellToClose, Percent: 1, Price: 200}}},
		{"other", cycle.Add(time.Hour), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.OnCycle(context.Background(), MarketState{Symbol: "MSFT", Time: tt.at, Price: 200})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fixedScorer struct{ scores []float64 }

func (f *fixedScorer) Raw(rows [][]float64) ([]float64, error) {
	s := f.scores[0]
	if len(f.scores) > 1 {
		f.scores = f.scores[1:]
	}
	return []float64{s}, nil
}

func history(n int) []types.Candle {
	out := make([]types.Candle, n)
	for i := range out {
		out[i] = types.Candle{Ts: cycle.AddDate(0, 0, i-n).Unix(), Open: 100, Close: 101}
	}
	return out
}

func newTestSignal(t *testing.T, scores ...float64) (*Signal, *int) {
	t.Helper()
	cfg := DefaultSignalConfig()
	cfg.Symbols = []string{"TSLA"}
	cfg.Lookback = 3
	f := NewSignalFactory(artifact.NewStore(t.TempDir()), cfg)
	loads := 0
	scorer := &fixedScorer{scores: scores}
	f.load = func(string) (Scorer, error) {
		loads++
		return scorer, nil
	}
	p, err := f.Create(context.Background(), Params{Window: NewLookbackWindow(cycle, 30)})
	require.NoError(t, err)
	return p.(*Signal), &loads
}

func TestSignalOpensAndCloses(t *testing.T) {
	s, loads := newTestSignal(t, 0.6, 0.3, 0.1, 0.9)
	st := MarketState{Symbol: "TSLA", Time: cycle, Price: 250, Interday: history(10)}
	ctx := context.Background()

	got, err := s.OnCycle(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, []types.Action{{Symbol: "TSLA", Type: types.BuyToOpen, Percent: 1, Price: 250}}, got)

	// holding, 0.3 is above exit
	got, err = s.OnCycle(ctx, st)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.OnCycle(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, types.SellToClose, got[0].Type)

	got, err = s.OnCycle(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, types.BuyToOpen, got[0].Type)

	assert.Equal(t, 1, *loads)
	assert.Equal(t, []string{"TSLA"}, s.Universe(cycle))
}

func TestSignalThresholdsAreStrict(t *testing.T) {
	s, _ := newTestSignal(t, 0.5)
	got, err := s.OnCycle(context.Background(), MarketState{Symbol: "TSLA", Time: cycle, Price: 1, Interday: history(10)})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSignalSkipsShortHistory(t *testing.T) {
	s, _ := newTestSignal(t, 0.9)
	got, err := s.OnCycle(context.Background(), MarketState{Symbol: "TSLA", Time: cycle, Price: 1, Interday: history(2)})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSignalMissingModel(t *testing.T) {
	cfg := DefaultSignalConfig()
	cfg.Lookback = 3
	p, err := NewSignalFactory(artifact.NewStore(t.TempDir()), cfg).Create(context.Background(), Params{})
	require.NoError(t, err)
	_, err = p.OnCycle(context.Background(), MarketState{Symbol: "TSLA", Time: cycle, Interday: history(10)})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSignalLoadsStoredModel(t *testing.T) {
	store := artifact.NewStore(t.TempDir())
	cfg := DefaultSignalConfig()
	cfg.Lookback = 3
	cfg.Model = model.Config{Hidden: 2, MaxEpochs: 5, Seed: 1}

	m := model.New(cfg.Model)
	features := [][]float64{make([]float64, 10), make([]float64, 10)}
	features[1][0] = 1
	require.NoError(t, m.Train(context.Background(), features, []int{types.Flat, types.Long}))
	require.NoError(t, m.Save(store.ModelPath("TSLA", "2021-03")))

	p, err := NewSignalFactory(store, cfg).Create(context.Background(), Params{})
	require.NoError(t, err)
	_, err = p.OnCycle(context.Background(), MarketState{Symbol: "TSLA", Time: cycle, Price: 100, Interday: history(10)})
	require.NoError(t, err)
}

func TestSignalRejectsInvertedThresholds(t *testing.T) {
	cfg := DefaultSignalConfig()
	cfg.Enter, cfg.Exit = 0.2, 0.4
	_, err := NewSignalFactory(artifact.NewStore(t.TempDir()), cfg).Create(context.Background(), Params{})
	assert.Error(t, err)
}

func TestSignalCreateFailsOnUnreadableModelDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "TSLA"), []byte("not a dir"), 0o644))
	cfg := DefaultSignalConfig()
	cfg.Symbols = []string{"TSLA"}

	_, err := NewSignalFactory(artifact.NewStore(root), cfg).Create(context.Background(), Params{})
	assert.ErrorContains(t, err, "list models for TSLA")
}
