package dataset

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-toolkit/internal/types"
)

type fakeSource struct {
	calls int
	empty bool
	err   error
	// open overrides the generated opening prices when set.
	open float64
}

func (f *fakeSource) HistoricalCandles(ctx context.Context, symbol string, interval types.Interval, from, to time.Time) ([]types.Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return nil, nil
	}
	var out []types.Candle
	i := 0
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		open := 100 + float64(i%7)
		if f.open > 0 {
			open = f.open
		}
		closePx := open * (1 + 0.01*float64(i%3-1))
		out = append(out, types.Candle{Ts: d.Unix(), Open: open, High: open * 1.02, Low: open * 0.98, Close: closePx})
		i++
	}
	return out, nil
}

func testConfig(root string) Config {
	return Config{Lookback: 5, HistoryDays: 30, TrainMonths: 12, LabelThreshold: 5e-3, DataRoot: root}
}

var (
	start = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
)

func TestSplitsRollMonthly(t *testing.T) {
	ds, err := New(context.Background(), &fakeSource{}, testConfig(""), "TQQQ", start, end)
	require.NoError(t, err)
	assert.Equal(t, 14, ds.MonthCount())

	var names []string
	for s := range ds.Splits() {
		names = append(names, s.Name)

		require.NotZero(t, s.Train.Len())
		require.NotZero(t, s.Test.Len())
		// Test window is strictly later than the train window.
		assert.Less(t, s.Train.Dates[s.Train.Len()-1], s.Test.Dates[0])
		assert.Equal(t, s.Name, s.Test.Dates[0][:7])
		for _, row := range s.Train.Features {
			assert.Len(t, row, ds.FeatureSize())
		}
	}
	assert.Equal(t, []string{"2021-01", "2021-02"}, names)
}

func TestSplitsRestartable(t *testing.T) {
	ds, err := New(context.Background(), &fakeSource{}, testConfig(""), "TQQQ", start, end)
	require.NoError(t, err)

	collect := func() []Split {
		var out []Split
		for s := range ds.Splits() {
			out = append(out, s)
		}
		return out
	}
	first, second := collect(), collect()
	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, first[0].Fingerprint(), second[0].Fingerprint())
	assert.NotEqual(t, first[0].Fingerprint(), first[1].Fingerprint())
}

func TestSplitsEarlyBreak(t *testing.T) {
	ds, err := New(context.Background(), &fakeSource{}, testConfig(""), "TQQQ", start, end)
	require.NoError(t, err)

	n := 0
	for range ds.Splits() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestNoSplitsWhenRangeTooShort(t *testing.T) {
	ds, err := New(context.Background(), &fakeSource{}, testConfig(""), "TQQQ", start, start.AddDate(0, 6, 0))
	require.NoError(t, err)

	for range ds.Splits() {
		t.Fatal("expected no splits")
	}
}

func TestCandleCache(t *testing.T) {
	root := t.TempDir()
	src := &fakeSource{}

	a, err := New(context.Background(), src, testConfig(root), "TQQQ", start, end)
	require.NoError(t, err)
	_, err = os.Stat(cachePath(testConfig(root), "TQQQ", start, end))
	require.NoError(t, err)

	b, err := New(context.Background(), src, testConfig(root), "TQQQ", start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "second load reads the csv cache")
	assert.Equal(t, a.MonthCount(), b.MonthCount())
}

func TestCandleCacheKeyedBySourceAndHistory(t *testing.T) {
	root := t.TempDir()
	static := &fakeSource{}
	cfg := testConfig(root)
	cfg.Source = "STATIC"
	_, err := New(context.Background(), static, cfg, "TQQQ", start, end)
	require.NoError(t, err)

	live := &fakeSource{open: 500}
	cfg.Source = "LIVE"
	ds, err := New(context.Background(), live, cfg, "TQQQ", start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, live.calls, "a different source never reads another source's cache")
	assert.Equal(t, 500.0, ds.rows[0].Open)

	cfg.HistoryDays = 60
	_, err = New(context.Background(), live, cfg, "TQQQ", start, end)
	require.NoError(t, err)
	assert.Equal(t, 2, live.calls, "a longer warm-up window refetches")

	assert.NotEqual(t, cachePath(cfg, "TQQQ", start, end), cachePath(testConfig(root), "TQQQ", start, end))
}

func TestNoData(t *testing.T) {
	_, err := New(context.Background(), &fakeSource{empty: true}, testConfig(""), "NONE", start, end)
	assert.ErrorIs(t, err, ErrNoData)

	// Source has history but nothing inside the requested range.
	_, err = New(context.Background(), &fakeSource{}, testConfig(""), "TQQQ", end, end)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestSourceErrorPropagates(t *testing.T) {
	boom := errors.New("rate limited")
	_, err := New(context.Background(), &fakeSource{err: boom}, testConfig(""), "TQQQ", start, end)
	assert.ErrorIs(t, err, boom)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, types.Long, Label(0.01, 5e-3))
	assert.Equal(t, types.Short, Label(-0.01, 5e-3))
	assert.Equal(t, types.Flat, Label(5e-3, 5e-3))
	assert.Equal(t, types.Flat, Label(-5e-3, 5e-3))
	assert.Equal(t, types.Flat, Label(0, 5e-3))
}

func TestLiveFeaturesMatchSplitRows(t *testing.T) {
	src := &fakeSource{}
	cfg := testConfig("")
	ds, err := New(context.Background(), src, cfg, "TQQQ", start, end)
	require.NoError(t, err)

	var split Split
	for s := range ds.Splits() {
		split = s
		break
	}
	day := split.Test.Dates[0]

	candles, err := src.HistoricalCandles(context.Background(), "TQQQ", types.IntervalDay, start.AddDate(0, 0, -cfg.HistoryDays), end)
	require.NoError(t, err)
	var history []types.Candle
	var open float64
	for _, c := range candles {
		d := c.Time().Format(time.DateOnly)
		if d < day {
			history = append(history, c)
		}
		if d == day {
			open = c.Open
		}
	}

	row, err := Features(history, cfg.Lookback, open)
	require.NoError(t, err)
	assert.Equal(t, split.Test.Features[0], row)
	assert.Len(t, row, ds.FeatureSize())

	_, err = Features(history[:cfg.Lookback], cfg.Lookback, open)
	assert.ErrorIs(t, err, ErrNoData)
}
