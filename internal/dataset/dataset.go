// Package dataset turns daily candles into rolling monthly train/test splits.
package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"trading-toolkit/internal/interfaces"
	"trading-toolkit/internal/logger"
	"trading-toolkit/internal/types"
)

var ErrNoData = errors.New("no data available")

// featuresPerDay is the number of return features derived from each lookback day.
const featuresPerDay = 3

type Config struct {
	Lookback       int
	HistoryDays    int
	TrainMonths    int
	LabelThreshold float64
	// DataRoot holds the raw candle CSV cache; empty disables caching.
	DataRoot string
	// Source names the candle source in cache file names so data from
	// different sources never mixes.
	Source string
}

func DefaultConfig() Config {
	return Config{Lookback: 20, HistoryDays: 365, TrainMonths: 12, LabelThreshold: 5e-3}
}

// Samples is a feature matrix with one label per row.
type Samples struct {
	Dates    []string
	Features [][]float64
	Labels   []int
}

func (s Samples) Len() int { return len(s.Labels) }

// Split is one train/test partition; Test always starts after Train ends.
type Split struct {
	Name  string
	Train Samples
	Test  Samples
}

// Fingerprint identifies the training data so stale model artifacts can be detected.
func (s Split) Fingerprint() string {
	h := sha256.New()
	buf := make([]byte, 8)
	for i, row := range s.Train.Features {
		h.Write([]byte(s.Train.Dates[i]))
		for _, v := range row {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
			h.Write(buf)
		}
		binary.LittleEndian.PutUint64(buf, uint64(int64(s.Train.Labels[i])))
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}

type candleRow struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume float64 `csv:"volume"`
}

type month struct {
	name  string
	start int
}

type Dataset struct {
	cfg    Config
	symbol string
	rows   []candleRow
	// first is the index in rows of the first sample day.
	first  int
	months []month
}

// New loads daily candles for [start, end) plus cfg.HistoryDays of warm-up history.
func New(ctx context.Context, src interfaces.CandleSource, cfg Config, symbol string, start, end time.Time) (*Dataset, error) {
	if cfg.Lookback <= 0 || cfg.TrainMonths <= 0 {
		return nil, fmt.Errorf("dataset: lookback and train months must be positive")
	}

	rows, err := loadRows(ctx, src, cfg, symbol, start, end)
	if err != nil {
		return nil, err
	}

	d := &Dataset{cfg: cfg, symbol: symbol, rows: rows, first: -1}
	startDay := start.Format(time.DateOnly)
	endDay := end.Format(time.DateOnly)
	for i, r := range rows {
		if r.Date >= startDay && i > cfg.Lookback {
			d.first = i
			break
		}
	}
	if d.first < 0 {
		return nil, fmt.Errorf("%w: %s has no samples in %s..%s", ErrNoData, symbol, startDay, endDay)
	}

	last := len(rows)
	for last > d.first && rows[last-1].Date >= endDay {
		last--
	}
	d.rows = rows[:last]
	if last == d.first {
		return nil, fmt.Errorf("%w: %s has no samples in %s..%s", ErrNoData, symbol, startDay, endDay)
	}

	cur := ""
	for i := d.first; i < len(d.rows); i++ {
		if m := d.rows[i].Date[:7]; m != cur {
			cur = m
			d.months = append(d.months, month{name: m, start: i})
		}
	}
	d.months = append(d.months, month{start: len(d.rows)})

	logger.Info(ctx, "Dataset loaded",
		"symbol", symbol,
		"samples", len(d.rows)-d.first,
		"months", d.MonthCount(),
	)
	return d, nil
}

func (d *Dataset) Symbol() string { return d.symbol }

// MonthCount is the number of calendar months with at least one sample.
func (d *Dataset) MonthCount() int { return len(d.months) - 1 }

// FeatureSize is the width of every feature row.
func (d *Dataset) FeatureSize() int { return d.cfg.Lookback*featuresPerDay + 1 }

// Splits yields one split per test month after the first TrainMonths months.
// Features are built on demand and the sequence can be ranged over repeatedly.
func (d *Dataset) Splits() iter.Seq[Split] {
	return func(yield func(Split) bool) {
		tm := d.cfg.TrainMonths
		for i := 0; i+tm < d.MonthCount(); i++ {
			s := Split{
				Name:  d.months[i+tm].name,
				Train: d.samples(d.months[i].start, d.months[i+tm].start),
				Test:  d.samples(d.months[i+tm].start, d.months[i+tm+1].start),
			}
			if !yield(s) {
				return
			}
		}
	}
}

func (d *Dataset) samples(lo, hi int) Samples {
	s := Samples{
		Dates:    make([]string, 0, hi-lo),
		Features: make([][]float64, 0, hi-lo),
		Labels:   make([]int, 0, hi-lo),
	}
	for i := lo; i < hi; i++ {
		s.Dates = append(s.Dates, d.rows[i].Date)
		s.Features = append(s.Features, d.features(i))
		s.Labels = append(s.Labels, Label(d.rows[i].Close/d.rows[i].Open-1, d.cfg.LabelThreshold))
	}
	return s
}

type bar struct{ open, close float64 }

// buildFeatures expects lookback+1 bars, oldest first. The first bar only
// supplies the previous close.
func buildFeatures(bars []bar, open float64) []float64 {
	out := make([]float64, 0, (len(bars)-1)*featuresPerDay+1)
	for j := 1; j < len(bars); j++ {
		cur, prev := bars[j], bars[j-1]
		out = append(out,
			(cur.close/cur.open-1)*100,
			(cur.close/prev.close-1)*100,
			(cur.open/prev.close-1)*100,
		)
	}
	return append(out, (open/bars[len(bars)-1].close-1)*100)
}

// features for day i only look at days before i plus day i's opening gap.
func (d *Dataset) features(i int) []float64 {
	bars := make([]bar, 0, d.cfg.Lookback+1)
	for j := i - d.cfg.Lookback - 1; j < i; j++ {
		bars = append(bars, bar{open: d.rows[j].Open, close: d.rows[j].Close})
	}
	return buildFeatures(bars, d.rows[i].Open)
}

// Features builds the row for a day opening at open from the daily candles
// before it, using the most recent lookback+1 of them.
func Features(history []types.Candle, lookback int, open float64) ([]float64, error) {
	if len(history) < lookback+1 {
		return nil, fmt.Errorf("%w: need %d daily bars, have %d", ErrNoData, lookback+1, len(history))
	}
	bars := make([]bar, 0, lookback+1)
	for _, c := range history[len(history)-lookback-1:] {
		bars = append(bars, bar{open: c.Open, close: c.Close})
	}
	return buildFeatures(bars, open), nil
}

// Label discretizes a return into Long, Short or Flat.
func Label(ret, threshold float64) int {
	switch {
	case ret > threshold:
		return types.Long
	case ret < -threshold:
		return types.Short
	default:
		return types.Flat
	}
}

// cachePath is keyed by everything that changes the fetched rows: symbol,
// source and the full [from, end) window including warm-up history.
func cachePath(cfg Config, symbol string, start, end time.Time) string {
	source := strings.ToLower(cfg.Source)
	if source == "" {
		source = "default"
	}
	from := start.AddDate(0, 0, -cfg.HistoryDays)
	name := fmt.Sprintf("%s_%s_%s_%s.csv", symbol, source, from.Format(time.DateOnly), end.Format(time.DateOnly))
	return filepath.Join(cfg.DataRoot, name)
}

func loadRows(ctx context.Context, src interfaces.CandleSource, cfg Config, symbol string, start, end time.Time) ([]candleRow, error) {
	path := ""
	if cfg.DataRoot != "" {
		path = cachePath(cfg, symbol, start, end)
		if rows, err := readCache(path); err == nil {
			logger.Debug(ctx, "Using cached candles", "path", path, "rows", len(rows))
			return rows, nil
		}
	}

	from := start.AddDate(0, 0, -cfg.HistoryDays)
	candles, err := src.HistoricalCandles(ctx, symbol, types.IntervalDay, from, end)
	if err != nil {
		return nil, fmt.Errorf("load %s candles: %w", symbol, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no candles for %s", ErrNoData, symbol)
	}

	rows := make([]candleRow, 0, len(candles))
	for _, c := range candles {
		if c.Open <= 0 || c.Close <= 0 {
			continue
		}
		rows = append(rows, candleRow{
			Date:   c.Time().Format(time.DateOnly),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Vol,
		})
	}

	if path != "" {
		if err := writeCache(path, rows); err != nil {
			logger.Warn(ctx, "Failed to write candle cache", "path", path, "error", err)
		}
	}
	return rows, nil
}

func readCache(path string) ([]candleRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []candleRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	return rows, nil
}

func writeCache(path string, rows []candleRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.MarshalFile(&rows, f)
}
