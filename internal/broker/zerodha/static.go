package zerodha

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"trading-toolkit/internal/types"
)

var nyse = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// staticCandles produces a deterministic random walk per symbol so offline
// runs and tests see the same history on every call.
func staticCandles(symbol string, interval types.Interval, from, to time.Time) []types.Candle {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	seed := int64(h.Sum64())
	rng := rand.New(rand.NewSource(seed))

	// Walk from a fixed epoch so overlapping ranges agree on prices.
	epoch := time.Date(2000, 1, 3, 0, 0, 0, 0, time.UTC)
	price := 100.0
	var out []types.Candle
	for day := epoch; day.Before(to); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		open := price * (1 + rng.NormFloat64()*0.004)
		closePx := open * (1 + rng.NormFloat64()*0.012)
		price = closePx
		if day.Before(from.Truncate(24 * time.Hour)) {
			continue
		}
		noise := rand.New(rand.NewSource(seed ^ day.Unix()))

		if interval == types.IntervalDay {
			out = append(out, bar(day.Unix(), open, closePx, noise))
			continue
		}
		// 78 five-minute bars between 09:30 and 16:00 exchange time.
		session := time.Date(day.Year(), day.Month(), day.Day(), 9, 30, 0, 0, nyse)
		px := open
		for i := 0; i < 78; i++ {
			next := px + (closePx-px)/float64(78-i) + noise.NormFloat64()*0.0008*px
			if i == 77 {
				next = closePx
			}
			out = append(out, bar(session.Add(time.Duration(i)*5*time.Minute).Unix(), px, next, noise))
			px = next
		}
	}
	return out
}

func bar(ts int64, open, closePx float64, rng *rand.Rand) types.Candle {
	hi := math.Max(open, closePx) * (1 + rng.Float64()*0.003)
	lo := math.Min(open, closePx) * (1 - rng.Float64()*0.003)
	return types.Candle{Ts: ts, Open: open, High: hi, Low: lo, Close: closePx, Vol: 1e5 + rng.Float64()*1e5}
}
