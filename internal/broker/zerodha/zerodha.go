package zerodha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"trading-toolkit/internal/interfaces"
	"trading-toolkit/internal/logger"
	"trading-toolkit/internal/types"
)

var ErrMissingCredentials = errors.New("missing API key/access token")

type Params struct {
	Mode         string
	APIKey       string
	AccessToken  string
	Exchange     string
	CandleSource string
	// PaperCash seeds the simulated account when no live session is configured.
	PaperCash float64
}

// kiteAPI is the subset of the Kite Connect client the broker calls.
type kiteAPI interface {
	GetUserMargins() (kiteconnect.AllMargins, error)
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error)
	PlaceOrder(variety string, orderParams kiteconnect.OrderParams) (kiteconnect.OrderResponse, error)
}

var _ kiteAPI = (*kiteconnect.Client)(nil)

type Zerodha struct {
	p       Params
	kc      kiteAPI
	mapper  *instrumentMapper
	retries uint64
	backoff func() backoff.BackOff
	limiter *rateLimiter
}

var _ interfaces.Broker = (*Zerodha)(nil)

func NewZerodha(p Params) *Zerodha {
	if p.PaperCash <= 0 {
		p.PaperCash = 100000
	}
	z := &Zerodha{
		p:       p,
		mapper:  newInstrumentMapper(),
		retries: 3,
		backoff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		limiter: newRateLimiter(3, time.Second/3),
	}
	if p.APIKey != "" && p.AccessToken != "" {
		kc := kiteconnect.New(p.APIKey)
		kc.SetAccessToken(p.AccessToken)
		z.kc = kc
	}
	return z
}

func newWithClient(p Params, kc kiteAPI) *Zerodha {
	z := NewZerodha(p)
	z.kc = kc
	return z
}

func (z *Zerodha) Account(ctx context.Context) (types.Account, error) {
	if z.kc == nil {
		if z.p.Mode == "LIVE" {
			return types.Account{}, ErrMissingCredentials
		}
		cash := decimal.NewFromFloat(z.p.PaperCash)
		return types.Account{Equity: cash, Cash: cash}, nil
	}

	var margins kiteconnect.AllMargins
	op := func() error {
		m, err := z.kc.GetUserMargins()
		if err != nil {
			logger.Warn(ctx, "Margins request failed", "error", err)
			return err
		}
		margins = m
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(z.backoff(), z.retries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return types.Account{}, fmt.Errorf("fetch account margins: %w", err)
	}

	return types.Account{
		Equity: decimal.NewFromFloat(margins.Equity.Net),
		Cash:   decimal.NewFromFloat(margins.Equity.Available.Cash),
	}, nil
}

func (z *Zerodha) HistoricalCandles(ctx context.Context, symbol string, interval types.Interval, from, to time.Time) ([]types.Candle, error) {
	if z.p.CandleSource != "LIVE" {
		return staticCandles(symbol, interval, from, to), nil
	}
	if z.kc == nil {
		return nil, fmt.Errorf("live candles for %s: %w", symbol, ErrMissingCredentials)
	}

	token, err := z.instrumentToken(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if err := z.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	rows, err := z.kc.GetHistoricalData(token, string(interval), from, to, false, false)
	if err != nil {
		return nil, fmt.Errorf("historical data for %s: %w", symbol, err)
	}

	cs := make([]types.Candle, 0, len(rows))
	for _, r := range rows {
		cs = append(cs, types.Candle{
			Ts:    r.Date.Time.Unix(),
			Open:  r.Open,
			High:  r.High,
			Low:   r.Low,
			Close: r.Close,
			Vol:   float64(r.Volume),
		})
	}
	return cs, nil
}

func (z *Zerodha) instrumentToken(ctx context.Context, symbol string) (int, error) {
	if token, ok := z.mapper.getToken(symbol); ok {
		return int(token), nil
	}

	instruments, err := z.kc.GetInstrumentsByExchange(z.p.Exchange)
	if err != nil {
		return 0, fmt.Errorf("load %s instruments: %w", z.p.Exchange, err)
	}
	for _, in := range instruments {
		z.mapper.addMapping(strings.ToUpper(in.Tradingsymbol), uint32(in.InstrumentToken))
	}
	logger.Debug(ctx, "Instrument map loaded", "exchange", z.p.Exchange, "count", len(instruments))

	token, ok := z.mapper.getToken(symbol)
	if !ok {
		return 0, fmt.Errorf("unknown symbol %s on %s", symbol, z.p.Exchange)
	}
	return int(token), nil
}

func (z *Zerodha) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if z.p.Mode == "DRY_RUN" {
		return types.OrderResp{
			OrderID: fmt.Sprintf("SIM-%d", time.Now().UnixNano()),
			Status:  "SIMULATED",
			Message: "dry-run",
		}, nil
	}

	if z.kc == nil {
		return types.OrderResp{}, ErrMissingCredentials
	}

	resp, err := z.kc.PlaceOrder(kiteconnect.VarietyRegular, kiteconnect.OrderParams{
		Exchange:        z.p.Exchange,
		Tradingsymbol:   req.Symbol,
		Validity:        kiteconnect.ValidityDay,
		Product:         kiteconnect.ProductCNC,
		OrderType:       kiteconnect.OrderTypeMarket,
		TransactionType: req.Side,
		Quantity:        req.Qty,
		Tag:             req.Tag,
	})
	if err != nil {
		return types.OrderResp{}, fmt.Errorf("place %s order for %s: %w", req.Side, req.Symbol, err)
	}

	return types.OrderResp{OrderID: resp.OrderID, Status: "PLACED", Message: "ok"}, nil
}
