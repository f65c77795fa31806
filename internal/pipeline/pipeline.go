// Package pipeline walks the monthly splits of a dataset, trains or loads
// one model per split and scores its long calls on the test month.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"trading-toolkit/internal/artifact"
	"trading-toolkit/internal/dataset"
	"trading-toolkit/internal/logger"
	"trading-toolkit/internal/metrics"
	"trading-toolkit/internal/model"
	"trading-toolkit/internal/runlog"
	"trading-toolkit/internal/trace"
)

// Epsilon keeps SuccessRate finite when nothing was predicted long.
const Epsilon = 1e-7

type State string

const (
	StateTrained   State = "trained"
	StateLoaded    State = "loaded"
	StateEvaluated State = "evaluated"
)

// Model is the part of model.Model the pipeline drives.
type Model interface {
	Train(ctx context.Context, features [][]float64, labels []int) error
	Save(path string) error
	Load(path string) error
	Evaluate(features [][]float64, labels []int, long, short float64) (model.Evaluation, error)
}

type SplitSource interface {
	Symbol() string
	Splits() iter.Seq[dataset.Split]
}

type Config struct {
	LongThreshold  float64
	ShortThreshold float64
	// InvalidateStale retrains splits whose manifest fingerprint no longer
	// matches the training data.
	InvalidateStale bool
	// TrainOnly makes sure every split has a model and skips evaluation.
	TrainOnly bool
	Model     model.Config
}

func DefaultConfig() Config {
	return Config{LongThreshold: 0.5, ShortThreshold: -0.5, Model: model.DefaultConfig()}
}

type SplitResult struct {
	Name string
	// Source is StateTrained or StateLoaded.
	Source     State
	State      State
	Evaluation model.Evaluation
	TP, FP     int
}

type Report struct {
	Symbol      string
	RunID       string
	Splits      []SplitResult
	TP, FP      int
	SuccessRate float64
}

// SuccessRate is tp / (tp + fp + Epsilon).
func SuccessRate(tp, fp int) float64 {
	return float64(tp) / (float64(tp+fp) + Epsilon)
}

type Option func(*Pipeline)

func WithModelFactory(f func() Model) Option {
	return func(p *Pipeline) { p.newModel = f }
}

// WithRunLog appends per-split evaluations and the final summary to run.
func WithRunLog(run *runlog.Run) Option {
	return func(p *Pipeline) { p.run = run }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(p *Pipeline) { p.metrics = m }
}

type Pipeline struct {
	cfg      Config
	ds       SplitSource
	store    *artifact.Store
	newModel func() Model
	run      *runlog.Run
	metrics  *metrics.Recorder
}

func New(cfg Config, ds SplitSource, store *artifact.Store, opts ...Option) (*Pipeline, error) {
	if cfg.LongThreshold <= cfg.ShortThreshold {
		return nil, fmt.Errorf("pipeline: long threshold %.3f must exceed short threshold %.3f",
			cfg.LongThreshold, cfg.ShortThreshold)
	}
	p := &Pipeline{cfg: cfg, ds: ds, store: store}
	p.newModel = func() Model { return model.New(cfg.Model) }
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Run processes every split in order. Any failure aborts the run.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	symbol := p.ds.Symbol()
	op := logger.StartOperation(ctx, "pipeline.Run", "symbol", symbol)
	ctx = op.Context()
	started := time.Now()

	rep := &Report{Symbol: symbol}
	if p.run != nil {
		rep.RunID = p.run.ID
	}

	for split := range p.ds.Splits() {
		if err := ctx.Err(); err != nil {
			return p.fail(op, err)
		}
		sctx, span := trace.StartSpan(ctx, "pipeline.split",
			attribute.String("symbol", symbol),
			attribute.String("split", split.Name),
		)
		res, err := p.runSplit(sctx, symbol, split, rep.RunID)
		trace.End(span, err)
		if err != nil {
			return p.fail(op, fmt.Errorf("split %s/%s: %w", symbol, split.Name, err))
		}
		rep.Splits = append(rep.Splits, res)
		rep.TP += res.TP
		rep.FP += res.FP
	}
	rep.SuccessRate = SuccessRate(rep.TP, rep.FP)

	if p.metrics != nil {
		p.metrics.RecordPositives(symbol, rep.TP, rep.FP)
		p.metrics.RecordSuccessRate(symbol, rep.SuccessRate)
		p.metrics.RecordLatency("pipeline.Run", time.Since(started).Seconds())
	}
	if p.run != nil {
		if err := p.run.AppendRecord(summary(rep)); err != nil {
			logger.Warn(ctx, "Failed to write run summary", "error", err)
		}
	}

	logger.Info(ctx, "Pipeline finished",
		"symbol", symbol,
		"splits", len(rep.Splits),
		"tp", rep.TP,
		"fp", rep.FP,
		"success_rate", rep.SuccessRate,
	)
	op.End("splits", len(rep.Splits))
	return rep, nil
}

func (p *Pipeline) fail(op *logger.OperationTimer, err error) (*Report, error) {
	if p.metrics != nil {
		p.metrics.RecordError("pipeline.Run")
	}
	op.EndWithError(err)
	return nil, err
}

func (p *Pipeline) runSplit(ctx context.Context, symbol string, split dataset.Split, runID string) (SplitResult, error) {
	res := SplitResult{Name: split.Name}
	m := p.newModel()
	path := p.store.ModelPath(symbol, split.Name)

	exists := p.store.Exists(symbol, split.Name)
	if exists && p.cfg.InvalidateStale && p.store.Stale(symbol, split.Name, split.Fingerprint()) {
		logger.Warn(ctx, "Discarding stale model", "symbol", symbol, "split", split.Name)
		if err := p.store.Remove(symbol, split.Name); err != nil {
			return res, err
		}
		exists = false
	}

	if exists {
		if err := m.Load(path); err != nil {
			return res, err
		}
		res.Source = StateLoaded
		logger.Debug(ctx, "Model loaded", "symbol", symbol, "split", split.Name, "path", path)
	} else {
		if err := m.Train(ctx, split.Train.Features, split.Train.Labels); err != nil {
			return res, err
		}
		if err := p.persist(m, symbol, split, runID); err != nil {
			return res, err
		}
		res.Source = StateTrained
		fields := []any{"symbol", symbol, "split", split.Name, "samples", split.Train.Len()}
		if fit, ok := m.(fitStats); ok {
			fields = append(fields, "epochs", fit.Epochs(), "loss", fit.Loss())
		}
		logger.Info(ctx, "Model trained", fields...)
	}
	res.State = res.Source
	if p.metrics != nil {
		p.metrics.RecordSplit(symbol, string(res.Source))
	}

	if p.cfg.TrainOnly {
		return res, nil
	}

	ev, err := m.Evaluate(split.Test.Features, split.Test.Labels, p.cfg.LongThreshold, p.cfg.ShortThreshold)
	if err != nil {
		return res, fmt.Errorf("evaluate: %w", err)
	}
	res.Evaluation = ev
	res.TP = ev.TruePositives()
	res.FP = ev.FalsePositives()
	res.State = StateEvaluated

	if p.run != nil {
		if err := p.run.AppendEvaluation(symbol+" "+split.Name, ev); err != nil {
			logger.Warn(ctx, "Failed to write evaluation", "split", split.Name, "error", err)
		}
	}
	logger.Info(ctx, "Split evaluated",
		"symbol", symbol,
		"split", split.Name,
		"source", res.Source,
		"accuracy", ev.Accuracy,
		"tp", res.TP,
		"fp", res.FP,
	)
	return res, nil
}

// fitStats is implemented by models that report how training went.
type fitStats interface {
	Epochs() int
	Loss() float64
}

// persist saves a trained model and its manifest. A partial artifact is
// removed so the next run trains the split again instead of failing to load it.
func (p *Pipeline) persist(m Model, symbol string, split dataset.Split, runID string) error {
	err := m.Save(p.store.ModelPath(symbol, split.Name))
	if err != nil {
		err = fmt.Errorf("save model: %w", err)
	} else if werr := p.store.WriteManifest(artifact.Manifest{
		Symbol:      symbol,
		Split:       split.Name,
		Fingerprint: split.Fingerprint(),
		RunID:       runID,
	}); werr != nil {
		err = fmt.Errorf("write manifest: %w", werr)
	}
	if err != nil {
		if rerr := p.store.Remove(symbol, split.Name); rerr != nil {
			return errors.Join(err, fmt.Errorf("remove partial artifact: %w", rerr))
		}
	}
	return err
}

type splitSummary struct {
	Name     string  `json:"name"`
	Source   State   `json:"source"`
	Accuracy float64 `json:"accuracy"`
	TP       int     `json:"tp"`
	FP       int     `json:"fp"`
}

type reportSummary struct {
	Symbol      string         `json:"symbol"`
	RunID       string         `json:"run_id"`
	TP          int            `json:"tp"`
	FP          int            `json:"fp"`
	SuccessRate float64        `json:"success_rate"`
	Splits      []splitSummary `json:"splits"`
}

func summary(r *Report) reportSummary {
	s := reportSummary{Symbol: r.Symbol, RunID: r.RunID, TP: r.TP, FP: r.FP, SuccessRate: r.SuccessRate}
	for _, sp := range r.Splits {
		s.Splits = append(s.Splits, splitSummary{
			Name:     sp.Name,
			Source:   sp.Source,
			Accuracy: sp.Evaluation.Accuracy,
			TP:       sp.TP,
			FP:       sp.FP,
		})
	}
	return s
}
