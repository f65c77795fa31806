// Package model implements the price-direction predictor: a small dense
// network with a tanh output in [-1, 1], trained on sample-weighted MSE.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"trading-toolkit/internal/logger"
)

var (
	ErrNotFound         = errors.New("model artifact not found")
	ErrNotTrained       = errors.New("model is not trained")
	ErrEmptyTrainingSet = errors.New("empty training set")
	ErrShapeMismatch    = errors.New("feature shape mismatch")
	ErrInvalidLabel     = errors.New("label must be -1, 0 or 1")
)

const formatVersion = 1

type Config struct {
	Hidden       int
	LearningRate float64
	BatchSize    int
	MaxEpochs    int
	Patience     int
	Seed         int64
}

func DefaultConfig() Config {
	return Config{Hidden: 16, LearningRate: 0.01, BatchSize: 512, MaxEpochs: 1000, Patience: 10}
}

// Model is not safe for concurrent Train calls.
type Model struct {
	cfg Config

	inputs int
	// params is W1 (hidden x inputs) | b1 (hidden) | W2 (hidden) | b2 (1)
	params []float64
	mean   []float64
	std    []float64

	epochs   int
	bestLoss float64
}

func New(cfg Config) *Model {
	def := DefaultConfig()
	if cfg.Hidden <= 0 {
		cfg.Hidden = def.Hidden
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxEpochs <= 0 {
		cfg.MaxEpochs = def.MaxEpochs
	}
	if cfg.Patience <= 0 {
		cfg.Patience = def.Patience
	}
	return &Model{cfg: cfg}
}

func (m *Model) Trained() bool { return m.params != nil }

// Epochs is the number of epochs the last Train call ran.
func (m *Model) Epochs() int { return m.epochs }

// Loss is the best weighted training loss seen by the last Train call.
func (m *Model) Loss() float64 { return m.bestLoss }

// Train fits the network from scratch. Later samples weigh more
// (w_i = i/n + 0.5) and training stops once the weighted loss has not
// improved for cfg.Patience epochs, keeping the best weights.
func (m *Model) Train(ctx context.Context, features [][]float64, labels []int) error {
	n := len(features)
	if n == 0 {
		return ErrEmptyTrainingSet
	}
	if len(labels) != n {
		return fmt.Errorf("%w: %d rows, %d labels", ErrShapeMismatch, n, len(labels))
	}
	if err := checkLabels(labels); err != nil {
		return err
	}
	d := len(features[0])
	for i, row := range features {
		if len(row) != d || d == 0 {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrShapeMismatch, i, len(row), d)
		}
	}

	rng := rand.New(rand.NewSource(m.cfg.Seed))
	m.inputs = d
	m.mean, m.std = standardization(features)
	m.params = m.initParams(rng)

	xs := make([][]float64, n)
	ys := make([]float64, n)
	ws := make([]float64, n)
	for i := range features {
		xs[i] = m.normalize(features[i])
		ys[i] = float64(labels[i])
		ws[i] = float64(i)/float64(n) + 0.5
	}

	opt := newAdam(len(m.params), m.cfg.LearningRate)
	grad := make([]float64, len(m.params))
	order := rng.Perm(n)
	best := append([]float64(nil), m.params...)
	m.bestLoss = math.Inf(1)
	wait := 0

	for epoch := 1; epoch <= m.cfg.MaxEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		for lo := 0; lo < n; lo += m.cfg.BatchSize {
			hi := min(lo+m.cfg.BatchSize, n)
			m.batchGradient(xs, ys, ws, order[lo:hi], grad)
			opt.step(m.params, grad)
		}

		loss := m.weightedLoss(xs, ys, ws)
		m.epochs = epoch
		if loss < m.bestLoss-1e-9 {
			m.bestLoss = loss
			copy(best, m.params)
			wait = 0
			continue
		}
		wait++
		if wait >= m.cfg.Patience {
			break
		}
	}
	copy(m.params, best)

	logger.Debug(ctx, "Model trained", "samples", n, "features", d, "epochs", m.epochs, "loss", m.bestLoss)
	return nil
}

func (m *Model) initParams(rng *rand.Rand) []float64 {
	h, d := m.cfg.Hidden, m.inputs
	p := make([]float64, h*d+h+h+1)
	limit1 := math.Sqrt(6.0 / float64(d+h))
	for i := 0; i < h*d; i++ {
		p[i] = (rng.Float64()*2 - 1) * limit1
	}
	limit2 := math.Sqrt(6.0 / float64(h+1))
	for i := 0; i < h; i++ {
		p[h*d+h+i] = (rng.Float64()*2 - 1) * limit2
	}
	return p
}

// forward returns the output and fills hidden with the hidden activations.
func (m *Model) forward(x, hidden []float64) float64 {
	h, d := m.cfg.Hidden, m.inputs
	w1, b1 := m.params[:h*d], m.params[h*d:h*d+h]
	w2, b2 := m.params[h*d+h:h*d+2*h], m.params[h*d+2*h]

	z2 := b2
	for j := 0; j < h; j++ {
		z := b1[j]
		row := w1[j*d : (j+1)*d]
		for k, v := range x {
			z += row[k] * v
		}
		hidden[j] = math.Tanh(z)
		z2 += w2[j] * hidden[j]
	}
	return math.Tanh(z2)
}

func (m *Model) batchGradient(xs [][]float64, ys, ws []float64, idx []int, grad []float64) {
	h, d := m.cfg.Hidden, m.inputs
	clear(grad)
	gw1, gb1 := grad[:h*d], grad[h*d:h*d+h]
	gw2 := grad[h*d+h : h*d+2*h]
	w2 := m.params[h*d+h : h*d+2*h]

	total := 0.0
	for _, i := range idx {
		total += ws[i]
	}
	hidden := make([]float64, h)
	for _, i := range idx {
		y := m.forward(xs[i], hidden)
		dz2 := 2 * ws[i] * (y - ys[i]) / total * (1 - y*y)
		grad[h*d+2*h] += dz2
		for j := 0; j < h; j++ {
			gw2[j] += dz2 * hidden[j]
			dz1 := dz2 * w2[j] * (1 - hidden[j]*hidden[j])
			gb1[j] += dz1
			row := gw1[j*d : (j+1)*d]
			for k, v := range xs[i] {
				row[k] += dz1 * v
			}
		}
	}
}

func (m *Model) weightedLoss(xs [][]float64, ys, ws []float64) float64 {
	hidden := make([]float64, m.cfg.Hidden)
	loss, total := 0.0, 0.0
	for i, x := range xs {
		e := m.forward(x, hidden) - ys[i]
		loss += ws[i] * e * e
		total += ws[i]
	}
	return loss / total
}

func standardization(features [][]float64) (mean, std []float64) {
	d := len(features[0])
	mean = make([]float64, d)
	std = make([]float64, d)
	for _, row := range features {
		for k, v := range row {
			mean[k] += v
		}
	}
	n := float64(len(features))
	for k := range mean {
		mean[k] /= n
	}
	for _, row := range features {
		for k, v := range row {
			std[k] += (v - mean[k]) * (v - mean[k])
		}
	}
	for k := range std {
		std[k] = math.Sqrt(std[k] / n)
		if std[k] < 1e-12 {
			std[k] = 1
		}
	}
	return mean, std
}

func (m *Model) normalize(row []float64) []float64 {
	out := make([]float64, len(row))
	for k, v := range row {
		out[k] = (v - m.mean[k]) / m.std[k]
	}
	return out
}

// Raw returns the continuous score in [-1, 1] for each feature row.
func (m *Model) Raw(features [][]float64) ([]float64, error) {
	if !m.Trained() {
		return nil, ErrNotTrained
	}
	hidden := make([]float64, m.cfg.Hidden)
	out := make([]float64, len(features))
	for i, row := range features {
		if len(row) != m.inputs {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrShapeMismatch, i, len(row), m.inputs)
		}
		out[i] = m.forward(m.normalize(row), hidden)
	}
	return out, nil
}

type artifact struct {
	Version int       `json:"version"`
	Inputs  int       `json:"inputs"`
	Hidden  int       `json:"hidden"`
	Params  []float64 `json:"params"`
	Mean    []float64 `json:"mean"`
	Std     []float64 `json:"std"`
}

// Save writes the model to path, replacing any existing file.
func (m *Model) Save(path string) error {
	if !m.Trained() {
		return ErrNotTrained
	}
	b, err := json.Marshal(artifact{
		Version: formatVersion,
		Inputs:  m.inputs,
		Hidden:  m.cfg.Hidden,
		Params:  m.params,
		Mean:    m.mean,
		Std:     m.std,
	})
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (m *Model) Load(path string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return err
	}
	var a artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return fmt.Errorf("decode model %s: %w", path, err)
	}
	if a.Version != formatVersion {
		return fmt.Errorf("model %s: unsupported format version %d", path, a.Version)
	}
	if len(a.Params) != a.Hidden*a.Inputs+2*a.Hidden+1 || len(a.Mean) != a.Inputs || len(a.Std) != a.Inputs {
		return fmt.Errorf("model %s: %w", path, ErrShapeMismatch)
	}
	m.cfg.Hidden = a.Hidden
	m.inputs = a.Inputs
	m.params = a.Params
	m.mean = a.Mean
	m.std = a.Std
	return nil
}
