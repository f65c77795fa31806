package model

import (
	"context"
	"math/rand"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-toolkit/internal/types"
)

func signData(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	xs := make([][]float64, n)
	ys := make([]int, n)
	for i := range xs {
		x := rng.Float64()*2 - 1
		xs[i] = []float64{x, rng.NormFloat64() * 0.1}
		ys[i] = types.Short
		if x > 0 {
			ys[i] = types.Long
		}
	}
	return xs, ys
}

func smallConfig() Config {
	return Config{Hidden: 4, LearningRate: 0.05, BatchSize: 64, MaxEpochs: 300, Patience: 20, Seed: 7}
}

func TestTrainLearnsSeparableData(t *testing.T) {
	xs, ys := signData(200, 1)
	m := New(smallConfig())
	require.NoError(t, m.Train(context.Background(), xs, ys))
	assert.True(t, m.Trained())
	assert.Greater(t, m.Epochs(), 0)

	ev, err := m.Evaluate(xs, ys, 0, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ev.Accuracy, 0.9)
	assert.Equal(t, 200, ev.Confusion.Total())
}

func TestTrainIsDeterministic(t *testing.T) {
	xs, ys := signData(100, 2)
	a, b := New(smallConfig()), New(smallConfig())
	require.NoError(t, a.Train(context.Background(), xs, ys))
	require.NoError(t, b.Train(context.Background(), xs, ys))

	ra, err := a.Raw(xs)
	require.NoError(t, err)
	rb, err := b.Raw(xs)
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
}

func TestTrainErrors(t *testing.T) {
	m := New(smallConfig())
	assert.ErrorIs(t, m.Train(context.Background(), nil, nil), ErrEmptyTrainingSet)
	assert.ErrorIs(t, m.Train(context.Background(), [][]float64{{1}, {1, 2}}, []int{0, 0}), ErrShapeMismatch)
	assert.ErrorIs(t, m.Train(context.Background(), [][]float64{{1}}, []int{0, 1}), ErrShapeMismatch)
	assert.ErrorIs(t, m.Train(context.Background(), [][]float64{{1}}, []int{-2}), ErrInvalidLabel)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	xs, ys := signData(10, 3)
	assert.ErrorIs(t, m.Train(ctx, xs, ys), context.Canceled)
}

func TestUntrainedModel(t *testing.T) {
	m := New(Config{})
	_, err := m.Raw([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotTrained)
	_, err = m.Predict([][]float64{{1}}, 0.5, -0.5)
	assert.ErrorIs(t, err, ErrNotTrained)
	assert.ErrorIs(t, m.Save(filepath.Join(t.TempDir(), "m.json")), ErrNotTrained)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	xs, ys := signData(80, 4)
	m := New(smallConfig())
	require.NoError(t, m.Train(context.Background(), xs, ys))

	path := filepath.Join(t.TempDir(), "AAPL", "2021-01", "model.json")
	require.NoError(t, m.Save(path))
	// overwrite is allowed
	require.NoError(t, m.Save(path))

	loaded := New(Config{})
	require.NoError(t, loaded.Load(path))

	want, err := m.Raw(xs)
	require.NoError(t, err)
	got, err := loaded.Raw(xs)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = loaded.Raw([][]float64{{1, 2, 3}})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestLoadMissing(t *testing.T) {
	err := New(Config{}).Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiscretize(t *testing.T) {
	got := Discretize([]float64{0.9, 0.5, 0.1, -0.5, -0.9}, 0.5, -0.5)
	// values equal to a threshold stay flat
	assert.Equal(t, []int{types.Long, types.Flat, types.Flat, types.Flat, types.Short}, got)
}

func TestDiscretizeIsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	raw := make([]float64, 500)
	for i := range raw {
		raw[i] = rng.Float64()*2 - 1
	}
	sort.Float64s(raw)
	out := Discretize(raw, 0.3, -0.2)
	for i := 1; i < len(out); i++ {
		assert.LessOrEqual(t, out[i-1], out[i])
	}
}

func TestDistribution(t *testing.T) {
	bins := Distribution([]float64{-1.5, -1, -0.8, -0.1, 0, 0.74, 0.75, 1})
	assert.Equal(t, [HistogramBins]int{2, 0, 0, 1, 1, 0, 1, 2}, bins)
}

func TestScore(t *testing.T) {
	truth := []int{1, 1, 0, -1, 1, 0}
	pred := []int{1, 0, 1, 0, 1, 0}
	ev, err := Score(truth, pred)
	require.NoError(t, err)

	assert.Equal(t, 6, ev.Samples)
	assert.InDelta(t, 3.0/6.0, ev.Accuracy, 1e-12)
	assert.Equal(t, 2, ev.TruePositives())
	assert.Equal(t, 1, ev.FalsePositives())
	assert.InDelta(t, 2.0/3.0, ev.Precision[2], 1e-12)
	assert.InDelta(t, 1.0/3.0, ev.Precision[1], 1e-12)
	// short was never predicted
	assert.Equal(t, 0.0, ev.Precision[0])
	assert.Contains(t, ev.String(), "accuracy: 0.5000")
}

func TestScoreRejectsUnknownLabels(t *testing.T) {
	_, err := Score([]int{1, 2}, []int{1, 1})
	assert.ErrorIs(t, err, ErrInvalidLabel)
	_, err = Score([]int{1}, []int{1, 0})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestEvaluateRejectsUnknownLabels(t *testing.T) {
	xs, ys := signData(40, 2)
	m := New(smallConfig())
	require.NoError(t, m.Train(context.Background(), xs, ys))

	ys[3] = 7
	_, err := m.Evaluate(xs, ys, 0.5, -0.5)
	assert.ErrorIs(t, err, ErrInvalidLabel)
	assert.ErrorContains(t, err, "row 3")
}
