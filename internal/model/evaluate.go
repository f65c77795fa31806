package model

import (
	"fmt"
	"math"
	"strings"
	"text/tabwriter"

	"trading-toolkit/internal/types"
)

// HistogramBins is the number of Distribution buckets: eight of width
// 0.25 from -1 with the last one open ended.
const HistogramBins = 8

// Discretize maps raw scores to directions. A score strictly above long is
// Long, strictly below short is Short, anything else (ties included) is Flat.
func Discretize(raw []float64, long, short float64) []int {
	out := make([]int, len(raw))
	for i, v := range raw {
		switch {
		case v > long:
			out[i] = types.Long
		case v < short:
			out[i] = types.Short
		default:
			out[i] = types.Flat
		}
	}
	return out
}

func (m *Model) Predict(features [][]float64, long, short float64) ([]int, error) {
	raw, err := m.Raw(features)
	if err != nil {
		return nil, err
	}
	return Discretize(raw, long, short), nil
}

// Distribution buckets raw scores into [-1+0.25i, -0.75+0.25i) bins.
// Scores below -1 are not counted.
func Distribution(raw []float64) [HistogramBins]int {
	var bins [HistogramBins]int
	for _, v := range raw {
		if v < -1 || math.IsNaN(v) {
			continue
		}
		i := int(math.Floor((v + 1) / 0.25))
		bins[min(i, HistogramBins-1)]++
	}
	return bins
}

// ConfusionMatrix is indexed [truth][prediction] in the order Short, Flat, Long.
type ConfusionMatrix [3][3]int

func classIndex(label int) int { return label + 1 }

func checkLabels(labels []int) error {
	for i, l := range labels {
		if l < types.Short || l > types.Long {
			return fmt.Errorf("%w: got %d at row %d", ErrInvalidLabel, l, i)
		}
	}
	return nil
}

// Add counts one sample. Both labels must be Short, Flat or Long.
func (c *ConfusionMatrix) Add(truth, pred int) {
	c[classIndex(truth)][classIndex(pred)]++
}

func (c ConfusionMatrix) At(truth, pred int) int {
	return c[classIndex(truth)][classIndex(pred)]
}

// Predicted is the column sum for a class.
func (c ConfusionMatrix) Predicted(pred int) int {
	p := classIndex(pred)
	return c[0][p] + c[1][p] + c[2][p]
}

func (c ConfusionMatrix) Total() int {
	n := 0
	for _, row := range c {
		for _, v := range row {
			n += v
		}
	}
	return n
}

type Evaluation struct {
	Samples   int
	Confusion ConfusionMatrix
	Accuracy  float64
	// Precision per class in Short, Flat, Long order. A class that was
	// never predicted has precision 0.
	Precision    [3]float64
	Distribution [HistogramBins]int
}

// TruePositives counts Long predictions whose truth was Long.
func (e Evaluation) TruePositives() int { return e.Confusion.At(types.Long, types.Long) }

// FalsePositives counts Long predictions whose truth was Flat or Short.
func (e Evaluation) FalsePositives() int {
	return e.Confusion.At(types.Flat, types.Long) + e.Confusion.At(types.Short, types.Long)
}

func (m *Model) Evaluate(features [][]float64, labels []int, long, short float64) (Evaluation, error) {
	if len(features) != len(labels) {
		return Evaluation{}, fmt.Errorf("%w: %d rows, %d labels", ErrShapeMismatch, len(features), len(labels))
	}
	raw, err := m.Raw(features)
	if err != nil {
		return Evaluation{}, err
	}
	ev, err := Score(labels, Discretize(raw, long, short))
	if err != nil {
		return Evaluation{}, err
	}
	ev.Distribution = Distribution(raw)
	return ev, nil
}

// Score builds an Evaluation from aligned truth and prediction labels.
func Score(truth, pred []int) (Evaluation, error) {
	if len(truth) != len(pred) {
		return Evaluation{}, fmt.Errorf("%w: %d labels, %d predictions", ErrShapeMismatch, len(truth), len(pred))
	}
	if err := checkLabels(truth); err != nil {
		return Evaluation{}, err
	}
	if err := checkLabels(pred); err != nil {
		return Evaluation{}, err
	}
	ev := Evaluation{Samples: len(truth)}
	correct := 0
	for i := range truth {
		ev.Confusion.Add(truth[i], pred[i])
		if truth[i] == pred[i] {
			correct++
		}
	}
	if ev.Samples > 0 {
		ev.Accuracy = float64(correct) / float64(ev.Samples)
	}
	for _, class := range []int{types.Short, types.Flat, types.Long} {
		if n := ev.Confusion.Predicted(class); n > 0 {
			ev.Precision[classIndex(class)] = float64(ev.Confusion.At(class, class)) / float64(n)
		}
	}
	return ev, nil
}

func (e Evaluation) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "samples: %d\naccuracy: %.4f\n", e.Samples, e.Accuracy)

	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "truth\\pred\tshort\tflat\tlong\tprecision\t")
	names := []string{"short", "flat", "long"}
	for i, row := range e.Confusion {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.4f\t\n", names[i], row[0], row[1], row[2], e.Precision[i])
	}
	tw.Flush()

	sb.WriteString("distribution:")
	for i, n := range e.Distribution {
		fmt.Fprintf(&sb, " [%.2f]=%d", -1+0.25*float64(i), n)
	}
	sb.WriteString("\n")
	return sb.String()
}
