package ml

import (
	"math"

	"gonum.org/v1/gonum/floats"

	apperrors "github.com/dealsight/backend/pkg/errors"
)

// Model holds the parameters of a trained logistic regression classifier.
type Model struct {
	Weights      []float64
	Bias         float64
	FeatureNames []string
}

// TrainOptions controls the gradient descent loop.
type TrainOptions struct {
	Epochs       int
	LearningRate float64
}

// DefaultTrainOptions matches the production training configuration.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{Epochs: 1000, LearningRate: 0.1}
}

// Sigmoid maps a linear score to a probability, clamped so callers always
// see a value strictly inside (0, 1) even for extreme scores.
func Sigmoid(z float64) float64 {
	p := 1.0 / (1.0 + math.Exp(-z))
	const eps = 1e-9
	if p < eps {
		return eps
	}
	if p > 1-eps {
		return 1 - eps
	}
	return p
}

// Train fits a logistic regression model with full-batch gradient descent.
// X is row-major with one sample per row; y holds 0/1 labels. All rows must
// share the same width.
func Train(X [][]float64, y []float64, opts TrainOptions) (Model, error) {
	if len(X) == 0 {
		return Model{}, apperrors.NewValidationError("training set is empty")
	}
	if len(X) != len(y) {
		return Model{}, apperrors.NewValidationError("feature rows and labels differ in length")
	}
	dim := len(X[0])
	for _, row := range X {
		if len(row) != dim {
			return Model{}, apperrors.NewValidationError("training rows have inconsistent widths")
		}
	}
	if opts.Epochs <= 0 || opts.LearningRate <= 0 {
		opts = DefaultTrainOptions()
	}

	n := float64(len(X))
	weights := make([]float64, dim)
	bias := 0.0
	gradW := make([]float64, dim)

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for i := range gradW {
			gradW[i] = 0
		}
		gradB := 0.0

		for i, row := range X {
			p := Sigmoid(bias + floats.Dot(weights, row))
			diff := p - y[i]
			floats.AddScaled(gradW, diff, row)
			gradB += diff
		}

		floats.AddScaled(weights, -opts.LearningRate/n, gradW)
		bias -= opts.LearningRate / n * gradB
	}

	return Model{Weights: weights, Bias: bias, FeatureNames: FeatureNames()}, nil
}

// Score computes the linear score bias + w·x. When the vector and the weight
// slice disagree in length only the overlapping prefix contributes, so a
// model trained before a domain grew still scores newer, wider vectors.
func (m Model) Score(x []float64) float64 {
	n := len(m.Weights)
	if len(x) < n {
		n = len(x)
	}
	return m.Bias + floats.Dot(m.Weights[:n], x[:n])
}

// Probability computes the closure probability for an encoded sample.
func (m Model) Probability(x []float64) float64 {
	return Sigmoid(m.Score(x))
}

// Accuracy returns the exact-match rate against 0/1 labels, thresholding
// probabilities at 0.5. An empty evaluation set yields 0.
func (m Model) Accuracy(X [][]float64, y []float64) float64 {
	if len(X) == 0 || len(X) != len(y) {
		return 0
	}
	correct := 0
	for i, row := range X {
		predicted := 0.0
		if m.Probability(row) >= 0.5 {
			predicted = 1
		}
		if predicted == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(X))
}
