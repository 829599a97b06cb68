package ml

import (
	"fmt"
	"sort"
	"strings"
)

// Factor explains one feature's contribution to a single prediction: the
// probability shift that would result from removing that feature's weight
// from the linear score.
type Factor struct {
	Field  string  `json:"field"`
	Value  string  `json:"value"`
	Impact float64 `json:"impact"`
	Label  string  `json:"label"`
}

// TopFactors ranks the active one-hot features of an encoded sample by the
// absolute counterfactual impact of removing each one, and returns at most
// limit factors, strongest first. The continuous volume feature is skipped;
// it is never an "active bit" in the one-hot sense.
func (m Model) TopFactors(x []float64, limit int) []Factor {
	z := m.Score(x)
	p := Sigmoid(z)

	oneHot := len(m.Weights)
	if len(x) < oneHot {
		oneHot = len(x)
	}
	if len(m.FeatureNames) < oneHot {
		oneHot = len(m.FeatureNames)
	}

	factors := make([]Factor, 0, 8)
	for i := 0; i < oneHot; i++ {
		if x[i] != 1 {
			continue
		}
		field, value, ok := strings.Cut(m.FeatureNames[i], ":")
		if !ok {
			continue
		}
		impact := p - Sigmoid(z-m.Weights[i])
		factors = append(factors, Factor{
			Field:  field,
			Value:  value,
			Impact: impact,
			Label:  impactLabel(impact),
		})
	}

	sort.SliceStable(factors, func(i, j int) bool {
		return abs(factors[i].Impact) > abs(factors[j].Impact)
	})
	if len(factors) > limit {
		factors = factors[:limit]
	}
	return factors
}

func impactLabel(impact float64) string {
	direction := "increases closure probability"
	sign := "+"
	if impact < 0 {
		direction = "decreases closure probability"
		sign = "-"
	}
	return fmt.Sprintf("%s%.1f%% (%s)", sign, abs(impact)*100, direction)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
