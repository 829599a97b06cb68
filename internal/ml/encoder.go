// Package ml implements the feature encoding and logistic regression behind
// deal-closure predictions. The feature space is fixed by the category
// domains in entities: 50 one-hot slots plus one continuous volume feature.
package ml

import (
	"github.com/dealsight/backend/internal/domain/entities"
)

// volumeScale normalizes weekly contact volume into [0,1].
const volumeScale = 1000.0

type featureBlock struct {
	field  string
	domain []string
}

func blocks() []featureBlock {
	return []featureBlock{
		{"industry", entities.IndustryDomain},
		{"company_size", entities.CompanySizeDomain},
		{"main_pain_point", entities.MainPainPointDomain},
		{"discovery_source", entities.DiscoverySourceDomain},
		{"use_case", entities.UseCaseDomain},
		{"volume_trend", entities.VolumeTrendDomain},
	}
}

// FeatureNames returns the ordered names of every feature the encoder emits,
// one per one-hot slot plus the trailing continuous volume feature. The order
// is stable across processes, so persisted weight vectors line up by index.
func FeatureNames() []string {
	names := make([]string, 0, FeatureCount())
	for _, b := range blocks() {
		for _, v := range b.domain {
			names = append(names, b.field+":"+v)
		}
	}
	return append(names, "weekly_contact_volume")
}

// FeatureCount returns the dimensionality of the encoded vector.
func FeatureCount() int {
	n := 1
	for _, b := range blocks() {
		n += len(b.domain)
	}
	return n
}

// Encode maps category data onto the fixed feature vector. Each enum field
// sets at most one bit in its block; a value outside the known domain leaves
// the whole block zero. Encode never fails.
func Encode(d entities.CategoryData) []float64 {
	x := make([]float64, 0, FeatureCount())
	values := map[string]string{
		"industry":         d.Industry,
		"company_size":     d.CompanySize,
		"main_pain_point":  d.MainPainPoint,
		"discovery_source": d.DiscoverySource,
		"use_case":         d.UseCase,
		"volume_trend":     d.VolumeTrend,
	}
	for _, b := range blocks() {
		for _, v := range b.domain {
			if values[b.field] == v {
				x = append(x, 1)
			} else {
				x = append(x, 0)
			}
		}
	}

	volume := float64(d.WeeklyContactVolume) / volumeScale
	if volume > 1 {
		volume = 1
	}
	if volume < 0 {
		volume = 0
	}
	return append(x, volume)
}
