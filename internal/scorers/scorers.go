package scorers

import (
	"fmt"
	"strings"
	"sync"

	"github.com/eval-forge/eval-forge/pkg/api"
)

// Sample is one scored record: the model's prediction paired with the
// expected reference.
type Sample struct {
	Input      string
	Prediction string
	Reference  string
}

// Scorer computes one metric's sub-scores over the samples of a task. With
// no samples a scorer reports zero scores, it does not fail.
type Scorer interface {
	Score(samples []Sample) (map[string]float64, error)
}

// Builder constructs a scorer from metric parameters.
type Builder func(params *api.Params) (Scorer, error)

var (
	registryMu sync.RWMutex
	registry   = map[api.MetricType]Builder{
		api.MetricTypeAccuracy:   newAccuracyScorer,
		api.MetricTypeExactMatch: newExactMatchScorer,
		api.MetricTypeF1:         newF1Scorer,
	}
)

// Register installs a scorer builder for a metric type, replacing any
// existing one. Metric types are an open set; deployments add their own.
func Register(metricType api.MetricType, builder Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[metricType] = builder
}

// Known reports whether a builder is registered for the metric type.
func Known(metricType api.MetricType) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[metricType]
	return ok
}

// Resolve builds the scorer for a metric configuration.
func Resolve(config api.MetricConfig) (Scorer, error) {
	registryMu.RLock()
	builder, ok := registry[config.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no scorer registered for metric type %q", config.Type)
	}
	scorer, err := builder(config.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to build scorer for metric type %q: %w", config.Type, err)
	}
	return scorer, nil
}

// accuracyScorer reports the share of predictions matching the reference
// after whitespace and case normalization.
type accuracyScorer struct{}

func newAccuracyScorer(_ *api.Params) (Scorer, error) {
	return &accuracyScorer{}, nil
}

func (s *accuracyScorer) Score(samples []Sample) (map[string]float64, error) {
	if len(samples) == 0 {
		return map[string]float64{}, nil
	}
	matches := 0
	for _, sample := range samples {
		if normalize(sample.Prediction) == normalize(sample.Reference) {
			matches++
		}
	}
	return map[string]float64{"accuracy": float64(matches) / float64(len(samples))}, nil
}

// exactMatchScorer reports the share of predictions equal to the reference,
// without normalization unless ignore_case is set.
type exactMatchScorer struct {
	ignoreCase bool
}

func newExactMatchScorer(params *api.Params) (Scorer, error) {
	scorer := &exactMatchScorer{}
	if value, ok := params.Get("ignore_case"); ok {
		ignoreCase, err := value.AsBool()
		if err != nil {
			return nil, fmt.Errorf("parameter ignore_case: %w", err)
		}
		scorer.ignoreCase = ignoreCase
	}
	return scorer, nil
}

func (s *exactMatchScorer) Score(samples []Sample) (map[string]float64, error) {
	if len(samples) == 0 {
		return map[string]float64{}, nil
	}
	matches := 0
	for _, sample := range samples {
		prediction, reference := sample.Prediction, sample.Reference
		if s.ignoreCase {
			prediction = strings.ToLower(prediction)
			reference = strings.ToLower(reference)
		}
		if prediction == reference {
			matches++
		}
	}
	return map[string]float64{"exact_match": float64(matches) / float64(len(samples))}, nil
}

// f1Scorer reports token-overlap F1 averaged over samples, with precision
// and recall as sub-scores.
type f1Scorer struct{}

func newF1Scorer(_ *api.Params) (Scorer, error) {
	return &f1Scorer{}, nil
}

func (s *f1Scorer) Score(samples []Sample) (map[string]float64, error) {
	if len(samples) == 0 {
		return map[string]float64{}, nil
	}
	var sumF1, sumPrecision, sumRecall float64
	for _, sample := range samples {
		f1, precision, recall := tokenF1(sample.Prediction, sample.Reference)
		sumF1 += f1
		sumPrecision += precision
		sumRecall += recall
	}
	n := float64(len(samples))
	return map[string]float64{
		"f1":        sumF1 / n,
		"precision": sumPrecision / n,
		"recall":    sumRecall / n,
	}, nil
}

func tokenF1(prediction string, reference string) (f1 float64, precision float64, recall float64) {
	predTokens := strings.Fields(normalize(prediction))
	refTokens := strings.Fields(normalize(reference))
	if len(predTokens) == 0 && len(refTokens) == 0 {
		return 1, 1, 1
	}
	if len(predTokens) == 0 || len(refTokens) == 0 {
		return 0, 0, 0
	}
	refCounts := map[string]int{}
	for _, token := range refTokens {
		refCounts[token]++
	}
	overlap := 0
	for _, token := range predTokens {
		if refCounts[token] > 0 {
			refCounts[token]--
			overlap++
		}
	}
	if overlap == 0 {
		return 0, 0, 0
	}
	precision = float64(overlap) / float64(len(predTokens))
	recall = float64(overlap) / float64(len(refTokens))
	f1 = 2 * precision * recall / (precision + recall)
	return f1, precision, recall
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
