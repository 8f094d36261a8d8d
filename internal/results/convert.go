// Package results converts raw evaluator output into the structured metric
// results exposed on the API. Conversion preserves every reported metric and
// sub-score under its original name.
package results

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Jeffail/gabs/v2"

	"github.com/eval-forge/eval-forge/internal/pipeline"
	"github.com/eval-forge/eval-forge/pkg/api"
)

// Convert maps raw evaluator output onto API metric results. Entries are
// applied in reported order, a later entry for the same metric name replaces
// the earlier one. Empty raw output yields an empty mapping.
func Convert(raw *pipeline.RawResult) (map[string]api.MetricResult, error) {
	metrics := map[string]api.MetricResult{}
	if raw == nil {
		return metrics, nil
	}
	for _, entry := range raw.Entries {
		if entry.Name == "" {
			return nil, fmt.Errorf("raw result contains a metric with an empty name")
		}
		scores := map[string]api.Score{}
		for name, value := range entry.Values {
			if name == "" {
				return nil, fmt.Errorf("metric %q reports a score with an empty name", entry.Name)
			}
			if math.IsNaN(value) || math.IsInf(value, 0) {
				return nil, fmt.Errorf("metric %q reports a non-finite score %q", entry.Name, name)
			}
			scores[name] = api.Score{Value: value}
		}
		metrics[entry.Name] = api.MetricResult{Scores: scores}
	}
	return metrics, nil
}

// FromPayload converts a loosely typed metrics payload, as reported by an
// external task runner, into API metric results. Nested objects are
// flattened to dotted paths, the first path segment names the metric and the
// remainder names the sub-score. A bare top-level number becomes a sub-score
// named after its metric.
func FromPayload(payload map[string]any) (map[string]api.MetricResult, error) {
	metrics := map[string]api.MetricResult{}
	if len(payload) == 0 {
		return metrics, nil
	}
	flat, err := gabs.Wrap(payload).Flatten()
	if err != nil {
		return nil, fmt.Errorf("failed to flatten metrics payload: %w", err)
	}
	paths := make([]string, 0, len(flat))
	for path := range flat {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		metricName, scoreName := splitMetricPath(path)
		if metricName == "" {
			return nil, fmt.Errorf("metrics payload contains a value with an empty metric name")
		}
		value, err := toFloat(flat[path])
		if err != nil {
			return nil, fmt.Errorf("metric %q score %q: %w", metricName, scoreName, err)
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, fmt.Errorf("metric %q reports a non-finite score %q", metricName, scoreName)
		}
		result, ok := metrics[metricName]
		if !ok {
			result = api.MetricResult{Scores: map[string]api.Score{}}
		}
		result.Scores[scoreName] = api.Score{Value: value}
		metrics[metricName] = result
	}
	return metrics, nil
}

func splitMetricPath(path string) (metricName string, scoreName string) {
	if index := strings.Index(path, "."); index >= 0 {
		return path[:index], path[index+1:]
	}
	return path, path
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("score value %v is not numeric", value)
	}
}
