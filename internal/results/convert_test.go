package results

import (
	"math"
	"testing"

	"github.com/eval-forge/eval-forge/internal/pipeline"
)

func TestConvertPreservesNames(t *testing.T) {
	raw := &pipeline.RawResult{}
	raw.Add("accuracy", map[string]float64{"accuracy": 0.9})
	raw.Add("f1", map[string]float64{"f1": 0.8, "precision": 0.75, "recall": 0.85})

	metrics, err := Convert(raw)
	if err != nil {
		t.Fatalf("Expected conversion to succeed, got %v", err)
	}
	if len(metrics) != 2 {
		t.Fatalf("Expected 2 metrics, got %d", len(metrics))
	}
	if metrics["accuracy"].Scores["accuracy"].Value != 0.9 {
		t.Errorf("Expected accuracy 0.9, got %v", metrics["accuracy"].Scores["accuracy"].Value)
	}
	if len(metrics["f1"].Scores) != 3 {
		t.Errorf("Expected 3 f1 sub-scores, got %d", len(metrics["f1"].Scores))
	}
	if metrics["f1"].Scores["recall"].Value != 0.85 {
		t.Errorf("Expected recall 0.85, got %v", metrics["f1"].Scores["recall"].Value)
	}
}

func TestConvertLaterEntryReplacesEarlier(t *testing.T) {
	raw := &pipeline.RawResult{}
	raw.Add("f1", map[string]float64{"f1": 0.5})
	raw.Add("f1", map[string]float64{"f1": 0.7})

	metrics, err := Convert(raw)
	if err != nil {
		t.Fatalf("Expected conversion to succeed, got %v", err)
	}
	if len(metrics) != 1 {
		t.Fatalf("Expected a single metric, got %d", len(metrics))
	}
	if metrics["f1"].Scores["f1"].Value != 0.7 {
		t.Errorf("Expected the later entry to win with 0.7, got %v", metrics["f1"].Scores["f1"].Value)
	}
}

func TestConvertEmptyRawResult(t *testing.T) {
	metrics, err := Convert(&pipeline.RawResult{})
	if err != nil {
		t.Fatalf("Expected conversion of empty output to succeed, got %v", err)
	}
	if len(metrics) != 0 {
		t.Errorf("Expected an empty metric mapping, got %v", metrics)
	}

	metrics, err = Convert(nil)
	if err != nil {
		t.Fatalf("Expected conversion of nil output to succeed, got %v", err)
	}
	if len(metrics) != 0 {
		t.Errorf("Expected an empty metric mapping for nil, got %v", metrics)
	}
}

func TestConvertRejectsNonFiniteScores(t *testing.T) {
	for name, value := range map[string]float64{
		"nan":          math.NaN(),
		"positive inf": math.Inf(1),
		"negative inf": math.Inf(-1),
	} {
		t.Run(name, func(t *testing.T) {
			raw := &pipeline.RawResult{}
			raw.Add("accuracy", map[string]float64{"accuracy": value})
			if _, err := Convert(raw); err == nil {
				t.Fatalf("Expected an error for a non-finite score")
			}
		})
	}
}

func TestConvertRejectsEmptyNames(t *testing.T) {
	raw := &pipeline.RawResult{}
	raw.Add("", map[string]float64{"accuracy": 1})
	if _, err := Convert(raw); err == nil {
		t.Fatalf("Expected an error for an empty metric name")
	}

	raw = &pipeline.RawResult{}
	raw.Add("accuracy", map[string]float64{"": 1})
	if _, err := Convert(raw); err == nil {
		t.Fatalf("Expected an error for an empty score name")
	}
}

func TestFromPayloadFlattensNestedMetrics(t *testing.T) {
	payload := map[string]any{
		"accuracy": 0.9,
		"f1": map[string]any{
			"f1":        0.8,
			"precision": 0.75,
		},
	}
	metrics, err := FromPayload(payload)
	if err != nil {
		t.Fatalf("Expected payload conversion to succeed, got %v", err)
	}
	if metrics["accuracy"].Scores["accuracy"].Value != 0.9 {
		t.Errorf("Expected bare accuracy to become a sub-score named accuracy, got %v", metrics["accuracy"].Scores)
	}
	if metrics["f1"].Scores["f1"].Value != 0.8 {
		t.Errorf("Expected nested f1 0.8, got %v", metrics["f1"].Scores["f1"].Value)
	}
	if metrics["f1"].Scores["precision"].Value != 0.75 {
		t.Errorf("Expected nested precision 0.75, got %v", metrics["f1"].Scores["precision"].Value)
	}
}

func TestFromPayloadRejectsNonNumericValues(t *testing.T) {
	_, err := FromPayload(map[string]any{"accuracy": "high"})
	if err == nil {
		t.Fatalf("Expected an error for a non-numeric score value")
	}
}

func TestFromPayloadEmpty(t *testing.T) {
	metrics, err := FromPayload(nil)
	if err != nil {
		t.Fatalf("Expected empty payload conversion to succeed, got %v", err)
	}
	if len(metrics) != 0 {
		t.Errorf("Expected an empty metric mapping, got %v", metrics)
	}
}
