package local

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/PaesslerAG/jsonpath"

	"github.com/eval-forge/eval-forge/internal/pipeline"
	"github.com/eval-forge/eval-forge/internal/scorers"
	"github.com/eval-forge/eval-forge/pkg/api"
	"github.com/eval-forge/eval-forge/pkg/modelclient"
)

// Task parameters understood by the builtin evaluator. Paths are JSONPath
// expressions evaluated against each dataset record.
const (
	paramInputPath      = "input_path"
	paramReferencePath  = "reference_path"
	paramPredictionPath = "prediction_path"

	defaultInputPath     = "$.input"
	defaultReferencePath = "$.reference"
)

// Invoker produces a prediction for one prompt against the job's target.
type Invoker interface {
	Invoke(ctx context.Context, target *api.EvaluationTarget, prompt string) (string, error)
}

// modelInvoker calls the target's model server over HTTP.
type modelInvoker struct{}

func (i *modelInvoker) Invoke(ctx context.Context, target *api.EvaluationTarget, prompt string) (string, error) {
	if target == nil || target.Model == nil {
		return "", fmt.Errorf("target carries no model to invoke")
	}
	client := modelclient.NewClient(target.Model.URL).WithContext(ctx)
	if target.Model.Token != "" {
		client = client.WithToken(target.Model.Token)
	}
	return client.GenerateText(target.Model.Name, prompt)
}

// builtinEvaluatorBuilder builds the evaluator behind the custom task type:
// extract input and reference from each record, obtain a prediction from the
// target model (or from the record itself when prediction_path is set), then
// run the task's configured scorers.
type builtinEvaluatorBuilder struct {
	logger  *slog.Logger
	invoker Invoker
}

func (b *builtinEvaluatorBuilder) NewEvaluator(target *api.EvaluationTarget, task *api.TaskConfig) (pipeline.Evaluator, error) {
	inputPath, err := stringParam(task.Params, paramInputPath, defaultInputPath)
	if err != nil {
		return nil, err
	}
	referencePath, err := stringParam(task.Params, paramReferencePath, defaultReferencePath)
	if err != nil {
		return nil, err
	}
	predictionPath, err := stringParam(task.Params, paramPredictionPath, "")
	if err != nil {
		return nil, err
	}

	type namedScorer struct {
		name   string
		scorer scorers.Scorer
	}
	resolved := make([]namedScorer, 0, len(task.Metrics))
	for _, metric := range task.Metrics {
		scorer, err := scorers.Resolve(metric)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, namedScorer{name: string(metric.Type), scorer: scorer})
	}

	scorerNames := make([]string, len(resolved))
	scorerImpls := make([]scorers.Scorer, len(resolved))
	for i, entry := range resolved {
		scorerNames[i] = entry.name
		scorerImpls[i] = entry.scorer
	}

	return &builtinEvaluator{
		logger:         b.logger,
		invoker:        b.invoker,
		target:         target,
		inputPath:      inputPath,
		referencePath:  referencePath,
		predictionPath: predictionPath,
		scorerNames:    scorerNames,
		scorers:        scorerImpls,
	}, nil
}

type builtinEvaluator struct {
	logger         *slog.Logger
	invoker        Invoker
	target         *api.EvaluationTarget
	inputPath      string
	referencePath  string
	predictionPath string
	scorerNames    []string
	scorers        []scorers.Scorer
}

// Score collects one sample per record, then applies the configured scorers
// in metric order. Scorers reporting no values contribute no raw entries, so
// an empty dataset yields an empty raw result.
func (e *builtinEvaluator) Score(ctx context.Context, dataset *pipeline.Dataset) (*pipeline.RawResult, error) {
	samples := make([]scorers.Sample, 0, dataset.Len())
	for index, record := range dataset.Records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sample, err := e.collectSample(ctx, record)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", index, err)
		}
		samples = append(samples, sample)
	}

	raw := &pipeline.RawResult{}
	for i, scorer := range e.scorers {
		values, err := scorer.Score(samples)
		if err != nil {
			return nil, fmt.Errorf("metric %q: %w", e.scorerNames[i], err)
		}
		if len(values) == 0 {
			continue
		}
		raw.Add(e.scorerNames[i], values)
	}
	return raw, nil
}

func (e *builtinEvaluator) collectSample(ctx context.Context, record pipeline.Record) (scorers.Sample, error) {
	input, err := extractString(e.inputPath, record)
	if err != nil {
		return scorers.Sample{}, err
	}
	reference, err := extractString(e.referencePath, record)
	if err != nil {
		return scorers.Sample{}, err
	}

	var prediction string
	if e.predictionPath != "" {
		prediction, err = extractString(e.predictionPath, record)
		if err != nil {
			return scorers.Sample{}, err
		}
	} else {
		prediction, err = e.invoker.Invoke(ctx, e.target, input)
		if err != nil {
			return scorers.Sample{}, fmt.Errorf("model invocation failed: %w", err)
		}
	}
	return scorers.Sample{Input: input, Prediction: prediction, Reference: reference}, nil
}

func extractString(path string, record pipeline.Record) (string, error) {
	value, err := jsonpath.Get(path, map[string]any(record))
	if err != nil {
		return "", fmt.Errorf("path %q: %w", path, err)
	}
	switch v := value.(type) {
	case string:
		return v, nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func stringParam(params *api.Params, name string, fallback string) (string, error) {
	value, ok := params.Get(name)
	if !ok {
		return fallback, nil
	}
	s, err := value.AsString()
	if err != nil {
		return "", fmt.Errorf("parameter %s: %w", name, err)
	}
	return s, nil
}
