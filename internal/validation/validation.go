package validation

import (
	"sync"

	validator "github.com/go-playground/validator/v10"

	"github.com/eval-forge/eval-forge/pkg/api"
)

// NewValidator creates the shared struct tag validator used when decoding
// request bodies.
func NewValidator() (*validator.Validate, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate, nil
}

// TargetRule checks that a target's payload is consistent with its declared
// type, accumulating problems on result. Rules are registered per target
// type because the type set is open; a switch here would close it.
type TargetRule func(target *api.EvaluationTarget, result *api.ValidationResult)

var (
	targetRulesMu sync.RWMutex
	targetRules   = map[api.TargetType]TargetRule{
		api.TargetTypeModel: modelTargetRule,
	}
)

// RegisterTargetRule installs the payload consistency rule for a target
// type, replacing any existing rule.
func RegisterTargetRule(targetType api.TargetType, rule TargetRule) {
	targetRulesMu.Lock()
	defer targetRulesMu.Unlock()
	targetRules[targetType] = rule
}

func lookupTargetRule(targetType api.TargetType) (TargetRule, bool) {
	targetRulesMu.RLock()
	defer targetRulesMu.RUnlock()
	rule, ok := targetRules[targetType]
	return rule, ok
}

func modelTargetRule(target *api.EvaluationTarget, result *api.ValidationResult) {
	if target.Model == nil {
		result.AddError("target type %q requires a model payload", target.Type)
		return
	}
	if target.Model.URL == "" {
		result.AddError("model target requires a non-empty endpoint URL")
	}
}

// ValidateJob runs the structural checks every launcher builds on. It is a
// pure function: the job is only read, and every violated rule is reported,
// none of the checks short-circuits the others. Launchers compose this with
// their own backend rules in ValidateJobInput and must never be less strict.
func ValidateJob(job *api.EvaluationJob) *api.ValidationResult {
	result := api.NewValidationResult()
	if job == nil {
		result.AddError("evaluation job must not be nil")
		return result
	}
	if job.ID == "" {
		result.AddError("evaluation job identifier must not be empty")
	}
	if job.Config.Tasks.Len() == 0 {
		result.AddError("evaluation config must declare at least one task")
	}
	for _, name := range job.Config.Tasks.Names() {
		task, _ := job.Config.Tasks.Get(name)
		if len(task.Metrics) == 0 {
			result.AddError("task %q must declare at least one metric", name)
		}
	}
	if job.Target.Type == "" {
		result.AddError("target type must not be empty")
	} else if rule, ok := lookupTargetRule(job.Target.Type); ok {
		rule(&job.Target, result)
	} else if job.Target.Model != nil {
		result.AddError("target type %q does not take a model payload", job.Target.Type)
	}
	return result
}
