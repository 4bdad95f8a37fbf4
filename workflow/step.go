package workflow

import (
	"sort"

	"github.com/formflow/formflow/condition"
)

// orderedSteps returns the steps of t sorted by Order without modifying t.
func orderedSteps(t *Template) []*Step {
	if t == nil {
		return nil
	}
	steps := make([]*Step, len(t.Steps))
	for i := range t.Steps {
		steps[i] = &t.Steps[i]
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps
}

// FirstEligibleStep returns the lowest ordered step whose gate is met by data.
// Nil is returned if no step is eligible.
func FirstEligibleStep(t *Template, data map[string]interface{}) *Step {
	for _, s := range orderedSteps(t) {
		if condition.Met(s.Gate, data) {
			return s
		}
	}
	return nil
}

// NextEligibleStep returns the lowest ordered step after afterOrder whose
// gate is met by data. Nil is returned if no step is eligible.
func NextEligibleStep(t *Template, data map[string]interface{}, afterOrder int) *Step {
	for _, s := range orderedSteps(t) {
		if s.Order <= afterOrder {
			continue
		}
		if condition.Met(s.Gate, data) {
			return s
		}
	}
	return nil
}

// ResolveNextStep determines the step following an approval of action at
// the current step of inst. An explicit next step wins regardless of its
// gate. Nil means the workflow is complete.
func ResolveNextStep(inst *Instance, action *Action, data map[string]interface{}) (*Step, error) {
	if inst == nil || inst.CurrentStep == "" {
		return nil, ErrNoCurrentStep
	}
	if action != nil && action.NextStep != "" {
		s := inst.Template.Step(action.NextStep)
		if s == nil {
			return nil, ErrUnknownStepName
		}
		return s, nil
	}
	cur := inst.Template.Step(inst.CurrentStep)
	if cur == nil {
		return nil, ErrUnknownStepName
	}
	return NextEligibleStep(&inst.Template, data, cur.Order), nil
}
