package dsl

import (
	"github.com/aretw0/botflow/pkg/actions"
	"github.com/aretw0/botflow/pkg/domain"
)

// StepBuilder provides a fluent API for configuring a step.
type StepBuilder struct {
	step domain.Step
}

// Do sets the action and replaces its params.
func (s *StepBuilder) Do(action string, params map[string]any) *StepBuilder {
	s.step.Action = action
	s.step.Params = domain.CloneMap(params)
	return s
}

// Param sets a single action param.
func (s *StepBuilder) Param(key string, value any) *StepBuilder {
	if s.step.Params == nil {
		s.step.Params = make(map[string]any)
	}
	s.step.Params[key] = value
	return s
}

// Type sets the granularity label.
func (s *StepBuilder) Type(t domain.StepType) *StepBuilder {
	s.step.Type = t
	return s
}

// Send makes the step a send_message step.
func (s *StepBuilder) Send(text string) *StepBuilder {
	return s.Do(actions.SendMessage, map[string]any{"text": text})
}

// Ask makes the step a collect_input step saving the reply to variable.
func (s *StepBuilder) Ask(prompt, variable string) *StepBuilder {
	return s.Do(actions.CollectInput, map[string]any{"prompt": prompt, "variable": variable})
}

// Validator sets the collect_input validator (email, phone, number, regex).
func (s *StepBuilder) Validator(name string) *StepBuilder {
	return s.Param("validator", name)
}

// Set makes the step a set_variable step.
func (s *StepBuilder) Set(name string, value any) *StepBuilder {
	return s.Do(actions.SetVariable, map[string]any{"name": name, "value": value})
}

// Branch makes the step a condition step routing to onTrue or onFalse.
func (s *StepBuilder) Branch(expression, onTrue, onFalse string) *StepBuilder {
	s.Do(actions.Condition, map[string]any{"expression": expression})
	s.step.TrueStep = onTrue
	s.step.FalseStep = onFalse
	return s
}

// Go sets the unconditional successor.
func (s *StepBuilder) Go(target string) *StepBuilder {
	s.step.NextStep = target
	return s
}

// Terminal clears every successor.
func (s *StepBuilder) Terminal() *StepBuilder {
	s.step.NextStep = ""
	s.step.TrueStep = ""
	s.step.FalseStep = ""
	return s
}

// Build returns the underlying domain.Step.
func (s *StepBuilder) Build() domain.Step {
	step := s.step
	step.Params = domain.CloneMap(s.step.Params)
	return step
}
