package config

import (
	"fmt"
	"strings"
)

// Completion roles, in execution order.
const (
	RoleSummary   = "summary"
	RoleAPI       = "api"
	RoleSpec      = "spec"
	RoleSpecmatic = "specmatic"
	RoleDiffs     = "diffs"
)

// Roles lists every completion role in execution order.
var Roles = []string{RoleSummary, RoleAPI, RoleSpec, RoleSpecmatic, RoleDiffs}

// IsRole reports whether name is a known completion role.
func IsRole(name string) bool {
	for _, r := range Roles {
		if r == name {
			return true
		}
	}
	return false
}

// StrategyConfig defines per-role model selections and fallbacks.
type StrategyConfig struct {
	DefaultModel string            `mapstructure:"default_model" yaml:"default_model,omitempty"`
	PlannerModel string            `mapstructure:"planner_model" yaml:"planner_model,omitempty"`
	CoderModel   string            `mapstructure:"coder_model" yaml:"coder_model,omitempty"`
	Overrides    map[string]string `mapstructure:"overrides" yaml:"overrides,omitempty"` // role -> model id
	Fallbacks    []string          `mapstructure:"fallbacks" yaml:"fallbacks,omitempty"` // ordered fallback model ids
}

func (s StrategyConfig) validate(models map[string]ModelConfig) error {
	for _, modelID := range []string{s.DefaultModel, s.PlannerModel, s.CoderModel} {
		if strings.TrimSpace(modelID) == "" {
			continue
		}
		if _, ok := models[modelID]; !ok {
			return fmt.Errorf("strategy references unknown model %q", modelID)
		}
	}
	for _, modelID := range s.Fallbacks {
		if _, ok := models[modelID]; !ok {
			return fmt.Errorf("strategy fallback references unknown model %q", modelID)
		}
	}
	for role, modelID := range s.Overrides {
		if !IsRole(role) {
			return fmt.Errorf("strategy override references unknown role %q", role)
		}
		if _, ok := models[modelID]; !ok {
			return fmt.Errorf("strategy override for %s references unknown model %q", role, modelID)
		}
	}
	return nil
}
