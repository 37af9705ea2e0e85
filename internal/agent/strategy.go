package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-coder/contractfix/internal/config"
	"github.com/animus-coder/contractfix/internal/llm"
)

// ErrUnknownRole is returned for a completion role outside the fixed set.
var ErrUnknownRole = errors.New("unknown completion role")

// StrategyEngine chooses models for completion roles.
type StrategyEngine struct {
	registry *llm.Registry
	cfg      config.StrategyConfig
}

// NewStrategyEngine builds a strategy selector.
func NewStrategyEngine(reg *llm.Registry, cfg config.StrategyConfig) *StrategyEngine {
	return &StrategyEngine{registry: reg, cfg: cfg}
}

// ResolveModel picks the model for role: override, then the role's
// planner/coder model, then the default model, then fallbacks, then the
// registry default.
func (s *StrategyEngine) ResolveModel(role string) (llm.Provider, llm.ModelRoute, error) {
	if s == nil || s.registry == nil {
		return nil, llm.ModelRoute{}, errors.New("strategy has no model registry")
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if !config.IsRole(role) {
		return nil, llm.ModelRoute{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	modelID := firstNonEmpty(
		s.cfg.Overrides[role],
		roleModel(role, s.cfg),
		s.cfg.DefaultModel,
	)
	if modelID != "" {
		if p, route, err := s.registry.Resolve(modelID); err == nil {
			return p, route, nil
		}
	}
	for _, fb := range s.cfg.Fallbacks {
		if p, route, err := s.registry.Resolve(fb); err == nil {
			return p, route, nil
		}
	}
	return s.registry.Resolve("")
}

// NextFallback returns the next fallback model id different from current.
func (s *StrategyEngine) NextFallback(current string) string {
	for _, fb := range s.cfg.Fallbacks {
		if strings.TrimSpace(fb) == "" || fb == current {
			continue
		}
		return fb
	}
	return ""
}

func roleModel(role string, cfg config.StrategyConfig) string {
	switch role {
	case config.RoleSummary, config.RoleSpecmatic:
		return cfg.PlannerModel
	default:
		return cfg.CoderModel
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
