package question

import (
	"fmt"
	"strings"

	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
)

const (
	defaultContextualQuota = 3
	defaultGlobalQuota     = 5
	defaultQuestionLength  = 240
)

// Strategy is the closed set of generation modes: LocalStrategy, ContextualStrategy,
// GlobalStrategy and SmartMix.
type Strategy interface {
	Name() string
	plan(src *unitSource, quota int) ([]phase, error)
}

// Plan pairs a strategy with its quota. Quota 0 means unbounded for single
// strategies; SmartMix carries its own total.
type Plan struct {
	Strategy Strategy
	Quota    int
}

type LocalStrategy struct{}

type ContextualStrategy struct{}

type GlobalStrategy struct{}

// SmartMix splits TotalSize across the three strategies by percentage.
type SmartMix struct {
	TotalSize  int `json:"total_size"`
	Local      int `json:"local"`
	Contextual int `json:"contextual"`
	Global     int `json:"global"`
}

func (LocalStrategy) Name() string      { return string(model.QuestionTypeLocal) }
func (ContextualStrategy) Name() string { return string(model.QuestionTypeContextual) }
func (GlobalStrategy) Name() string     { return string(model.QuestionTypeGlobal) }
func (SmartMix) Name() string           { return "smart-mix" }

func (s SmartMix) Validate() error {
	if s.TotalSize <= 0 {
		return fmt.Errorf("smart mix total size must be positive: %w", appErr.ErrTaskSetup)
	}
	if s.Local < 0 || s.Contextual < 0 || s.Global < 0 {
		return fmt.Errorf("smart mix percentages must not be negative: %w", appErr.ErrTaskSetup)
	}
	if sum := s.Local + s.Contextual + s.Global; sum != 100 {
		return fmt.Errorf("smart mix percentages sum to %d, want 100: %w", sum, appErr.ErrTaskSetup)
	}
	return nil
}

// Allocation is how many questions each strategy of a smart mix should produce.
type Allocation struct {
	Local      int
	Contextual int
	Global     int
}

// Allocate floors the global and contextual shares and gives local the remainder,
// so the three always add up to TotalSize.
func (s SmartMix) Allocate() Allocation {
	global := s.TotalSize * s.Global / 100
	contextual := s.TotalSize * s.Contextual / 100
	return Allocation{
		Global:     global,
		Contextual: contextual,
		Local:      s.TotalSize - global - contextual,
	}
}

// ParseStrategy maps a request name to a strategy. "smart-mix" needs the mix parameters.
func ParseStrategy(name string, mix *SmartMix) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", string(model.QuestionTypeLocal):
		return LocalStrategy{}, nil
	case string(model.QuestionTypeContextual):
		return ContextualStrategy{}, nil
	case string(model.QuestionTypeGlobal):
		return GlobalStrategy{}, nil
	case "smart-mix", "smart_mix", "smartmix":
		if mix == nil {
			return nil, fmt.Errorf("smart mix parameters required: %w", appErr.ErrMissingParameter)
		}
		if err := mix.Validate(); err != nil {
			return nil, err
		}
		return *mix, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q: %w", name, appErr.ErrInvalid)
	}
}

func (p Plan) Validate() error {
	if p.Strategy == nil {
		return fmt.Errorf("no strategy: %w", appErr.ErrTaskSetup)
	}
	if p.Quota < 0 {
		return fmt.Errorf("negative quota: %w", appErr.ErrTaskSetup)
	}
	if mix, ok := p.Strategy.(SmartMix); ok {
		return mix.Validate()
	}
	return nil
}

type workItem struct {
	unit  Unit
	quota int
}

type phase struct {
	typ   model.QuestionType
	items []workItem
}

func (p phase) total() int {
	sum := 0
	for _, it := range p.items {
		sum += it.quota
	}
	return sum
}

// unitQuota spreads a bounded quota over units; unbounded units keep their defaults.
func unitQuota(quota, unitCount, fallback int) int {
	if quota <= 0 {
		return fallback
	}
	if unitCount <= 0 {
		return 0
	}
	return max(1, quota/unitCount)
}

func (LocalStrategy) plan(src *unitSource, quota int) ([]phase, error) {
	units, err := src.localUnits()
	if err != nil {
		return nil, err
	}
	items := make([]workItem, 0, len(units))
	for _, u := range units {
		fallback := max(1, runeCount(u.Context.Anchor.Content)/src.questionLength)
		items = append(items, workItem{unit: u, quota: unitQuota(quota, len(units), fallback)})
	}
	return []phase{{typ: model.QuestionTypeLocal, items: items}}, nil
}

func (ContextualStrategy) plan(src *unitSource, quota int) ([]phase, error) {
	units, err := src.contextualUnits()
	if err != nil {
		return nil, err
	}
	items := make([]workItem, 0, len(units))
	for _, u := range units {
		items = append(items, workItem{unit: u, quota: unitQuota(quota, len(units), defaultContextualQuota)})
	}
	return []phase{{typ: model.QuestionTypeContextual, items: items}}, nil
}

func (GlobalStrategy) plan(src *unitSource, quota int) ([]phase, error) {
	units, err := src.globalUnits()
	if err != nil {
		return nil, err
	}
	items := make([]workItem, 0, len(units))
	for _, u := range units {
		items = append(items, workItem{unit: u, quota: unitQuota(quota, len(units), defaultGlobalQuota)})
	}
	return []phase{{typ: model.QuestionTypeGlobal, items: items}}, nil
}

// plan orders phases global, contextual, local. A zero share skips its phase.
func (s SmartMix) plan(src *unitSource, _ int) ([]phase, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	alloc := s.Allocate()
	steps := []struct {
		strategy Strategy
		quota    int
	}{
		{GlobalStrategy{}, alloc.Global},
		{ContextualStrategy{}, alloc.Contextual},
		{LocalStrategy{}, alloc.Local},
	}
	out := make([]phase, 0, len(steps))
	for _, step := range steps {
		if step.quota <= 0 {
			continue
		}
		phases, err := step.strategy.plan(src, step.quota)
		if err != nil {
			return nil, err
		}
		out = append(out, phases...)
	}
	return out, nil
}
