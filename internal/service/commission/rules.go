package commission

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/models"
)

// Rules is the per level commission table
// Level 1 is the direct sponsor; levels without a rule are walked but not paid
type Rules struct {
	MaxDepth int
	Levels   map[int]decimal.Decimal
}

func DefaultRules() Rules {
	return Rules{
		MaxDepth: 3,
		Levels: map[int]decimal.Decimal{
			1: decimal.NewFromInt(10),
			2: decimal.NewFromInt(5),
			3: decimal.NewFromInt(2),
		},
	}
}

// Percent of the level and whether the level is paid
func (r Rules) Percent(level int) (decimal.Decimal, bool) {
	p, ok := r.Levels[level]
	return p, ok
}

// List of rules ordered by level
func (r Rules) List() []models.CommissionRule {
	rules := make([]models.CommissionRule, 0, len(r.Levels))
	for level, percent := range r.Levels {
		rules = append(rules, models.CommissionRule{Level: level, Percent: percent})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Level < rules[j].Level })
	return rules
}

func (r Rules) Validate() error {
	if r.MaxDepth <= 0 {
		return fmt.Errorf("%w: max depth must be positive", apperrors.ErrInvalidCommissionRules)
	}

	total := decimal.Zero
	for level, percent := range r.Levels {
		if level < 1 || level > r.MaxDepth {
			return fmt.Errorf("%w: level %d outside 1..%d", apperrors.ErrInvalidCommissionRules, level, r.MaxDepth)
		}
		if !percent.IsPositive() || percent.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: level %d percent %s outside (0, 100]", apperrors.ErrInvalidCommissionRules, level, percent)
		}
		total = total.Add(percent)
	}

	if total.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: levels pay %s%% in total", apperrors.ErrInvalidCommissionRules, total)
	}

	return nil
}

type rulesFile struct {
	MaxDepth int `toml:"max_depth"`
	Levels   []struct {
		Level   int             `toml:"level"`
		Percent decimal.Decimal `toml:"percent"`
	} `toml:"levels"`
}

// LoadRules reads rules from TOML file like:
//
//	max_depth = 3
//
//	[[levels]]
//	level = 1
//	percent = "10"
func LoadRules(path string) (Rules, error) {
	var f rulesFile

	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return Rules{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidCommissionRules, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Rules{}, fmt.Errorf("%w: unknown keys %v", apperrors.ErrInvalidCommissionRules, undecoded)
	}

	rules := Rules{MaxDepth: f.MaxDepth, Levels: make(map[int]decimal.Decimal, len(f.Levels))}
	for _, l := range f.Levels {
		if _, ok := rules.Levels[l.Level]; ok {
			return Rules{}, fmt.Errorf("%w: level %d defined twice", apperrors.ErrInvalidCommissionRules, l.Level)
		}
		rules.Levels[l.Level] = l.Percent
	}

	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}

	return rules, nil
}
