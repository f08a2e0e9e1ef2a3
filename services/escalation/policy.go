package escalation

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Actions a rule can apply when its threshold is met.
const (
	ActionPostingRestriction = "posting_restriction"
	ActionPermanentBan       = "permanent_ban"
)

// Risk levels attached to a fired rule.
const (
	LevelHigh     = "high"
	LevelCritical = "critical"
)

// Rule maps an active-warning threshold to an automatic action.
type Rule struct {
	Threshold int    `yaml:"threshold"`
	Level     string `yaml:"level"`
	Action    string `yaml:"action"`
	Days      int    `yaml:"days,omitempty"`
}

// Policy is an ordered threshold table. Rules are kept sorted by threshold
// descending so the highest matching threshold always wins.
type Policy struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultPolicy returns the compiled-in threshold table.
func DefaultPolicy() Policy {
	return Policy{Rules: []Rule{
		{Threshold: 7, Level: LevelCritical, Action: ActionPermanentBan},
		{Threshold: 5, Level: LevelCritical, Action: ActionPostingRestriction, Days: 7},
		{Threshold: 3, Level: LevelHigh, Action: ActionPostingRestriction, Days: 7},
	}}
}

// ParsePolicy decodes and validates a YAML policy document.
func ParsePolicy(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("escalation: parse policy: %w", err)
	}
	if err := p.validate(); err != nil {
		return Policy{}, err
	}
	p.sort()
	return p, nil
}

// LoadPolicyFile reads a policy from path. An empty path yields the
// compiled-in defaults.
func LoadPolicyFile(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("escalation: read policy %s: %w", path, err)
	}
	return ParsePolicy(data)
}

func (p Policy) validate() error {
	if len(p.Rules) == 0 {
		return fmt.Errorf("escalation: policy has no rules")
	}
	seen := map[int]bool{}
	for i, r := range p.Rules {
		if r.Threshold < 1 {
			return fmt.Errorf("escalation: rule %d: threshold must be positive", i)
		}
		if seen[r.Threshold] {
			return fmt.Errorf("escalation: duplicate threshold %d", r.Threshold)
		}
		seen[r.Threshold] = true
		switch r.Level {
		case LevelHigh, LevelCritical:
		default:
			return fmt.Errorf("escalation: rule %d: unknown level %q", i, r.Level)
		}
		switch r.Action {
		case ActionPermanentBan:
		case ActionPostingRestriction:
			if r.Days < 1 {
				return fmt.Errorf("escalation: rule %d: posting restriction needs a positive day count", i)
			}
		default:
			return fmt.Errorf("escalation: rule %d: unknown action %q", i, r.Action)
		}
	}
	return nil
}

func (p *Policy) sort() {
	sort.SliceStable(p.Rules, func(i, j int) bool {
		return p.Rules[i].Threshold > p.Rules[j].Threshold
	})
}

// Match returns the highest-threshold rule satisfied by the active warning
// count, or false when no rule fires.
func (p Policy) Match(activeWarnings int) (Rule, bool) {
	for _, r := range p.Rules {
		if activeWarnings >= r.Threshold {
			return r, true
		}
	}
	return Rule{}, false
}
