// Package lint scores PSADT scripts against a fixed rule table: required and
// recommended patterns, forbidden constructs and structural markers.
package lint

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

const (
	StartScore         = 100
	ValidThreshold     = 70
	MinLines           = 20
	ShortScriptPenalty = 5
)

var ErrBadRule = errors.New("lint: bad rule")

type Category string

const (
	Required    Category = "required"
	Recommended Category = "recommended"
	Forbidden   Category = "forbidden"
	Structural  Category = "structural"
)

// Rule is one pattern check. Required, recommended and structural rules
// fire when the pattern is absent; forbidden rules fire when it is present.
// Patterns are matched case-insensitively.
type Rule struct {
	Pattern  string   `yaml:"pattern"`
	Category Category `yaml:"category"`
	Penalty  int      `yaml:"penalty"`
	// Message overrides the generated issue text.
	Message string `yaml:"message,omitempty"`

	re *regexp.Regexp
}

func (r Rule) text() string {
	if r.Message != "" {
		return r.Message
	}
	switch r.Category {
	case Required:
		return "Missing required pattern: " + r.Pattern
	case Recommended:
		return "Consider adding: " + r.Pattern
	case Forbidden:
		return "Security concern: " + r.Pattern
	default:
		return "Missing structural marker: " + r.Pattern
	}
}

// RuleSet is compiled once and never mutated afterwards.
type RuleSet struct {
	rules []Rule
}

func (rs *RuleSet) Rules() []Rule { return append([]Rule(nil), rs.rules...) }

// NewRuleSet compiles rules. Any invalid pattern, category or negative
// penalty rejects the whole set.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		switch r.Category {
		case Required, Recommended, Forbidden, Structural:
		default:
			return nil, fmt.Errorf("%w: rule %d has category %q", ErrBadRule, i, r.Category)
		}
		if r.Penalty < 0 {
			return nil, fmt.Errorf("%w: rule %d has negative penalty", ErrBadRule, i)
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", ErrBadRule, i, err)
		}
		r.re = re
		out = append(out, r)
	}
	return &RuleSet{rules: out}, nil
}

func mustRuleSet(rules []Rule) *RuleSet {
	rs, err := NewRuleSet(rules)
	if err != nil {
		panic(err)
	}
	return rs
}

// DefaultRules is the PSADT v3 compliance table.
var DefaultRules = mustRuleSet([]Rule{
	{Pattern: `#\s*\.SYNOPSIS`, Category: Required, Penalty: 10},
	{Pattern: `#\s*\.DESCRIPTION`, Category: Required, Penalty: 10},
	{Pattern: `\[CmdletBinding\(\)\]`, Category: Required, Penalty: 10},
	{Pattern: `Param\s*\(`, Category: Required, Penalty: 10},
	{Pattern: `Try\s*\{`, Category: Required, Penalty: 10},
	{Pattern: `Catch\s*\{`, Category: Required, Penalty: 10},
	{Pattern: `Set-ExecutionPolicy`, Category: Required, Penalty: 10},
	{Pattern: `\$app(Vendor|Name|Version)`, Category: Required, Penalty: 10},
	{Pattern: `Show-InstallationWelcome`, Category: Required, Penalty: 10},
	{Pattern: `Show-InstallationProgress`, Category: Required, Penalty: 10},
	{Pattern: `Exit-Script`, Category: Required, Penalty: 10},
	{Pattern: `Write-Log`, Category: Required, Penalty: 10},

	{Pattern: `Execute-(MSI|Process)`, Category: Recommended, Penalty: 2},
	{Pattern: `installPhase\s*=`, Category: Recommended, Penalty: 2},
	{Pattern: `mainExitCode`, Category: Recommended, Penalty: 2},
	{Pattern: `deploymentType`, Category: Recommended, Penalty: 2},
	{Pattern: `AppDeployToolkitMain\.ps1`, Category: Recommended, Penalty: 2},

	{Pattern: `Invoke-Expression`, Category: Forbidden, Penalty: 15},
	{Pattern: `iex\s`, Category: Forbidden, Penalty: 15},
	{Pattern: `cmd\s*/c`, Category: Forbidden, Penalty: 15},
	{Pattern: `powershell\s*-c`, Category: Forbidden, Penalty: 15},

	{Pattern: `##\*.*VARIABLE DECLARATION.*\*##`, Category: Structural, Penalty: 5,
		Message: "Missing proper VARIABLE DECLARATION section"},
	{Pattern: `##\*.*INSTALLATION.*\*##`, Category: Structural, Penalty: 5,
		Message: "Missing proper INSTALLATION section"},
})

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML rule table of the form
//
//	rules:
//	  - pattern: 'Write-Log'
//	    category: required
//	    penalty: 10
func LoadRules(path string) (*RuleSet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lint: read rules: %w", err)
	}
	var f ruleFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("lint: parse rules %s: %w", path, err)
	}
	return NewRuleSet(f.Rules)
}
