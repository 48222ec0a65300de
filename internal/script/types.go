// Package script defines the structured form of a PSADT deployment script
// returned by the model, its strict decoder and JSON schema, and the renderer
// that turns it into a Deploy-Application.ps1 body.
package script

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

var (
	ErrUnknownField        = errors.New("script: unknown field")
	ErrMissingInstallation = errors.New("script: installation section is required")
	ErrInvalid             = errors.New("script: invalid structured script")
)

var (
	variableName  = regexp.MustCompile(`^\$?[A-Za-z_][A-Za-z0-9_]*$`)
	parameterName = regexp.MustCompile(`^-?[A-Za-z_][A-Za-z0-9_]*$`)
	commandName   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(-[A-Za-z0-9_]+)*$`)
)

// Command is a single PSADT cmdlet invocation. Parameter values are
// strings, booleans or numbers; numbers are held as float64.
type Command struct {
	Name       string       `json:"name"`
	Parameters Ordered[any] `json:"parameters"`
	Comment    string       `json:"comment,omitempty"`
}

// Section is one phase of the deployment.
type Section struct {
	Name     string    `json:"name"`
	Commands []Command `json:"commands"`
	Comment  string    `json:"comment,omitempty"`
}

// Script is the structured deployment script. Installation is the only
// required phase.
type Script struct {
	Variables          Ordered[string] `json:"variables"`
	CustomFunctions    []string        `json:"custom_functions"`
	PreInstallation    *Section        `json:"pre_installation,omitempty"`
	Installation       *Section        `json:"installation"`
	PostInstallation   *Section        `json:"post_installation,omitempty"`
	PreUninstallation  *Section        `json:"pre_uninstallation,omitempty"`
	Uninstallation     *Section        `json:"uninstallation,omitempty"`
	PostUninstallation *Section        `json:"post_uninstallation,omitempty"`
}

// Phases returns the present sections in deployment order, keyed by their
// JSON field name.
func (s *Script) Phases() []Pair[*Section] {
	all := []Pair[*Section]{
		P("pre_installation", s.PreInstallation),
		P("installation", s.Installation),
		P("post_installation", s.PostInstallation),
		P("pre_uninstallation", s.PreUninstallation),
		P("uninstallation", s.Uninstallation),
		P("post_uninstallation", s.PostUninstallation),
	}
	out := all[:0]
	for _, p := range all {
		if p.Value != nil {
			out = append(out, p)
		}
	}
	return out
}

// Normalize strips surrounding whitespace from every string in the script.
func (s *Script) Normalize() {
	vars := Ordered[string]{}
	for _, p := range s.Variables.Pairs() {
		vars.Set(strings.TrimSpace(p.Key), strings.TrimSpace(p.Value))
	}
	s.Variables = vars
	for i, f := range s.CustomFunctions {
		s.CustomFunctions[i] = strings.TrimSpace(f)
	}
	for _, p := range s.Phases() {
		p.Value.normalize()
	}
}

func (sec *Section) normalize() {
	sec.Name = strings.TrimSpace(sec.Name)
	sec.Comment = strings.TrimSpace(sec.Comment)
	for i := range sec.Commands {
		c := &sec.Commands[i]
		c.Name = strings.TrimSpace(c.Name)
		c.Comment = strings.TrimSpace(c.Comment)
		params := Ordered[any]{}
		for _, p := range c.Parameters.Pairs() {
			v := p.Value
			if str, ok := v.(string); ok {
				v = strings.TrimSpace(str)
			}
			params.Set(strings.TrimSpace(p.Key), v)
		}
		c.Parameters = params
	}
}

// Validate checks the invariants the decoder cannot express.
func (s *Script) Validate() error {
	if s.Installation == nil {
		return ErrMissingInstallation
	}
	for _, k := range s.Variables.Keys() {
		if !variableName.MatchString(k) {
			return fmt.Errorf("%w: variable name %q is not a PowerShell identifier", ErrInvalid, k)
		}
	}
	for _, p := range s.Phases() {
		if p.Value.Name == "" {
			return fmt.Errorf("%w: %s has no name", ErrInvalid, p.Key)
		}
		for i, c := range p.Value.Commands {
			if c.Name == "" {
				return fmt.Errorf("%w: %s command %d has no name", ErrInvalid, p.Key, i)
			}
			if !commandName.MatchString(c.Name) {
				return fmt.Errorf("%w: %s command %q is not a cmdlet name", ErrInvalid, p.Key, c.Name)
			}
			for _, param := range c.Parameters.Pairs() {
				if param.Key == "" {
					return fmt.Errorf("%w: %s.%s has an empty parameter name", ErrInvalid, p.Key, c.Name)
				}
				if !parameterName.MatchString(param.Key) {
					return fmt.Errorf("%w: %s.%s parameter name %q is not an identifier", ErrInvalid, p.Key, c.Name, param.Key)
				}
				if !scalar(param.Value) {
					return fmt.Errorf("%w: %s.%s parameter %q must be a string, boolean or number",
						ErrInvalid, p.Key, c.Name, param.Key)
				}
			}
		}
	}
	return nil
}

func scalar(v any) bool {
	switch n := v.(type) {
	case string, bool:
		return true
	case float64:
		return !math.IsNaN(n) && !math.IsInf(n, 0)
	default:
		return false
	}
}
