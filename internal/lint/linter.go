package lint

import "strings"

// Result is produced fresh by every Validate call.
type Result struct {
	Valid       bool     `json:"valid"`
	Score       int      `json:"score"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

// Linter is safe for concurrent use; it holds only an immutable RuleSet.
type Linter struct {
	rules *RuleSet
}

// New returns a Linter over rs, or over DefaultRules when rs is nil.
func New(rs *RuleSet) *Linter {
	if rs == nil {
		rs = DefaultRules
	}
	return &Linter{rules: rs}
}

// Validate scores text. It is pure: the same text always yields the same
// result.
func (l *Linter) Validate(text string) Result {
	res := Result{Score: StartScore, Issues: []string{}, Suggestions: []string{}}

	var structural []Rule
	for _, r := range l.rules.rules {
		switch r.Category {
		case Required:
			if !r.re.MatchString(text) {
				res.Issues = append(res.Issues, r.text())
				res.Score -= r.Penalty
			}
		case Recommended:
			if !r.re.MatchString(text) {
				res.Suggestions = append(res.Suggestions, r.text())
				res.Score -= r.Penalty
			}
		case Forbidden:
			if r.re.MatchString(text) {
				res.Issues = append(res.Issues, r.text())
				res.Score -= r.Penalty
			}
		case Structural:
			structural = append(structural, r)
		}
	}

	if strings.Count(text, "\n")+1 < MinLines {
		res.Issues = append(res.Issues, "Script appears too short.")
		res.Score -= ShortScriptPenalty
	}
	for _, r := range structural {
		if !r.re.MatchString(text) {
			res.Issues = append(res.Issues, r.text())
			res.Score -= r.Penalty
		}
	}

	if res.Score < 0 {
		res.Score = 0
	}
	res.Valid = res.Score >= ValidThreshold
	return res
}

// Validate lints text with DefaultRules.
func Validate(text string) Result { return New(nil).Validate(text) }
