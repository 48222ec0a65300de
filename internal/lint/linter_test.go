package lint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psadtagent/internal/installer"
	"psadtagent/internal/script"
)

func renderedScript(t *testing.T) string {
	t.Helper()
	s := &script.Script{
		Installation: &script.Section{
			Name: "Installation",
			Commands: []script.Command{{
				Name: "Execute-MSI",
				Parameters: script.NewOrdered[any](
					script.P[any]("Action", "Install"),
					script.P[any]("Path", "7z2107-x64.msi"),
				),
			}},
		},
	}
	out, err := script.Render(s, installer.Metadata{
		Name: "7-Zip", Version: "21.07.00.0", Vendor: "Igor Pavlov", InstallerType: "msi",
	})
	require.NoError(t, err)
	return out
}

func TestValidate_RenderedScriptIsPerfect(t *testing.T) {
	res := Validate(renderedScript(t))
	assert.True(t, res.Valid)
	assert.Equal(t, 100, res.Score)
	assert.Empty(t, res.Issues)
	assert.Empty(t, res.Suggestions)
}

func TestValidate_EmptyScript(t *testing.T) {
	res := Validate("")
	assert.False(t, res.Valid)
	assert.Equal(t, 0, res.Score)
	assert.Contains(t, res.Issues, "Missing required pattern: Write-Log")
	assert.Contains(t, res.Issues, "Script appears too short.")
	assert.Contains(t, res.Issues, "Missing proper VARIABLE DECLARATION section")
	assert.Contains(t, res.Suggestions, `Consider adding: Execute-(MSI|Process)`)
	assert.Len(t, res.Suggestions, 5)
}

func TestValidate_PlaceholderScoresBelowThreshold(t *testing.T) {
	res := Validate("# Error: LLM provided no content and no tool call.")
	assert.False(t, res.Valid)
	assert.Equal(t, 0, res.Score)
	assert.GreaterOrEqual(t, len(res.Issues), 12)
}

func TestValidate_SecurityPenalty(t *testing.T) {
	clean := renderedScript(t)
	dirty := clean + "\nInvoke-Expression $code\niex $more\n"

	a, b := Validate(clean), Validate(dirty)
	assert.Equal(t, a.Score-30, b.Score)
	assert.Contains(t, b.Issues, "Security concern: Invoke-Expression")
	assert.Contains(t, b.Issues, `Security concern: iex\s`)
}

func TestValidate_CaseInsensitive(t *testing.T) {
	upper := strings.ToUpper(renderedScript(t))
	assert.Equal(t, 100, Validate(upper).Score)
}

func TestValidate_Deterministic(t *testing.T) {
	text := "Write-Log 'x'\nExit-Script"
	assert.Equal(t, Validate(text), Validate(text))
}

// Adding a missing required pattern never lowers the score.
func TestValidate_AddingRequiredPatternIsMonotonic(t *testing.T) {
	base := "Try {\n}\n"
	before := Validate(base).Score
	after := Validate(base + "Write-Log -Message 'hi'\n").Score
	assert.Equal(t, before+10, after)
}

func TestValidate_ShortScriptBoundary(t *testing.T) {
	lines19 := strings.Repeat("x\n", 18) + "x"
	lines20 := strings.Repeat("x\n", 19) + "x"
	assert.Contains(t, Validate(lines19).Issues, "Script appears too short.")
	assert.NotContains(t, Validate(lines20).Issues, "Script appears too short.")
}

func TestNewRuleSet_RejectsBadRules(t *testing.T) {
	_, err := NewRuleSet([]Rule{{Pattern: "(", Category: Required, Penalty: 1}})
	assert.ErrorIs(t, err, ErrBadRule)
	_, err = NewRuleSet([]Rule{{Pattern: "x", Category: "maybe", Penalty: 1}})
	assert.ErrorIs(t, err, ErrBadRule)
	_, err = NewRuleSet([]Rule{{Pattern: "x", Category: Required, Penalty: -1}})
	assert.ErrorIs(t, err, ErrBadRule)
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`rules:
  - pattern: 'Write-Log'
    category: required
    penalty: 50
  - pattern: 'Remove-Item\s+-Recurse'
    category: forbidden
    penalty: 20
    message: Recursive delete
`), 0o644))

	rs, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rs.Rules(), 2)

	res := New(rs).Validate(strings.Repeat("Write-Log\n", 25) + "Remove-Item -Recurse C:\\temp")
	assert.Equal(t, 80, res.Score)
	assert.Equal(t, []string{"Recursive delete"}, res.Issues)
	assert.True(t, res.Valid)
}
