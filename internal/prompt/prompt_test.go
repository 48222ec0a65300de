package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psadtagent/internal/installer"
	"psadtagent/internal/knowledge"
	"psadtagent/internal/llm"
)

func sevenZip() installer.Metadata {
	return installer.Metadata{
		Name:          "7-Zip",
		Version:       "23.01",
		Vendor:        "Igor Pavlov",
		InstallerType: "msi",
		SilentArgs:    "/qn",
	}
}

func result(name, content string, score float64) knowledge.SearchResult {
	return knowledge.SearchResult{
		Document: knowledge.Document{ID: name, Content: content, Metadata: map[string]string{"filename": name}},
		Score:    score,
	}
}

func TestBuildGenerationPromptShape(t *testing.T) {
	msgs := BuildGenerationPrompt(sevenZip(), "", nil)
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Equal(t, SystemPrompt(), msgs[0].Content)
	assert.Contains(t, msgs[0].Content, "10. Ensure clean exit with Exit-Script")

	user := msgs[1].Content
	assert.True(t, strings.HasPrefix(user, "## Installer Information\nApplication Name: 7-Zip\nVersion: 23.01\nVendor: Igor Pavlov\nInstaller Type: MSI\nArchitecture: x64\nLanguage: EN\nSilent Install Arguments: /qn\n"))
	assert.NotContains(t, user, "Installer Path:")
	assert.NotContains(t, user, "Uninstall Arguments:")
	assert.NotContains(t, user, "## Additional Requirements")
	assert.NotContains(t, user, "## PSADT Documentation Context")
	assert.True(t, strings.HasSuffix(user, "\n\n## Task\n"+taskInstruction))
}

func TestBuildGenerationPromptNotesAndContext(t *testing.T) {
	long := strings.Repeat("é", MaxContextRunes+10)
	ctxs := []knowledge.SearchResult{
		result("msi.md", "Execute-MSI docs", 0.91234),
		result("long.md", long, 0.5),
	}
	msgs := BuildGenerationPrompt(sevenZip(), "  Silent install, no reboot  ", ctxs)
	user := msgs[1].Content

	assert.Contains(t, user, "\n\n## Additional Requirements\nSilent install, no reboot\n")
	assert.Contains(t, user, "\n\n## PSADT Documentation Context\nThe following documentation excerpts are relevant to your task:\n")
	assert.Contains(t, user, "\n\n### Context 1 (Score: 0.912)\nSource: msi.md\nExecute-MSI docs\n")
	assert.Contains(t, user, "### Context 2 (Score: 0.500)\nSource: long.md\n"+strings.Repeat("é", MaxContextRunes)+"...[truncated]")
	assert.NotContains(t, user, strings.Repeat("é", MaxContextRunes+1))
}

func TestBuildGenerationPromptLimitsContexts(t *testing.T) {
	var ctxs []knowledge.SearchResult
	for i := 1; i <= 10; i++ {
		ctxs = append(ctxs, result(fmt.Sprintf("doc%d.md", i), "body", 1/float64(i)))
	}
	user := BuildGenerationPrompt(sevenZip(), "", ctxs)[1].Content
	assert.Contains(t, user, "### Context 8 ")
	assert.NotContains(t, user, "### Context 9 ")
	assert.NotContains(t, user, "doc9.md")

	unnamed := knowledge.SearchResult{Document: knowledge.Document{ID: "x", Content: "c"}}
	user = BuildGenerationPrompt(sevenZip(), "", []knowledge.SearchResult{unnamed})[1].Content
	assert.Contains(t, user, "Source: Unknown")
}

func TestBuildGenerationPromptExactLength(t *testing.T) {
	exact := strings.Repeat("a", MaxContextRunes)
	user := BuildGenerationPrompt(sevenZip(), "", []knowledge.SearchResult{result("a.md", exact, 1)})[1].Content
	assert.Contains(t, user, exact)
	assert.NotContains(t, user, "[truncated]")
}

func TestBuildGenerationPromptOptionalFields(t *testing.T) {
	meta := sevenZip()
	meta.InstallerPath = "Files\\7z.msi"
	meta.UninstallArgs = "/x"
	meta.Notes = "vendor build"
	meta.Architecture = "x86"
	user := BuildGenerationPrompt(meta, "", nil)[1].Content
	assert.Contains(t, user, "Architecture: x86\nLanguage: EN\nInstaller Path: Files\\7z.msi\nSilent Install Arguments: /qn\nUninstall Arguments: /x\nInstaller Notes: vendor build\n")
}

func TestBuildRAGQuery(t *testing.T) {
	cases := []struct {
		name  string
		meta  installer.Metadata
		notes string
		want  string
	}{
		{"msi", installer.Metadata{Name: "7-Zip", InstallerType: "MSI"}, "", "MSI Execute-MSI Windows Installer PSADT deployment installation"},
		{"exe browser", installer.Metadata{Name: "Google Chrome", InstallerType: "exe"}, "", "EXE Execute-Process executable web browser PSADT deployment installation"},
		{"office before adobe", installer.Metadata{Name: "Adobe Word Reader", InstallerType: "msp"}, "", "Microsoft Office PSADT deployment installation"},
		{"java", installer.Metadata{Name: "OpenJDK", InstallerType: "msi"}, "", "MSI Execute-MSI Windows Installer Java runtime PSADT deployment installation"},
		{"notes", installer.Metadata{Name: "Tool", InstallerType: "exe"}, "Silent install, set Registry key, create shortcut and Service",
			"EXE Execute-Process executable silent installation registry modification Windows service desktop shortcut PSADT deployment installation"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, BuildRAGQuery(c.meta, c.notes))
		})
	}
}

func TestBuildValidationPrompt(t *testing.T) {
	msgs := BuildValidationPrompt("Write-Log 'x'")
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.True(t, strings.HasPrefix(msgs[0].Content, "You are a PSADT script validator."))
	assert.Contains(t, msgs[0].Content, `- "score": numeric score from 0-100`)
	assert.Equal(t, "Please validate this PSADT script:\n\n```powershell\nWrite-Log 'x'\n```\n\nRespond with a JSON object containing your validation results.", msgs[1].Content)
}
