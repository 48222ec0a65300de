// Package prompt assembles the conversations sent to the language model.
package prompt

import (
	"fmt"
	"strings"

	"psadtagent/internal/installer"
	"psadtagent/internal/knowledge"
	"psadtagent/internal/llm"
)

const (
	// MaxContexts is the number of retrieved documents embedded in a prompt.
	MaxContexts = 8
	// MaxContextRunes bounds each embedded document.
	MaxContextRunes = 2000
	truncatedMarker = "...[truncated]"
)

const systemPrompt = "You are an expert PowerShell App Deployment Toolkit (PSADT) script generator.\n" +
	"Your task is to create production-ready PSADT v3.9+ deployment scripts\n" +
	"based on installer metadata and user requirements.\n\n" +
	"Key Requirements:\n" +
	"1. Generate complete, functional PSADT scripts following v3.9+ standards\n" +
	"2. Use proper error handling with Try-Catch blocks\n" +
	"3. Include appropriate logging with Write-Log\n" +
	"4. Handle Install/Uninstall/Repair deployment types\n" +
	"5. Use Show-InstallationWelcome and Show-InstallationProgress for user experience\n" +
	"6. Follow PSADT best practices for enterprise deployment\n" +
	"7. Include proper variable declarations and metadata\n" +
	"8. Use Execute-MSI for MSI files, Execute-Process for EXE files\n" +
	"9. Handle application closure gracefully\n" +
	"10. Ensure clean exit with Exit-Script\n\n" +
	"Always provide complete, working scripts that can be deployed immediately " +
	"in enterprise environments."

const taskInstruction = "Generate a complete PSADT v3.9+ PowerShell script for this installer. " +
	"The script should be production-ready and follow all PSADT best practices. " +
	"Include proper error handling, logging, user interaction, and support for " +
	"Install/Uninstall/Repair operations."

const validatorPrompt = `You are a PSADT script validator. Review the provided PowerShell script
and identify any issues, improvements, or non-compliance with PSADT v3.9+ standards.

Check for:
1. Proper PSADT structure and required sections
2. Correct variable declarations
3. Appropriate error handling
4. Proper use of PSADT functions
5. Syntax correctness
6. Best practice compliance
7. Security considerations

Provide a JSON response with the following keys:
- "valid": boolean indicating if script is valid
- "issues": array of issue descriptions
- "suggestions": array of improvement suggestions
- "score": numeric score from 0-100`

// SystemPrompt returns the fixed generation instruction.
func SystemPrompt() string { return systemPrompt }

// BuildGenerationPrompt returns the system instruction followed by one user
// message describing the installer, the notes and the retrieved context.
func BuildGenerationPrompt(meta installer.Metadata, userNotes string, contexts []knowledge.SearchResult) []llm.Message {
	return []llm.Message{
		llm.System(systemPrompt),
		llm.User(userPrompt(meta.WithDefaults(), userNotes, contexts)),
	}
}

func userPrompt(meta installer.Metadata, userNotes string, contexts []knowledge.SearchResult) string {
	parts := []string{
		"## Installer Information",
		"Application Name: " + meta.Name,
		"Version: " + meta.Version,
		"Vendor: " + meta.Vendor,
		"Installer Type: " + strings.ToUpper(meta.InstallerType),
		"Architecture: " + meta.Architecture,
		"Language: " + meta.Language,
	}
	optional := []struct{ label, value string }{
		{"Installer Path", meta.InstallerPath},
		{"Silent Install Arguments", meta.SilentArgs},
		{"Uninstall Arguments", meta.UninstallArgs},
		{"Installer Notes", meta.Notes},
	}
	for _, o := range optional {
		if o.value != "" {
			parts = append(parts, o.label+": "+o.value)
		}
	}

	if notes := strings.TrimSpace(userNotes); notes != "" {
		parts = append(parts, "\n## Additional Requirements", notes)
	}

	if len(contexts) > 0 {
		parts = append(parts,
			"\n## PSADT Documentation Context",
			"The following documentation excerpts are relevant to your task:")
		if len(contexts) > MaxContexts {
			contexts = contexts[:MaxContexts]
		}
		for i, r := range contexts {
			parts = append(parts,
				fmt.Sprintf("\n### Context %d (Score: %.3f)", i+1, r.Score),
				"Source: "+r.Document.Filename(),
				truncate(r.Document.Content, MaxContextRunes))
		}
	}

	parts = append(parts, "\n## Task", taskInstruction)
	return strings.Join(parts, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + truncatedMarker
}

// BuildValidationPrompt asks the model to review a finished script and
// answer with a JSON verdict. It is separate from the compliance linter.
func BuildValidationPrompt(scriptContent string) []llm.Message {
	user := "Please validate this PSADT script:\n\n" +
		"```powershell\n" + scriptContent + "\n```\n\n" +
		"Respond with a JSON object containing your validation results."
	return []llm.Message{
		llm.System(validatorPrompt),
		llm.User(user),
	}
}
