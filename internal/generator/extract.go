package generator

import (
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?is)```(?:powershell|ps1)?\\s*\\n(.*?)```")

var scriptOpeners = []string{"<#", "#", "[", "$", "Function", "Configuration"}

// fragmentMaxWords is the cutoff below which multi-line prose is taken as a
// script fragment.
const fragmentMaxWords = 50

// ExtractScript pulls script text out of a free-text model reply. The
// longest non-blank fenced PowerShell block wins; otherwise content that
// opens like a script, or a short multi-line fragment, is returned trimmed.
// Anything else is returned trimmed with ok false.
func ExtractScript(content string) (text string, ok bool) {
	if content == "" {
		return "", false
	}
	best := ""
	for _, m := range fencedBlock.FindAllStringSubmatch(content, -1) {
		if strings.TrimSpace(m[1]) != "" && len(m[1]) > len(best) {
			best = m[1]
		}
	}
	if best != "" {
		return strings.TrimSpace(best), true
	}

	trimmed := strings.TrimSpace(content)
	for _, p := range scriptOpeners {
		if strings.HasPrefix(trimmed, p) {
			return trimmed, true
		}
	}
	if len(strings.Fields(trimmed)) < fragmentMaxWords && strings.Contains(trimmed, "\n") {
		return trimmed, true
	}
	return trimmed, false
}
