package prompt

import (
	"strings"

	"psadtagent/internal/installer"
)

type termRule struct {
	needles []string
	term    string
}

// First match wins.
var appCategories = []termRule{
	{[]string{"office", "word", "excel", "powerpoint"}, "Microsoft Office"},
	{[]string{"chrome", "firefox", "browser"}, "web browser"},
	{[]string{"java", "jre", "jdk"}, "Java runtime"},
	{[]string{"adobe", "acrobat", "reader"}, "Adobe"},
}

// Every match is added.
var noteTerms = []termRule{
	{[]string{"silent"}, "silent installation"},
	{[]string{"registry"}, "registry modification"},
	{[]string{"service"}, "Windows service"},
	{[]string{"shortcut"}, "desktop shortcut"},
}

// BuildRAGQuery assembles the retrieval query from the installer type, the
// application name and keywords in the user notes.
func BuildRAGQuery(meta installer.Metadata, userNotes string) string {
	var terms []string
	switch meta.Type() {
	case "msi":
		terms = append(terms, "MSI", "Execute-MSI", "Windows Installer")
	case "exe":
		terms = append(terms, "EXE", "Execute-Process", "executable")
	}

	name := strings.ToLower(meta.Name)
	for _, c := range appCategories {
		if containsAny(name, c.needles) {
			terms = append(terms, c.term)
			break
		}
	}

	notes := strings.ToLower(userNotes)
	for _, n := range noteTerms {
		if containsAny(notes, n.needles) {
			terms = append(terms, n.term)
		}
	}

	terms = append(terms, "PSADT", "deployment", "installation")
	return strings.Join(terms, " ")
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
