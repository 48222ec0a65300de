package script

import (
	"bytes"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"psadtagent/internal/installer"
)

//go:embed templates/Deploy-Application.ps1.tmpl
var deployTemplate string

var tmpl = template.Must(template.New("deploy").Funcs(template.FuncMap{
	"quote":        psQuote,
	"indent":       indentBlock,
	"commands":     renderCommands,
	"phaseComment": phaseComment,
	"hasCommand":   hasCommand,
}).Parse(deployTemplate))

type renderData struct {
	AppName            string
	Variables          []Pair[string]
	CustomFunctions    []string
	PreInstallation    *Section
	Installation       *Section
	PostInstallation   *Section
	PreUninstallation  *Section
	Uninstallation     *Section
	PostUninstallation *Section
}

// Render produces the Deploy-Application.ps1 text for s. Application
// variables missing from s are filled from meta.
func Render(s *Script, meta installer.Metadata) (string, error) {
	if s == nil || s.Installation == nil {
		return "", ErrMissingInstallation
	}
	meta = meta.WithDefaults()
	data := renderData{
		AppName:            firstNonEmpty(s.Variables, "appName", meta.Name),
		Variables:          appVariables(s.Variables, meta),
		CustomFunctions:    s.CustomFunctions,
		PreInstallation:    s.PreInstallation,
		Installation:       s.Installation,
		PostInstallation:   s.PostInstallation,
		PreUninstallation:  s.PreUninstallation,
		Uninstallation:     s.Uninstallation,
		PostUninstallation: s.PostUninstallation,
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("script: render: %w", err)
	}
	return buf.String(), nil
}

// appVariables lists the standard PSADT application variables first, then
// any extra variables in the order the model declared them.
func appVariables(vars Ordered[string], meta installer.Metadata) []Pair[string] {
	std := []Pair[string]{
		P("appVendor", meta.Vendor),
		P("appName", meta.Name),
		P("appVersion", meta.Version),
		P("appArch", meta.Architecture),
		P("appLang", meta.Language),
		P("appRevision", "01"),
		P("appScriptVersion", "1.0.0"),
		P("appScriptDate", time.Now().Format("01/02/2006")),
		P("appScriptAuthor", "PSADT Agent"),
	}
	seen := make(map[string]bool, len(std))
	out := make([]Pair[string], 0, len(std)+vars.Len())
	for _, p := range std {
		seen[p.Key] = true
		if v, ok := lookupVar(vars, p.Key); ok {
			p.Value = v
		}
		out = append(out, p)
	}
	for _, p := range vars.Pairs() {
		key := strings.TrimPrefix(p.Key, "$")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, P(key, p.Value))
	}
	return out
}

// lookupVar finds key with or without the $ sigil.
func lookupVar(vars Ordered[string], key string) (string, bool) {
	if v, ok := vars.Get(key); ok {
		return v, true
	}
	return vars.Get("$" + key)
}

func firstNonEmpty(vars Ordered[string], key, fallback string) string {
	if v, ok := lookupVar(vars, key); ok && v != "" {
		return v
	}
	return fallback
}

func renderCommands(sec *Section) string {
	if sec == nil {
		return ""
	}
	var lines []string
	for _, c := range sec.Commands {
		if c.Comment != "" {
			lines = append(lines, "\t\t## "+c.Comment)
		}
		lines = append(lines, "\t\t"+FormatCommand(c))
	}
	return strings.Join(lines, "\n")
}

func phaseComment(sec *Section) string {
	if sec == nil || sec.Comment == "" {
		return ""
	}
	return "\n\t\t## " + sec.Comment
}

func hasCommand(sec *Section, name string) bool {
	if sec == nil {
		return false
	}
	for _, c := range sec.Commands {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// FormatCommand renders one cmdlet call. True booleans become bare switches
// and false ones are passed explicitly.
func FormatCommand(c Command) string {
	var b strings.Builder
	b.WriteString(c.Name)
	for _, p := range c.Parameters.Pairs() {
		name := strings.TrimLeft(p.Key, "-")
		switch v := p.Value.(type) {
		case bool:
			if v {
				fmt.Fprintf(&b, " -%s", name)
			} else {
				fmt.Fprintf(&b, " -%s:$false", name)
			}
		case string:
			fmt.Fprintf(&b, " -%s %s", name, psQuote(v))
		case float64:
			fmt.Fprintf(&b, " -%s %s", name, strconv.FormatFloat(v, 'f', -1, 64))
		default:
			fmt.Fprintf(&b, " -%s %v", name, v)
		}
	}
	return b.String()
}

// psQuote wraps s in single quotes, doubling embedded quotes.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func indentBlock(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = "\t" + l
		}
	}
	return "\n" + strings.Join(lines, "\n")
}
