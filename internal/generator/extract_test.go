package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractScript(t *testing.T) {
	longProse := strings.TrimSpace(strings.Repeat("this reply is only prose ", 20))
	cases := []struct {
		name    string
		content string
		want    string
		ok      bool
	}{
		{"empty", "", "", false},
		{"fenced powershell", "Sure:\n```powershell\nWrite-Log 'a'\n```\nDone.", "Write-Log 'a'", true},
		{"fenced ps1 upper", "```PS1\n$appName = 'x'\n```", "$appName = 'x'", true},
		{"untagged fence", "```\nExit-Script\n```", "Exit-Script", true},
		{"longest block wins", "```powershell\nshort\n```\n```powershell\nmuch longer block\n```", "much longer block", true},
		{"blank block skipped", "```powershell\n   \n```\n```powershell\nreal\n```", "real", true},
		{"comment block opener", "  <# .SYNOPSIS #>\nTry {}  ", "<# .SYNOPSIS #>\nTry {}", true},
		{"hash comment", "# Deploy\nWrite-Log", "# Deploy\nWrite-Log", true},
		{"bracket", "[CmdletBinding()]\nParam()", "[CmdletBinding()]\nParam()", true},
		{"variable", "$x = 1", "$x = 1", true},
		{"function keyword", "Function Foo {}", "Function Foo {}", true},
		{"configuration keyword", "Configuration Web {}", "Configuration Web {}", true},
		{"short fragment", "install the app\nthen reboot", "install the app\nthen reboot", true},
		{"single line prose", "I cannot help with that.", "I cannot help with that.", false},
		{"long prose", longProse + "\nmore", longProse + "\nmore", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := ExtractScript(c.content)
			assert.Equal(t, c.want, got)
			assert.Equal(t, c.ok, ok)
		})
	}
}
