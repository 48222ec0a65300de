package installer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var ErrUnsupportedType = errors.New("installer: unsupported installer type")

const headerSniffBytes = 1024

// MSI packages take the standard msiexec quiet switches.
const msiSilentArgs = "/qn /norestart"

var exeSilentSwitches = map[string]string{
	"inno":               "/SILENT /NORESTART",
	"nsis":               "/S",
	"installshield":      `/s /v"/qn"`,
	"advanced_installer": "/quiet",
	"burn":               "/quiet",
	"generic_setup":      "/S",
	"generic":            "/S",
}

var versionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)v?(\d+\.\d+\.\d+\.\d+)`),
	regexp.MustCompile(`(?i)v?(\d+\.\d+\.\d+)`),
	regexp.MustCompile(`(?i)v?(\d+\.\d+)`),
}

var (
	reTaggedVersion = regexp.MustCompile(`(?i)[_-]?v\d+[\d._-]*`)
	reBareVersion   = regexp.MustCompile(`(?i)[_-]?\d+\.\d+[\d._-]*`)
	reSeparators    = regexp.MustCompile(`[_-]+`)
)

type rewrite struct {
	re   *regexp.Regexp
	with string
}

// suffixRewrites strip installer suffixes at the end, middle and start of a name.
var suffixRewrites = func() []rewrite {
	var out []rewrite
	for _, s := range []string{"setup", "installer", "install", "x64", "x86", "win64", "win32", "windows"} {
		q := regexp.QuoteMeta(s)
		out = append(out,
			rewrite{regexp.MustCompile(`(?i)[_-]` + q + `$`), ""},
			rewrite{regexp.MustCompile(`(?i)[_-]` + q + `[_-]`), "_"},
			rewrite{regexp.MustCompile(`(?i)^` + q + `[_-]`), ""},
		)
	}
	return out
}()

// Extract inspects an installer file and returns best-effort metadata.
// Read failures on a file that exists degrade to filename-derived metadata.
func Extract(path string) (Metadata, error) {
	if _, err := os.Stat(path); err != nil {
		return Metadata{}, fmt.Errorf("installer: stat %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msi":
		return fallbackMetadata(path, "msi"), nil
	case ".exe":
		return extractEXE(path), nil
	default:
		return Metadata{}, fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(path))
	}
}

func extractEXE(path string) Metadata {
	f, err := os.Open(path)
	if err != nil {
		return fallbackMetadata(path, "exe")
	}
	defer f.Close()

	header := make([]byte, headerSniffBytes)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fallbackMetadata(path, "exe")
	}
	kind := DetectEXEKind(header[:n], filepath.Base(path))
	base := filepath.Base(path)
	return Metadata{
		Name:          NameFromFilename(base),
		Version:       VersionFromFilename(base),
		Vendor:        "Unknown",
		InstallerType: "exe",
		Architecture:  DefaultArchitecture,
		Language:      DefaultLanguage,
		SilentArgs:    SilentSwitches(kind),
	}
}

// DetectEXEKind classifies an EXE installer framework from its header bytes
// and file name.
func DetectEXEKind(header []byte, filename string) string {
	h := strings.ToLower(latin1(header))
	name := strings.ToLower(filename)
	switch {
	case strings.Contains(h, "inno setup") || strings.Contains(name, "innosetup"):
		return "inno"
	case strings.Contains(h, "nullsoft") || strings.Contains(name, "nsis"):
		return "nsis"
	case strings.Contains(h, "installshield") || strings.Contains(name, "installshield"):
		return "installshield"
	case strings.Contains(h, "advanced installer"):
		return "advanced_installer"
	case strings.Contains(h, "burn") && strings.Contains(name, "setup"):
		return "burn"
	case strings.Contains(name, "setup"):
		return "generic_setup"
	default:
		return "generic"
	}
}

// SilentSwitches returns the conventional quiet-install switches for an EXE kind.
func SilentSwitches(kind string) string {
	if s, ok := exeSilentSwitches[kind]; ok {
		return s
	}
	return "/S"
}

// VersionFromFilename returns the first dotted version found in the name, or 1.0.0.
func VersionFromFilename(filename string) string {
	for _, re := range versionPatterns {
		if m := re.FindStringSubmatch(filename); m != nil {
			return m[1]
		}
	}
	return "1.0.0"
}

// NameFromFilename strips extension, versions and installer suffixes and
// title-cases what remains.
func NameFromFilename(filename string) string {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	name = reTaggedVersion.ReplaceAllString(name, "")
	name = reBareVersion.ReplaceAllString(name, "")
	for _, rw := range suffixRewrites {
		name = rw.re.ReplaceAllString(name, rw.with)
	}
	name = strings.TrimSpace(reSeparators.ReplaceAllString(name, " "))
	words := strings.Fields(name)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	if len(words) == 0 {
		return "Unknown Application"
	}
	return strings.Join(words, " ")
}

func fallbackMetadata(path, kind string) Metadata {
	base := filepath.Base(path)
	silent := "/S"
	if kind == "msi" {
		silent = msiSilentArgs
	}
	return Metadata{
		Name:          NameFromFilename(base),
		Version:       VersionFromFilename(base),
		Vendor:        "Unknown",
		InstallerType: kind,
		Architecture:  DefaultArchitecture,
		Language:      DefaultLanguage,
		SilentArgs:    silent,
	}
}

func latin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}
