// Package installer describes the installer being packaged and extracts a
// best-guess description from the installer file itself.
package installer

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidMetadata = errors.New("installer: invalid metadata")

const (
	DefaultArchitecture = "x64"
	DefaultLanguage     = "EN"
)

// Metadata is the immutable description of an installer handed to the
// generation pipeline. It is passed by value.
type Metadata struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	Vendor        string `json:"vendor"`
	InstallerType string `json:"installer_type"`
	InstallerPath string `json:"installer_path,omitempty"`
	SilentArgs    string `json:"silent_args,omitempty"`
	UninstallArgs string `json:"uninstall_args,omitempty"`
	Architecture  string `json:"architecture"`
	Language      string `json:"language"`
	Notes         string `json:"notes,omitempty"`
}

// WithDefaults fills optional fields that have a documented default.
func (m Metadata) WithDefaults() Metadata {
	if strings.TrimSpace(m.Architecture) == "" {
		m.Architecture = DefaultArchitecture
	}
	if strings.TrimSpace(m.Language) == "" {
		m.Language = DefaultLanguage
	}
	return m
}

// Validate reports every missing required field in one error.
func (m Metadata) Validate() error {
	var missing []string
	if strings.TrimSpace(m.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(m.Version) == "" {
		missing = append(missing, "version")
	}
	if strings.TrimSpace(m.Vendor) == "" {
		missing = append(missing, "vendor")
	}
	if strings.TrimSpace(m.InstallerType) == "" {
		missing = append(missing, "installer_type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidMetadata, strings.Join(missing, ", "))
	}
	return nil
}

// Type returns the lower-cased installer type.
func (m Metadata) Type() string {
	return strings.ToLower(strings.TrimSpace(m.InstallerType))
}

// IsMSI reports whether the installer is a Windows Installer package.
func (m Metadata) IsMSI() bool { return m.Type() == "msi" }
