package knowledge

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SwitchRecord is a known silent-install configuration for one product
// installer.
type SwitchRecord struct {
	ID                string `yaml:"id" json:"id"`
	Product           string `yaml:"product" json:"product"`
	FilePattern       string `yaml:"file_pattern,omitempty" json:"file_pattern,omitempty"`
	InstallSwitches   string `yaml:"install_switches" json:"install_switches"`
	UninstallSwitches string `yaml:"uninstall_switches,omitempty" json:"uninstall_switches,omitempty"`
	Notes             string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// SwitchCatalog is an immutable set of switch records in load order.
type SwitchCatalog struct {
	records []SwitchRecord
}

type switchFile struct {
	Switches []SwitchRecord `yaml:"switches"`
}

// NewSwitchCatalog rejects records without an id or product and repeated ids.
func NewSwitchCatalog(records []SwitchRecord) (*SwitchCatalog, error) {
	seen := make(map[string]bool, len(records))
	out := make([]SwitchRecord, 0, len(records))
	for i, r := range records {
		r.ID = strings.TrimSpace(r.ID)
		r.Product = strings.TrimSpace(r.Product)
		r.FilePattern = strings.TrimSpace(r.FilePattern)
		if r.ID == "" || r.Product == "" {
			return nil, fmt.Errorf("knowledge: switch record %d: id and product are required", i)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, r.ID)
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return &SwitchCatalog{records: out}, nil
}

// ParseSwitches reads a YAML document with a top-level "switches" list.
func ParseSwitches(raw []byte) (*SwitchCatalog, error) {
	var f switchFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("knowledge: parse switches: %w", err)
	}
	return NewSwitchCatalog(f.Switches)
}

func LoadSwitches(path string) (*SwitchCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: read switches: %w", err)
	}
	return ParseSwitches(raw)
}

func (c *SwitchCatalog) Len() int { return len(c.records) }

// FindSwitches returns up to topK records whose product equals product
// exactly. With a non-empty exe, records whose file pattern is a
// case-insensitive substring of exe come first, followed by records with no
// pattern; records whose pattern does not match are dropped. Load order is
// kept within each group.
func (c *SwitchCatalog) FindSwitches(product, exe string, topK int) []SwitchRecord {
	if topK <= 0 {
		topK = DefaultTopK
	}
	product = strings.TrimSpace(product)
	exe = strings.ToLower(strings.TrimSpace(exe))

	var matched, neutral []SwitchRecord
	for _, r := range c.records {
		if r.Product != product {
			continue
		}
		switch {
		case exe == "":
			matched = append(matched, r)
		case r.FilePattern == "":
			neutral = append(neutral, r)
		case strings.Contains(exe, strings.ToLower(r.FilePattern)):
			matched = append(matched, r)
		}
	}
	out := append(matched, neutral...)
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
