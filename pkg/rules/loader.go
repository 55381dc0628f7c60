package rules

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed presets/*.yaml
var presetFS embed.FS

// File is the on-disk shape of a rule file.
type File struct {
	Version string  `yaml:"version,omitempty"`
	Rules   []*Rule `yaml:"rules"`
}

// Parse decodes a YAML rule file. Unknown keys are rejected so typos in
// operator-authored files surface immediately.
func Parse(data []byte) ([]*Rule, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}

	for i, r := range f.Rules {
		if r == nil {
			return nil, fmt.Errorf("rule %d is empty", i)
		}
	}
	return f.Rules, nil
}

// LoadFile reads rules from a YAML file.
func LoadFile(filePath string) ([]*Rule, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, &LoadError{Path: filePath, Cause: err}
	}
	rules, err := Parse(data)
	if err != nil {
		return nil, &LoadError{Path: filePath, Cause: err}
	}
	return rules, nil
}

// PresetNames lists the embedded presets.
func PresetNames() []string {
	entries, err := presetFS.ReadDir("presets")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// LoadPreset returns the rules of an embedded preset.
func LoadPreset(name string) ([]*Rule, error) {
	data, err := presetFS.ReadFile(path.Join("presets", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	rules, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", name, err)
	}
	return rules, nil
}
