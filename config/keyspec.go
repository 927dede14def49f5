package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// KeySpec maps table names to the ordered key columns used for update
// detection. Tables without an entry fall back to the first column of
// their schema.
type KeySpec struct {
	Tables map[string][]string `yaml:"tables"`
}

// LoadKeySpec reads a key-spec YAML file. An empty path yields an empty
// spec.
func LoadKeySpec(path string) (*KeySpec, error) {
	spec := &KeySpec{Tables: map[string][]string{}}
	if path == "" {
		return spec, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key spec file: %w", err)
	}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, fmt.Errorf("failed to parse key spec file: %w", err)
	}
	return spec, nil
}

// KeyColumns returns the configured key columns for a table, or nil when
// none are configured.
func (k *KeySpec) KeyColumns(table string) []string {
	if k == nil {
		return nil
	}
	return k.Tables[table]
}
