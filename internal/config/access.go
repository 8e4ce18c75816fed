package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed access.yaml
var defaultAccessYAML []byte

// Access maps an asset route name to the roles allowed to call it.
// Assets missing from the map fall back to Default.
type Access struct {
	Default []string            `yaml:"default"`
	Assets  map[string][]string `yaml:"assets"`
}

// LoadAccess reads the role allow-list from path, or the embedded defaults
// when path is empty.
func LoadAccess(path string) (Access, error) {
	raw := defaultAccessYAML
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Access{}, fmt.Errorf("read access config: %w", err)
		}
		raw = b
	}
	return ParseAccess(raw)
}

func ParseAccess(raw []byte) (Access, error) {
	var a Access
	if err := yaml.Unmarshal(raw, &a); err != nil {
		return Access{}, fmt.Errorf("parse access config: %w", err)
	}
	if len(a.Default) == 0 {
		return Access{}, fmt.Errorf("parse access config: default roles required")
	}
	return a, nil
}

func (a Access) RolesFor(asset string) []string {
	if roles, ok := a.Assets[asset]; ok && len(roles) > 0 {
		return roles
	}
	return a.Default
}
