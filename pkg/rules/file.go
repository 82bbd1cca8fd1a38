package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/clover/pkg/models"
)

type ruleFile struct {
	Rules []models.MatchingRule `json:"rules" yaml:"rules"`
}

// LoadFile reads a {rules: [...]} document. Files ending in .yaml or .yml
// are parsed as YAML, anything else as JSON. Each rule is validated.
func LoadFile(path string) ([]models.MatchingRule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read matching rules %s: %w", path, err)
	}

	var file ruleFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &file)
	default:
		err = json.Unmarshal(raw, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse matching rules %s: %w", path, err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("matching rules %s: no rules defined", path)
	}

	for _, rule := range file.Rules {
		if err := ValidateRule(rule); err != nil {
			return nil, err
		}
	}
	return file.Rules, nil
}
