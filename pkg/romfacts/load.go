package romfacts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Load reads a facts file emitted by the extraction stage.
func Load(path string) (Facts, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Facts{}, fmt.Errorf("failed to read facts file %s: %w", path, err)
	}

	var facts Facts
	if err := yaml.Unmarshal(raw, &facts); err != nil {
		return Facts{}, fmt.Errorf("failed to parse facts file %s: %w", path, err)
	}

	facts.Normalize()
	return facts, nil
}
