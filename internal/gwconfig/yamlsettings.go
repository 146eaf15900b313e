package gwconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAMLSettings reads a channel's settings from a standalone YAML file
// and returns them re-encoded as the json.RawMessage gwtypes.ChannelDescriptor
// expects. This supplements the single JSON config document (spec.md §4.1
// only describes one config file) for operators who prefer editing a
// per-channel YAML file instead of nesting settings inside the main JSON
// document; it has no effect on validation semantics, which still apply to
// the re-encoded JSON.
func LoadYAMLSettings(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading channel settings %s: %w", path, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing channel settings %s: %w", path, err)
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("re-encoding channel settings %s: %w", path, err)
	}
	return out, nil
}
