package routing

import (
	"os"

	"gopkg.in/yaml.v3"
)

// seedDocument is the on-disk shape of an operator-editable capability
// map seed file. YAML (rather than the JSON the
// runtime config persists as) matches the pack's convention of
// human-edited bootstrap files being YAML while machine-managed
// hot-reload state is JSON.
type seedDocument struct {
	Categories map[string]CategoryRouting `yaml:"categories"`
	Tiers      map[string]TierConfig      `yaml:"tiers"`
}

// LoadCapabilitySeed reads a YAML capability-map seed file and returns
// the categories/tiers it declares. A missing path is not an error: it
// returns nil maps. NewManager does not call it; a first-boot Config
// takes its categories from DefaultCapabilityMap alone, and cmd/nexusd
// does not pass ProcessConfig.CapabilitySeedPath here.
func LoadCapabilitySeed(path string) (map[string]CategoryRouting, map[string]TierConfig, error) {
	if path == "" {
		return nil, nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	var doc seedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, err
	}
	return doc.Categories, doc.Tiers, nil
}
