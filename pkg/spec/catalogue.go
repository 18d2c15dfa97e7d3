package spec

import (
	_ "embed"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

//go:embed supported_targets.yml
var supportedTargetsYAML []byte

// SupportedTarget is a runtime release prebuilds are published for.
type SupportedTarget struct {
	Runtime string `yaml:"runtime"`
	Version string `yaml:"version"`
	ABI     string `yaml:"abi"`
}

// RuntimeABI drops the runtime version alias.
func (s SupportedTarget) RuntimeABI() RuntimeABI {
	return RuntimeABI{Runtime: s.Runtime, ABI: s.ABI}
}

// Catalogue is the list of every supported target, used by the "all"
// targets override.
type Catalogue []SupportedTarget

// ParseCatalogue decodes a YAML list of supported targets.
func ParseCatalogue(data []byte) (Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "failed to parse supported target catalogue")
	}
	for i, t := range c {
		if err := t.RuntimeABI().Validate(); err != nil {
			return nil, errors.Wrapf(err, "catalogue entry %d", i)
		}
	}
	return c, nil
}

// DefaultCatalogue returns the catalogue shipped with the installer.
func DefaultCatalogue() Catalogue {
	c, err := ParseCatalogue(supportedTargetsYAML)
	if err != nil {
		panic(err)
	}
	return c
}
