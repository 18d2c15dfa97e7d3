package spec

import (
	"fmt"
	"strings"
)

// Validate checks that a target entry can be used to build artifact names
// and output paths.
func (ra RuntimeABI) Validate() error {
	if ra.Runtime == "" {
		return fmt.Errorf("target %q has an empty runtime", ra.String())
	}
	if ra.ABI == "" {
		return fmt.Errorf("target %q has no ABI version (expected runtime-abi, e.g. node-108)", ra.String())
	}
	for _, r := range ra.ABI {
		if r < '0' || r > '9' {
			return fmt.Errorf("target %q has a non-numeric ABI version %q", ra.String(), ra.ABI)
		}
	}
	return ValidateComponent("runtime", ra.Runtime)
}

// ValidateComponent rejects values that cannot be embedded in an essential
// name: the essential name becomes a directory under builds/.
func ValidateComponent(kind, value string) error {
	if value == "" {
		return fmt.Errorf("%s is empty", kind)
	}
	if value == "." || value == ".." {
		return fmt.Errorf("%s %q is not a valid name", kind, value)
	}
	if strings.ContainsAny(value, `/\`) {
		return fmt.Errorf("%s %q contains a path separator", kind, value)
	}
	if strings.ContainsAny(value, " \t\r\n") {
		return fmt.Errorf("%s %q contains whitespace", kind, value)
	}
	return nil
}
