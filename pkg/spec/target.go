package spec

import (
	"fmt"
	"strings"
)

// Target is one runtime/ABI/platform/arch combination a prebuild can be
// fetched for.
type Target struct {
	Runtime  string `json:"runtime" yaml:"runtime"`
	ABI      string `json:"abi" yaml:"abi"`
	Platform string `json:"platform" yaml:"platform"`
	Arch     string `json:"arch" yaml:"arch"`
}

// Essential returns the canonical name of the target used in artifact names
// and output directories, e.g. "node-v108-linux-x64".
func (t Target) Essential() string {
	return fmt.Sprintf("%s-v%s-%s-%s", t.Runtime, t.ABI, t.Platform, t.Arch)
}

// String returns the space separated tuple printed before each install.
func (t Target) String() string {
	return strings.Join([]string{t.Runtime, t.ABI, t.Platform, t.Arch}, " ")
}

// RuntimeABI is a single entry of the "targets" list.
type RuntimeABI struct {
	Runtime string `json:"runtime" yaml:"runtime"`
	ABI     string `json:"abi" yaml:"abi"`
}

// ParseRuntimeABI splits a "runtime-abi" string. Only the first two
// dash-separated fields are used; anything after them is ignored.
func ParseRuntimeABI(s string) RuntimeABI {
	parts := strings.Split(strings.TrimSpace(s), "-")
	ra := RuntimeABI{Runtime: parts[0]}
	if len(parts) > 1 {
		ra.ABI = parts[1]
	}
	return ra
}

func (ra RuntimeABI) String() string {
	return ra.Runtime + "-" + ra.ABI
}

// InstallConfig is the merged install preference set. Targets holds the raw
// manifest entries; they are parsed by the matrix builder.
type InstallConfig struct {
	Targets   []string `json:"targets" yaml:"targets"`
	Platforms []string `json:"platforms" yaml:"platforms"`
	Arches    []string `json:"arches" yaml:"arches"`
}

// DefaultInstallConfig returns the config used when no manifest declares one.
func DefaultInstallConfig(platform, arch string) InstallConfig {
	return InstallConfig{
		Targets:   []string{},
		Platforms: []string{platform},
		Arches:    []string{arch},
	}
}

// Package identifies the addon package whose prebuilds are installed.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
