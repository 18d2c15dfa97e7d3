// Package matrix expands install preferences into the ordered list of
// targets to install.
package matrix

import (
	"context"
	"fmt"
	"strings"

	"github.com/apex/log"
	"github.com/binary-install/prebuild/pkg/spec"
)

// Environment variables set by the package manager from --targets,
// --platforms and --arches.
const (
	EnvTargets   = "npm_config_targets"
	EnvPlatforms = "npm_config_platforms"
	EnvArches    = "npm_config_arches"

	// AllTargets replaces the whole config with the supported catalogue.
	AllTargets = "all"
)

// Platforms and arches forced by the "all" override.
var (
	AllPlatforms = []string{"win32", "darwin", "linux"}
	AllArches    = []string{"x64", "ia32"}
)

// Env holds comma-separated overrides. Empty fields are absent.
type Env struct {
	Targets   string
	Platforms string
	Arches    string
}

// EnvFromLookup reads the overrides with lookup, typically os.LookupEnv.
func EnvFromLookup(lookup func(string) (string, bool)) Env {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}
	return Env{
		Targets:   get(EnvTargets),
		Platforms: get(EnvPlatforms),
		Arches:    get(EnvArches),
	}
}

// HostFunc returns the target of the runtime running the install.
type HostFunc func(ctx context.Context) (spec.Target, error)

// Matrix is the ordered, duplicate-free list of targets to install.
type Matrix struct {
	Targets []spec.Target
	// HostImplied is set when nothing was configured and the single target
	// was derived from the live runtime.
	HostImplied bool
}

// InvalidTargetError reports a target entry that is not "runtime-abi".
type InvalidTargetError struct {
	Entry string
	Err   error
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("invalid target %q: %v", e.Entry, e.Err)
}

func (e *InvalidTargetError) Unwrap() error {
	return e.Err
}

// Builder merges the resolved config with environment overrides.
type Builder struct {
	Catalogue spec.Catalogue
	Host      HostFunc
}

// NewBuilder creates a Builder using the shipped catalogue.
func NewBuilder(host HostFunc) *Builder {
	return &Builder{Catalogue: spec.DefaultCatalogue(), Host: host}
}

// Build returns the targets to install, in targets × platforms × arches
// order. cfg is not modified.
func (b *Builder) Build(ctx context.Context, cfg spec.InstallConfig, env Env) (Matrix, error) {
	var (
		targets   []spec.RuntimeABI
		platforms = append([]string(nil), cfg.Platforms...)
		arches    = append([]string(nil), cfg.Arches...)
	)

	if env.Targets == AllTargets {
		log.Debug("installing every supported target")
		for _, st := range b.Catalogue {
			targets = append(targets, st.RuntimeABI())
		}
		platforms = append([]string(nil), AllPlatforms...)
		arches = append([]string(nil), AllArches...)
	} else {
		entries := append(append([]string(nil), cfg.Targets...), splitList(env.Targets)...)
		for _, entry := range entries {
			ra := spec.ParseRuntimeABI(entry)
			if err := ra.Validate(); err != nil {
				return Matrix{}, &InvalidTargetError{Entry: entry, Err: err}
			}
			targets = append(targets, ra)
		}
	}

	platforms = append(platforms, splitList(env.Platforms)...)
	arches = append(arches, splitList(env.Arches)...)
	for _, p := range platforms {
		if err := spec.ValidateComponent("platform", p); err != nil {
			return Matrix{}, &InvalidTargetError{Entry: p, Err: err}
		}
	}
	for _, a := range arches {
		if err := spec.ValidateComponent("arch", a); err != nil {
			return Matrix{}, &InvalidTargetError{Entry: a, Err: err}
		}
	}

	m := Matrix{Targets: Expand(targets, platforms, arches)}
	if len(m.Targets) > 0 {
		return m, nil
	}

	log.Debug("no targets configured, using the running runtime")
	t, err := b.Host(ctx)
	if err != nil {
		return Matrix{}, err
	}
	return Matrix{Targets: []spec.Target{t}, HostImplied: true}, nil
}

// Expand returns the cartesian product of the inputs, skipping excluded
// combinations and duplicates.
func Expand(targets []spec.RuntimeABI, platforms, arches []string) []spec.Target {
	var out []spec.Target
	seen := make(map[spec.Target]bool)
	for _, ra := range targets {
		for _, platform := range platforms {
			for _, arch := range arches {
				t := spec.Target{Runtime: ra.Runtime, ABI: ra.ABI, Platform: platform, Arch: arch}
				if Excluded(t) || seen[t] {
					continue
				}
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// Excluded reports whether no prebuild can exist for t: there are no 32-bit
// builds for macOS and Linux.
func Excluded(t spec.Target) bool {
	return (t.Platform == "darwin" || t.Platform == "linux") && t.Arch == "ia32"
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
