package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/binary-install/prebuild/pkg/spec"
	"github.com/pkg/errors"
)

const (
	// ManifestFile is the name of the manifest searched for in ancestor
	// directories.
	ManifestFile = "package.json"

	// DefaultKey is the manifest property holding install preferences.
	DefaultKey = "iohook"

	// DefaultMaxAttempts bounds how many ancestor directories are tried.
	DefaultMaxAttempts = 5
)

// Resolver finds the install preferences declared by the package that
// depends on the addon.
type Resolver struct {
	// Dir is the installer directory. The search starts at its parent.
	Dir string
	// Key is the manifest property holding the preferences.
	Key string
	// MaxAttempts is the number of ancestor directories tried.
	MaxAttempts int
	// Platform and Arch are the host values used as defaults.
	Platform string
	Arch     string
}

// NewResolver creates a Resolver with default key and attempt budget.
func NewResolver(dir, platform, arch string) *Resolver {
	return &Resolver{
		Dir:         dir,
		Key:         DefaultKey,
		MaxAttempts: DefaultMaxAttempts,
		Platform:    platform,
		Arch:        arch,
	}
}

// Resolve searches ../package.json, ../../package.json and so on, and returns
// the preferences of the first manifest that can be read and parsed. When no
// attempt succeeds it returns the host defaults. Resolve never fails.
func (r *Resolver) Resolve() spec.InstallConfig {
	for depth := 1; depth <= r.MaxAttempts; depth++ {
		path := ManifestPath(r.Dir, depth)
		cfg, err := r.load(path)
		if err != nil {
			log.WithField("path", path).WithError(err).Debug("skipping manifest")
			continue
		}
		log.WithField("path", path).Debug("resolved install config from manifest")
		return cfg
	}

	log.Info("Can't resolve main package.json file")
	return spec.DefaultInstallConfig(r.Platform, r.Arch)
}

// ManifestPath returns the manifest location depth directories above dir.
func ManifestPath(dir string, depth int) string {
	return filepath.Join(dir, strings.Repeat(".."+string(filepath.Separator), depth), ManifestFile)
}

func (r *Resolver) load(path string) (spec.InstallConfig, error) {
	data, err := readRegularFile(path)
	if err != nil {
		return spec.InstallConfig{}, err
	}

	var top json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return spec.InstallConfig{}, errors.Wrapf(err, "failed to parse %s", path)
	}
	if string(top) == "null" {
		return spec.InstallConfig{}, fmt.Errorf("%s holds null", path)
	}

	// Only objects carry a section; any other JSON value means "no
	// preferences" and still ends the search.
	var opts options
	var manifest map[string]json.RawMessage
	if isObject(top) {
		if err := json.Unmarshal(top, &manifest); err != nil {
			return spec.InstallConfig{}, errors.Wrapf(err, "failed to parse %s", path)
		}
	}
	if raw, ok := manifest[r.Key]; ok && isObject(raw) {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return spec.InstallConfig{}, errors.Wrapf(err, "failed to parse %q in %s", r.Key, path)
		}
	}

	cfg := spec.InstallConfig{
		Targets:   []string{},
		Platforms: opts.Platforms,
		Arches:    opts.Arches,
	}
	for _, t := range opts.Targets {
		cfg.Targets = append(cfg.Targets, string(t))
	}
	if cfg.Platforms == nil {
		cfg.Platforms = []string{r.Platform}
	}
	if cfg.Arches == nil {
		cfg.Arches = []string{r.Arch}
	}
	return cfg, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func readRegularFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	return os.ReadFile(path)
}

// options is the manifest sub-object.
type options struct {
	Targets   []targetEntry `json:"targets"`
	Platforms []string      `json:"platforms"`
	Arches    []string      `json:"arches"`
}

// targetEntry accepts "runtime-abi" strings and ["runtime", "abi"] pairs.
type targetEntry string

func (t *targetEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = targetEntry(s)
		return nil
	}
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("target must be a \"runtime-abi\" string or a [runtime, abi] pair: %s", data)
	}
	*t = targetEntry(strings.Join(pair, "-"))
	return nil
}

// LoadPackage reads the name and version of the package in dir.
func LoadPackage(dir string) (spec.Package, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return spec.Package{}, errors.Wrapf(err, "failed to read package manifest: %s", path)
	}

	var pkg spec.Package
	if err := json.Unmarshal(data, &pkg); err != nil {
		return spec.Package{}, errors.Wrapf(err, "failed to parse package manifest: %s", path)
	}
	if pkg.Name == "" || pkg.Version == "" {
		return spec.Package{}, fmt.Errorf("package manifest %s must declare name and version", path)
	}
	return pkg, nil
}
