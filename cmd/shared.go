package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/binary-install/prebuild/pkg/asset"
	"github.com/binary-install/prebuild/pkg/config"
	"github.com/binary-install/prebuild/pkg/host"
	"github.com/binary-install/prebuild/pkg/install"
	"github.com/binary-install/prebuild/pkg/matrix"
	"github.com/binary-install/prebuild/pkg/spec"
)

// EnvBaseURL overrides the release download host.
const EnvBaseURL = "PREBUILD_BASE_URL"

// hostTarget probes the live runtime. Tests replace it.
var hostTarget matrix.HostFunc = func(ctx context.Context) (spec.Target, error) {
	return host.NewProber().Target(ctx)
}

// plan is everything needed to run the installs.
type plan struct {
	Dir     string
	Package spec.Package
	Locator *asset.Locator
	Matrix  matrix.Matrix
}

// loadPlan resolves the installer directory, package identity and target
// matrix from flags, manifests and the environment.
func loadPlan(ctx context.Context) (*plan, error) {
	dir, err := install.ResolveInstallerDir(installerDir)
	if err != nil {
		return nil, err
	}
	log.Debugf("Installer directory: %s", dir)

	pkg, err := resolvePackage(dir)
	if err != nil {
		return nil, err
	}

	locator, err := newLocator()
	if err != nil {
		return nil, err
	}

	resolver := config.NewResolver(dir, host.Platform(), host.Arch())
	resolver.Key = manifestKey
	cfg := resolver.Resolve()
	log.WithFields(log.Fields{
		"targets":   cfg.Targets,
		"platforms": cfg.Platforms,
		"arches":    cfg.Arches,
	}).Debug("resolved install config")

	builder := matrix.NewBuilder(hostTarget)
	m, err := builder.Build(ctx, cfg, matrix.EnvFromLookup(os.LookupEnv))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve targets: %w", err)
	}

	return &plan{Dir: dir, Package: pkg, Locator: locator, Matrix: m}, nil
}

// resolvePackage reads the addon's package.json unless both name and
// version were given as flags.
func resolvePackage(dir string) (spec.Package, error) {
	if packageName != "" && packageVersion != "" {
		return spec.Package{Name: packageName, Version: packageVersion}, nil
	}

	pkg, err := config.LoadPackage(dir)
	if err != nil {
		return spec.Package{}, err
	}
	if packageName != "" {
		pkg.Name = packageName
	}
	if packageVersion != "" {
		pkg.Version = packageVersion
	}
	return pkg, nil
}

func newLocator() (*asset.Locator, error) {
	if err := asset.ValidateTemplate(urlTemplate); err != nil {
		return nil, err
	}

	base := baseURL
	if base == "" {
		base = os.Getenv(EnvBaseURL)
	}
	if base == "" {
		base = asset.DefaultBaseURL
	}
	return &asset.Locator{BaseURL: base, Repo: repo, Template: urlTemplate}, nil
}
