package install

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/binary-install/prebuild/pkg/asset"
	"github.com/binary-install/prebuild/pkg/fetch"
	"github.com/binary-install/prebuild/pkg/spec"
	"github.com/pkg/errors"
)

// BuildsDir is the directory below the installer directory holding one
// subdirectory per installed target.
const BuildsDir = "builds"

// Fetcher downloads an artifact.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// Extractor unpacks a downloaded artifact into a directory.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader, destDir string) error
}

// ResolveInstallerDir resolves the directory prebuilds are installed into.
// An empty dir means the current directory.
func ResolveInstallerDir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrap(err, "failed to get current directory")
		}
		dir = wd
	}

	absPath, err := filepath.Abs(expandPath(dir))
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve installer directory")
	}
	return absPath, nil
}

// OutputDir returns where the prebuild with the given essential name is
// extracted.
func OutputDir(installerDir, essential string) string {
	return filepath.Join(installerDir, BuildsDir, essential)
}

// Installer fetches and extracts the prebuild of a single target.
type Installer struct {
	Dir       string
	Package   spec.Package
	Locator   *asset.Locator
	Fetcher   Fetcher
	Extractor Extractor
	Out       io.Writer
}

// Install locates, downloads and extracts the prebuild for target.
func (i *Installer) Install(ctx context.Context, target spec.Target) error {
	d := i.Locator.Locate(target, i.Package.Name, i.Package.Version)
	fmt.Fprintln(i.out(), "Downloading prebuild for platform:", d.ArtifactName)
	log.WithField("url", d.URL).Debug("resolved download URL")

	body, err := i.Fetcher.Fetch(ctx, d.URL)
	if err != nil {
		var nf *fetch.ArtifactNotFoundError
		if errors.As(err, &nf) && nf.Name == "" {
			nf.Name = d.ArtifactName
		}
		return err
	}
	defer body.Close()

	dest := OutputDir(i.Dir, d.Essential)
	if err := i.Extractor.Extract(ctx, body, dest); err != nil {
		return err
	}

	log.WithField("dir", dest).Infof("Installed %s", d.ArtifactName)
	return nil
}

func (i *Installer) out() io.Writer {
	if i.Out == nil {
		return os.Stdout
	}
	return i.Out
}

// expandPath expands ~ and environment variables in a path
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home := os.Getenv("HOME"); home != "" {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}
