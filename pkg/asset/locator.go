package asset

import (
	"fmt"
	"strings"

	"github.com/binary-install/prebuild/pkg/spec"
	"github.com/buildkite/interpolate"
)

const (
	// DefaultBaseURL is the release host.
	DefaultBaseURL = "https://github.com"
	// DefaultRepo is the owner/repo publishing the prebuilds.
	DefaultRepo = "WilixLead/iohook"
	// DefaultTemplate builds the download URL of an artifact.
	DefaultTemplate = "${BASE_URL}/${REPO}/releases/download/v${VERSION}/${ARTIFACT}.tar.gz"
)

// DownloadDescriptor identifies one prebuild artifact.
type DownloadDescriptor struct {
	Essential      string `json:"essential" yaml:"essential"`
	PackageVersion string `json:"version" yaml:"version"`
	ArtifactName   string `json:"artifact" yaml:"artifact"`
	URL            string `json:"url" yaml:"url"`
}

// Locator derives artifact names and download URLs.
type Locator struct {
	BaseURL  string
	Repo     string
	Template string
}

// NewLocator creates a Locator for the default release host and repo.
func NewLocator() *Locator {
	return &Locator{
		BaseURL:  DefaultBaseURL,
		Repo:     DefaultRepo,
		Template: DefaultTemplate,
	}
}

// ArtifactName returns "<name>-v<version>-<essential>".
func ArtifactName(pkgName, pkgVersion, essential string) string {
	return fmt.Sprintf("%s-v%s-%s", pkgName, pkgVersion, essential)
}

// Locate returns the descriptor of the artifact for target.
func (l *Locator) Locate(target spec.Target, pkgName, pkgVersion string) DownloadDescriptor {
	essential := target.Essential()
	artifact := ArtifactName(pkgName, pkgVersion, essential)
	return DownloadDescriptor{
		Essential:      essential,
		PackageVersion: pkgVersion,
		ArtifactName:   artifact,
		URL:            l.url(pkgName, pkgVersion, essential, artifact),
	}
}

func (l *Locator) url(pkgName, pkgVersion, essential, artifact string) string {
	env := interpolate.NewMapEnv(map[string]string{
		"BASE_URL":  strings.TrimSuffix(l.BaseURL, "/"),
		"REPO":      strings.Trim(l.Repo, "/"),
		"VERSION":   pkgVersion,
		"NAME":      pkgName,
		"ESSENTIAL": essential,
		"ARTIFACT":  artifact,
	})
	u, err := interpolate.Interpolate(env, l.Template)
	if err != nil {
		// Templates are checked with ValidateTemplate before use.
		panic(err)
	}
	return u
}

// ValidateTemplate checks that template renders and names the artifact.
func ValidateTemplate(template string) error {
	identifiers, err := interpolate.Identifiers(template)
	if err != nil {
		return fmt.Errorf("invalid URL template %q: %w", template, err)
	}
	for _, id := range identifiers {
		if id == "ARTIFACT" || id == "ESSENTIAL" {
			return nil
		}
	}
	return fmt.Errorf("URL template %q must reference ${ARTIFACT} or ${ESSENTIAL}", template)
}
