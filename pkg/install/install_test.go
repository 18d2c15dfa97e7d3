package install

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/binary-install/prebuild/pkg/archive"
	"github.com/binary-install/prebuild/pkg/asset"
	"github.com/binary-install/prebuild/pkg/fetch"
	"github.com/binary-install/prebuild/pkg/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func TestResolveInstallerDir(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		name     string
		dir      string
		setupEnv map[string]string
		want     string
	}{
		{name: "current directory", dir: "", want: wd},
		{name: "explicit directory", dir: "/opt/app/node_modules/iohook", want: "/opt/app/node_modules/iohook"},
		{name: "relative directory", dir: "node_modules/iohook", want: filepath.Join(wd, "node_modules", "iohook")},
		{
			name:     "expand home directory",
			dir:      "~/app",
			setupEnv: map[string]string{"HOME": "/home/user"},
			want:     "/home/user/app",
		},
		{
			name:     "expand environment variable",
			dir:      "${APP_ROOT}/node_modules/iohook",
			setupEnv: map[string]string{"APP_ROOT": "/srv/app"},
			want:     "/srv/app/node_modules/iohook",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.setupEnv {
				t.Setenv(k, v)
			}
			got, err := ResolveInstallerDir(tt.dir)
			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tt.want), got)
		})
	}
}

func TestInstallerInstall(t *testing.T) {
	archiveData := tarGz(t, map[string]string{"build/Release/iohook.node": "addon"})
	var (
		mu        sync.Mutex
		requested []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested = append(requested, r.URL.Path)
		mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "-linux-x64.tar.gz") {
			w.Write(archiveData)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	var out bytes.Buffer
	installer := &Installer{
		Dir:       dir,
		Package:   spec.Package{Name: "iohook", Version: "0.9.1"},
		Locator:   &asset.Locator{BaseURL: server.URL, Repo: asset.DefaultRepo, Template: asset.DefaultTemplate},
		Fetcher:   fetch.New(5 * time.Second),
		Extractor: archive.NewExtractor(),
		Out:       &out,
	}

	t.Run("success", func(t *testing.T) {
		target := spec.Target{Runtime: "node", ABI: "108", Platform: "linux", Arch: "x64"}
		require.NoError(t, installer.Install(context.Background(), target))

		content, err := os.ReadFile(filepath.Join(dir, "builds", "node-v108-linux-x64", "build", "Release", "iohook.node"))
		require.NoError(t, err)
		assert.Equal(t, "addon", string(content))
		assert.Contains(t, out.String(), "Downloading prebuild for platform: iohook-v0.9.1-node-v108-linux-x64\n")
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"/WilixLead/iohook/releases/download/v0.9.1/iohook-v0.9.1-node-v108-linux-x64.tar.gz"}, requested)
	})

	t.Run("not found", func(t *testing.T) {
		target := spec.Target{Runtime: "node", ABI: "108", Platform: "win32", Arch: "ia32"}
		err := installer.Install(context.Background(), target)

		var notFound *fetch.ArtifactNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "iohook-v0.9.1-node-v108-win32-ia32", notFound.Artifact())
		assert.NoDirExists(t, filepath.Join(dir, "builds", "node-v108-win32-ia32"))
	})
}

func TestInstallerNotFoundNamesArtifact(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	installer := &Installer{
		Dir:     t.TempDir(),
		Package: spec.Package{Name: "iohook", Version: "0.9.1"},
		Locator: &asset.Locator{
			BaseURL:  server.URL,
			Repo:     asset.DefaultRepo,
			Template: "${BASE_URL}/${REPO}/releases/download/v${VERSION}/${ARTIFACT}/download",
		},
		Fetcher:   fetch.New(5 * time.Second),
		Extractor: archive.NewExtractor(),
		Out:       io.Discard,
	}

	err := installer.Install(context.Background(), spec.Target{Runtime: "node", ABI: "108", Platform: "linux", Arch: "x64"})

	var notFound *fetch.ArtifactNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "iohook-v0.9.1-node-v108-linux-x64", notFound.Artifact())
	assert.Equal(t, "Prebuild for current platform (iohook-v0.9.1-node-v108-linux-x64) not found!", err.Error())
}

// recorder is a test double recording the order of fetch and extract calls.
type recorder struct {
	mu     sync.Mutex
	events []string
	fail   map[string]error
}

func (r *recorder) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	name := strings.TrimSuffix(filepathBase(url), ".tar.gz")
	r.record("fetch " + name)
	if err := r.fail[name]; err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(name)), nil
}

func (r *recorder) Extract(ctx context.Context, body io.Reader, destDir string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	// Slow extraction gives an overlapping fetch the chance to show up.
	time.Sleep(10 * time.Millisecond)
	r.record("extracted " + string(data))
	return nil
}

func filepathBase(url string) string {
	return url[strings.LastIndex(url, "/")+1:]
}

func newRecordingScheduler(rec *recorder, out io.Writer) *Scheduler {
	return &Scheduler{
		Installer: &Installer{
			Dir:       "/unused",
			Package:   spec.Package{Name: "iohook", Version: "0.9.1"},
			Locator:   asset.NewLocator(),
			Fetcher:   rec,
			Extractor: rec,
			Out:       io.Discard,
		},
		Out: out,
	}
}
