package main_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
)

var prebuildPath string

// TestMain builds the prebuild binary once before running all tests
func TestMain(m *testing.M) {
	tempDir, err := os.MkdirTemp("", "prebuild-test")
	if err != nil {
		panic("Failed to create temp directory: " + err.Error())
	}

	execName := "prebuild"
	if runtime.GOOS == "windows" {
		execName += ".exe"
	}
	prebuildPath = filepath.Join(tempDir, execName)
	cmd := exec.Command("go", "build", "-o", prebuildPath, "./cmd/prebuild")
	cmd.Dir = ".." // Go up one level to reach the root directory
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		panic("Failed to build prebuild: " + err.Error())
	}

	code := m.Run()
	if err := os.RemoveAll(tempDir); err != nil {
		panic("Failed to remove temp directory: " + err.Error())
	}
	os.Exit(code)
}

// createAddon lays out a project depending on the addon and returns the
// addon directory.
func createAddon(t *testing.T, projectManifest string) string {
	t.Helper()
	root := t.TempDir()
	addon := filepath.Join(root, "project", "node_modules", "iohook")
	if err := os.MkdirAll(addon, 0755); err != nil {
		t.Fatalf("Failed to create addon directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(addon, "package.json"), []byte(`{"name": "iohook", "version": "0.9.3"}`), 0644); err != nil {
		t.Fatalf("Failed to write addon manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "project", "package.json"), []byte(projectManifest), 0644); err != nil {
		t.Fatalf("Failed to write project manifest: %v", err)
	}
	return addon
}

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(body))}); err != nil {
			t.Fatalf("Failed to write tar header: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("Failed to write tar content: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Failed to close tar writer: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("Failed to close gzip writer: %v", err)
	}
	return buf.Bytes()
}

// runPrebuild runs the binary in dir with a clean npm environment.
func runPrebuild(t *testing.T, dir string, env []string, args ...string) (string, string, error) {
	t.Helper()
	cmd := exec.Command(prebuildPath, args...)
	cmd.Dir = dir
	cmd.Env = append([]string{"PATH=" + os.Getenv("PATH"), "HOME=" + t.TempDir()}, env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func TestInstallFromReleaseServer(t *testing.T) {
	addon := createAddon(t, `{"name": "app", "iohook": {"targets": ["node-108"], "platforms": ["linux", "win32"], "arches": ["x64"]}}`)

	var (
		mu        sync.Mutex
		requested []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested = append(requested, r.URL.Path)
		mu.Unlock()
		name := strings.TrimSuffix(filepath.Base(r.URL.Path), ".tar.gz")
		_, _ = w.Write(tarGz(t, map[string]string{"build/Release/iohook.node": name}))
	}))
	defer server.Close()

	stdout, stderr, err := runPrebuild(t, addon, []string{"PREBUILD_BASE_URL=" + server.URL}, "install")
	if err != nil {
		t.Fatalf("install failed: %v\nstderr:\n%s", err, stderr)
	}

	wantOut := "node 108 linux x64\n" +
		"Downloading prebuild for platform: iohook-v0.9.3-node-v108-linux-x64\n" +
		"node 108 win32 x64\n" +
		"Downloading prebuild for platform: iohook-v0.9.3-node-v108-win32-x64\n"
	if stdout != wantOut {
		t.Errorf("unexpected stdout:\n%s\nwant:\n%s", stdout, wantOut)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(requested) != 2 || requested[0] != "/WilixLead/iohook/releases/download/v0.9.3/iohook-v0.9.3-node-v108-linux-x64.tar.gz" {
		t.Errorf("unexpected requests: %v", requested)
	}

	for _, essential := range []string{"node-v108-linux-x64", "node-v108-win32-x64"} {
		content, err := os.ReadFile(filepath.Join(addon, "builds", essential, "build", "Release", "iohook.node"))
		if err != nil {
			t.Fatalf("prebuild %s not extracted: %v", essential, err)
		}
		if string(content) != "iohook-v0.9.3-"+essential {
			t.Errorf("unexpected content for %s: %q", essential, content)
		}
	}
}

func TestInstallEnvironmentOverrides(t *testing.T) {
	addon := createAddon(t, `{"name": "app", "iohook": {"targets": ["node-108"], "platforms": ["linux"], "arches": ["x64"]}}`)

	var (
		mu        sync.Mutex
		requested []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested = append(requested, filepath.Base(r.URL.Path))
		mu.Unlock()
		_, _ = w.Write(tarGz(t, map[string]string{"iohook.node": "ok"}))
	}))
	defer server.Close()

	env := []string{
		"PREBUILD_BASE_URL=" + server.URL,
		"npm_config_targets=electron-85",
		"npm_config_arches=ia32",
	}
	_, stderr, err := runPrebuild(t, addon, env, "install")
	if err != nil {
		t.Fatalf("install failed: %v\nstderr:\n%s", err, stderr)
	}

	mu.Lock()
	defer mu.Unlock()
	// linux ia32 combinations are skipped.
	want := []string{
		"iohook-v0.9.3-node-v108-linux-x64.tar.gz",
		"iohook-v0.9.3-electron-v85-linux-x64.tar.gz",
	}
	if strings.Join(requested, ",") != strings.Join(want, ",") {
		t.Errorf("unexpected requests: %v, want %v", requested, want)
	}
}

func TestInstallMissingPrebuild(t *testing.T) {
	addon := createAddon(t, `{"name": "app", "iohook": {"targets": ["node-57"], "platforms": ["linux"], "arches": ["x64"]}}`)

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, stderr, err := runPrebuild(t, addon, []string{"PREBUILD_BASE_URL=" + server.URL}, "install")
	if err == nil {
		t.Fatal("install should fail when the prebuild does not exist")
	}
	for _, want := range []string{
		"Prebuild for current platform (iohook-v0.9.3-node-v57-linux-x64) not found!",
		"Try to compile for your platform:",
		"# cd node_modules/iohook;",
		"# npm run build",
	} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr does not contain %q:\n%s", want, stderr)
		}
	}
	if _, err := os.Stat(filepath.Join(addon, "builds", "node-v57-linux-x64")); !os.IsNotExist(err) {
		t.Errorf("no output directory expected for a missing prebuild, stat error: %v", err)
	}
}

func TestMatrixCommand(t *testing.T) {
	addon := createAddon(t, `{"name": "app"}`)

	stdout, stderr, err := runPrebuild(t, addon, []string{"npm_config_targets=all"}, "matrix", "--output", "yaml")
	if err != nil {
		t.Fatalf("matrix failed: %v\nstderr:\n%s", err, stderr)
	}
	for _, want := range []string{"hostImplied: false", "essential: electron-v85-win32-ia32", "essential: node-v108-darwin-x64"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("matrix output does not contain %q", want)
		}
	}
	if strings.Contains(stdout, "linux-ia32") {
		t.Error("matrix output contains an excluded linux ia32 target")
	}
}
