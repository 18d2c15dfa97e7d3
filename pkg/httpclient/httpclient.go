package httpclient

import (
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// UserAgent is sent with every request.
const UserAgent = "prebuild-installer"

// NewClient creates an HTTP client whose connection setup and wait for
// response headers are each bounded by timeout. There is no overall request
// deadline; stalled bodies are left to the caller. A zero timeout means no
// bound. GitHub requests carry GITHUB_TOKEN when it is set.
func NewClient(timeout time.Duration) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if timeout > 0 {
		base.DialContext = (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
		base.TLSHandshakeTimeout = timeout
		base.ResponseHeaderTimeout = timeout
	}
	return &http.Client{
		Transport: &gitHubTransport{Base: base},
	}
}

// NewGitHubClient creates an HTTP client configured for GitHub API requests.
// It automatically adds the GitHub token from GITHUB_TOKEN environment variable if available.
func NewGitHubClient() *http.Client {
	return &http.Client{
		Transport: &gitHubTransport{
			Base: http.DefaultTransport,
		},
	}
}

// gitHubTransport is a custom RoundTripper that adds GitHub authentication
type gitHubTransport struct {
	Base http.RoundTripper
}

// RoundTrip implements the http.RoundTripper interface
func (t *gitHubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	req2 := req.Clone(req.Context())

	if req2.Header.Get("User-Agent") == "" {
		req2.Header.Set("User-Agent", UserAgent)
	}

	// An explicit Authorization header wins over the environment token.
	if req2.Header.Get("Authorization") == "" && isGitHubURL(req2.URL.String()) {
		if token := os.Getenv("GITHUB_TOKEN"); token != "" {
			req2.Header.Set("Authorization", "Bearer "+token)
		}
	}

	return t.Base.RoundTrip(req2)
}

// isGitHubURL checks if a URL points at github.com or one of its content hosts
func isGitHubURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "github.com" ||
		strings.HasSuffix(host, ".github.com") ||
		strings.HasSuffix(host, ".githubusercontent.com")
}
