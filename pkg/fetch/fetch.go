package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/binary-install/prebuild/pkg/httpclient"
	"github.com/pkg/errors"
)

// DefaultTimeout bounds connecting and waiting for the response headers.
const DefaultTimeout = 30 * time.Second

// NetworkError is a transport failure: DNS, refused connection, timeout.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("failed to download %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ArtifactNotFoundError means the server has no prebuild at URL (HTTP 404).
type ArtifactNotFoundError struct {
	URL string
	// Name is the artifact name, set by callers that know it.
	Name string
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("Prebuild for current platform (%s) not found!", e.Artifact())
}

// Artifact returns Name, or when it is unset the last URL path element
// without its archive extension.
func (e *ArtifactNotFoundError) Artifact() string {
	if e.Name != "" {
		return e.Name
	}
	name := e.URL
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	name = path.Base(name)
	for _, ext := range []string{".tar.gz", ".tgz"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

// BadResponseError is any other non-200 response.
type BadResponseError struct {
	URL        string
	StatusCode int
}

func (e *BadResponseError) Error() string {
	return fmt.Sprintf("Bad response from prebuild server. Code: %d", e.StatusCode)
}

// Fetcher downloads prebuild archives.
type Fetcher struct {
	Client *http.Client
	// IdleTimeout aborts a download whose body stops arriving for this
	// long. Zero disables it.
	IdleTimeout time.Duration
}

// New creates a Fetcher whose requests are bounded by timeout, both while
// connecting and while the body is streaming.
func New(timeout time.Duration) *Fetcher {
	return &Fetcher{Client: httpclient.NewClient(timeout), IdleTimeout: timeout}
}

// Fetch issues a GET for url. On HTTP 200 it returns the response body,
// which the caller must close. Every other outcome is returned as a
// *NetworkError, *ArtifactNotFoundError or *BadResponseError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to create request")
	}

	log.WithField("url", url).Debug("fetching prebuild")
	resp, err := f.Client.Do(req)
	if err != nil {
		cancel()
		return nil, &NetworkError{URL: url, Err: err}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return newIdleBody(url, resp.Body, f.IdleTimeout, cancel), nil
	case http.StatusNotFound:
		resp.Body.Close()
		cancel()
		return nil, &ArtifactNotFoundError{URL: url}
	default:
		resp.Body.Close()
		cancel()
		return nil, &BadResponseError{URL: url, StatusCode: resp.StatusCode}
	}
}

// errIdleTimeout is reported when the body stalls for longer than the idle
// timeout.
var errIdleTimeout = errors.New("no data received within the idle timeout")

// idleBody cancels the request when no Read completes within timeout.
type idleBody struct {
	url     string
	body    io.ReadCloser
	timeout time.Duration
	cancel  context.CancelFunc
	timer   *time.Timer
	expired atomic.Bool
}

func newIdleBody(url string, body io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *idleBody {
	b := &idleBody{url: url, body: body, timeout: timeout, cancel: cancel}
	if timeout > 0 {
		b.timer = time.AfterFunc(timeout, func() {
			b.expired.Store(true)
			cancel()
		})
	}
	return b
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if b.expired.Load() {
		return n, &NetworkError{URL: b.url, Err: errIdleTimeout}
	}
	if b.timer != nil {
		b.timer.Reset(b.timeout)
	}
	if err != nil && err != io.EOF {
		return n, &NetworkError{URL: b.url, Err: err}
	}
	return n, err
}

func (b *idleBody) Close() error {
	if b.timer != nil {
		b.timer.Stop()
	}
	err := b.body.Close()
	b.cancel()
	return err
}
