package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/binary-install/vsci/pkg/httpclient"
	"github.com/pkg/errors"
)

// maxErrorBody caps how much of a failed response is kept for diagnostics
const maxErrorBody = 4 << 10

// ProgressFunc is a callback for download progress.
// total is -1 when the server did not announce a length.
type ProgressFunc func(downloaded, total int64)

// StatusError reports a response outside the 2xx range
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
	// Body holds the start of the response body, if any
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: unexpected status %s", e.URL, e.Status)
	}
	return fmt.Sprintf("GET %s: unexpected status %s: %s", e.URL, e.Status, e.Body)
}

// Downloader fetches a URL into a local file with a single request
type Downloader struct {
	Client   *http.Client
	Progress ProgressFunc
}

// New returns a Downloader using httpclient.New
func New() *Downloader {
	return &Downloader{Client: httpclient.New()}
}

// Fetch downloads url to destPath and returns the number of bytes written.
// The body is staged in a temporary file next to destPath and renamed into place,
// so on error nothing is left at destPath.
func (d *Downloader) Fetch(ctx context.Context, url, destPath string) (int64, error) {
	client := d.Client
	if client == nil {
		client = httpclient.New()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create request")
	}

	log.WithField("url", url).Debug("sending request")
	resp, err := client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, &StatusError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".download-*")
	if err != nil {
		return 0, errors.Wrap(err, "failed to create temporary file")
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)
	defer tmpFile.Close()

	var src io.Reader = resp.Body
	if d.Progress != nil {
		src = &progressReader{Reader: resp.Body, Total: resp.ContentLength, Report: d.Progress}
	}

	written, err := io.Copy(tmpFile, src)
	if err != nil {
		return written, errors.Wrap(err, "failed to read response body")
	}
	if written == 0 {
		return 0, errors.Errorf("GET %s: empty response body", url)
	}

	if err := tmpFile.Close(); err != nil {
		return written, errors.Wrap(err, "failed to close temporary file")
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return written, errors.Wrap(err, "failed to move downloaded file")
	}

	log.WithFields(log.Fields{
		"path":  destPath,
		"bytes": written,
	}).Debug("download complete")
	return written, nil
}

// progressReader wraps an io.Reader to report progress
type progressReader struct {
	Reader  io.Reader
	Total   int64
	Current int64
	Report  ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.Current += int64(n)
		pr.Report(pr.Current, pr.Total)
	}
	return n, err
}
