package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	tests := []struct {
		name        string
		setupServer func() *httptest.Server
		wantErr     bool
		validate    func(t *testing.T, path string, err error)
	}{
		{
			name: "successful download",
			setupServer: func() *httptest.Server {
				return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", "application/octet-stream")
					w.WriteHeader(http.StatusOK)
					fmt.Fprint(w, "test archive content")
				}))
			},
			validate: func(t *testing.T, path string, _ error) {
				content, err := os.ReadFile(path)
				require.NoError(t, err)
				assert.Equal(t, "test archive content", string(content))
			},
		},
		{
			name: "download with redirect",
			setupServer: func() *httptest.Server {
				return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					if r.URL.Path != "/redirected" {
						http.Redirect(w, r, "/redirected", http.StatusFound)
						return
					}
					fmt.Fprint(w, "redirected content")
				}))
			},
			validate: func(t *testing.T, path string, _ error) {
				content, err := os.ReadFile(path)
				require.NoError(t, err)
				assert.Equal(t, "redirected content", string(content))
			},
		},
		{
			name: "404 keeps response body",
			setupServer: func() *httptest.Server {
				return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusNotFound)
					fmt.Fprint(w, "Not Found")
				}))
			},
			wantErr: true,
			validate: func(t *testing.T, path string, err error) {
				var statusErr *StatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
				assert.Equal(t, "Not Found", statusErr.Body)
				assert.Contains(t, err.Error(), "404")
			},
		},
		{
			name: "server error is not retried",
			setupServer: func() *httptest.Server {
				var attempts int32
				return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					if atomic.AddInt32(&attempts, 1) > 1 {
						fmt.Fprint(w, "second attempt")
						return
					}
					w.WriteHeader(http.StatusServiceUnavailable)
				}))
			},
			wantErr: true,
			validate: func(t *testing.T, path string, err error) {
				var statusErr *StatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
			},
		},
		{
			name: "large error body is truncated",
			setupServer: func() *httptest.Server {
				return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusForbidden)
					fmt.Fprint(w, strings.Repeat("x", 3*maxErrorBody))
				}))
			},
			wantErr: true,
			validate: func(t *testing.T, path string, err error) {
				var statusErr *StatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Len(t, statusErr.Body, maxErrorBody)
			},
		},
		{
			name: "empty body",
			setupServer: func() *httptest.Server {
				return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
				}))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := tt.setupServer()
			defer server.Close()

			tmpDir := t.TempDir()
			destPath := filepath.Join(tmpDir, "downloaded-file")

			d := &Downloader{Client: server.Client()}
			_, err := d.Fetch(context.Background(), server.URL+"/asset", destPath)
			if tt.wantErr {
				require.Error(t, err)
				assert.NoFileExists(t, destPath)
				assertNoStagingFiles(t, tmpDir)
			} else {
				require.NoError(t, err)
				assert.FileExists(t, destPath)
			}

			if tt.validate != nil {
				tt.validate(t, destPath, err)
			}
		})
	}
}

func TestFetchTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	destPath := filepath.Join(t.TempDir(), "file")
	_, err := New().Fetch(context.Background(), url, destPath)
	require.Error(t, err)
	assert.NoFileExists(t, destPath)
}

func TestFetchCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "content")
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	destPath := filepath.Join(t.TempDir(), "file")
	_, err := New().Fetch(ctx, server.URL, destPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, destPath)
}

func TestFetchProgress(t *testing.T) {
	payload := strings.Repeat("a", 100*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		fmt.Fprint(w, payload)
	}))
	defer server.Close()

	var last, total int64
	d := &Downloader{
		Client: server.Client(),
		Progress: func(downloaded, t int64) {
			last, total = downloaded, t
		},
	}

	destPath := filepath.Join(t.TempDir(), "file")
	written, err := d.Fetch(context.Background(), server.URL, destPath)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), written)
	assert.Equal(t, int64(len(payload)), last)
	assert.Equal(t, int64(len(payload)), total)
}

func TestFetchOverwritesExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "fresh")
	}))
	defer server.Close()

	destPath := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(destPath, []byte("stale content"), 0644))

	_, err := New().Fetch(context.Background(), server.URL, destPath)
	require.NoError(t, err)

	content, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(content))
}

func TestFetchDoesNotCreateDestinationDirectory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "content")
	}))
	defer server.Close()

	tmpDir := t.TempDir()
	destPath := filepath.Join(tmpDir, "missing", "file")

	_, err := New().Fetch(context.Background(), server.URL, destPath)
	require.Error(t, err)
	assert.NoDirExists(t, filepath.Join(tmpDir, "missing"))
}

func assertNoStagingFiles(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".download-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
