package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Fetcher retrieves a document by URL or path
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches over HTTP(S). Failed fetches are not retried.
type HTTPFetcher struct {
	client *resty.Client
}

// NewHTTPFetcher creates an HTTP fetcher with the given timeout
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json, application/yaml, application/toml, */*")
	return &HTTPFetcher{client: client}
}

// Fetch performs a GET and returns the body of a 2xx response
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode())
	}
	return resp.Body(), nil
}

// FileFetcher reads local files, resolving relative paths against Root
type FileFetcher struct {
	Root string
}

// Fetch reads the file named by url, which may carry a file:// prefix
func (f *FileFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.FromSlash(strings.TrimPrefix(url, "file://"))
	if !filepath.IsAbs(path) && f.Root != "" {
		path = filepath.Join(f.Root, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return data, nil
}

// MultiFetcher routes http(s) URLs to HTTP and everything else to File
type MultiFetcher struct {
	HTTP Fetcher
	File Fetcher
}

// NewMultiFetcher builds a MultiFetcher from its two halves
func NewMultiFetcher(httpFetcher, fileFetcher Fetcher) *MultiFetcher {
	return &MultiFetcher{HTTP: httpFetcher, File: fileFetcher}
}

func (f *MultiFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		if f.HTTP == nil {
			return nil, fmt.Errorf("no HTTP fetcher configured for %s", url)
		}
		return f.HTTP.Fetch(ctx, url)
	}
	if f.File == nil {
		return nil, fmt.Errorf("no file fetcher configured for %s", url)
	}
	return f.File.Fetch(ctx, url)
}
