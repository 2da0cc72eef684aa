package manifest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizuos/shell/internal/domain/fault"
)

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/apps/music/manifest.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"music","entry":"music.js"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second)

	data, err := f.Fetch(context.Background(), srv.URL+"/apps/music/manifest.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"music","entry":"music.js"}`, string(data))

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFileFetcher(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "apps", "editor"), 0o755))
	path := filepath.Join(root, "apps", "editor", "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"editor","main":"editor.js"}`), 0o644))

	f := &FileFetcher{Root: root}

	data, err := f.Fetch(context.Background(), "apps/editor/manifest.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), "editor")

	data, err = f.Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "editor.js")

	_, err = f.Fetch(context.Background(), "apps/none/manifest.json")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, "apps/editor/manifest.json")
	assert.ErrorIs(t, err, context.Canceled)
}

type countingFetcher struct {
	calls atomic.Int32
	delay time.Duration
	docs  map[string]string
}

func (f *countingFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	doc, ok := f.docs[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(doc), nil
}

func TestMultiFetcher(t *testing.T) {
	httpSide := &countingFetcher{docs: map[string]string{"https://cdn/x.json": "http"}}
	fileSide := &countingFetcher{docs: map[string]string{"apps/x.json": "file"}}
	f := NewMultiFetcher(httpSide, fileSide)

	data, err := f.Fetch(context.Background(), "https://cdn/x.json")
	require.NoError(t, err)
	assert.Equal(t, "http", string(data))

	data, err = f.Fetch(context.Background(), "apps/x.json")
	require.NoError(t, err)
	assert.Equal(t, "file", string(data))

	_, err = NewMultiFetcher(nil, fileSide).Fetch(context.Background(), "http://cdn/x.json")
	assert.Error(t, err)
}

func TestCacheFetchesOnce(t *testing.T) {
	fetcher := &countingFetcher{
		delay: 10 * time.Millisecond,
		docs:  map[string]string{"apps/music/manifest.json": `{"name":"music","entry":"music.js"}`},
	}
	cache := NewCache(fetcher, nil)

	var wg sync.WaitGroup
	results := make([]*Manifest, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := cache.Load(context.Background(), "apps/music/manifest.json")
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.calls.Load())
	for _, m := range results {
		assert.Same(t, results[0], m)
	}

	_, err := cache.Load(context.Background(), "apps/music/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.Equal(t, 1, cache.Len())

	cache.Invalidate("apps/music/manifest.json")
	_, err = cache.Load(context.Background(), "apps/music/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestCacheErrors(t *testing.T) {
	fetcher := &countingFetcher{docs: map[string]string{"bad.json": `{"name":"bad"}`}}
	cache := NewCache(fetcher, nil)

	_, err := cache.Load(context.Background(), "missing.json")
	var merr *fault.ManifestError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "missing.json", merr.URL)

	_, err = cache.Load(context.Background(), "bad.json")
	require.ErrorAs(t, err, &merr)
	assert.ErrorIs(t, err, ErrMissingEntry)

	// Failures are not cached.
	_, _ = cache.Load(context.Background(), "missing.json")
	assert.Equal(t, int32(3), fetcher.calls.Load())
	assert.Equal(t, 0, cache.Len())
}

type gatedFetcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *gatedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.once.Do(func() { close(f.started) })
	select {
	case <-f.release:
		return []byte(`{"name":"sheet","entry":"sheet.js"}`), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCacheFetchSurvivesCancelledCaller(t *testing.T) {
	fetcher := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
	cache := NewCache(fetcher, nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := cache.Load(ctxA, "apps/sheet/manifest.json")
		errA <- err
	}()
	<-fetcher.started

	type result struct {
		m   *Manifest
		err error
	}
	resB := make(chan result, 1)
	go func() {
		m, err := cache.Load(context.Background(), "apps/sheet/manifest.json")
		resB <- result{m, err}
	}()

	cancelA()
	err := <-errA
	var merr *fault.ManifestError
	require.ErrorAs(t, err, &merr)
	assert.ErrorIs(t, err, context.Canceled)

	close(fetcher.release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, "sheet", b.m.Name)
	assert.Equal(t, 1, cache.Len())
}
