package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// recordingIngest is a mock driving.IngestService that dedupes by content.
type recordingIngest struct {
	mu    sync.Mutex
	calls []domain.IngestRequest
	seen  map[string]string
	err   error
}

func (r *recordingIngest) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	if r.err != nil {
		return nil, r.err
	}
	if r.seen == nil {
		r.seen = make(map[string]string)
	}
	if id, ok := r.seen[string(req.Content)]; ok {
		return &domain.IngestResult{DocumentID: id, AlreadyExisted: true}, nil
	}
	id := "doc-" + req.Filename
	r.seen[string(req.Content)] = id
	return &domain.IngestResult{DocumentID: id, ChunksIngested: 1}, nil
}

func (r *recordingIngest) filenames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.calls))
	for i, c := range r.calls {
		names[i] = c.Filename
	}
	return names
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{".hidden", true},
		{"path/to/.hidden", true},
		{"dir/.git/config", true},
		{"notes.md~", true},
		{".notes.md.swp", true},
		{"report.pdf.crdownload", true},
		{"file.txt", false},
		{"path/to/file.txt", false},
		{".", false},
		{"..", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, isHidden(tt.path))
		})
	}
}

func TestWatcher_Scan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("alpha"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".secret"), []byte("hidden"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), nil, 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("beta"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0o600))

	ingest := &recordingIngest{}
	var results []string
	var failures int
	w := New(dir, ingest, WithResultFunc(func(path string, res *domain.IngestResult, err error) {
		if err != nil {
			failures++
			assert.ErrorIs(t, err, domain.ErrValidation)
			return
		}
		results = append(results, res.DocumentID)
	}))

	require.NoError(t, w.Scan(context.Background()))
	assert.ElementsMatch(t, []string{"a.md", "b.txt"}, ingest.filenames())
	assert.ElementsMatch(t, []string{"doc-a.md", "doc-b.txt"}, results)
	assert.Equal(t, 1, failures)

	// A second scan finds everything already stored.
	var existed int
	w.onResult = func(_ string, res *domain.IngestResult, err error) {
		if err == nil && res.AlreadyExisted {
			existed++
		}
	}
	require.NoError(t, w.Scan(context.Background()))
	assert.Equal(t, 2, existed)
}

func TestWatcher_Scan_Cancelled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("alpha"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(dir, &recordingIngest{}).Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatcher_Run(t *testing.T) {
	dir := t.TempDir()
	ingest := &recordingIngest{}

	type outcome struct {
		path string
		res  *domain.IngestResult
	}
	outcomes := make(chan outcome, 10)
	w := New(dir, ingest,
		WithDebounce(30*time.Millisecond),
		WithResultFunc(func(path string, res *domain.IngestResult, err error) {
			if err == nil {
				outcomes <- outcome{path, res}
			}
		}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "refunds.txt")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = f.WriteString("Refunds take five days.")
	require.NoError(t, err)
	_, err = f.WriteString(" Contact support for help.")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".draft"), []byte("ignored"), 0o600))

	select {
	case o := <-outcomes:
		assert.Equal(t, path, o.path)
		assert.Equal(t, "doc-refunds.txt", o.res.DocumentID)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for ingest")
	}

	// New subdirectories are watched too.
	sub := filepath.Join(dir, "inbox")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "policy.md"), []byte("# Policy"), 0o600))

	select {
	case o := <-outcomes:
		assert.Equal(t, filepath.Join(sub, "policy.md"), o.path)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for nested ingest")
	}

	cancel()
	require.NoError(t, <-done)
	assert.ElementsMatch(t, []string{"refunds.txt", "policy.md"}, ingest.filenames())
}

func TestWatcher_IngestError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha"), 0o600))

	var got error
	w := New(dir, &recordingIngest{err: errors.New("store down")}, WithResultFunc(func(_ string, _ *domain.IngestResult, err error) {
		got = err
	}))
	w.ingestFile(context.Background(), path)
	assert.EqualError(t, got, "store down")
}

func TestWatcher_MaxFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	ingest := &recordingIngest{}
	w := New(dir, ingest, WithMaxFileSize(5))
	_, err := w.readAndIngest(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, ingest.filenames())
}
