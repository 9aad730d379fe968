package asyncio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(Config{MaxWorkers: 2})
	t.Cleanup(e.Close)
	return e
}

func TestWriteThenReadFile(t *testing.T) {
	e := testEngine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg.json")

	wf := e.WriteFile(path, []byte(`{"dependencies":{}}`))
	wr, err := wf.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if wr.Status != StatusCompleted {
		t.Fatalf("write status = %v, err = %v", wr.Status, wr.Err)
	}

	rf := e.ReadFile(path, true)
	rr, err := rf.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rr.Status != StatusCompleted {
		t.Fatalf("read status = %v, err = %v", rr.Status, rr.Err)
	}
	if rr.Text != `{"dependencies":{}}` {
		t.Fatalf("read text = %q", rr.Text)
	}
}

func TestReadFileNotFound(t *testing.T) {
	e := testEngine(t)
	rf := e.ReadFile(filepath.Join(t.TempDir(), "missing"), false)
	rr, err := rf.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rr.Status != StatusFailed {
		t.Fatalf("status = %v, want Failed", rr.Status)
	}
	if rr.Err == nil {
		t.Fatal("expected non-nil Err")
	}
}

func TestBatchWritesAllEnqueued(t *testing.T) {
	e := testEngine(t)
	dir := t.TempDir()
	items := []WriteItem{
		{Path: filepath.Join(dir, "a"), Data: []byte("1")},
		{Path: filepath.Join(dir, "b"), Data: []byte("2")},
		{Path: filepath.Join(dir, "c"), Data: []byte("3")},
	}
	futures := e.WriteFiles(items)
	if len(futures) != 3 {
		t.Fatalf("len(futures) = %d, want 3", len(futures))
	}
	for i, f := range futures {
		r, err := f.Wait(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if r.Status != StatusCompleted {
			t.Fatalf("item %d: status = %v, err = %v", i, r.Status, r.Err)
		}
	}
}

func TestCancelAllMarksPendingCancelled(t *testing.T) {
	e := New(Config{MaxWorkers: 1})
	defer e.Close()

	dir := t.TempDir()
	// Saturate the single worker with a slow-ish chain of writes, then
	// cancel before they all get a chance to run.
	var futures []*Future
	for i := 0; i < 20; i++ {
		futures = append(futures, e.WriteFile(filepath.Join(dir, string(rune('a'+i))), make([]byte, 1<<16)))
	}
	e.CancelAll()

	sawCancelled := false
	for _, f := range futures {
		r, err := f.Wait(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if r.Status == StatusCancelled {
			sawCancelled = true
		}
	}
	if !sawCancelled {
		t.Fatal("expected at least one task to report Cancelled after CancelAll")
	}
}

func TestFetchURLRetriesThenSucceeds(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	e := New(Config{MaxWorkers: 1, Retry: RetryConfig{
		MaxRetries: 5, InitialDelay: time.Millisecond, BackoffFactor: 1.5, MaxDelay: 10 * time.Millisecond,
	}})
	defer e.Close()

	f := e.FetchURL(srv.URL)
	r, err := f.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusCompleted {
		t.Fatalf("status = %v, err = %v", r.Status, r.Err)
	}
	if string(r.Bytes) != "ok" {
		t.Fatalf("body = %q", r.Bytes)
	}
	if attempts < 2 {
		t.Fatalf("attempts = %d, want >= 2", attempts)
	}
}

func TestFetchURLPermanentFailureDoesNotRetry(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	e := New(Config{MaxWorkers: 1, Retry: RetryConfig{
		MaxRetries: 5, InitialDelay: time.Millisecond, BackoffFactor: 1.5, MaxDelay: 10 * time.Millisecond,
	}})
	defer e.Close()

	f := e.FetchURL(srv.URL)
	r, _ := f.Wait(context.Background())
	if r.Status != StatusFailed {
		t.Fatalf("status = %v, want Failed", r.Status)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (404 is permanent)", attempts)
	}
}

func TestStatsReflectCompletedOps(t *testing.T) {
	e := testEngine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	f := e.WriteFile(path, []byte("hello"))
	if _, err := f.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	stats := e.Stats()
	if stats.Completed < 1 {
		t.Fatalf("Completed = %d, want >= 1", stats.Completed)
	}
	if stats.SuccessRate <= 0 {
		t.Fatalf("SuccessRate = %v, want > 0", stats.SuccessRate)
	}
}

func TestFutureStatusNonBlocking(t *testing.T) {
	e := testEngine(t)
	path := filepath.Join(t.TempDir(), "x")
	f := e.WriteFile(path, []byte("x"))
	// Status must not block even before the operation completes.
	_ = f.Status()
	if _, err := f.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.Status() != StatusCompleted {
		t.Fatalf("Status() after Wait = %v", f.Status())
	}
}
