package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeContents struct {
	mu    sync.Mutex
	files map[string]putRequest
	puts  int
	fail  map[string]int // path -> status to return on PUT
	delay time.Duration
}

func (f *fakeContents) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization=%q", got)
		}
		const prefix = "/repos/me/graph/contents/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			http.NotFound(w, r)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, prefix)
		if f.delay > 0 {
			time.Sleep(f.delay)
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			if _, ok := f.files[path]; ok {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{}`))
				return
			}
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			if status, ok := f.fail[path]; ok {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
				return
			}
			var body putRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			f.files[path] = body
			f.puts++
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{}`))
		}
	})
}

func newTestClient(t *testing.T, f *fakeContents) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		Token:       "tok",
		Repo:        "me/graph",
		AuthorName:  "Quiz Bot",
		AuthorEmail: "bot@example.com",
		BaseURL:     srv.URL,
	}, zap.NewNop())
	c.limiter.SetLimit(1000)
	c.limiter.SetBurst(1000)
	return c
}

func allOK(results []Result) bool {
	for _, r := range results {
		if r.Err != nil {
			return false
		}
	}
	return true
}

func TestCreateCommitsIsIdempotent(t *testing.T) {
	f := &fakeContents{files: map[string]putRequest{}}
	c := newTestClient(t, f)
	req := CommitRequest{Day: "2024-01-01", Count: 5, Tag: "42"}

	first := c.CreateCommits(context.Background(), req)
	if len(first) != 5 || !allOK(first) {
		t.Fatalf("first batch: %+v", first)
	}
	second := c.CreateCommits(context.Background(), req)
	if !allOK(second) {
		t.Fatalf("second batch: %+v", second)
	}
	for _, r := range second {
		if !r.Existed {
			t.Fatalf("expected %s to be skipped as existing", r.Path)
		}
	}
	if f.puts != 5 {
		t.Fatalf("puts=%d, want 5", f.puts)
	}

	body, ok := f.files["logs/2024/01/01/42-3.txt"]
	if !ok {
		t.Fatalf("missing expected path, have %v", f.files)
	}
	if body.Committer == nil || body.Committer.Email != "bot@example.com" {
		t.Fatalf("committer not set: %+v", body.Committer)
	}
	if !strings.Contains(body.Message, "2024-01-01") {
		t.Fatalf("message=%q", body.Message)
	}
}

func TestCreateCommitsPartialFailure(t *testing.T) {
	f := &fakeContents{
		files: map[string]putRequest{},
		fail:  map[string]int{"logs/2024/01/01/42-4.txt": http.StatusInternalServerError},
	}
	c := newTestClient(t, f)

	results := c.CreateCommits(context.Background(), CommitRequest{Day: "2024-01-01", Count: 5, Tag: "42"})
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed != 1 || f.puts != 4 {
		t.Fatalf("failed=%d puts=%d, want 1 and 4", failed, f.puts)
	}

	// Retrying after the remote recovers only writes the missing file.
	delete(f.fail, "logs/2024/01/01/42-4.txt")
	results = c.CreateCommits(context.Background(), CommitRequest{Day: "2024-01-01", Count: 5, Tag: "42"})
	if !allOK(results) || f.puts != 5 {
		t.Fatalf("retry: ok=%v puts=%d", allOK(results), f.puts)
	}
}

func TestCreateCommitsRejectedThenExisting(t *testing.T) {
	f := &fakeContents{
		files: map[string]putRequest{},
		fail:  map[string]int{"logs/2024/01/01/x-1.txt": http.StatusUnprocessableEntity},
	}
	c := newTestClient(t, f)

	results := c.CreateCommits(context.Background(), CommitRequest{Day: "2024-01-01", Count: 1, Tag: "x"})
	if results[0].Err == nil {
		t.Fatalf("422 without an existing file must fail, got %+v", results[0])
	}

	f.mu.Lock()
	f.files["logs/2024/01/01/x-1.txt"] = putRequest{}
	f.mu.Unlock()
	results = c.CreateCommits(context.Background(), CommitRequest{Day: "2024-01-01", Count: 1, Tag: "x"})
	if results[0].Err != nil || !results[0].Existed {
		t.Fatalf("existing file should count as success, got %+v", results[0])
	}
}

func TestCreateCommitsTimeout(t *testing.T) {
	f := &fakeContents{files: map[string]putRequest{}, delay: 100 * time.Millisecond}
	c := newTestClient(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	results := c.CreateCommits(ctx, CommitRequest{Day: "2024-01-01", Count: 5, Tag: "42"})
	if len(results) != 5 {
		t.Fatalf("results=%d, want 5", len(results))
	}
	if allOK(results) {
		t.Fatalf("expected timeout to fail some writes")
	}
}

func TestUniqueCommitsUseDistinctPaths(t *testing.T) {
	f := &fakeContents{files: map[string]putRequest{}}
	c := newTestClient(t, f)

	req := CommitRequest{Day: "2024-01-01", Count: 2, Tag: "debug", Unique: true}
	a := c.CreateCommits(context.Background(), req)
	b := c.CreateCommits(context.Background(), req)
	if !allOK(a) || !allOK(b) || f.puts != 4 {
		t.Fatalf("unique writes should always land: puts=%d", f.puts)
	}
	if a[0].Path == b[0].Path {
		t.Fatalf("expected distinct paths, both %s", a[0].Path)
	}
}

func TestCommitPathAndDiagnose(t *testing.T) {
	if got := CommitPath("2024-01-02", "a b/c", 3); got != "logs/2024/01/02/a-b-c-3.txt" {
		t.Fatalf("CommitPath=%q", got)
	}
	if got := CommitPath("2024-01-02", "", 1); got != "logs/2024/01/02/quiz-1.txt" {
		t.Fatalf("CommitPath empty tag=%q", got)
	}

	c := NewClient(Config{Token: "ghp_abcdefghijklmnop", Repo: "me/graph"}, zap.NewNop())
	d := c.Diagnose()
	if strings.Contains(d, "ghp_abcdefghijklmnop") {
		t.Fatalf("token leaked: %s", d)
	}
	if !strings.Contains(d, "GH_USER_NAME: MISSING") {
		t.Fatalf("missing author not reported: %s", d)
	}
}
