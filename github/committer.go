package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultAPIURL  = "https://api.github.com"
	requestTimeout = 30 * time.Second
	apiVersion     = "2022-11-28"
	userAgent      = "Commit-Quiz-Bot"
)

// Config identifies the target repository and commit identity.
type Config struct {
	Token       string
	Repo        string // owner/name
	AuthorName  string
	AuthorEmail string
	// BaseURL overrides the API root, for tests.
	BaseURL string
}

// CommitRequest asks for Count file writes tagged with Tag for Day (YYYY-MM-DD).
type CommitRequest struct {
	Day   string
	Count int
	Tag   string
	// Unique adds a random suffix to every path so the writes always land.
	Unique bool
}

// Result is the outcome of one file write. The write succeeded iff Err is nil.
// Existed is true when the file was already present and nothing was written.
type Result struct {
	Path    string
	Existed bool
	Err     error
}

// Client creates commits through the GitHub contents API.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAPIURL
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
		log:     log.Named("github"),
	}
}

// Repo returns the configured owner/name.
func (c *Client) Repo() string {
	return c.cfg.Repo
}

// CreateCommits writes req.Count files under logs/YYYY/MM/DD/. Paths are
// keyed by day, tag and sequence index, so re-issuing a batch skips files
// that already exist instead of duplicating them.
func (c *Client) CreateCommits(ctx context.Context, req CommitRequest) []Result {
	results := make([]Result, 0, req.Count)
	for i := 1; i <= req.Count; i++ {
		path := CommitPath(req.Day, req.Tag, i)
		if req.Unique {
			path = strings.TrimSuffix(path, ".txt") + "-" + uuid.NewString()[:8] + ".txt"
		}

		if err := ctx.Err(); err != nil {
			results = append(results, Result{Path: path, Err: err})
			continue
		}

		existed, err := c.ensureFile(ctx, path, req, i)
		if err != nil {
			c.log.Warn("commit write failed", zap.String("path", path), zap.Error(err))
		}
		results = append(results, Result{Path: path, Existed: existed, Err: err})
	}
	return results
}

// CommitPath is the repository path of the i-th write for (day, tag).
func CommitPath(day, tag string, i int) string {
	return fmt.Sprintf("logs/%s/%s-%d.txt", strings.ReplaceAll(day, "-", "/"), sanitizeTag(tag), i)
}

func (c *Client) ensureFile(ctx context.Context, path string, req CommitRequest, i int) (bool, error) {
	exists, err := c.exists(ctx, path)
	if err != nil {
		return false, err
	}
	if exists {
		return true, nil
	}

	status, body, err := c.put(ctx, path, req, i)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK, http.StatusCreated:
		c.log.Info("commit created", zap.String("path", path))
		return false, nil
	case http.StatusUnprocessableEntity:
		// Raced with an earlier attempt that already created the file.
		if exists, err := c.exists(ctx, path); err == nil && exists {
			return true, nil
		}
	}
	return false, fmt.Errorf("GitHub API error %d: %s", status, truncate(body, 200))
}

func (c *Client) exists(ctx context.Context, path string) (bool, error) {
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("GitHub API error %d: %s", status, truncate(body, 200))
	}
}

type identity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type putRequest struct {
	Message   string    `json:"message"`
	Content   string    `json:"content"`
	Committer *identity `json:"committer,omitempty"`
	Author    *identity `json:"author,omitempty"`
}

func (c *Client) put(ctx context.Context, path string, req CommitRequest, i int) (int, []byte, error) {
	tag := sanitizeTag(req.Tag)
	body := putRequest{
		Message: fmt.Sprintf("quiz: daily commit %s [%s] #%d", req.Day, tag, i),
		Content: base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("Quiz commit #%d for %s tag:%s\n", i, req.Day, tag))),
	}
	if c.cfg.AuthorName != "" && c.cfg.AuthorEmail != "" {
		id := &identity{Name: c.cfg.AuthorName, Email: c.cfg.AuthorEmail}
		body.Committer, body.Author = id, id
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	return c.do(ctx, http.MethodPut, path, payload)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}

	endpoint := fmt.Sprintf("%s/repos/%s/contents/%s", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Repo, escapePath(path))
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	c.log.Debug("github request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))
	return resp.StatusCode, body, nil
}

// Diagnose describes which settings are present, with the token masked.
func (c *Client) Diagnose() string {
	show := func(key, val string) string {
		if val == "" {
			return key + ": MISSING"
		}
		if key == "GITHUB_TOKEN" {
			if len(val) > 12 {
				val = val[:6] + "…" + val[len(val)-4:]
			} else {
				val = "set"
			}
		}
		return fmt.Sprintf("%s: SET (%s)", key, val)
	}
	return strings.Join([]string{
		show("GITHUB_TOKEN", c.cfg.Token),
		show("GITHUB_REPO", c.cfg.Repo),
		show("GH_USER_NAME", c.cfg.AuthorName),
		show("GH_USER_EMAIL", c.cfg.AuthorEmail),
	}, "\n")
}

func sanitizeTag(tag string) string {
	if tag == "" {
		return "quiz"
	}
	var b strings.Builder
	for _, r := range tag {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

func escapePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
