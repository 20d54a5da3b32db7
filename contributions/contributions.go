// Package contributions builds pop-quiz questions from a GitHub user's
// public contribution graph.
package contributions

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/korjavin/commitquizbot/models"
)

const (
	defaultBaseURL = "https://github.com"
	dateLayout     = "2006-01-02"

	// YearDays is how much history is kept after parsing.
	YearDays = 365
	// Lookback bounds how far back a quiz date may be.
	Lookback = 120
)

var distractorDeltas = []int{1, 2, 3, 4, 5, 7, 10, 12, 15, 20}

// Day is one cell of the contribution graph.
type Day struct {
	Date  string
	Count int
}

// Client fetches contribution graphs.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// NewClient returns a client for baseURL, or github.com when empty.
func NewClient(baseURL string, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log.Named("contributions"),
	}
}

// Fetch downloads and parses the year ending at to, keeping the last YearDays.
func (c *Client) Fetch(ctx context.Context, username string, to time.Time) ([]Day, error) {
	endpoint := fmt.Sprintf("%s/users/%s/contributions?to=%s", c.baseURL, url.PathEscape(username), to.Format(dateLayout))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Contribution-Graph-Pop-Quiz/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch contributions for %s: %w", username, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch contributions for %s: status %d", username, resp.StatusCode)
	}

	days, err := Parse(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(days) > YearDays {
		days = days[len(days)-YearDays:]
	}
	c.log.Debug("contributions fetched", zap.String("username", username), zap.Int("days", len(days)))
	return days, nil
}

// Parse reads graph cells carrying data-date. The count comes from data-count
// when present, otherwise from the cell's tool-tip text ("3 contributions on
// ..." or "No contributions on ..."). Days are returned in date order.
func Parse(r io.Reader) ([]Day, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse contributions: %w", err)
	}

	type cell struct {
		date  string
		count int
		known bool
	}
	byID := map[string]*cell{}
	var cells []*cell
	tips := map[string]string{}

	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if n.Data == "tool-tip" {
			if target := attr(n, "for"); target != "" {
				tips[target] = textOf(n)
			}
			return
		}
		date := attr(n, "data-date")
		if _, err := time.Parse(dateLayout, date); err != nil {
			return
		}
		c := &cell{date: date}
		if raw := attr(n, "data-count"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
				c.count, c.known = v, true
			}
		}
		if id := attr(n, "id"); id != "" {
			byID[id] = c
		}
		cells = append(cells, c)
	})

	for id, text := range tips {
		if c, ok := byID[id]; ok && !c.known {
			c.count, c.known = tipCount(text)
		}
	}

	days := make([]Day, 0, len(cells))
	for _, c := range cells {
		if c.known {
			days = append(days, Day{Date: c.date, Count: c.count})
		}
	}
	slices.SortFunc(days, func(a, b Day) int { return strings.Compare(a.Date, b.Date) })
	return days, nil
}

func tipCount(text string) (int, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, false
	}
	if strings.EqualFold(fields[0], "no") {
		return 0, true
	}
	v, err := strconv.Atoi(strings.ReplaceAll(fields[0], ",", ""))
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(d *html.Node) {
		if d.Type == html.TextNode {
			b.WriteString(d.Data)
		}
	})
	return strings.TrimSpace(b.String())
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// PickDate chooses a day within lookback days of the latest cell. With no
// data it falls back to the day before today.
func PickDate(days []Day, lookback int, today time.Time, r *rand.Rand) string {
	if len(days) == 0 {
		return today.AddDate(0, 0, -1).Format(dateLayout)
	}
	first, _ := time.Parse(dateLayout, days[0].Date)
	end, _ := time.Parse(dateLayout, days[len(days)-1].Date)
	start := end.AddDate(0, 0, -lookback)
	if start.Before(first) {
		start = first
	}
	span := int(end.Sub(start).Hours()/24) + 1
	return start.AddDate(0, 0, r.IntN(span)).Format(dateLayout)
}

// GenerateMCQ builds four distinct non-negative options for date, one of them
// the real count. The options depend only on the data and the date.
func GenerateMCQ(days []Day, date string) (options []int, correctIndex int) {
	correct := 0
	for _, d := range days {
		if d.Date == date {
			correct = d.Count
			break
		}
	}

	t, _ := time.Parse(dateLayout, date)
	seed := uint64(t.Unix() / 86400)
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	seen := map[int]bool{correct: true}
	options = append(options, correct)
	for len(options) < 4 {
		delta := distractorDeltas[r.IntN(len(distractorDeltas))]
		if r.IntN(2) == 0 {
			delta = -delta
		}
		v := max(0, correct+delta)
		if !seen[v] {
			seen[v] = true
			options = append(options, v)
		}
	}
	r.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
	return options, slices.Index(options, correct)
}

// MakeQuestion fetches the user's graph and builds one question.
func (c *Client) MakeQuestion(ctx context.Context, username string, now time.Time) (models.ContributionQuestion, error) {
	days, err := c.Fetch(ctx, username, now)
	if err != nil {
		return models.ContributionQuestion{}, err
	}
	date := PickDate(days, Lookback, now, rand.New(rand.NewPCG(uint64(now.UnixNano()), uint64(len(days)))))
	options, correct := GenerateMCQ(days, date)
	return models.ContributionQuestion{
		Username:     username,
		Text:         fmt.Sprintf("How many contributions did %s make on %s?", username, date),
		Options:      options,
		CorrectIndex: correct,
		Date:         date,
	}, nil
}
