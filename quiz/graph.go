package quiz

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	graphPrefix   = "opt:"
	nextGraphData = "next"
)

var githubUsername = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})$`)

// SetUser stores the GitHub username used by /quiz after checking that its
// contribution graph loads.
func (s *Service) SetUser(ctx context.Context, c Caller, args []string) Reply {
	if len(args) == 0 {
		return Reply{Text: "Usage: `/setuser <github-username>`", Markdown: true}
	}
	username := strings.TrimPrefix(strings.TrimSpace(args[0]), "@")
	if !githubUsername.MatchString(username) {
		return Reply{Text: "❌ That doesn't look like a GitHub username."}
	}
	if _, err := s.Graph.MakeQuestion(ctx, username, s.now()); err != nil {
		s.Log.Info("username validation failed", zap.String("username", username), zap.Error(err))
		return Reply{Text: "❌ Couldn't validate that username via the contributions graph. Please check the spelling and try again."}
	}
	if err := s.Store.SetGitHubUsername(ctx, c.UserID, username); err != nil {
		return s.failure("set github username", c, err)
	}
	return Reply{Text: fmt.Sprintf("✅ Saved GitHub username: *%s*\nUse /quiz to begin!", escape(username)), Markdown: true}
}

// Quiz asks a contribution-count question about the caller's GitHub graph.
func (s *Service) Quiz(ctx context.Context, c Caller) Reply {
	u, err := s.Store.GetUser(ctx, c.UserID)
	if err != nil {
		return s.failure("get user", c, err)
	}
	if u == nil || u.GitHubUsername == "" {
		return Reply{Text: "First set your GitHub username: `/setuser <username>`", Markdown: true}
	}

	q, err := s.Graph.MakeQuestion(ctx, u.GitHubUsername, s.now())
	if err != nil {
		s.Log.Warn("make graph question", zap.String("username", u.GitHubUsername), zap.Error(err))
		return Reply{Text: "❌ Couldn't load your contribution graph right now. Please try again later."}
	}
	if err := s.Sessions.Put(ctx, c.UserID, q); err != nil {
		return s.failure("save graph question", c, err)
	}

	var rows [][]Button
	var row []Button
	for i, v := range q.Options {
		row = append(row, Button{Label: fmt.Sprintf("%s: %d", label(i), v), Data: graphPrefix + strconv.Itoa(i)})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []Button{{Label: "⏭ Next question", Data: nextGraphData}})

	return Reply{Text: fmt.Sprintf("🧩 *%s*\n\nPick one:", escape(q.Text)), Markdown: true, Keyboard: rows}
}

// GraphAnswer handles the opt:<i> and next buttons of /quiz. A question can
// be scored once; the cached question is dropped after the first answer.
func (s *Service) GraphAnswer(ctx context.Context, c Caller, data string) Reply {
	if data == nextGraphData {
		return s.Quiz(ctx, c)
	}

	q, ok, err := s.Sessions.Get(ctx, c.UserID)
	if err != nil {
		return s.failure("load graph question", c, err)
	}
	if !ok {
		return Reply{Text: "Session expired. Use `/quiz` to start a new question.", Markdown: true, Edit: true}
	}

	idx, err := strconv.Atoi(strings.TrimPrefix(data, graphPrefix))
	if err != nil || idx < 0 || idx >= len(q.Options) {
		return Reply{Text: "Invalid option. Use `/quiz` to start again.", Markdown: true, Edit: true}
	}
	correct := idx == q.CorrectIndex
	if err := s.Store.AddScore(ctx, c.UserID, correct); err != nil {
		return s.failure("add score", c, err)
	}
	if err := s.Sessions.Delete(ctx, c.UserID); err != nil {
		s.Log.Warn("drop graph question", zap.Int64("user_id", c.UserID), zap.Error(err))
	}

	verdict := "✅ Correct!"
	if !correct {
		verdict = fmt.Sprintf("❌ Incorrect. The right answer was *%d*.", q.Options[q.CorrectIndex])
	}
	return Reply{
		Text:     fmt.Sprintf("%s\n\n_GitHub contributions on %s_", verdict, q.Date),
		Markdown: true,
		Edit:     true,
		Keyboard: [][]Button{{{Label: "⏭ Next question", Data: nextGraphData}}},
	}
}

// Score shows the caller's contribution-quiz tally.
func (s *Service) Score(ctx context.Context, c Caller) Reply {
	sc, err := s.Store.GetScore(ctx, c.UserID)
	if err != nil {
		return s.failure("get score", c, err)
	}
	if sc.Total == 0 {
		return Reply{Text: "You haven't answered any questions yet. Use /quiz to start!"}
	}
	return Reply{Text: fmt.Sprintf("📊 Score: *%d / %d* correct.", sc.Correct, sc.Total), Markdown: true}
}
