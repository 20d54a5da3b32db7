package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/korjavin/commitquizbot/quiz"
	"github.com/korjavin/commitquizbot/scheduler"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	rejectMD bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok && f.rejectMD && m.ParseMode != "" {
		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) snapshot() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.sent...)
}

type fakeHandler struct {
	mu    sync.Mutex
	calls []string
}

func (h *fakeHandler) record(s string) {
	h.mu.Lock()
	h.calls = append(h.calls, s)
	h.mu.Unlock()
}

func (h *fakeHandler) Command(_ context.Context, c quiz.Caller, cmd string, args []string) quiz.Reply {
	h.record("cmd:" + cmd + ":" + strings.Join(args, ","))
	return quiz.Reply{
		Text:     "*hi* " + c.DisplayName,
		Markdown: true,
		Keyboard: [][]quiz.Button{{{Label: "A", Data: "cs:20240101:0:0"}, {Label: "B", Data: "cs:20240101:0:1"}}},
	}
}

func (h *fakeHandler) Callback(_ context.Context, _ quiz.Caller, data string) quiz.Reply {
	h.record("cb:" + data)
	return quiz.Reply{Text: "answered", Edit: true}
}

func (h *fakeHandler) Fire(_ context.Context, ev scheduler.Event) (quiz.Reply, bool) {
	h.record("fire")
	return quiz.Reply{Text: "reminder"}, ev.Generation == 1
}

func TestDispatcherKeepsPerUserOrder(t *testing.T) {
	d := NewDispatcher(context.Background(), zap.NewNop())
	var mu sync.Mutex
	got := map[int64][]int{}
	for i := 0; i < 50; i++ {
		for _, user := range []int64{1, 2, 3} {
			i, user := i, user
			d.Submit(user, func(context.Context) {
				if i%7 == 0 {
					time.Sleep(time.Millisecond)
				}
				mu.Lock()
				got[user] = append(got[user], i)
				mu.Unlock()
			})
		}
	}
	d.Close()

	for user, seq := range got {
		if len(seq) != 50 {
			t.Fatalf("user %d ran %d jobs", user, len(seq))
		}
		for i, v := range seq {
			if v != i {
				t.Fatalf("user %d out of order: %v", user, seq)
			}
		}
	}
	if d.Submit(1, func(context.Context) {}) {
		t.Fatal("submit accepted after close")
	}
}

func TestDispatcherSurvivesPanics(t *testing.T) {
	d := NewDispatcher(context.Background(), zap.NewNop())
	ran := false
	d.Submit(1, func(context.Context) { panic("boom") })
	d.Submit(1, func(context.Context) { ran = true })
	d.Close()
	if !ran {
		t.Fatal("job after panic did not run")
	}
}

func TestRunRoutesUpdatesAndEvents(t *testing.T) {
	api := &fakeAPI{}
	h := &fakeHandler{}
	b := New(api, h, zap.NewNop())

	updates := make(chan tgbotapi.Update, 4)
	events := make(chan scheduler.Event, 2)
	chat := &tgbotapi.Chat{ID: 100, Type: "private"}
	from := &tgbotapi.User{ID: 7, FirstName: "Ada", LastName: "L"}

	updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		From: from, Chat: chat, Text: "/notify 07:30 Asia/Kolkata",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 7}},
	}}
	updates <- tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID: "cb1", From: from, Data: "cs:next",
		Message: &tgbotapi.Message{MessageID: 55, Chat: chat},
	}}
	events <- scheduler.Event{UserID: 7, ChatID: 100, Generation: 2}
	close(updates)

	if err := b.Run(context.Background(), updates, events); err != nil {
		t.Fatal(err)
	}

	h.mu.Lock()
	calls := strings.Join(h.calls, "|")
	h.mu.Unlock()
	cmdAt := strings.Index(calls, "cmd:notify:07:30,Asia/Kolkata")
	cbAt := strings.Index(calls, "cb:cs:next")
	if cmdAt < 0 || cbAt < cmdAt {
		t.Fatalf("calls=%s", calls)
	}

	sent := api.snapshot()
	if len(sent) < 2 {
		t.Fatalf("sent=%d", len(sent))
	}
	msg, ok := sent[0].(tgbotapi.MessageConfig)
	if !ok || msg.ParseMode != tgbotapi.ModeMarkdown || msg.Text != "*hi* Ada L" || msg.ReplyMarkup == nil {
		t.Fatalf("first send=%+v", sent[0])
	}
	edit, ok := sent[1].(tgbotapi.EditMessageTextConfig)
	if !ok || edit.MessageID != 55 || edit.Text != "answered" {
		t.Fatalf("second send=%+v", sent[1])
	}
	if len(api.requests) != 1 {
		t.Fatalf("callback not acknowledged: %d", len(api.requests))
	}
}

func TestMarkdownFallsBackToPlain(t *testing.T) {
	api := &fakeAPI{rejectMD: true}
	b := New(api, &fakeHandler{}, zap.NewNop())
	b.send(context.Background(), 1, 0, quiz.Reply{Text: "*broken", Markdown: true})

	sent := api.snapshot()
	if len(sent) != 1 || sent[0].(tgbotapi.MessageConfig).ParseMode != "" {
		t.Fatalf("sent=%+v", sent)
	}
}

func TestStaleEventSendsNothing(t *testing.T) {
	api := &fakeAPI{}
	b := New(api, &fakeHandler{}, zap.NewNop())
	b.handleEvent(context.Background(), scheduler.Event{UserID: 1, ChatID: 1, Generation: 2})
	b.handleEvent(context.Background(), scheduler.Event{UserID: 1, ChatID: 1, Generation: 1})
	if sent := api.snapshot(); len(sent) != 1 {
		t.Fatalf("sent=%d, want 1", len(sent))
	}
}

func TestRouterHealthAndWebhook(t *testing.T) {
	updates := make(chan tgbotapi.Update, 1)
	decode := func(r *http.Request) (*tgbotapi.Update, error) {
		var u tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			return nil, err
		}
		return &u, nil
	}
	r := NewRouter(RouterConfig{WebhookPath: "/webhook", Decode: decode, Updates: updates}, zap.NewNop())

	for _, path := range []string{"/", "/health", "/healthz"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK || w.Body.String() != "ok" {
			t.Fatalf("%s: %d %q", path, w.Code, w.Body.String())
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"update_id":9}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("webhook status=%d", w.Code)
	}
	if u := <-updates; u.UpdateID != 9 {
		t.Fatalf("update=%+v", u)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad body status=%d", w.Code)
	}

	polling := NewRouter(RouterConfig{WebhookPath: "/webhook"}, zap.NewNop())
	w = httptest.NewRecorder()
	polling.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`)))
	if w.Code != http.StatusNotFound {
		t.Fatalf("polling webhook status=%d", w.Code)
	}
}
