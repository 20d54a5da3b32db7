package session

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/korjavin/commitquizbot/models"
)

var sample = models.ContributionQuestion{
	Username:     "octo",
	Text:         "How many contributions did octo make on 2024-01-02?",
	Options:      []int{3, 11, 0, 7},
	CorrectIndex: 1,
	Date:         "2024-01-02",
}

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, 1); err != nil || ok {
		t.Fatalf("empty get: ok=%v err=%v", ok, err)
	}
	if err := s.Put(ctx, 1, sample); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Get(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Date != sample.Date || got.CorrectIndex != 1 || len(got.Options) != 4 || got.Options[1] != 11 {
		t.Fatalf("got %+v", got)
	}
	if _, ok, _ := s.Get(ctx, 2); ok {
		t.Fatal("other user sees the question")
	}
	if err := s.Delete(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, 1); ok {
		t.Fatal("deleted question still present")
	}
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemoryStore(time.Minute))
}

func TestMemoryStoreExpires(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	_ = s.Put(context.Background(), 1, sample)

	now = now.Add(2 * time.Minute)
	if _, ok, _ := s.Get(context.Background(), 1); ok {
		t.Fatal("expired question returned")
	}
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStore(client, time.Minute)
	exercise(t, s)

	_ = s.Put(context.Background(), 5, sample)
	if ttl := mr.TTL("quiz:contrib:5"); ttl != time.Minute {
		t.Fatalf("ttl=%v", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := s.Get(context.Background(), 5); ok {
		t.Fatal("expired question returned")
	}
}
