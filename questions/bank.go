// Package questions holds the embedded daily question bank.
package questions

import (
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"github.com/korjavin/commitquizbot/models"
)

//go:embed questions.json
var bankJSON []byte

// Bank is an immutable set of multiple-choice questions.
type Bank struct {
	questions []models.Question
}

// Load parses the embedded bank.
func Load() (*Bank, error) {
	return Parse(bankJSON)
}

// Parse decodes and validates a JSON question list.
func Parse(data []byte) (*Bank, error) {
	var qs []models.Question
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if len(qs) < models.DailyQuestions {
		return nil, fmt.Errorf("question bank has %d questions, need at least %d", len(qs), models.DailyQuestions)
	}
	seen := make(map[int]bool, len(qs))
	for _, q := range qs {
		if seen[q.ID] {
			return nil, fmt.Errorf("duplicate question id %d", q.ID)
		}
		seen[q.ID] = true
		if len(q.Options) < 2 || q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return nil, fmt.Errorf("question %d: bad options or correct index", q.ID)
		}
	}
	return &Bank{questions: qs}, nil
}

// Len is the number of questions.
func (b *Bank) Len() int {
	return len(b.questions)
}

// Pick returns the question shown in slot for (user, day). The same inputs
// always give the same question, and the slots of one day never repeat.
func (b *Bank) Pick(userID int64, day string, slot int) models.Question {
	h := fnv.New64a()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(userID))
	h.Write(buf[:])
	h.Write([]byte(day))
	seed := h.Sum64()

	r := rand.New(rand.NewPCG(seed, seed>>1|1))
	perm := r.Perm(len(b.questions))
	return b.questions[perm[slot%len(perm)]]
}
