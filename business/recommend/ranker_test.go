package recommend

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"pawgram/domain"
)

// stubScorer returns canned per-item scores.
type stubScorer struct {
	numUsers int
	scores   map[int]float64
}

func (s *stubScorer) ScoreOne(user, item int, image, text []float64) (float64, error) {
	return s.scores[item], nil
}

func (s *stubScorer) KnowsUser(userIndex int) bool {
	return userIndex >= 0 && userIndex < s.numUsers
}

func candidate(id int, createdAt time.Time, proxy float64) domain.CandidatePost {
	return domain.CandidatePost{
		PostID:       id,
		PostUUID:     uuid.New(),
		CreatedAt:    createdAt,
		ImageFeature: feat(8, 0),
		TextFeature:  feat(8, 0),
		Caption:      "c",
		Proxy:        proxy,
	}
}

func TestRankExistingThresholdAndOrder(t *testing.T) {
	// Item 5 scores 0.35, item 9 scores 0.15: only item 5 survives the
	// 0.2 threshold and ranks first.
	r := NewRanker(&stubScorer{numUsers: 10, scores: map[int]float64{5: 0.35, 9: 0.15}})

	now := time.Now()
	got, err := r.RankExisting(0, []domain.CandidatePost{
		candidate(5, now, 0),
		candidate(9, now, 0),
	})
	if err != nil {
		t.Fatalf("RankExisting: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("kept %d candidates, want 1", len(got))
	}
	if got[0].Score != 0.35 {
		t.Errorf("kept score = %v, want 0.35", got[0].Score)
	}
}

func TestRankExistingSortsByScoreThenID(t *testing.T) {
	scores := map[int]float64{1: 0.9, 2: 0.5, 3: 0.5, 4: 0.7}
	r := NewRanker(&stubScorer{numUsers: 10, scores: scores})

	now := time.Now()
	cands := []domain.CandidatePost{
		candidate(2, now, 0),
		candidate(4, now, 0),
		candidate(1, now, 0),
		candidate(3, now, 0),
	}
	got, err := r.RankExisting(0, cands)
	if err != nil {
		t.Fatalf("RankExisting: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("kept %d, want 4", len(got))
	}
	wantScores := []float64{0.9, 0.7, 0.5, 0.5}
	for i, w := range wantScores {
		if got[i].Score != w {
			t.Errorf("position %d score = %v, want %v", i, got[i].Score, w)
		}
	}
	// Equal scores: higher post id first.
	if got[2].Score != got[3].Score {
		t.Fatal("expected a tie at positions 2 and 3")
	}
	// got[2] must be item 3 (id 3 > id 2).
	three := cands[3].PostUUID
	if got[2].ID != three {
		t.Error("tie not broken by descending post id")
	}
}

func TestRankExistingScoreAtThresholdDropped(t *testing.T) {
	r := NewRanker(&stubScorer{numUsers: 10, scores: map[int]float64{1: ExistingUserThreshold}})
	got, err := r.RankExisting(0, []domain.CandidatePost{candidate(1, time.Now(), 0)})
	if err != nil {
		t.Fatalf("RankExisting: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("score equal to threshold kept, want dropped")
	}
}

func TestRankNewThresholdAndRecencyOrder(t *testing.T) {
	r := NewRanker(&stubScorer{numUsers: 0})

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	older := candidate(1, base, 5)
	newer := candidate(2, base.Add(time.Hour), 3)
	cold := candidate(3, base.Add(2*time.Hour), 2) // proxy == threshold, dropped

	got := r.RankNew([]domain.CandidatePost{older, newer, cold})
	if len(got) != 2 {
		t.Fatalf("kept %d, want 2", len(got))
	}
	if got[0].ID != newer.PostUUID || got[1].ID != older.PostUUID {
		t.Error("new-user timeline not ordered by recency")
	}
	// Proxy is surfaced as the score.
	if got[0].Score != 3 || got[1].Score != 5 {
		t.Errorf("proxy scores = %v,%v, want 3,5", got[0].Score, got[1].Score)
	}
}

func TestRankNewCreatedAtTieBrokenByID(t *testing.T) {
	r := NewRanker(&stubScorer{numUsers: 0})
	ts := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	a := candidate(7, ts, 4)
	b := candidate(9, ts, 4)
	got := r.RankNew([]domain.CandidatePost{a, b})
	if len(got) != 2 {
		t.Fatalf("kept %d, want 2", len(got))
	}
	if got[0].ID != b.PostUUID {
		t.Error("created_at tie not broken by descending post id")
	}
}
