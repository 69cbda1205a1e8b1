package recommend

import (
	"fmt"
	"math"
	"sort"
)

// EvalSubjects are the six aligned vectors produced by scoring the
// evaluation bundle: the held-out positives with their scores, and the
// fixed negatives with theirs.
type EvalSubjects struct {
	TestUsers  []int
	TestItems  []int
	TestScores []float64
	NegUsers   []int
	NegItems   []int
	NegScores  []float64
}

// RankedRow is one candidate of one user with its within-user rank.
type RankedRow struct {
	User     int
	Item     int
	Score    float64
	TestItem int
	Rank     int
}

// BuildRankTable joins positives and negatives per user and ranks each
// user's candidates by score descending. Ties keep arrival order
// (negatives first, then the positive), not item-id order.
func BuildRankTable(s EvalSubjects) ([]RankedRow, error) {
	if len(s.TestUsers) != len(s.TestItems) || len(s.TestUsers) != len(s.TestScores) {
		return nil, fmt.Errorf("test vectors misaligned: users=%d items=%d scores=%d",
			len(s.TestUsers), len(s.TestItems), len(s.TestScores))
	}
	if len(s.NegUsers) != len(s.NegItems) || len(s.NegUsers) != len(s.NegScores) {
		return nil, fmt.Errorf("negative vectors misaligned: users=%d items=%d scores=%d",
			len(s.NegUsers), len(s.NegItems), len(s.NegScores))
	}

	testItem := make(map[int]int, len(s.TestUsers))
	for i, user := range s.TestUsers {
		testItem[user] = s.TestItems[i]
	}

	type entry struct {
		item  int
		score float64
	}
	perUser := make(map[int][]entry)
	userOrder := []int{}
	addRow := func(user, item int, score float64) {
		if _, ok := perUser[user]; !ok {
			userOrder = append(userOrder, user)
		}
		perUser[user] = append(perUser[user], entry{item: item, score: score})
	}
	for i, user := range s.NegUsers {
		addRow(user, s.NegItems[i], s.NegScores[i])
	}
	for i, user := range s.TestUsers {
		addRow(user, s.TestItems[i], s.TestScores[i])
	}

	table := make([]RankedRow, 0, len(s.NegUsers)+len(s.TestUsers))
	for _, user := range userOrder {
		entries := perUser[user]
		idx := make([]int, len(entries))
		for i := range idx {
			idx[i] = i
		}
		// Stable keeps first-seen order among equal scores.
		sort.SliceStable(idx, func(a, b int) bool {
			return entries[idx[a]].score > entries[idx[b]].score
		})

		target := testItem[user]
		for rank, i := range idx {
			table = append(table, RankedRow{
				User:     user,
				Item:     entries[i].item,
				Score:    entries[i].score,
				TestItem: target,
				Rank:     rank + 1,
			})
		}
	}

	return table, nil
}

// HitRatio computes HR@K: the fraction of users whose held-out positive
// ranks within the top K.
func HitRatio(table []RankedRow, k int) float64 {
	users := make(map[int]bool)
	hits := 0
	for _, row := range table {
		users[row.User] = true
		if row.Rank <= k && row.Item == row.TestItem {
			hits++
		}
	}
	if len(users) == 0 {
		return 0
	}
	return float64(hits) / float64(len(users))
}

// NDCG computes NDCG@K: hits weighted by log(2)/log(1+rank), averaged
// over all users. A user whose positive misses the top K contributes 0.
func NDCG(table []RankedRow, k int) float64 {
	users := make(map[int]bool)
	sum := 0.0
	for _, row := range table {
		users[row.User] = true
		if row.Rank <= k && row.Item == row.TestItem {
			sum += math.Log(2) / math.Log(1+float64(row.Rank))
		}
	}
	if len(users) == 0 {
		return 0
	}
	return sum / float64(len(users))
}
