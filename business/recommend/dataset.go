package recommend

import (
	"fmt"
	"math/rand"
	"sort"

	"pawgram/domain"
	"pawgram/pkg/logger"
)

// evalNegativeCap is the fixed number of negatives sampled per user for
// evaluation. Sampled once at builder construction and reused for every
// evaluation in the run, so metrics stay comparable across epochs.
const evalNegativeCap = 99

type itemFeatures struct {
	image []float64
	text  []float64
}

type trainRow struct {
	userID int
	postID int
	rating float64
}

// Batch is one mini-batch of training examples.
type Batch struct {
	Users   []int
	Items   []int
	Ratings []float64
	Image   [][]float64
	Text    [][]float64
}

// Len returns the number of examples in the batch.
func (b Batch) Len() int {
	return len(b.Users)
}

// EvalData is the fixed evaluation bundle: one held-out positive per
// user plus that user's fixed negative samples.
type EvalData struct {
	TestUsers []int
	TestItems []int
	TestImage [][]float64
	TestText  [][]float64
	NegUsers  []int
	NegItems  []int
	NegImage  [][]float64
	NegText   [][]float64
}

// SampleBuilder turns raw interaction rows into binarized training
// batches, a per-user negative pool, and a leave-one-out evaluation
// split. The pool, split and evaluation negatives are computed once at
// construction; only training negatives are resampled per epoch.
type SampleBuilder struct {
	rng *rand.Rand

	itemPool     []int
	itemFeats    map[int]itemFeatures
	negativePool map[int][]int // user -> sorted non-interacted items
	evalNegative map[int][]int // user -> fixed eval sample

	trainRows []trainRow
	testRows  []trainRow

	evalData EvalData
}

// NewSampleBuilder validates and snapshots the interaction table. Rows
// must carry both content vectors; a row without them is a schema error,
// the caller is expected to filter unprocessed posts upstream.
func NewSampleBuilder(interactions []domain.Interaction, rng *rand.Rand) (*SampleBuilder, error) {
	if len(interactions) == 0 {
		return nil, fmt.Errorf("schema: interaction table is empty")
	}
	for i, row := range interactions {
		if len(row.ImageFeature) == 0 {
			return nil, fmt.Errorf("schema: row %d missing image_feature", i)
		}
		if len(row.TextFeature) == 0 {
			return nil, fmt.Errorf("schema: row %d missing text_feature", i)
		}
	}

	b := &SampleBuilder{
		rng:          rng,
		itemFeats:    make(map[int]itemFeatures),
		negativePool: make(map[int][]int),
		evalNegative: make(map[int][]int),
	}

	// Item feature table: first occurrence per item wins.
	for _, row := range interactions {
		if _, ok := b.itemFeats[row.PostID]; !ok {
			b.itemFeats[row.PostID] = itemFeatures{image: row.ImageFeature, text: row.TextFeature}
			b.itemPool = append(b.itemPool, row.PostID)
		}
	}
	sort.Ints(b.itemPool)

	interacted := make(map[int]map[int]bool)
	for _, row := range interactions {
		set, ok := interacted[row.UserID]
		if !ok {
			set = make(map[int]bool)
			interacted[row.UserID] = set
		}
		set[row.PostID] = true
	}

	// Per-user negative pool: item universe minus the interacted set.
	// Kept sorted so sampling is deterministic under a fixed seed.
	users := make([]int, 0, len(interacted))
	for userID := range interacted {
		users = append(users, userID)
	}
	sort.Ints(users)
	for _, userID := range users {
		pool := make([]int, 0, len(b.itemPool)-len(interacted[userID]))
		for _, itemID := range b.itemPool {
			if !interacted[userID][itemID] {
				pool = append(pool, itemID)
			}
		}
		b.negativePool[userID] = pool
		b.evalNegative[userID] = b.sampleWithoutReplacement(pool, evalNegativeCap)
	}

	b.split(interactions)
	logger.Info("sample builder ready",
		"users", len(b.testRows),
		"items", len(b.itemPool),
		"train_rows", len(b.trainRows),
	)

	b.buildEvalData()

	return b, nil
}

// split applies leave-one-out: for every user with at least two
// interactions the most recent row (ties broken by arrival order)
// becomes the test example, the rest train. Users with fewer than two
// interactions are dropped from both sides.
func (b *SampleBuilder) split(interactions []domain.Interaction) {
	perUser := make(map[int][]int) // user -> indices in arrival order
	order := []int{}
	for i, row := range interactions {
		if _, ok := perUser[row.UserID]; !ok {
			order = append(order, row.UserID)
		}
		perUser[row.UserID] = append(perUser[row.UserID], i)
	}

	for _, userID := range order {
		idxs := perUser[userID]
		if len(idxs) < 2 {
			continue
		}

		latest := idxs[0]
		for _, i := range idxs[1:] {
			if interactions[i].CreatedAt.After(interactions[latest].CreatedAt) {
				latest = i
			}
		}

		for _, i := range idxs {
			row := trainRow{
				userID: interactions[i].UserID,
				postID: interactions[i].PostID,
				rating: binarize(interactions[i].Rating),
			}
			if i == latest {
				b.testRows = append(b.testRows, row)
			} else {
				b.trainRows = append(b.trainRows, row)
			}
		}
	}
}

// binarize collapses implicit feedback: any positive rating means the
// interaction happened.
func binarize(rating float64) float64 {
	if rating > 0 {
		return 1.0
	}
	return rating
}

// sampleWithoutReplacement draws min(k, len(pool)) distinct items.
func (b *SampleBuilder) sampleWithoutReplacement(pool []int, k int) []int {
	if k > len(pool) {
		k = len(pool)
	}
	out := make([]int, 0, k)
	for _, idx := range b.rng.Perm(len(pool))[:k] {
		out = append(out, pool[idx])
	}
	return out
}

// TrainLoader expands every train row into one positive plus freshly
// sampled negatives, shuffles, and chunks into batches. Each call
// resamples negatives: the Training Engine invokes it once per epoch so
// the model sees varied negatives over training.
func (b *SampleBuilder) TrainLoader(numNegatives, batchSize int) ([]Batch, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	type example struct {
		user, item int
		rating     float64
	}

	examples := make([]example, 0, len(b.trainRows)*(1+numNegatives))
	for _, row := range b.trainRows {
		examples = append(examples, example{user: row.userID, item: row.postID, rating: row.rating})
		for _, neg := range b.sampleWithoutReplacement(b.negativePool[row.userID], numNegatives) {
			examples = append(examples, example{user: row.userID, item: neg, rating: 0.0})
		}
	}

	b.rng.Shuffle(len(examples), func(i, j int) {
		examples[i], examples[j] = examples[j], examples[i]
	})

	batches := make([]Batch, 0, (len(examples)+batchSize-1)/batchSize)
	for start := 0; start < len(examples); start += batchSize {
		end := start + batchSize
		if end > len(examples) {
			end = len(examples)
		}
		batch := Batch{
			Users:   make([]int, 0, end-start),
			Items:   make([]int, 0, end-start),
			Ratings: make([]float64, 0, end-start),
			Image:   make([][]float64, 0, end-start),
			Text:    make([][]float64, 0, end-start),
		}
		for _, ex := range examples[start:end] {
			feats, ok := b.itemFeats[ex.item]
			if !ok {
				return nil, fmt.Errorf("item %d has no feature entry", ex.item)
			}
			batch.Users = append(batch.Users, ex.user)
			batch.Items = append(batch.Items, ex.item)
			batch.Ratings = append(batch.Ratings, ex.rating)
			batch.Image = append(batch.Image, feats.image)
			batch.Text = append(batch.Text, feats.text)
		}
		batches = append(batches, batch)
	}

	return batches, nil
}

func (b *SampleBuilder) buildEvalData() {
	var ed EvalData
	for _, row := range b.testRows {
		feats := b.itemFeats[row.postID]
		ed.TestUsers = append(ed.TestUsers, row.userID)
		ed.TestItems = append(ed.TestItems, row.postID)
		ed.TestImage = append(ed.TestImage, feats.image)
		ed.TestText = append(ed.TestText, feats.text)

		for _, neg := range b.evalNegative[row.userID] {
			negFeats := b.itemFeats[neg]
			ed.NegUsers = append(ed.NegUsers, row.userID)
			ed.NegItems = append(ed.NegItems, neg)
			ed.NegImage = append(ed.NegImage, negFeats.image)
			ed.NegText = append(ed.NegText, negFeats.text)
		}
	}
	b.evalData = ed
}

// EvaluateData returns the fixed evaluation bundle. Deterministic for
// the lifetime of the builder.
func (b *SampleBuilder) EvaluateData() EvalData {
	return b.evalData
}

// MaxItemID reports the largest dense item id seen, for count injection
// into the model config.
func (b *SampleBuilder) MaxItemID() int {
	if len(b.itemPool) == 0 {
		return 0
	}
	return b.itemPool[len(b.itemPool)-1]
}

// NumEvalUsers reports how many users survived the leave-one-out filter.
func (b *SampleBuilder) NumEvalUsers() int {
	return len(b.testRows)
}
