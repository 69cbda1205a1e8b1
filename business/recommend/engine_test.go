package recommend

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pawgram/domain"
)

func trainingFixture(t *testing.T, cfg Config) (*Engine, *SampleBuilder) {
	t.Helper()
	rng := rand.New(rand.NewSource(cfg.Seed))

	var rows []domain.Interaction
	for u := 0; u < cfg.NumUsers; u++ {
		for n := 0; n < 4; n++ {
			item := (u*3 + n*2) % cfg.NumItems
			rows = append(rows, domain.Interaction{
				UserID:       u,
				PostID:       item,
				Rating:       1,
				CreatedAt:    time.Unix(int64(u*10+n), 0),
				ImageFeature: feat(cfg.ImageFeatureDim, float64(item)/10),
				TextFeature:  feat(cfg.TextFeatureDim, float64(item)/20),
			})
		}
	}

	builder, err := NewSampleBuilder(rows, rng)
	if err != nil {
		t.Fatalf("NewSampleBuilder: %v", err)
	}
	model, err := NewFusionScorer(cfg, rng)
	if err != nil {
		t.Fatalf("NewFusionScorer: %v", err)
	}
	engine, err := NewEngine(model)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine, builder
}

func TestTrainEpochReducesLoss(t *testing.T) {
	cfg := smallConfig()
	cfg.Optimizer = OptimizerSGD
	cfg.SGDLR = 0.5
	cfg.Seed = 13
	engine, builder := trainingFixture(t, cfg)

	first := 0.0
	last := 0.0
	for epoch := 0; epoch < 8; epoch++ {
		batches, err := builder.TrainLoader(cfg.NumNegative, cfg.BatchSize)
		if err != nil {
			t.Fatalf("TrainLoader: %v", err)
		}
		loss, err := engine.TrainEpoch(batches, epoch)
		if err != nil {
			t.Fatalf("TrainEpoch: %v", err)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			t.Fatalf("epoch %d loss is %v", epoch, loss)
		}
		if epoch == 0 {
			first = loss
		}
		last = loss
	}
	if last >= first {
		t.Errorf("loss did not decrease: first=%v last=%v", first, last)
	}
}

func TestTrainBatchRejectsEmptyBatch(t *testing.T) {
	engine, _ := trainingFixture(t, smallConfig())
	if _, err := engine.TrainBatch(Batch{}); err == nil {
		t.Fatal("want error for empty batch")
	}
}

func TestEvaluateBoundsAndDeterminism(t *testing.T) {
	cfg := smallConfig()
	engine, builder := trainingFixture(t, cfg)

	hr1, ndcg1, err := engine.Evaluate(builder.EvaluateData())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if hr1 < 0 || hr1 > 1 || ndcg1 < 0 || ndcg1 > 1 {
		t.Fatalf("metrics out of [0,1]: hr=%v ndcg=%v", hr1, ndcg1)
	}

	hr2, ndcg2, err := engine.Evaluate(builder.EvaluateData())
	if err != nil {
		t.Fatalf("Evaluate again: %v", err)
	}
	if hr1 != hr2 || ndcg1 != ndcg2 {
		t.Fatalf("evaluation not deterministic: (%v,%v) vs (%v,%v)", hr1, ndcg1, hr2, ndcg2)
	}
}

func TestEvaluateBatchedMatchesFullPass(t *testing.T) {
	cfg := smallConfig()
	cfg.BatchSize = 3
	engine, builder := trainingFixture(t, cfg)
	hrFull, ndcgFull, err := engine.Evaluate(builder.EvaluateData())
	if err != nil {
		t.Fatalf("Evaluate full: %v", err)
	}

	ckpt := engine.Model().Checkpoint()
	ckpt.Config.UseBatchedEval = true
	batchedModel, err := LoadFromCheckpoint(ckpt)
	if err != nil {
		t.Fatalf("LoadFromCheckpoint: %v", err)
	}
	batched, err := NewEngine(batchedModel)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	hrChunked, ndcgChunked, err := batched.Evaluate(builder.EvaluateData())
	if err != nil {
		t.Fatalf("Evaluate chunked: %v", err)
	}
	if hrFull != hrChunked || ndcgFull != ndcgChunked {
		t.Errorf("chunked evaluation diverged: (%v,%v) vs (%v,%v)", hrFull, ndcgFull, hrChunked, ndcgChunked)
	}
}

func TestSaveSimAndProdWriteNamedCheckpoints(t *testing.T) {
	engine, _ := trainingFixture(t, smallConfig())
	dir := t.TempDir()

	simPath, err := engine.SaveSim(dir, 0.5, 0.25)
	if err != nil {
		t.Fatalf("SaveSim: %v", err)
	}
	if filepath.Base(simPath) != "sim_HR0.5000_NDCG0.2500.model" {
		t.Errorf("sim checkpoint name = %q", filepath.Base(simPath))
	}
	if _, err := os.Stat(simPath); err != nil {
		t.Errorf("sim checkpoint missing: %v", err)
	}

	prodPath, err := engine.SaveProd(dir, 0.5, 0.25)
	if err != nil {
		t.Fatalf("SaveProd: %v", err)
	}
	base := filepath.Base(prodPath)
	if !strings.HasPrefix(base, "prod_") || !strings.HasSuffix(base, "_HR0.5000_NDCG0.2500.model") {
		t.Errorf("prod checkpoint name = %q", base)
	}
	if !prodCheckpointRe.MatchString(base) {
		t.Errorf("prod checkpoint name %q does not match the discovery pattern", base)
	}

	latest, err := FindLatestProdCheckpoint(dir)
	if err != nil {
		t.Fatalf("FindLatestProdCheckpoint: %v", err)
	}
	if latest != prodPath {
		t.Errorf("latest = %q, want %q", latest, prodPath)
	}
}
