package recommend

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCheckpointRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	m, err := NewFusionScorer(smallConfig(), rng)
	if err != nil {
		t.Fatalf("NewFusionScorer: %v", err)
	}

	image := randVec(rng, 8)
	text := randVec(rng, 8)
	want, err := m.ScoreOne(2, 4, image, text)
	if err != nil {
		t.Fatalf("ScoreOne: %v", err)
	}

	path := filepath.Join(t.TempDir(), "roundtrip.model")
	if err := SaveCheckpoint(m.Checkpoint(), path); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	ckpt, err := LoadCheckpointFile(path)
	if err != nil {
		t.Fatalf("LoadCheckpointFile: %v", err)
	}
	loaded, err := LoadFromCheckpoint(ckpt)
	if err != nil {
		t.Fatalf("LoadFromCheckpoint: %v", err)
	}

	got, err := loaded.ScoreOne(2, 4, image, text)
	if err != nil {
		t.Fatalf("ScoreOne after load: %v", err)
	}
	if got != want {
		t.Fatalf("score after round trip = %v, want %v", got, want)
	}
}

func TestCheckpointIsDeepCopy(t *testing.T) {
	m, err := NewFusionScorer(smallConfig(), rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("NewFusionScorer: %v", err)
	}
	ckpt := m.Checkpoint()
	before := ckpt.Weights["embedding_user_mlp"].W[0]
	m.embUserMLP.W[0] += 42
	if ckpt.Weights["embedding_user_mlp"].W[0] != before {
		t.Fatal("checkpoint shares weight storage with the live model")
	}
}

func TestFinetuneExpandsEmbeddings(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	small, err := NewFusionScorer(smallConfig(), rng)
	if err != nil {
		t.Fatalf("NewFusionScorer: %v", err)
	}
	ckpt := small.Checkpoint()

	bigCfg := smallConfig().WithCounts(9, 14)
	big, err := NewFusionScorer(bigCfg, rng)
	if err != nil {
		t.Fatalf("NewFusionScorer big: %v", err)
	}
	if err := big.Finetune(ckpt, rng); err != nil {
		t.Fatalf("Finetune: %v", err)
	}

	// Old rows survive bit-identical.
	for r := 0; r < 6; r++ {
		for c := 0; c < len(small.embUserMLP.Row(r)); c++ {
			if big.embUserMLP.Row(r)[c] != small.embUserMLP.Row(r)[c] {
				t.Fatalf("user embedding row %d changed during finetune", r)
			}
		}
	}
	// Fresh rows are finite, small noise.
	for r := 6; r < 9; r++ {
		for _, v := range big.embUserMLP.Row(r) {
			if math.IsNaN(v) || math.Abs(v) > 1 {
				t.Fatalf("fresh embedding row %d has implausible value %v", r, v)
			}
		}
	}
	// Non-embedding weights load verbatim.
	for i, v := range small.affine.W.W {
		if big.affine.W.W[i] != v {
			t.Fatal("affine weights not carried over by finetune")
		}
	}
}

func TestFinetuneTruncatesSmallerUniverse(t *testing.T) {
	rng := rand.New(rand.NewSource(22))
	big, err := NewFusionScorer(smallConfig().WithCounts(10, 12), rng)
	if err != nil {
		t.Fatalf("NewFusionScorer: %v", err)
	}
	ckpt := big.Checkpoint()

	small, err := NewFusionScorer(smallConfig().WithCounts(4, 6), rng)
	if err != nil {
		t.Fatalf("NewFusionScorer small: %v", err)
	}
	if err := small.Finetune(ckpt, rng); err != nil {
		t.Fatalf("Finetune: %v", err)
	}
	for r := 0; r < 4; r++ {
		for c := 0; c < len(small.embUserMF.Row(r)); c++ {
			if small.embUserMF.Row(r)[c] != big.embUserMF.Row(r)[c] {
				t.Fatalf("kept row %d changed during truncating finetune", r)
			}
		}
	}
}

func TestCheckpointNames(t *testing.T) {
	if got := SimCheckpointName(0.5, 0.25); got != "sim_HR0.5000_NDCG0.2500.model" {
		t.Errorf("sim name = %q", got)
	}
	ts := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	if got := ProdCheckpointName(ts, 0.5, 0.25); got != "prod_20260314_150926_HR0.5000_NDCG0.2500.model" {
		t.Errorf("prod name = %q", got)
	}
}

func TestFindLatestProdCheckpoint(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"prod_20260101_000000_HR0.1000_NDCG0.0500.model",
		"prod_20260301_120000_HR0.2000_NDCG0.1000.model",
		"prod_20260215_080000_HR0.9000_NDCG0.8000.model",
		"sim_HR0.9900_NDCG0.9900.model",
		"notes.txt",
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	got, err := FindLatestProdCheckpoint(dir)
	if err != nil {
		t.Fatalf("FindLatestProdCheckpoint: %v", err)
	}
	want := filepath.Join(dir, "prod_20260301_120000_HR0.2000_NDCG0.1000.model")
	if got != want {
		t.Errorf("latest = %q, want %q", got, want)
	}
}

func TestFindLatestProdCheckpointEmpty(t *testing.T) {
	got, err := FindLatestProdCheckpoint(t.TempDir())
	if err != nil {
		t.Fatalf("FindLatestProdCheckpoint: %v", err)
	}
	if got != "" {
		t.Errorf("latest in empty dir = %q, want empty", got)
	}
}
