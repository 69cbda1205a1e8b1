package recommend

import (
	"encoding/gob"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"pawgram/pkg/logger"
)

// TensorData is one named weight blob inside a checkpoint.
type TensorData struct {
	Rows, Cols int
	W          []float64
}

// Checkpoint bundles the full configuration with every model weight.
// It is the unit of deployment: written after an epoch, uploaded as
// latest, loaded whole for inference.
type Checkpoint struct {
	Config  Config
	Weights map[string]TensorData
}

const (
	simCheckpointPattern  = "sim_HR%.4f_NDCG%.4f.model"
	prodCheckpointPattern = "prod_%s_HR%.4f_NDCG%.4f.model"
	prodTimestampLayout   = "20060102_150405"
)

var prodCheckpointRe = regexp.MustCompile(`^prod_(\d{8}_\d{6})_HR[\d.]+_NDCG[\d.]+\.model$`)

// SimCheckpointName encodes the metric values of a simulation run.
func SimCheckpointName(hitRatio, ndcg float64) string {
	return fmt.Sprintf(simCheckpointPattern, hitRatio, ndcg)
}

// ProdCheckpointName encodes a timestamp plus metrics, so the freshest
// production checkpoint can be found by lexical timestamp ordering.
func ProdCheckpointName(now time.Time, hitRatio, ndcg float64) string {
	return fmt.Sprintf(prodCheckpointPattern, now.Format(prodTimestampLayout), hitRatio, ndcg)
}

// FindLatestProdCheckpoint returns the prod checkpoint in dir with the
// lexically greatest timestamp, or an empty string when none exists.
func FindLatestProdCheckpoint(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read checkpoint dir: %w", err)
	}

	latestTS := ""
	latestFile := ""
	for _, entry := range entries {
		match := prodCheckpointRe.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		if match[1] > latestTS {
			latestTS = match[1]
			latestFile = entry.Name()
		}
	}

	if latestFile == "" {
		return "", nil
	}
	return filepath.Join(dir, latestFile), nil
}

// stateDict exposes every parameter under a stable name. Embedding
// names carry the "embedding" prefix; the finetuning loader keys off it.
func (m *FusionScorer) stateDict() map[string]*tensor {
	dict := map[string]*tensor{
		"embedding_user_mlp": m.embUserMLP,
		"embedding_item_mlp": m.embItemMLP,
		"embedding_user_mf":  m.embUserMF,
		"embedding_item_mf":  m.embItemMF,
		"fc_image.weight":    m.fcImage.W,
		"fc_image.bias":      m.fcImage.B,
		"fc_text.weight":     m.fcText.W,
		"fc_text.bias":       m.fcText.B,
		"fusion_mlp.weight":  m.fusionMLP.W,
		"fusion_mlp.bias":    m.fusionMLP.B,
		"fusion_mf.weight":   m.fusionMF.W,
		"fusion_mf.bias":     m.fusionMF.B,
		"affine.weight":      m.affine.W,
		"affine.bias":        m.affine.B,
	}
	for i, l := range m.mlpStack {
		dict[fmt.Sprintf("mlp.%d.weight", i)] = l.W
		dict[fmt.Sprintf("mlp.%d.bias", i)] = l.B
	}
	return dict
}

// Checkpoint snapshots the current weights and configuration.
func (m *FusionScorer) Checkpoint() *Checkpoint {
	weights := make(map[string]TensorData)
	for name, t := range m.stateDict() {
		weights[name] = TensorData{
			Rows: t.Rows,
			Cols: t.Cols,
			W:    append([]float64(nil), t.W...),
		}
	}
	return &Checkpoint{Config: m.cfg, Weights: weights}
}

// SaveCheckpoint writes the checkpoint to path, creating parent
// directories as needed.
func SaveCheckpoint(ckpt *Checkpoint, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create checkpoint file: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(ckpt); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpointFile reads a checkpoint bundle from disk.
func LoadCheckpointFile(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	var ckpt Checkpoint
	if err := gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &ckpt, nil
}

// LoadFromCheckpoint rebuilds a scorer with exactly the weights and
// config of the checkpoint. Used for inference.
func LoadFromCheckpoint(ckpt *Checkpoint) (*FusionScorer, error) {
	m, err := NewFusionScorer(ckpt.Config, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, err
	}
	if err := m.loadWeights(ckpt.Weights, true); err != nil {
		return nil, err
	}
	return m, nil
}

// loadWeights copies named blobs into the parameters. In strict mode a
// missing name or a shape mismatch is an error; otherwise the entry is
// skipped and the current weights stay in place.
func (m *FusionScorer) loadWeights(weights map[string]TensorData, strict bool) error {
	for name, t := range m.stateDict() {
		blob, ok := weights[name]
		if !ok {
			if strict {
				return fmt.Errorf("checkpoint missing weight %q", name)
			}
			continue
		}
		if blob.Rows != t.Rows || blob.Cols != t.Cols {
			if strict {
				return fmt.Errorf("weight %q has shape %dx%d, want %dx%d", name, blob.Rows, blob.Cols, t.Rows, t.Cols)
			}
			continue
		}
		copy(t.W, blob.W)
	}
	return nil
}

// expandTable resizes an embedding table to newRows: existing rows are
// kept bit-identical, new rows get small gaussian noise, and a smaller
// target truncates from the end.
func expandTable(dst *tensor, old TensorData, rng *rand.Rand) {
	keep := old.Rows
	if keep > dst.Rows {
		keep = dst.Rows
	}
	copy(dst.W[:keep*dst.Cols], old.W[:keep*old.Cols])
	for i := keep * dst.Cols; i < len(dst.W); i++ {
		dst.W[i] = rng.NormFloat64() * gaussianStdDev
	}
}

// Finetune loads pretrained weights into a model built with a possibly
// larger user/item universe. Embedding tables are expanded row-wise;
// everything else is loaded permissively, so layer-shape drift between
// runs does not abort a production retrain.
func (m *FusionScorer) Finetune(ckpt *Checkpoint, rng *rand.Rand) error {
	embeddings := map[string]*tensor{
		"embedding_user_mlp": m.embUserMLP,
		"embedding_item_mlp": m.embItemMLP,
		"embedding_user_mf":  m.embUserMF,
		"embedding_item_mf":  m.embItemMF,
	}

	rest := make(map[string]TensorData, len(ckpt.Weights))
	for name, blob := range ckpt.Weights {
		if dst, ok := embeddings[name]; ok {
			if blob.Cols != dst.Cols {
				return fmt.Errorf("embedding %q has dim %d, want %d", name, blob.Cols, dst.Cols)
			}
			expandTable(dst, blob, rng)
			continue
		}
		rest[name] = blob
	}

	if err := m.loadWeights(rest, false); err != nil {
		return err
	}

	logger.Info("finetuning weights loaded",
		"num_users", m.cfg.NumUsers,
		"num_items", m.cfg.NumItems,
	)
	return nil
}
