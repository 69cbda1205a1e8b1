package recommend

import (
	"fmt"
	"path/filepath"
	"time"

	"pawgram/pkg/logger"
)

// Trainer is the capability surface the trainer app and the timeline
// service depend on. Callers hold this interface, not the concrete
// engine.
type Trainer interface {
	TrainBatch(batch Batch) (float64, error)
	TrainEpoch(batches []Batch, epoch int) (float64, error)
	Evaluate(data EvalData) (hitRatio, ndcg float64, err error)
	SaveSim(dir string, hitRatio, ndcg float64) (string, error)
	SaveProd(dir string, hitRatio, ndcg float64) (string, error)
}

// Engine drives gradient training and ranking evaluation for a
// FusionScorer. It owns no data; batches come from a SampleBuilder.
type Engine struct {
	model *FusionScorer
	opt   Optimizer
	cfg   Config
}

// NewEngine wires a model with the optimizer named in its config.
func NewEngine(model *FusionScorer) (*Engine, error) {
	cfg := model.Config()
	opt, err := NewOptimizer(cfg)
	if err != nil {
		return nil, err
	}
	return &Engine{model: model, opt: opt, cfg: cfg}, nil
}

// TrainBatch runs one optimizer step over a batch and returns the mean
// binary cross-entropy loss.
func (e *Engine) TrainBatch(batch Batch) (float64, error) {
	n := batch.Len()
	if n == 0 {
		return 0, fmt.Errorf("train batch is empty")
	}

	e.model.zeroGrad()
	total := 0.0
	var cache forwardCache
	for i := 0; i < n; i++ {
		score, err := e.model.forwardOne(batch.Users[i], batch.Items[i], batch.Image[i], batch.Text[i], &cache)
		if err != nil {
			return 0, fmt.Errorf("forward example %d: %w", i, err)
		}
		target := batch.Ratings[i]
		total += bceLoss(score, target)
		// d(meanBCE)/d(logit) for a sigmoid output.
		e.model.backwardOne(&cache, (score-target)/float64(n))
	}
	e.opt.Step(e.model.parameters())

	return total / float64(n), nil
}

// TrainEpoch steps through every batch and returns the loss averaged
// over examples.
func (e *Engine) TrainEpoch(batches []Batch, epoch int) (float64, error) {
	totalLoss := 0.0
	totalExamples := 0
	for i, batch := range batches {
		loss, err := e.TrainBatch(batch)
		if err != nil {
			return 0, fmt.Errorf("epoch %d batch %d: %w", epoch, i, err)
		}
		totalLoss += loss * float64(batch.Len())
		totalExamples += batch.Len()
	}
	if totalExamples == 0 {
		return 0, fmt.Errorf("epoch %d has no training examples", epoch)
	}

	avg := totalLoss / float64(totalExamples)
	logger.Info("epoch finished", "epoch", epoch, "loss", avg, "batches", len(batches))
	return avg, nil
}

// Evaluate scores the held-out positives and fixed negatives without
// touching gradients, then computes HR@TopK and NDCG@TopK. With
// UseBatchedEval the candidates are scored in BatchSize chunks instead
// of one pass.
func (e *Engine) Evaluate(data EvalData) (float64, float64, error) {
	testScores, err := e.scoreChunked(data.TestUsers, data.TestItems, data.TestImage, data.TestText)
	if err != nil {
		return 0, 0, fmt.Errorf("score test positives: %w", err)
	}
	negScores, err := e.scoreChunked(data.NegUsers, data.NegItems, data.NegImage, data.NegText)
	if err != nil {
		return 0, 0, fmt.Errorf("score negatives: %w", err)
	}

	table, err := BuildRankTable(EvalSubjects{
		TestUsers:  data.TestUsers,
		TestItems:  data.TestItems,
		TestScores: testScores,
		NegUsers:   data.NegUsers,
		NegItems:   data.NegItems,
		NegScores:  negScores,
	})
	if err != nil {
		return 0, 0, err
	}
	return HitRatio(table, TopK), NDCG(table, TopK), nil
}

func (e *Engine) scoreChunked(users, items []int, image, text [][]float64) ([]float64, error) {
	if !e.cfg.UseBatchedEval {
		return e.model.Score(users, items, image, text)
	}
	chunk := e.cfg.BatchSize
	scores := make([]float64, 0, len(users))
	for start := 0; start < len(users); start += chunk {
		end := start + chunk
		if end > len(users) {
			end = len(users)
		}
		part, err := e.model.Score(users[start:end], items[start:end], image[start:end], text[start:end])
		if err != nil {
			return nil, err
		}
		scores = append(scores, part...)
	}
	return scores, nil
}

// SaveSim writes a checkpoint under the simulation naming scheme and
// returns the written path.
func (e *Engine) SaveSim(dir string, hitRatio, ndcg float64) (string, error) {
	path := filepath.Join(dir, SimCheckpointName(hitRatio, ndcg))
	if err := SaveCheckpoint(e.model.Checkpoint(), path); err != nil {
		return "", err
	}
	return path, nil
}

// SaveProd writes a timestamped production checkpoint and returns the
// written path.
func (e *Engine) SaveProd(dir string, hitRatio, ndcg float64) (string, error) {
	path := filepath.Join(dir, ProdCheckpointName(time.Now(), hitRatio, ndcg))
	if err := SaveCheckpoint(e.model.Checkpoint(), path); err != nil {
		return "", err
	}
	return path, nil
}

// Model exposes the scorer for serving after training completes.
func (e *Engine) Model() *FusionScorer {
	return e.model
}
