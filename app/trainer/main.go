package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"pawgram/business/recommend"
	psqlRepo "pawgram/internal/repository/postgres"
	s3Repo "pawgram/internal/repository/s3"
	"pawgram/pkg/config"
	"pawgram/pkg/database"
	"pawgram/pkg/logger"
)

func main() {
	mode := flag.String("mode", "sim", "training mode: sim or prod")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.App.Environment)
	logger.Info("Starting trainer", "mode", *mode)

	switch *mode {
	case "sim":
		err = runSim(cfg)
	case "prod":
		err = runProd(cfg)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		logger.Fatal("Training failed", "error", err)
	}
}

// runSim trains on synthetic data to validate the full pipeline and
// writes a sim-named checkpoint. Nothing is uploaded.
func runSim(cfg *config.Config) error {
	mlCfg, err := trainConfig(cfg, recommend.DefaultSimConfig())
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(mlCfg.Seed))
	interactions := recommend.GenerateSimInteractions(mlCfg, rng)
	logger.Info("synthetic data generated", "rows", len(interactions))

	builder, err := recommend.NewSampleBuilder(interactions, rng)
	if err != nil {
		return err
	}

	model, err := recommend.NewFusionScorer(mlCfg, rng)
	if err != nil {
		return err
	}

	engine, err := recommend.NewEngine(model)
	if err != nil {
		return err
	}

	hr, ndcg, err := trainLoop(engine, builder, mlCfg)
	if err != nil {
		return err
	}

	path, err := engine.SaveSim(cfg.Model.CheckpointDir, hr, ndcg)
	if err != nil {
		return err
	}
	logger.Info("sim checkpoint written", "path", path, "hr", hr, "ndcg", ndcg)
	return nil
}

// runProd trains on the live interaction log, finetunes from the latest
// production checkpoint when one exists, uploads the result as the
// latest model and asks the serving API to reload it.
func runProd(cfg *config.Config) error {
	ctx := context.Background()

	mlCfg, err := trainConfig(cfg, recommend.DefaultProdConfig())
	if err != nil {
		return err
	}

	db, err := database.InitPostgres(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	interactionRepo := psqlRepo.NewInteractionRepository(db)
	interactions, err := interactionRepo.FetchAll(ctx)
	if err != nil {
		return err
	}
	numUsers, numItems, err := interactionRepo.Counts(ctx)
	if err != nil {
		return err
	}
	logger.Info("interaction log loaded", "rows", len(interactions), "num_users", numUsers, "num_items", numItems)

	mlCfg = mlCfg.WithCounts(numUsers, numItems)
	rng := rand.New(rand.NewSource(mlCfg.Seed))

	builder, err := recommend.NewSampleBuilder(interactions, rng)
	if err != nil {
		return err
	}

	model, err := recommend.NewFusionScorer(mlCfg, rng)
	if err != nil {
		return err
	}

	if mlCfg.Pretrain {
		latest, err := recommend.FindLatestProdCheckpoint(cfg.Model.CheckpointDir)
		if err != nil {
			logger.Warn("checkpoint discovery failed, training from scratch", "error", err)
		} else if latest == "" {
			logger.Info("no previous checkpoint, training from scratch")
		} else {
			ckpt, err := recommend.LoadCheckpointFile(latest)
			if err != nil {
				return fmt.Errorf("load pretrain checkpoint: %w", err)
			}
			if err := model.Finetune(ckpt, rng); err != nil {
				return fmt.Errorf("finetune: %w", err)
			}
			logger.Info("finetuning from checkpoint", "path", latest)
		}
	}

	engine, err := recommend.NewEngine(model)
	if err != nil {
		return err
	}

	hr, ndcg, err := trainLoop(engine, builder, mlCfg)
	if err != nil {
		return err
	}

	path, err := engine.SaveProd(cfg.Model.CheckpointDir, hr, ndcg)
	if err != nil {
		return err
	}
	logger.Info("prod checkpoint written", "path", path, "hr", hr, "ndcg", ndcg)

	if cfg.S3.Disabled {
		return nil
	}

	store, err := s3Repo.NewModelRepository(ctx, cfg)
	if err != nil {
		return err
	}
	if err := store.Upload(ctx, path); err != nil {
		return err
	}

	return triggerReload(cfg.Model.ServingURL)
}

// trainLoop resamples negatives, trains and evaluates once per epoch
// and returns the final metrics.
func trainLoop(engine *recommend.Engine, builder *recommend.SampleBuilder, mlCfg recommend.Config) (float64, float64, error) {
	var hr, ndcg float64
	for epoch := 0; epoch < mlCfg.NumEpoch; epoch++ {
		batches, err := builder.TrainLoader(mlCfg.NumNegative, mlCfg.BatchSize)
		if err != nil {
			return 0, 0, err
		}
		if _, err := engine.TrainEpoch(batches, epoch); err != nil {
			return 0, 0, err
		}

		hr, ndcg, err = engine.Evaluate(builder.EvaluateData())
		if err != nil {
			return 0, 0, err
		}
		logger.Info("evaluation", "epoch", epoch, "hr", hr, "ndcg", ndcg, "eval_users", builder.NumEvalUsers())
	}
	return hr, ndcg, nil
}

func trainConfig(cfg *config.Config, base recommend.Config) (recommend.Config, error) {
	if cfg.Model.TrainConfigPath == "" {
		return base, nil
	}
	return recommend.LoadConfig(cfg.Model.TrainConfigPath, base)
}

// triggerReload tells the serving API to pick up the freshly uploaded
// model.
func triggerReload(servingURL string) error {
	client := &http.Client{Timeout: 2 * time.Minute}
	url := servingURL + "/api/v1/model/reload"

	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("reload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reload returned status %d", resp.StatusCode)
	}

	logger.Info("serving API reloaded", "url", url)
	return nil
}
