package recommend

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Optimizer selection.
const (
	OptimizerSGD     = "sgd"
	OptimizerAdam    = "adam"
	OptimizerRMSprop = "rmsprop"
)

// Serving thresholds. Fixed by design, not runtime-configurable.
const (
	// ExistingUserThreshold is the minimum model score a candidate must
	// exceed to enter a known user's timeline.
	ExistingUserThreshold = 0.2
	// NewUserThreshold is the minimum popularity proxy (likes + comments)
	// a candidate must exceed to enter a cold-start timeline.
	NewUserThreshold = 2.0
)

// TopK is the cutoff used for HR@K and NDCG@K during evaluation.
const TopK = 10

const (
	defaultLatentDimMF      = 8
	defaultLatentDimMLP     = 8
	defaultImageEmbDim      = 16
	defaultTextEmbDim       = 16
	defaultImageFeatureDim  = 768
	defaultTextFeatureDim   = 768
	defaultNumNegative      = 4
	defaultBatchSize        = 512
	defaultNumEpoch         = 50
	defaultAdamLR           = 1e-3
	defaultL2Regularization = 1e-7
)

// Config is the full hyperparameter set of one training or serving run.
// It is built once, with NumUsers/NumItems injected before model
// construction, and never mutated afterwards. A checkpoint persists the
// config it was trained with.
type Config struct {
	Alias string `yaml:"alias"`

	NumUsers int `yaml:"num_users"`
	NumItems int `yaml:"num_items"`

	LatentDimMF  int `yaml:"latent_dim_mf"`
	LatentDimMLP int `yaml:"latent_dim_mlp"`

	ImageEmbDim     int `yaml:"image_emb_dim"`
	TextEmbDim      int `yaml:"text_emb_dim"`
	ImageFeatureDim int `yaml:"image_feature_dim"`
	TextFeatureDim  int `yaml:"text_feature_dim"`

	// MLPLayers are the widths of the deep-pathway stack, applied after
	// the user/item concatenation (input width = 2*LatentDimMLP).
	MLPLayers []int `yaml:"mlp_layers"`

	NumNegative int `yaml:"num_negative"`
	BatchSize   int `yaml:"batch_size"`
	NumEpoch    int `yaml:"num_epoch"`

	Optimizer        string  `yaml:"optimizer"`
	SGDLR            float64 `yaml:"sgd_lr"`
	SGDMomentum      float64 `yaml:"sgd_momentum"`
	AdamLR           float64 `yaml:"adam_lr"`
	RMSpropLR        float64 `yaml:"rmsprop_lr"`
	RMSpropAlpha     float64 `yaml:"rmsprop_alpha"`
	RMSpropMomentum  float64 `yaml:"rmsprop_momentum"`
	L2Regularization float64 `yaml:"l2_regularization"`

	WeightInitGaussian bool `yaml:"weight_init_gaussian"`

	Pretrain         bool   `yaml:"pretrain"`
	PretrainModelDir string `yaml:"pretrain_model_dir"`

	// UseBatchedEval scores the evaluation tensors in BatchSize windows
	// instead of one pass. Results are identical up to float rounding.
	UseBatchedEval bool `yaml:"use_batched_eval"`

	// Seed drives negative sampling and weight init, for reproducible runs.
	Seed int64 `yaml:"seed"`
}

// DefaultSimConfig is the baseline for simulation runs on synthetic data.
func DefaultSimConfig() Config {
	return Config{
		Alias:              "sim",
		NumUsers:           100,
		NumItems:           200,
		LatentDimMF:        defaultLatentDimMF,
		LatentDimMLP:       defaultLatentDimMLP,
		ImageEmbDim:        defaultImageEmbDim,
		TextEmbDim:         defaultTextEmbDim,
		ImageFeatureDim:    defaultImageFeatureDim,
		TextFeatureDim:     defaultTextFeatureDim,
		MLPLayers:          []int{16, 64, 32, 16, 8},
		NumNegative:        defaultNumNegative,
		BatchSize:          defaultBatchSize,
		NumEpoch:           defaultNumEpoch,
		Optimizer:          OptimizerAdam,
		AdamLR:             defaultAdamLR,
		L2Regularization:   defaultL2Regularization,
		WeightInitGaussian: true,
		Pretrain:           false,
		UseBatchedEval:     false,
	}
}

// DefaultProdConfig is the baseline for production runs. NumUsers and
// NumItems are zero here; the trainer injects the real counts from the
// interaction data before constructing the sample builder and model.
func DefaultProdConfig() Config {
	cfg := DefaultSimConfig()
	cfg.Alias = "prod"
	cfg.NumUsers = 0
	cfg.NumItems = 0
	cfg.Pretrain = true
	return cfg
}

// LoadConfig reads YAML overrides on top of the given base config.
func LoadConfig(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read train config: %w", err)
	}

	cfg := base
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse train config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects configs the model cannot be built from.
func (c Config) Validate() error {
	if c.LatentDimMF <= 0 || c.LatentDimMLP <= 0 {
		return fmt.Errorf("latent dims must be positive, got mf=%d mlp=%d", c.LatentDimMF, c.LatentDimMLP)
	}
	if c.ImageFeatureDim <= 0 || c.TextFeatureDim <= 0 {
		return fmt.Errorf("feature dims must be positive, got image=%d text=%d", c.ImageFeatureDim, c.TextFeatureDim)
	}
	if c.ImageEmbDim <= 0 || c.TextEmbDim <= 0 {
		return fmt.Errorf("embedding dims must be positive, got image=%d text=%d", c.ImageEmbDim, c.TextEmbDim)
	}
	if len(c.MLPLayers) == 0 {
		return fmt.Errorf("mlp_layers must not be empty")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.NumNegative < 0 {
		return fmt.Errorf("num_negative must not be negative, got %d", c.NumNegative)
	}
	switch c.Optimizer {
	case OptimizerSGD, OptimizerAdam, OptimizerRMSprop:
	default:
		return fmt.Errorf("unknown optimizer: %s", c.Optimizer)
	}
	return nil
}

// WithCounts returns a copy with the dense user/item counts injected.
func (c Config) WithCounts(numUsers, numItems int) Config {
	c.NumUsers = numUsers
	c.NumItems = numItems
	return c
}
