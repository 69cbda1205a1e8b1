package s3

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"pawgram/pkg/config"
	"pawgram/pkg/logger"
)

// ModelRepository moves model checkpoints between local disk and the
// artifact bucket. The trainer uploads the freshest checkpoint under a
// fixed key; the serving process downloads that key at startup and on
// reload.
type ModelRepository struct {
	client *s3.Client
	bucket string
	key    string
}

func NewModelRepository(ctx context.Context, cfg *config.Config) (*ModelRepository, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &ModelRepository{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.S3.Bucket,
		key:    cfg.S3.ModelKey,
	}, nil
}

// Upload publishes the checkpoint at path as the latest model artifact.
func (r *ModelRepository) Upload(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint %s: %w", path, err)
	}
	defer file.Close()

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(r.key),
		Body:        file,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload model to S3: %w", err)
	}

	logger.Info("model uploaded", "bucket", r.bucket, "key", r.key, "source", path)
	return nil
}

// Download fetches the latest model artifact into destPath.
func (r *ModelRepository) Download(ctx context.Context, destPath string) error {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
	})
	if err != nil {
		return fmt.Errorf("failed to fetch model from S3: %w", err)
	}
	defer out.Body.Close()

	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, out.Body); err != nil {
		return fmt.Errorf("failed to write model to %s: %w", destPath, err)
	}

	logger.Info("model downloaded", "bucket", r.bucket, "key", r.key, "dest", destPath)
	return nil
}
