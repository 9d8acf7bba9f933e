package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Store is the production Store, backed by an S3-compatible bucket.
// Grounded on the s3-uploader's client construction (static credentials,
// optional custom endpoint for MinIO-compatible deployments) and its
// retry-wrapped PutObject call.
type S3Store struct {
	client *s3.Client
	bucket string
	retry  retryConfig
	logger *slog.Logger
}

// NewS3Store builds an S3Store from Config.
func NewS3Store(ctx context.Context, cfg Config, logger *slog.Logger) (*S3Store, error) {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.EndpointURL != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = &cfg.EndpointURL
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &S3Store{client: client, bucket: cfg.Bucket, retry: defaultRetryConfig(), logger: logger}, nil
}

func (s *S3Store) PutVersion(ctx context.Context, datasetID string, version int, snap Snapshot) error {
	return s.put(ctx, versionKey(datasetID, version), snap)
}

func (s *S3Store) GetVersion(ctx context.Context, datasetID string, version int) (Snapshot, error) {
	return s.get(ctx, versionKey(datasetID, version))
}

func (s *S3Store) PutLatest(ctx context.Context, datasetID string, snap Snapshot) error {
	return s.put(ctx, latestKey(datasetID), snap)
}

func (s *S3Store) GetLatest(ctx context.Context, datasetID string) (Snapshot, error) {
	return s.get(ctx, latestKey(datasetID))
}

func (s *S3Store) put(ctx context.Context, key string, snap Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("objectstore: marshal snapshot: %w", err)
	}

	err = doWithRetry(ctx, s.retry, func() error {
		_, putErr := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: &s.bucket,
			Key:    &key,
			Body:   bytes.NewReader(body),
		})

		return putErr
	})
	if err != nil {
		s.logger.Error("objectstore: put failed", slog.String("key", key), slog.Any("error", err))

		return fmt.Errorf("objectstore: put %s: %w", key, err)
	}

	return nil
}

func (s *S3Store) get(ctx context.Context, key string) (Snapshot, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return Snapshot{}, ErrSnapshotNotFound
		}

		return Snapshot{}, fmt.Errorf("objectstore: get %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("objectstore: read %s: %w", key, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("objectstore: unmarshal %s: %w", key, err)
	}

	return snap, nil
}
