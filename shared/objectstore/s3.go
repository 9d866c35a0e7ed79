// Package objectstore persists rendered images and hands out time-limited,
// read-only reference URLs.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store is the object-store contract the workers need: write bytes, then get
// a read-only URL with a bounded lifetime.
type Store interface {
	Put(ctx context.Context, name string, data []byte, contentType string) error
	GetReadReference(ctx context.Context, name string, ttl time.Duration) (string, error)
}

// Config holds S3 settings.
type Config struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint for S3-compatible stores (MinIO,
	// LocalStack). Empty uses the real service.
	Endpoint string
}

// S3Store implements Store on top of aws-sdk-go-v2.
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	logger    *slog.Logger
}

// NewS3Store loads the default AWS config chain and builds the client.
func NewS3Store(ctx context.Context, cfg Config, logger *slog.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("Object store client initialized",
		slog.String("bucket", cfg.Bucket),
		slog.String("region", cfg.Region),
	)

	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		logger:    logger,
	}, nil
}

// Put uploads one object.
func (s *S3Store) Put(ctx context.Context, name string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(name),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", name, err)
	}

	s.logger.Debug("Object uploaded",
		slog.String("key", name),
		slog.Int("bytes", len(data)),
	)
	return nil
}

// GetReadReference returns a presigned GET URL. Presigned GETs carry no write
// permission by construction.
func (s *S3Store) GetReadReference(ctx context.Context, name string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", name, err)
	}
	return req.URL, nil
}
