package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	appconfig "vidtube/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Uploader stores media files and returns a public URL. Handlers depend on
// this interface so tests can substitute a fake.
type Uploader interface {
	Upload(ctx context.Context, body io.Reader, contentType string) (string, error)
}

// S3Store uploads media to an S3-compatible bucket (MinIO in local setups).
type S3Store struct {
	client   *s3.Client
	bucket   string
	endpoint string
}

func NewS3Store(ctx context.Context, cfg appconfig.Media) (*S3Store, error) {
	const op = "media.NewS3Store"

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return &S3Store{
		client:   client,
		bucket:   cfg.Bucket,
		endpoint: cfg.Endpoint,
	}, nil
}

// Upload writes the file under a date-partitioned uuid key and returns the
// public URL for it.
func (s *S3Store) Upload(ctx context.Context, body io.Reader, contentType string) (string, error) {
	const op = "media.Upload"

	key := storageKey()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return fmt.Sprintf("%s/%s", s.endpoint, path.Join(s.bucket, key)), nil
}

func storageKey() string {
	d := time.Now()
	return fmt.Sprintf("uploads/%d/%02d/%02d/%s", d.Year(), d.Month(), d.Day(), uuid.New())
}
