package aws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"docbulk/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

const defaultConcurrency = 8

// Storage reads documents from and writes documents to one S3 bucket
type Storage struct {
	s3          *s3.Client
	uploader    *manager.Uploader
	bucket      string
	region      string
	concurrency int
}

// NewStorage builds an S3 client from cfg. Static credentials are used when
// an access key is configured, otherwise the default AWS chain applies.
func NewStorage(ctx context.Context, cfg config.S3Config) (*Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		credProvider := aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
			}, nil
		})
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(credProvider))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	log.Info().
		Str("bucket", cfg.Bucket).
		Str("region", cfg.Region).
		Str("endpoint", cfg.Endpoint).
		Msg("S3 storage initialized")

	return NewStorageFromClient(client, cfg), nil
}

// NewStorageFromClient wraps an existing S3 client
func NewStorageFromClient(client *s3.Client, cfg config.S3Config) *Storage {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Storage{
		s3:          client,
		uploader:    manager.NewUploader(client),
		bucket:      cfg.Bucket,
		region:      cfg.Region,
		concurrency: concurrency,
	}
}

// Bucket returns the bucket name
func (s *Storage) Bucket() string { return s.bucket }

// TestConnection lists at most one key to verify access to the bucket
func (s *Storage) TestConnection(ctx context.Context) error {
	_, err := s.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		log.Error().Err(err).Str("bucket", s.bucket).Msg("AWS S3 test connection failed")
		return fmt.Errorf("s3 bucket %s: %w", s.bucket, err)
	}
	return nil
}

// getObject downloads key. found is false when the key does not exist.
func (s *Storage) getObject(ctx context.Context, key string) (body []byte, found bool, err error) {
	output, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer output.Body.Close()

	body, err = io.ReadAll(output.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}
	return body, true, nil
}

// putObject uploads body under key
func (s *Storage) putObject(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// ObjectURL is the public URL of key
func (s *Storage) ObjectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, strings.TrimPrefix(key, "/"))
}

func joinKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	name = strings.TrimPrefix(name, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
