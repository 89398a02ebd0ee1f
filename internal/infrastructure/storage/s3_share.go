package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// ErrSharingDisabled is returned when no object storage is configured.
var ErrSharingDisabled = errors.New("document sharing is not configured")

// ShareConfig configures the S3-compatible bucket that holds shared documents.
type ShareConfig struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Prefix       string
	UsePathStyle bool
	LinkTTL      time.Duration
}

// S3Sharer uploads documents and hands out presigned download links.
type S3Sharer struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	prefix        string
	linkTTL       time.Duration
	logger        *zap.Logger
}

// NewS3Sharer builds the client. Without static keys the default AWS credential chain
// is used.
func NewS3Sharer(ctx context.Context, cfg ShareConfig, logger *zap.Logger) (*S3Sharer, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.LinkTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &S3Sharer{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		prefix:        cfg.Prefix,
		linkTTL:       ttl,
		logger:        logger,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (s *S3Sharer) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	s.logger.Info("share bucket created", zap.String("bucket", s.bucket))
	return nil
}

// Share uploads doc under key and returns a link valid for the configured TTL.
func (s *S3Sharer) Share(ctx context.Context, key string, doc *Document) (string, error) {
	body, err := doc.Bytes()
	if err != nil {
		return "", err
	}
	objectKey := path.Join(s.prefix, key)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(objectKey),
		Body:               bytes.NewReader(body),
		ContentType:        aws.String("application/pdf"),
		ContentDisposition: aws.String(fmt.Sprintf("inline; filename=%q", doc.Name())),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload document: %w", err)
	}

	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(s.linkTTL))
	if err != nil {
		return "", fmt.Errorf("failed to sign document link: %w", err)
	}

	s.logger.Info("document shared", zap.String("key", objectKey), zap.Duration("ttl", s.linkTTL))
	return req.URL, nil
}
