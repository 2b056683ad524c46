// Package s3store provides an object store backed by Amazon S3 (or any
// S3-compatible endpoint).
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
)

// API is the subset of the S3 client used by ObjectStore.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Config selects the region and an optional custom endpoint.
type Config struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// ObjectStore serves s3:// locations.
type ObjectStore struct {
	api API
}

// New wraps an existing client.
func New(api API) (*ObjectStore, error) {
	if api == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	return &ObjectStore{api: api}, nil
}

// NewFromConfig builds a client from the default AWS credential chain.
func NewFromConfig(ctx context.Context, cfg Config) (*ObjectStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &ObjectStore{api: client}, nil
}

// Download streams the object into w.
func (s *ObjectStore) Download(ctx context.Context, bucket, key string, w io.Writer) error {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return crawler.NewError(crawler.KindNotFound, "download", "s3://"+bucket+"/"+key, err)
		}
		return fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close() //nolint:errcheck // read-only

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("copy object: %w", err)
	}
	return nil
}

// Upload writes everything from r into the object. r should be seekable so
// the SDK can compute the payload length.
func (s *ObjectStore) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	if key == "" {
		return fmt.Errorf("object key is required")
	}
	if _, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   r,
	}); err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// Exists issues a HEAD request for the object.
func (s *ObjectStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("head object: %w", err)
	}
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}
