package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pithecene-io/strata/iox"
)

// S3Config holds configuration for an S3-hosted registry index.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Key is the index object key within the bucket (required).
	Key string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not
	// subdomain). Required by most S3-compatible providers.
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	if c.Key == "" {
		return errors.New("S3 index key is required")
	}
	return nil
}

// ParseS3Path parses a path in format "bucket/key".
func ParseS3Path(path string) (bucket, key string) {
	parts := strings.SplitN(path, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		key = parts[1]
	}
	return bucket, key
}

// s3API is the subset of the S3 client used by S3Source.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source loads a registry snapshot from an S3 object.
// Uses the AWS SDK default credential chain (env vars, shared config,
// IAM role).
type S3Source struct {
	config S3Config
	client s3API
}

// NewS3Source creates an S3-backed registry source.
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Source{
		config: cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
	}, nil
}

// newS3SourceWithClient wires a custom client. For tests.
func newS3SourceWithClient(cfg S3Config, client s3API) *S3Source {
	return &S3Source{config: cfg, client: client}
}

// Load implements Source.
func (s *S3Source) Load(ctx context.Context) (*Registry, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.config.Bucket,
		Key:    &s.config.Key,
	})
	if err != nil {
		return nil, fmt.Errorf("registry index fetch s3://%s/%s: %w", s.config.Bucket, s.config.Key, err)
	}
	defer iox.DiscardClose(out.Body)

	data, err := io.ReadAll(io.LimitReader(out.Body, maxIndexSize+1))
	if err != nil {
		return nil, fmt.Errorf("registry index read s3://%s/%s: %w", s.config.Bucket, s.config.Key, err)
	}
	if len(data) > maxIndexSize {
		return nil, fmt.Errorf("registry index s3://%s/%s exceeds %d bytes", s.config.Bucket, s.config.Key, maxIndexSize)
	}

	return Decode(data)
}
