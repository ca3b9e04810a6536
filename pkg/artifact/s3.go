package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Config configures the S3 report archive.
//
// Authentication uses the AWS SDK v2 default credential chain unless
// explicit credentials are provided. For S3-compatible stores (MinIO,
// Wasabi, R2), set Endpoint and typically ForcePathStyle.
type S3Config struct {
	// Bucket is the destination bucket name (required).
	Bucket string

	// Prefix is prepended to every report key, e.g. "verdict/reports".
	Prefix string

	// Region is the AWS region. Empty lets the SDK resolve it from the
	// environment or profile.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	Endpoint string

	// Profile is the AWS profile name from shared config.
	Profile string

	// AccessKeyID and SecretAccessKey are explicit credentials. Both
	// must be set together; they take precedence over the default
	// chain.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle forces path-style URLs, required for most
	// S3-compatible stores.
	ForcePathStyle bool
}

// Validate checks that required configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("artifact s3 bucket is required")
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return errors.New("access key id and secret access key must be provided together")
	}
	return nil
}

// S3Archiver uploads reports to S3-compatible object storage.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ Archiver = (*S3Archiver)(nil)

// NewS3Archiver creates an S3-backed archiver.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &S3Archiver{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Store uploads the report as <prefix>/<run_id>/report.json and returns
// the s3:// location.
func (a *S3Archiver) Store(ctx context.Context, runID string, report []byte) (string, error) {
	key := path.Join(a.prefix, runID, "report.json")

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(report),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("upload report (%s): %w", apiErr.ErrorCode(), err)
		}
		return "", fmt.Errorf("upload report: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

func loadAWSConfig(ctx context.Context, cfg S3Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	return config.LoadDefaultConfig(ctx, opts...)
}
