package assets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config holds construction parameters for an S3Resolver.
type S3Config struct {
	Region          string
	Bucket          string
	Endpoint        string // optional; enables a custom endpoint (e.g. MinIO)
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string // optional
	PathStyle       bool
	KeyTemplate     string
	Expiry          time.Duration

	// HTTPClient overrides the SDK transport.
	HTTPClient *http.Client
}

// S3Resolver issues presigned GET URLs for model objects in one bucket.
type S3Resolver struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	keyTmpl string
	expiry  time.Duration
}

// NewS3Resolver creates an S3Resolver from cfg.
func NewS3Resolver(ctx context.Context, cfg S3Config) (*S3Resolver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})

	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &S3Resolver{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		keyTmpl: cfg.KeyTemplate,
		expiry:  expiry,
	}, nil
}

// ResolveModelAsset implements Resolver. The object must exist; a missing
// key yields ErrNotFound rather than a URL that would 404 on download.
func (r *S3Resolver) ResolveModelAsset(ctx context.Context, gender string) (string, error) {
	key := KeyFor(r.keyTmpl, gender)

	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &r.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: s3://%s/%s", ErrNotFound, r.bucket, key)
		}
		return "", fmt.Errorf("head s3://%s/%s: %w", r.bucket, key, err)
	}

	out, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: &r.bucket, Key: &key},
		func(po *s3.PresignOptions) { po.Expires = r.expiry })
	if err != nil {
		return "", fmt.Errorf("presign s3://%s/%s: %w", r.bucket, key, err)
	}
	return out.URL, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
