package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// MaxRemoteSize caps how much of a remote catalog is read.
const MaxRemoteSize = 4 << 20

// S3Options configures access to catalogs stored in S3 or an S3-compatible
// store. Zero values use the SDK default credential chain and region.
type S3Options struct {
	Region          string
	Profile         string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
}

// ObjectGetter is the slice of the S3 client used to fetch catalogs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var _ ObjectGetter = (*s3.Client)(nil)

// Fetch loads the catalog named by source.
//
//   - "" returns the embedded default
//   - "s3://bucket/key" reads the object with an S3 client built from opts
//   - anything else is a local path
func Fetch(ctx context.Context, source string, opts S3Options) (*Catalog, error) {
	source = strings.TrimSpace(source)
	switch {
	case source == "":
		return Default()
	case strings.HasPrefix(source, "s3://"):
		bucket, key, err := ParseS3URI(source)
		if err != nil {
			return nil, err
		}
		client, err := NewS3Client(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("catalog s3 client: %w", err)
		}
		return FetchS3(ctx, client, bucket, key)
	default:
		return Load(source)
	}
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid catalog uri: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid catalog uri %q: want s3://bucket/key", uri)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("invalid catalog uri %q: missing object key", uri)
	}
	return u.Host, key, nil
}

// NewS3Client builds an S3 client for catalog reads.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	if awsCfg.Region == "" {
		// S3-compatible stores generally ignore region but the signer needs one.
		awsCfg.Region = "us-east-1"
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.ForcePathStyle {
			o.UsePathStyle = true
		}
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

// FetchS3 reads and validates the catalog at bucket/key.
func FetchS3(ctx context.Context, client ObjectGetter, bucket, key string) (*Catalog, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error(err, bucket, key)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(out.Body, MaxRemoteSize+1))
	if err != nil {
		return nil, fmt.Errorf("read catalog s3://%s/%s: %w", bucket, key, err)
	}
	if len(data) > MaxRemoteSize {
		return nil, fmt.Errorf("catalog s3://%s/%s exceeds %d bytes", bucket, key, MaxRemoteSize)
	}
	return LoadFromBytes(data, path.Base(key))
}

func classifyS3Error(err error, bucket, key string) error {
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return fmt.Errorf("%w: s3://%s/%s", ErrNotFound, bucket, key)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return fmt.Errorf("%w: s3://%s/%s", ErrNotFound, bucket, key)
		}
		return fmt.Errorf("fetch catalog s3://%s/%s: %s: %w", bucket, key, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("fetch catalog s3://%s/%s: %w", bucket, key, err)
}
