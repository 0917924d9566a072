// Package s3blob archives history records evicted from the in-memory log to
// S3-compatible object storage using AWS SDK v2.
package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// Objects at or above this size go through the multipart upload manager.
const multipartThreshold int64 = 8 << 20

// ClientConfig describes the archive bucket. Endpoint is empty for AWS and
// set for MinIO, R2 and the like, which usually also need ForcePathStyle.
// Without AccessKey the SDK's default credential chain is used.
type ClientConfig struct {
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ForcePathStyle bool
}

// Client uploads objects into one bucket under an optional key prefix.
type Client struct {
	api      *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

var _ domain.BlobWriter = (*Client)(nil)

// New builds the SDK client. It does not contact the store.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, errors.New("s3blob: bucket and region are required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{
		api:      api,
		uploader: manager.NewUploader(api),
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Put stores body under the prefixed key. Small objects are sent with a
// single PutObject; large ones are split by the upload manager.
func (c *Client) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(c.objectKey(key)),
		Body:        body,
		ContentType: aws.String(contentType),
	}

	var err error
	if size >= multipartThreshold {
		_, err = c.uploader.Upload(ctx, in)
	} else {
		in.ContentLength = aws.Int64(size)
		_, err = c.api.PutObject(ctx, in)
	}
	if err != nil {
		return fmt.Errorf("s3blob: put %s/%s: %w", c.bucket, c.objectKey(key), err)
	}
	return nil
}

// Health checks that the bucket exists and is reachable with the configured
// credentials.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", c.bucket, err)
	}
	return nil
}

func (c *Client) objectKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return path.Join(c.prefix, key)
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
