// Package s3blob implements the domain blob interfaces and the history
// archiver on AWS SDK v2. Any S3-compatible provider (MinIO, R2, iDrive e2)
// works through Endpoint and ForcePathStyle.
package s3blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// defaultRegion is used for S3-compatible endpoints that ignore the region
// but still require one for request signing.
const defaultRegion = "us-east-1"

// ClientConfig holds the archive bucket location and credentials.
type ClientConfig struct {
	// Endpoint overrides AWS for S3-compatible providers. A bare host gets
	// https or http depending on UseSSL.
	Endpoint string
	Region   string
	Bucket   string
	// AccessKey and SecretKey are optional; when both are empty the default
	// AWS credential chain (env, shared config, instance role) applies.
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ForcePathStyle bool
	// Prefix is prepended to every object key, e.g. "history".
	Prefix string
}

// Client is the archive bucket handle shared by Writer, Reader and Archiver.
type Client struct {
	s3     *s3.Client
	bucket string
	prefix string
	// encrypt requests SSE-S3 on uploads. Only AWS proper; compatible
	// providers differ in support.
	encrypt bool
}

// New builds a Client. It does not contact the bucket; Health does.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3blob: bucket name is required")
	}
	region := cfg.Region
	if region == "" {
		if cfg.Endpoint == "" {
			return nil, errors.New("s3blob: region is required for AWS")
		}
		region = defaultRegion
	}
	if (cfg.AccessKey == "") != (cfg.SecretKey == "") {
		return nil, errors.New("s3blob: access_key and secret_key must be set together")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normaliseEndpoint(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{
		s3:      client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		encrypt: cfg.Endpoint == "",
	}, nil
}

// Health verifies the bucket is reachable with a HeadBucket call.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close is a no-op; the SDK's HTTP client needs no teardown.
func (c *Client) Close() error {
	return nil
}

// S3 returns the SDK client.
func (c *Client) S3() *s3.Client {
	return c.s3
}

// Bucket returns the archive bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// joinKey maps a logical path to its object key under prefix.
func joinKey(prefix, p string) string {
	p = strings.TrimLeft(p, "/")
	if prefix == "" {
		return p
	}
	return path.Join(prefix, p)
}

func normaliseEndpoint(endpoint string, useSSL bool) string {
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
