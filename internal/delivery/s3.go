// Package delivery moves product files in and out of S3-compatible object
// storage. Supports AWS S3, MinIO, Wasabi, and other S3-compatible services.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Config describes an S3-compatible bucket holding product files.
type Config struct {
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("delivery: bucket is required")
	}
	if c.AccessKeyID == "" {
		return errors.New("delivery: access_key_id is required")
	}
	if c.SecretAccessKey == "" {
		return errors.New("delivery: secret_access_key is required")
	}
	return nil
}

// Object is a product file streamed out of storage.
type Object struct {
	Body          io.ReadCloser
	ContentLength int64
	ContentType   string
}

// Client wraps the S3 API for product file storage.
type Client struct {
	s3       *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	bucket   string
	prefix   string
	logger   zerolog.Logger
}

// NewClient builds a delivery client from config. Custom endpoints switch the
// client to path-style addressing, which MinIO and friends require.
func NewClient(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("delivery: failed to load aws config: %w", err)
	}

	clientOpts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		endpoint := cfg.Endpoint
		if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
			endpoint = u.Host
		}
		endpointURL := fmt.Sprintf("%s://%s", scheme, endpoint)
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpointURL)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &Client{
		s3:       client,
		presign:  s3.NewPresignClient(client),
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		logger:   logger.With().Str("component", "delivery").Logger(),
	}, nil
}

// TestConnection heads the bucket to verify credentials and reachability.
func (c *Client) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("delivery: failed to access bucket: %w", err)
	}
	return nil
}

// Put uploads a product file and returns the object key. The uploader
// handles multipart chunking for large files.
func (c *Client) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	fullKey := c.objectKey(key)

	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(fullKey),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("delivery: upload %s: %w", fullKey, err)
	}

	c.logger.Info().Str("key", fullKey).Msg("file uploaded")
	return fullKey, nil
}

// Fetch opens a product file for streaming. The caller owns the body and
// must close it.
func (c *Client) Fetch(ctx context.Context, key string) (*Object, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("delivery: fetch %s: %w", key, err)
	}

	obj := &Object{Body: out.Body}
	if out.ContentLength != nil {
		obj.ContentLength = *out.ContentLength
	}
	if out.ContentType != nil {
		obj.ContentType = *out.ContentType
	}
	return obj, nil
}

// Presign returns a time-limited URL for direct download, used when the
// server is configured to redirect instead of proxying file bytes.
func (c *Client) Presign(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("delivery: presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Delete removes a product file from storage.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delivery: delete %s: %w", key, err)
	}
	c.logger.Info().Str("key", key).Msg("file deleted")
	return nil
}

func (c *Client) objectKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + "/" + key
}
