// Package storage archives raw uploads in an S3 compatible bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/util"
)

const (
	fetchAttempts = 3
	fetchDelay    = 500 * time.Millisecond
)

// ErrNotConfigured is returned by Load when no bucket is set.
var ErrNotConfigured = errors.New("object storage not configured")

type Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

func (c Config) Enabled() bool {
	return c.Bucket != ""
}

// Client reads and writes objects of a single bucket.
type Client struct {
	s3     *s3.Client
	bucket string
}

func NewS3Client(ctx context.Context, cfg Config) (*Client, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(cfg.Endpoint))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return &Client{s3: client, bucket: cfg.Bucket}, nil
}

// UploadKey builds a unique object key for a tenant upload.
func UploadKey(tenantID, kbType, filename string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return path.Join("uploads", tenantID, kbType, id+"-"+name), nil
}

func (c *Client) Put(ctx context.Context, key, contentType string, content []byte) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	return util.RetryErrWithContext(ctx, fetchAttempts, func(ctx context.Context) error {
		input.Body = bytes.NewReader(content)
		if _, err := c.s3.PutObject(ctx, input); err != nil {
			return fmt.Errorf("failed to upload file to S3: %w", err)
		}
		return nil
	})
}

// Get downloads an object, retrying transient failures.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	return util.RetryWithBackoff(ctx, fetchAttempts, fetchDelay, func(ctx context.Context) ([]byte, error) {
		result, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get file from S3: %w", err)
		}
		defer result.Body.Close()

		content, err := io.ReadAll(result.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read file contents: %w", err)
		}
		return content, nil
	})
}

func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}
