package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/kanojo/studio/internal/config"
)

var (
	// ErrObjectExists is returned when an upload would overwrite an object.
	ErrObjectExists = errors.New("object already exists")
	// ErrEmptyKey is returned for blank object keys.
	ErrEmptyKey = errors.New("empty object key")
)

// S3Storage stores generated images in an S3-compatible bucket.
type S3Storage struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	endpoint string
	region   string
	baseURL  string
}

// NewS3Storage loads AWS configuration from the environment and targets the
// configured bucket. A custom endpoint switches to path-style addressing.
func NewS3Storage(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Storage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Storage(client, cfg), nil
}

func newS3Storage(client *s3.Client, cfg config.ObjectStoreConfig) *S3Storage {
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	return &S3Storage{
		client:   client,
		uploader: uploader,
		bucket:   cfg.Bucket,
		endpoint: strings.TrimSuffix(strings.TrimSpace(cfg.Endpoint), "/"),
		region:   cfg.Region,
		baseURL:  strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}
}

// Upload writes data under key. It never replaces an existing object; in
// that case ErrObjectExists is returned.
func (s *S3Storage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return ErrEmptyKey
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("s3 storage upload %s: %w", key, ErrObjectExists)
		}
		return fmt.Errorf("s3 storage upload %s: %w", key, err)
	}

	return nil
}

// PublicURL returns the address clients use to fetch key. The configured
// public base URL wins, then the custom endpoint, then the AWS virtual-host
// address.
func (s *S3Storage) PublicURL(key string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", ErrEmptyKey
	}

	escaped := escapeKey(key)
	switch {
	case s.baseURL != "":
		return fmt.Sprintf("%s/%s", s.baseURL, escaped), nil
	case s.endpoint != "":
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, escaped), nil
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, escaped), nil
	}
}

// Delete removes key from the bucket. Missing objects are not an error.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return ErrEmptyKey
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 storage delete %s: %w", key, err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "PreconditionFailed"
	}
	return false
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
