package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

const pagesMetadataKey = "pages"

// S3Config holds S3 backend configuration.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional, for S3-compatible servers
	Prefix   string
	MaxSize  int64
	Timeout  time.Duration
}

// S3Store implements BlobStore on an S3 bucket. Every call goes through a circuit breaker.
type S3Store struct {
	client  *s3.Client
	breaker *gobreaker.CircuitBreaker[any]
	cfg     S3Config
}

// NewS3Store loads AWS configuration from the environment and builds the client.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, breaker: newBreaker("s3:" + cfg.Bucket), cfg: cfg}, nil
}

func newBreaker(name string) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})
}

func (s *S3Store) objectKey(key string) string {
	return s.cfg.Prefix + key
}

// Put uploads the content. The page count is stored as object metadata.
func (s *S3Store) Put(ctx context.Context, key, contentType string, content io.Reader) (Object, error) {
	data, err := readLimited(content, s.cfg.MaxSize)
	if err != nil {
		return Object{}, err
	}

	obj := Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Pages:       CountPages(contentType, data),
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	_, err = s.breaker.Execute(func() (any, error) {
		return s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.cfg.Bucket),
			Key:           aws.String(s.objectKey(key)),
			Body:          bytes.NewReader(data),
			ContentType:   aws.String(contentType),
			ContentLength: aws.Int64(obj.Size),
			Metadata:      map[string]string{pagesMetadataKey: strconv.Itoa(obj.Pages)},
		})
	})
	if err != nil {
		return Object{}, fmt.Errorf("failed to upload blob %s: %w", key, err)
	}

	return obj, nil
}

// Get streams the object. The caller closes the reader.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, Object, error) {
	res, err := s.breaker.Execute(func() (any, error) {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(s.objectKey(key)),
		})
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}
		return out, err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Object{}, ErrNotFound
		}
		return nil, Object{}, fmt.Errorf("failed to download blob %s: %w", key, err)
	}

	out := res.(*s3.GetObjectOutput)
	obj := Object{
		Key:         key,
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
		Pages:       1,
	}
	if n, err := strconv.Atoi(out.Metadata[pagesMetadataKey]); err == nil {
		obj.Pages = n
	}
	return out.Body, obj, nil
}

// Delete removes the object. S3 does not report missing keys on delete.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	_, err := s.breaker.Execute(func() (any, error) {
		return s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(s.objectKey(key)),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

// Ping checks that the bucket exists and is reachable with the configured credentials.
func (s *S3Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	_, err := s.breaker.Execute(func() (any, error) {
		return s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)})
	})
	if err != nil {
		return fmt.Errorf("failed to reach bucket %s: %w", s.cfg.Bucket, err)
	}
	return nil
}
