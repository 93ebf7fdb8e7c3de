package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/infrastructure/resilience"
)

type Options struct {
	Endpoint           string
	AccessKey          string
	SecretKey          string
	UseSSL             bool
	Buckets            []string
	ResilienceExecutor *resilience.Executor
}

type Storage struct {
	client   *minio.Client
	executor *resilience.Executor
}

var classifyMinIOError = resilience.TransientClassifier(isTransientMinIOError)

func New(ctx context.Context, options Options) (*Storage, error) {
	client, err := minio.New(options.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(options.AccessKey, options.SecretKey, ""),
		Secure: options.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	s := &Storage{client: client, executor: options.ResilienceExecutor}
	for _, bucket := range options.Buckets {
		if err := s.ensureBucket(ctx, bucket); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Storage) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

// Put is not retried: the body reader cannot be replayed.
func (s *Storage) Put(ctx context.Context, loc domain.ObjectLocator, body io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if size <= 0 {
		size = -1
	}
	_, err := s.client.PutObject(ctx, loc.Bucket, loc.Key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return wrapError("minio put", loc, err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, loc domain.ObjectLocator) (io.ReadCloser, error) {
	obj, err := resilience.Call(ctx, s.executor, "minio.get", func(ctx context.Context) (*minio.Object, error) {
		obj, err := s.client.GetObject(ctx, loc.Bucket, loc.Key, minio.GetObjectOptions{})
		if err != nil {
			return nil, err
		}
		// GetObject is lazy; Stat surfaces a missing key before the caller reads.
		if _, err := obj.Stat(); err != nil {
			obj.Close()
			return nil, err
		}
		return obj, nil
	}, classifyMinIOError)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.WrapError(domain.ErrObjectNotFound, "minio get", fmt.Errorf("%s: %w", loc, err))
		}
		return nil, wrapError("minio get", loc, err)
	}
	return obj, nil
}

// Delete treats a missing object as already deleted, matching S3 semantics.
func (s *Storage) Delete(ctx context.Context, loc domain.ObjectLocator) error {
	err := resilience.Run(ctx, s.executor, "minio.delete", func(ctx context.Context) error {
		return s.client.RemoveObject(ctx, loc.Bucket, loc.Key, minio.RemoveObjectOptions{})
	}, classifyMinIOError)
	if err != nil && !isNotFound(err) {
		return wrapError("minio delete", loc, err)
	}
	return nil
}

func (s *Storage) PresignGet(ctx context.Context, loc domain.ObjectLocator, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, loc.Bucket, loc.Key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", loc, err)
	}
	return u.String(), nil
}

// wrapError adds the locator and marks retryable failures as temporary.
// minio.ToErrorResponse does not unwrap, so classification runs on the raw
// error.
func wrapError(operation string, loc domain.ObjectLocator, err error) error {
	wrapped := fmt.Errorf("%s %s: %w", operation, loc, err)
	if classifyMinIOError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, wrapped)
	}
	return wrapped
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

func isTransientMinIOError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return true
	case resp.StatusCode == http.StatusTooManyRequests:
		return true
	case resp.Code == "SlowDown" || resp.Code == "RequestTimeout":
		return true
	}
	return false
}
