package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Store implements Store using AWS S3 with <prefix>/<kind>/<filename> keys.
type S3Store struct {
	client            *s3.Client
	presignClient     *s3.PresignClient
	bucket            string
	prefix            string
	presignExpiration time.Duration
}

// NewS3Store creates a new S3 store.
// It uses AWS SDK v2's default credential chain (IAM role on EC2).
func NewS3Store(bucket, region, prefix string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket name cannot be empty")
	}
	if region == "" {
		return nil, fmt.Errorf("S3 region cannot be empty")
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)

	return &S3Store{
		client:            client,
		presignClient:     s3.NewPresignClient(client),
		bucket:            bucket,
		prefix:            strings.Trim(prefix, "/"),
		presignExpiration: 15 * time.Minute,
	}, nil
}

// Write stores data from the reader under the given kind and filename.
func (s *S3Store) Write(ctx context.Context, kind Kind, filename string, reader io.Reader) (string, error) {
	key, err := s.key(kind, filename)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   reader,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return key, nil
}

// Read retrieves the file stored under the given kind and filename.
func (s *S3Store) Read(ctx context.Context, kind Kind, filename string) (io.ReadCloser, error) {
	key, err := s.key(kind, filename)
	if err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFoundError(err) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}

	return result.Body, nil
}

// List returns the filenames present under the given kind.
func (s *S3Store) List(ctx context.Context, kind Kind) ([]string, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}

	keyPrefix := s.kindPrefix(kind)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(keyPrefix),
	})

	var filenames []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s storage: %w", kind, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), keyPrefix)
			// Skip nested keys; filenames are flat within a kind
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			filenames = append(filenames, name)
		}
	}

	if filenames == nil {
		filenames = []string{}
	}
	return filenames, nil
}

// Exists checks if a file exists under the given kind and filename.
func (s *S3Store) Exists(ctx context.Context, kind Kind, filename string) (bool, error) {
	key, err := s.key(kind, filename)
	if err != nil {
		return false, err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check S3 object existence: %w", err)
	}

	return true, nil
}

// Path returns a presigned URL for accessing an existing file.
func (s *S3Store) Path(ctx context.Context, kind Kind, filename string) (string, error) {
	key, err := s.key(kind, filename)
	if err != nil {
		return "", err
	}

	exists, err := s.Exists(ctx, kind, filename)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrFileNotFound
	}

	presignResult, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.presignExpiration
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return presignResult.URL, nil
}

// Cleanup removes every object under the given kinds, or under all kinds
// when none are given.
func (s *S3Store) Cleanup(ctx context.Context, kinds ...Kind) error {
	if len(kinds) == 0 {
		kinds = Kinds()
	}

	for _, kind := range kinds {
		if !kind.IsValid() {
			return fmt.Errorf("%w: %s", ErrInvalidKind, kind)
		}

		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(s.kindPrefix(kind)),
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return fmt.Errorf("failed to list %s storage: %w", kind, err)
			}
			for _, obj := range page.Contents {
				_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(s.bucket),
					Key:    obj.Key,
				})
				if err != nil {
					return fmt.Errorf("failed to clean %s storage: %w", kind, err)
				}
			}
		}
	}

	return nil
}

// key validates the kind and filename and builds the object key.
func (s *S3Store) key(kind Kind, filename string) (string, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}
	if err := validateFilename(filename); err != nil {
		return "", err
	}

	return s.kindPrefix(kind) + filename, nil
}

// kindPrefix returns the key prefix for a kind, ending in "/".
func (s *S3Store) kindPrefix(kind Kind) string {
	if s.prefix == "" {
		return string(kind) + "/"
	}
	return s.prefix + "/" + string(kind) + "/"
}

// isS3NotFoundError checks if an error is an S3 "not found" error.
func isS3NotFoundError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}
