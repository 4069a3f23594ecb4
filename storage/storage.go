package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Kind identifies one of the screenshot buckets a run reads and writes.
type Kind string

const (
	// KindBase holds the accepted reference images new captures are judged against.
	KindBase Kind = "base"

	// KindCurrent holds the captures produced by the most recent test run.
	KindCurrent Kind = "current"

	// KindDiff holds the diff artifacts produced by pixel comparisons.
	KindDiff Kind = "diff"
)

// Kinds returns every valid kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindBase, KindCurrent, KindDiff}
}

// IsValid checks if the kind is one of the known buckets.
func (k Kind) IsValid() bool {
	switch k {
	case KindBase, KindCurrent, KindDiff:
		return true
	}
	return false
}

// Store defines the interface for storing and retrieving screenshot files
// addressed by (kind, filename).
type Store interface {
	// Write stores data from the reader under the given kind and filename
	// and returns the stored location.
	Write(ctx context.Context, kind Kind, filename string, reader io.Reader) (string, error)

	// Read retrieves the file stored under the given kind and filename.
	Read(ctx context.Context, kind Kind, filename string) (io.ReadCloser, error)

	// List returns the filenames present under the given kind.
	// No ordering is guaranteed.
	List(ctx context.Context, kind Kind) ([]string, error)

	// Exists checks if a file exists under the given kind and filename.
	Exists(ctx context.Context, kind Kind, filename string) (bool, error)

	// Path returns a readable location for the file: a filesystem path for
	// local storage, a presigned URL for S3.
	Path(ctx context.Context, kind Kind, filename string) (string, error)

	// Cleanup removes every file under the given kinds.
	// With no kinds given it wipes all of them.
	Cleanup(ctx context.Context, kinds ...Kind) error
}

// Config holds the settings understood by the storage factory.
type Config struct {
	BaseDir       string        // local: root directory for the kind buckets
	Bucket        string        // s3: bucket name
	Region        string        // s3: AWS region
	Prefix        string        // s3: optional key prefix
	PresignExpiry time.Duration // s3: presigned URL expiration
}

// New creates a Store implementation based on configuration.
func New(storageType string, config Config) (Store, error) {
	switch strings.ToLower(storageType) {
	case "local":
		if config.BaseDir == "" {
			return nil, fmt.Errorf("base_dir is required for local storage")
		}
		return NewLocalStore(config.BaseDir)

	case "s3":
		if config.Bucket == "" {
			return nil, fmt.Errorf("bucket is required for S3 storage")
		}
		if config.Region == "" {
			return nil, fmt.Errorf("region is required for S3 storage")
		}

		s3Store, err := NewS3Store(config.Bucket, config.Region, config.Prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}

		if config.PresignExpiry > 0 {
			s3Store.presignExpiration = config.PresignExpiry
		}

		return s3Store, nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
