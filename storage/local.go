package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrFileNotFound is returned when a requested file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrInvalidKind is returned when a kind is not one of the known buckets.
	ErrInvalidKind = errors.New("invalid storage kind")

	// ErrInvalidFilename is returned when a filename is empty or would escape its bucket.
	ErrInvalidFilename = errors.New("invalid filename")
)

// LocalStore implements Store on the local filesystem with one directory
// per kind under the base directory.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates a new local filesystem store.
// The baseDir will be created if it doesn't exist.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	baseDir = filepath.Clean(baseDir)
	if baseDir == "" || baseDir == "." {
		return nil, fmt.Errorf("%w: base directory cannot be empty", ErrInvalidFilename)
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStore{
		baseDir: baseDir,
	}, nil
}

// Write stores data from the reader under the given kind and filename.
func (s *LocalStore) Write(ctx context.Context, kind Kind, filename string, reader io.Reader) (string, error) {
	fullPath, err := s.resolve(kind, filename)
	if err != nil {
		return "", err
	}

	// Create the kind directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		// Clean up partial file on error
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return fullPath, nil
}

// Read retrieves the file stored under the given kind and filename.
func (s *LocalStore) Read(ctx context.Context, kind Kind, filename string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(kind, filename)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// List returns the filenames present under the given kind.
// A kind directory that doesn't exist yet lists as empty, not as an error.
func (s *LocalStore) List(ctx context.Context, kind Kind) ([]string, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}

	entries, err := os.ReadDir(filepath.Join(s.baseDir, string(kind)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list %s storage: %w", kind, err)
	}

	filenames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		filenames = append(filenames, entry.Name())
	}

	return filenames, nil
}

// Exists checks if a file exists under the given kind and filename.
func (s *LocalStore) Exists(ctx context.Context, kind Kind, filename string) (bool, error) {
	fullPath, err := s.resolve(kind, filename)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}

	return true, nil
}

// Path returns the filesystem path of an existing file.
func (s *LocalStore) Path(ctx context.Context, kind Kind, filename string) (string, error) {
	fullPath, err := s.resolve(kind, filename)
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

	return fullPath, nil
}

// Cleanup removes every file under the given kinds, or under all kinds
// when none are given.
func (s *LocalStore) Cleanup(ctx context.Context, kinds ...Kind) error {
	if len(kinds) == 0 {
		kinds = Kinds()
	}

	for _, kind := range kinds {
		if !kind.IsValid() {
			return fmt.Errorf("%w: %s", ErrInvalidKind, kind)
		}
		if err := os.RemoveAll(filepath.Join(s.baseDir, string(kind))); err != nil {
			return fmt.Errorf("failed to clean %s storage: %w", kind, err)
		}
	}

	return nil
}

// resolve validates the kind and filename and joins them under the base
// directory. Filenames are flat names; separators and traversal are rejected.
func (s *LocalStore) resolve(kind Kind, filename string) (string, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}
	if err := validateFilename(filename); err != nil {
		return "", err
	}

	return filepath.Join(s.baseDir, string(kind), filename), nil
}

// validateFilename rejects empty names, path separators and traversal elements.
func validateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("%w: filename cannot be empty", ErrInvalidFilename)
	}
	if strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("%w: filename cannot contain path separators", ErrInvalidFilename)
	}
	if filename == "." || filename == ".." {
		return fmt.Errorf("%w: path traversal detected", ErrInvalidFilename)
	}
	return nil
}
