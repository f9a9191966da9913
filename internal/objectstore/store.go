// Package objectstore wraps gocloud.dev/blob behind the small contract the
// Source Scanner (C4) and File Cache (C7) need: list, read, stat, and
// atomically publish a local temp file to a remote path. One Store per
// configured backend (local, s3, azure); HDFS is registered but returns
// ErrUnsupportedBackend since no HDFS driver exists in the dependency
// graph this project draws from.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"

	// Importing the driver packages registers their URL schemes with the
	// blob package; only the scheme actually configured is ever opened.
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/s3blob"
)

// ErrUnsupportedBackend is returned by Open for backend types with no
// wired driver (currently only "hdfs").
var ErrUnsupportedBackend = errors.New("objectstore: unsupported backend")

// Entry describes one listed object.
type Entry struct {
	Key   string
	Size  int64
	IsDir bool
}

// Store is the pluggable object store contract used across the engine.
type Store struct {
	bucket *blob.Bucket
}

// Config selects the backend and its connection parameters. Type is one of
// "local", "s3", "azure", "hdfs".
type Config struct {
	Type     string
	Dir      string // local
	Bucket   string // s3, azure
	Prefix   string
	Endpoint string
	Region   string
}

// Open builds the gocloud.dev/blob URL for cfg and opens the bucket.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	url, err := cfg.urlString()
	if err != nil {
		return nil, err
	}
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("objectstore: open %s: %w", url, err)
	}
	if cfg.Prefix != "" {
		bucket = blob.PrefixedBucket(bucket, strings.TrimSuffix(cfg.Prefix, "/")+"/")
	}
	return &Store{bucket: bucket}, nil
}

func (c Config) urlString() (string, error) {
	switch c.Type {
	case "", "local":
		dir := c.Dir
		if dir == "" {
			dir = "."
		}
		return "file://" + dir, nil
	case "s3":
		url := fmt.Sprintf("s3://%s?region=%s", c.Bucket, valueOr(c.Region, "us-east-1"))
		if c.Endpoint != "" {
			url += fmt.Sprintf("&endpoint=%s&s3ForcePathStyle=true", c.Endpoint)
		}
		return url, nil
	case "azure":
		return fmt.Sprintf("azblob://%s", c.Bucket), nil
	case "hdfs":
		return "", fmt.Errorf("%w: hdfs (nameservice %s)", ErrUnsupportedBackend, c.Endpoint)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedBackend, c.Type)
	}
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// List streams every object under prefix. The returned channel is closed
// when iteration completes or ctx is cancelled; errs receives at most one
// error.
func (s *Store) List(ctx context.Context, prefix string) (<-chan Entry, <-chan error) {
	out := make(chan Entry)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})
		for {
			obj, err := iter.Next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				errs <- fmt.Errorf("objectstore: list %s: %w", prefix, err)
				return
			}
			entry := Entry{Key: obj.Key, Size: obj.Size, IsDir: obj.IsDir}
			select {
			case out <- entry:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errs
}

// NewReader opens a readable stream for key.
func (s *Store) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read %s: %w", key, err)
	}
	return r, nil
}

// Exists reports whether key is present, returning its size when it is.
func (s *Store) Exists(ctx context.Context, key string) (size int64, ok bool) {
	attrs, err := s.bucket.Attributes(ctx, key)
	if err != nil {
		return 0, false
	}
	return attrs.Size, true
}

// Publish atomically uploads the bytes read from r to key. gocloud.dev/blob
// writers are themselves the atomic unit for object-store backends (no
// partial object is visible until Close); for the local/fileblob backend
// this still goes through a temp-file-then-rename internally.
func (s *Store) Publish(ctx context.Context, key string, r io.Reader) error {
	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("objectstore: open writer for %s: %w", key, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("objectstore: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("objectstore: finalize %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, key); err != nil && !errors.Is(err, io.EOF) {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil
		}
		return fmt.Errorf("objectstore: delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying bucket handle.
func (s *Store) Close() error {
	return s.bucket.Close()
}
