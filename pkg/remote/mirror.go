// Package remote mirrors bandvault backups to S3-compatible object storage.
//
// Mirroring is optional: when the remote section of the configuration is
// enabled, migration backups and metadata snapshots are uploaded after they
// are created, so a lost disk does not mean a lost collection history.
// Mirroring is best effort relative to the local operation — a failed
// upload is reported but never rolls back local work.
package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mpreviati/bandvault/internal/logger"
	"github.com/mpreviati/bandvault/pkg/collection"
)

// Client is the subset of the S3 API the mirror uses. The real
// s3.Client satisfies it; tests substitute a fake.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Mirror uploads backup trees to one bucket under a key prefix.
//
// Object keys mirror the local layout relative to the music root:
// <prefix>/<band>/<backup folder>/<file>. Keys are slash-separated
// regardless of the local OS.
type Mirror struct {
	client    Client
	bucket    string
	keyPrefix string
}

// Config configures a Mirror.
type Config struct {
	// Client is the configured S3 client.
	Client Client

	// Bucket is the target bucket name.
	Bucket string

	// KeyPrefix optionally namespaces all uploaded keys.
	KeyPrefix string
}

// NewMirror creates a Mirror after validating the configuration.
func NewMirror(cfg Config) (*Mirror, error) {
	if cfg.Client == nil {
		return nil, collection.NewStoreError(collection.ErrConfig, "S3 client is required", "")
	}
	if cfg.Bucket == "" {
		return nil, collection.NewStoreError(collection.ErrConfig, "bucket name is required", "")
	}
	return &Mirror{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: strings.Trim(cfg.KeyPrefix, "/"),
	}, nil
}

// UploadTree uploads every regular file under localPath, which may itself
// be a single file. remoteBase is the key prefix for this tree, typically
// "<band>/<backup folder name>".
//
// Returns the number of uploaded objects. The first upload failure aborts
// the tree; already uploaded objects are left in place.
func (m *Mirror) UploadTree(ctx context.Context, localPath, remoteBase string) (int, error) {
	relBase := localPath
	if info, err := os.Stat(localPath); err == nil && !info.IsDir() {
		relBase = filepath.Dir(localPath)
	}

	uploaded := 0
	err := filepath.Walk(localPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(relBase, path)
		if err != nil {
			return err
		}
		key := m.key(remoteBase, filepath.ToSlash(rel))

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()

		_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(m.bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, collection.WrapError(collection.ErrIO,
			fmt.Sprintf("backup mirror upload failed: %v", err), localPath, err)
	}

	logger.Info("mirrored %d objects from %s to s3://%s/%s", uploaded, localPath, m.bucket, m.key(remoteBase, ""))
	return uploaded, nil
}

// List returns the object keys stored under remoteBase, for disaster
// recovery tooling to enumerate available backups.
func (m *Mirror) List(ctx context.Context, remoteBase string) ([]string, error) {
	var keys []string
	var token *string
	prefix := m.key(remoteBase, "")

	for {
		out, err := m.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(m.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, collection.WrapError(collection.ErrIO,
				fmt.Sprintf("failed to list mirrored backups: %v", err), prefix, err)
		}
		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			return keys, nil
		}
		token = out.NextContinuationToken
	}
}

// Fetch downloads one mirrored object into localPath, creating parent
// directories as needed.
func (m *Mirror) Fetch(ctx context.Context, key, localPath string) error {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to fetch %s: %v", key, err), key, err)
	}
	defer func() { _ = out.Body.Close() }()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to create %s: %v", filepath.Dir(localPath), err), localPath, err)
	}
	f, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to create %s: %v", localPath, err), localPath, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.ReadFrom(out.Body); err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to write %s: %v", localPath, err), localPath, err)
	}
	return nil
}

func (m *Mirror) key(parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	if m.keyPrefix != "" {
		all = append(all, m.keyPrefix)
	}
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			all = append(all, p)
		}
	}
	return strings.Join(all, "/")
}
