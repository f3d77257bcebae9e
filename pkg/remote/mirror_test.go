package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpreviati/bandvault/pkg/collection"
)

// fakeClient records uploads in memory and serves them back.
type fakeClient struct {
	objects map[string][]byte
	putErr  error
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: map[string][]byte{}}
}

func (f *fakeClient) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeClient) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var contents []types.Object
	for key := range f.objects {
		if params.Prefix == nil || len(*params.Prefix) == 0 || (len(key) >= len(*params.Prefix) && key[:len(*params.Prefix)] == *params.Prefix) {
			contents = append(contents, types.Object{Key: aws.String(key)})
		}
	}
	return &s3.ListObjectsV2Output{Contents: contents, IsTruncated: aws.Bool(false)}, nil
}

func (f *fakeClient) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*params.Key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestNewMirrorValidatesConfig(t *testing.T) {
	_, err := NewMirror(Config{Bucket: "b"})
	assert.True(t, collection.IsCode(err, collection.ErrConfig))

	_, err = NewMirror(Config{Client: newFakeClient()})
	assert.True(t, collection.IsCode(err, collection.ErrConfig))

	m, err := NewMirror(Config{Client: newFakeClient(), Bucket: "b", KeyPrefix: "/backups/"})
	require.NoError(t, err)
	assert.Equal(t, "backups", m.keyPrefix)
}

func TestUploadTree(t *testing.T) {
	client := newFakeClient()
	m, err := NewMirror(Config{Client: client, Bucket: "vault", KeyPrefix: "backups"})
	require.NoError(t, err)

	backup := filepath.Join(t.TempDir(), ".migration_backup_20260829T100000")
	require.NoError(t, os.MkdirAll(filepath.Join(backup, "1970 - Paranoid"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(backup, "1970 - Paranoid", "01.mp3"), []byte("audio"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(backup, ".band_metadata.json"), []byte("{}"), 0o644))

	n, err := m.UploadTree(context.Background(), backup, "Black Sabbath/.migration_backup_20260829T100000")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Contains(t, client.objects,
		"backups/Black Sabbath/.migration_backup_20260829T100000/1970 - Paranoid/01.mp3")
	assert.Contains(t, client.objects,
		"backups/Black Sabbath/.migration_backup_20260829T100000/.band_metadata.json")
}

func TestUploadTreeAbortsOnFailure(t *testing.T) {
	client := newFakeClient()
	client.putErr = errors.New("bucket offline")
	m, err := NewMirror(Config{Client: client, Bucket: "vault"})
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte("{}"), 0o644))

	n, err := m.UploadTree(context.Background(), dir, "x")
	assert.Zero(t, n)
	assert.True(t, collection.IsCode(err, collection.ErrIO))
}

func TestListAndFetchRoundTrip(t *testing.T) {
	client := newFakeClient()
	m, err := NewMirror(Config{Client: client, Bucket: "vault"})
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"band_name":"Om"}`), 0o644))
	_, err = m.UploadTree(context.Background(), src, "Om/backup")
	require.NoError(t, err)

	keys, err := m.List(context.Background(), "Om")
	require.NoError(t, err)
	require.Len(t, keys, 1)

	dst := filepath.Join(t.TempDir(), "restored", "doc.json")
	require.NoError(t, m.Fetch(context.Background(), keys[0], dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, `{"band_name":"Om"}`, string(data))
}
