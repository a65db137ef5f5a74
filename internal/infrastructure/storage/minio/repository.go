package minio

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

const contentTypeJSON = "application/json"

// ArtifactStore keeps named blobs under Config.Prefix in the client's
// bucket.
type ArtifactStore struct {
	client *Client
	logger logging.Logger
}

// NewArtifactStore returns a store over client.
func NewArtifactStore(client *Client, log logging.Logger) *ArtifactStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ArtifactStore{client: client, logger: log}
}

func (s *ArtifactStore) key(name string) string {
	if s.client.config.Prefix == "" {
		return name
	}
	return path.Join(s.client.config.Prefix, name)
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}

// Put uploads data as name.
func (s *ArtifactStore) Put(ctx context.Context, name string, data []byte) error {
	key := s.key(name)
	info, err := s.client.api.PutObject(ctx, s.client.config.Bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentTypeJSON})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "artifact upload failed").WithDetail(key)
	}
	s.logger.Debug("artifact uploaded",
		logging.String("bucket", s.client.config.Bucket),
		logging.String("key", key),
		logging.String("etag", info.ETag),
		logging.Int64("size", info.Size))
	return nil
}

// Get downloads name.  An absent object yields ArtifactMissing.
func (s *ArtifactStore) Get(ctx context.Context, name string) ([]byte, error) {
	key := s.key(name)
	obj, err := s.client.api.GetObject(ctx, s.client.config.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, errors.ArtifactMissing(name)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "artifact download failed").WithDetail(key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, errors.ArtifactMissing(name)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "artifact download failed").WithDetail(key)
	}
	return data, nil
}

// Exists stats name.
func (s *ArtifactStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.api.StatObject(ctx, s.client.config.Bucket, s.key(name), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeStorageError, "artifact stat failed").WithDetail(s.key(name))
	}
	return true, nil
}

// Delete removes name.  Removing an absent object is not an error.
func (s *ArtifactStore) Delete(ctx context.Context, name string) error {
	if err := s.client.api.RemoveObject(ctx, s.client.config.Bucket, s.key(name), minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "artifact delete failed").WithDetail(s.key(name))
	}
	return nil
}

// List returns blob names under the prefix, sorted.
func (s *ArtifactStore) List(ctx context.Context) ([]string, error) {
	prefix := s.client.config.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var names []string
	for obj := range s.client.api.ListObjects(ctx, s.client.config.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorageError, "artifact listing failed")
		}
		names = append(names, strings.TrimPrefix(obj.Key, prefix))
	}
	sort.Strings(names)
	return names, nil
}
