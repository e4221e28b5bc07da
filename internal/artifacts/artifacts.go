// Package artifacts uploads run artifacts (screenshots) to object
// storage so they outlive the run host.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
)

// Store writes screenshots into a single bucket, keyed per run.
type Store struct {
	client *minio.Client
	bucket string
	log    *slog.Logger
}

func NewStore(client *minio.Client, bucket string, log *slog.Logger) (*Store, error) {
	if client == nil {
		return nil, errors.New("object storage client is required")
	}
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{client: client, bucket: bucket, log: log}, nil
}

// Store uploads the local file under objectName. The local file is kept;
// the screenshot directory is the caller's to clean.
func (s *Store) Store(ctx context.Context, localPath string, objectName string) error {
	info, err := s.client.FPutObject(ctx, s.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: "image/png",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectName, err)
	}
	s.log.Info("artifact uploaded", "bucket", s.bucket, "object", objectName, "size", info.Size)
	return nil
}
