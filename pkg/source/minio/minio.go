package minio

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	cfg "github.com/feichai0017/document-ingest/config"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

type MinioSource struct {
	client     *minio.Client
	bucketName string
	logger     logger.Logger
}

// List implements source.Source
func (m *MinioSource) List(ctx context.Context, prefix string) ([]models.File, error) {
	objectCh := m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var files []models.File
	for obj := range objectCh {
		if obj.Err != nil {
			m.logger.Error("Error listing objects",
				logger.String("bucket", m.bucketName),
				logger.Error(obj.Err),
			)
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		files = append(files, m.fileFor(obj.Key, obj.Size))
	}

	m.logger.Info("Listed bucket",
		logger.String("bucket", m.bucketName),
		logger.String("prefix", prefix),
		logger.Int("count", len(files)),
	)
	return files, nil
}

func (m *MinioSource) fileFor(key string, size int64) models.File {
	return models.File{
		Name:   path.Base(key),
		Size:   size,
		Origin: fmt.Sprintf("minio://%s/%s", m.bucketName, key),
		Opener: func(ctx context.Context) (io.ReadCloser, error) {
			return m.Get(ctx, key)
		},
	}
}

// Get opens one object for reading.
func (m *MinioSource) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		m.logger.Error("Failed to get object from MinIO",
			logger.String("bucket", m.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return obj, nil
}

func NewMinioSource(ctx context.Context, log logger.Logger) (*MinioSource, error) {
	minioConfig := cfg.GetMinioConfig()
	if minioConfig.BucketName == "" {
		return nil, fmt.Errorf("MINIO_BUCKET_NAME is not set")
	}

	client, err := minio.New(minioConfig.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(minioConfig.AccessKey, minioConfig.SecretKey, ""),
		Secure: minioConfig.UseSSL,
		Region: minioConfig.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, minioConfig.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", minioConfig.BucketName)
	}

	return &MinioSource{
		client:     client,
		bucketName: minioConfig.BucketName,
		logger:     log.Named("source.minio"),
	}, nil
}

func GetClient(ctx context.Context, log logger.Logger) (*MinioSource, error) {
	return NewMinioSource(ctx, log)
}
