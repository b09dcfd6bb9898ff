package s3

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	cfg "github.com/feichai0017/document-ingest/config"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

// API is the subset of the S3 client the source needs.
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3Source struct {
	client     API
	bucketName string
	logger     logger.Logger
}

// NewWithClient wraps an existing client.
func NewWithClient(client API, bucket string, log logger.Logger) *S3Source {
	return &S3Source{client: client, bucketName: bucket, logger: log.Named("source.s3")}
}

// List pages through the bucket and returns one file per object under
// prefix. Directory placeholder keys are skipped.
func (s *S3Source) List(ctx context.Context, prefix string) ([]models.File, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var files []models.File
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			s.logger.Error("Failed to list objects",
				logger.String("bucket", s.bucketName),
				logger.String("prefix", prefix),
				logger.Error(err),
			)
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			files = append(files, s.fileFor(key, aws.ToInt64(obj.Size)))
		}
	}

	s.logger.Info("Listed bucket",
		logger.String("bucket", s.bucketName),
		logger.String("prefix", prefix),
		logger.Int("count", len(files)),
	)
	return files, nil
}

func (s *S3Source) fileFor(key string, size int64) models.File {
	return models.File{
		Name:   path.Base(key),
		Size:   size,
		Origin: fmt.Sprintf("s3://%s/%s", s.bucketName, key),
		Opener: func(ctx context.Context) (io.ReadCloser, error) {
			return s.Get(ctx, key)
		},
	}
}

// Get opens one object for reading.
func (s *S3Source) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.Error("Failed to get object from S3",
			logger.String("bucket", s.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return result.Body, nil
}

func NewS3Source(ctx context.Context, log logger.Logger) (*S3Source, error) {
	s3Config := cfg.GetS3Config()
	if s3Config.BucketName == "" {
		return nil, fmt.Errorf("AWS_S3_BUCKET_NAME is not set")
	}

	log.Info("S3 Configuration",
		logger.String("bucket", s3Config.BucketName),
		logger.String("region", s3Config.Region),
		logger.String("endpoint", s3Config.Endpoint),
	)

	opts := []func(*config.LoadOptions) error{config.WithRegion(s3Config.Region)}
	if s3Config.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s3Config.AccessKey,
			s3Config.SecretKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3Config.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3Config.Endpoint)
			o.UsePathStyle = true
		}
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s3Config.BucketName),
	}); err != nil {
		return nil, fmt.Errorf("failed to verify bucket existence: %w", err)
	}

	return NewWithClient(client, s3Config.BucketName, log), nil
}

func GetClient(ctx context.Context, log logger.Logger) (*S3Source, error) {
	return NewS3Source(ctx, log)
}
