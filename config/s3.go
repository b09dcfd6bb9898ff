package config

import (
	"sync"
)

var (
	s3Once   sync.Once
	s3Config *S3Config
)

type S3Config struct {
	BucketName string
	Region     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
}

func LoadS3Config() *S3Config {
	loadEnv()

	return &S3Config{
		BucketName: getString("AWS_S3_BUCKET_NAME", ""),
		Region:     getString("AWS_REGION", "us-east-1"),
		Endpoint:   getString("AWS_ENDPOINT", ""),
		AccessKey:  getString("AWS_ACCESS_KEY", ""),
		SecretKey:  getString("AWS_SECRET_KEY", ""),
	}
}

func GetS3Config() *S3Config {
	s3Once.Do(func() {
		s3Config = LoadS3Config()
	})
	return s3Config
}
