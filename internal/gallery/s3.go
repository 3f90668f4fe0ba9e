package gallery

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lck-sdk/recorder/internal/config"
)

// S3 uploads recordings to an S3 bucket with the multipart uploader.
type S3 struct {
	bucket   string
	uploader *manager.Uploader
}

// NewS3 loads AWS configuration for cfg.Region. Static keys are used when
// both are set; otherwise the default credential chain applies.
func NewS3(ctx context.Context, cfg config.S3Config) (*S3, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, errors.New("s3 bucket and region are required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &S3{
		bucket:   cfg.Bucket,
		uploader: manager.NewUploader(s3.NewFromConfig(awsCfg)),
	}, nil
}

func (s *S3) Name() string { return "s3" }

func (s *S3) Save(ctx context.Context, srcPath, album string) (string, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	key := objectKey(album, srcPath)
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload %s: %w", key, err)
	}
	return out.Location, nil
}
