package target

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"musicsync/internal/config"
	"musicsync/internal/fileutil"
	"musicsync/internal/logging"
	"musicsync/internal/services"
)

// s3API is the subset of the S3 client the backend calls.
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 stores files as objects under an optional key prefix.
type S3 struct {
	client s3API
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3 builds a backend from configuration. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, cfg config.S3, logger *slog.Logger) (*S3, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, services.Wrap(services.ErrConfiguration, component, "s3", "target.s3.bucket is empty", nil)
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, component, "s3", "load aws config", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func newS3(client s3API, bucket, prefix string, logger *slog.Logger) *S3 {
	return &S3{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logging.NewComponentLogger(logger, "s3"),
	}
}

func (s *S3) Describe() string {
	if s.prefix == "" {
		return "s3://" + s.bucket
	}
	return "s3://" + s.bucket + "/" + s.prefix
}

func (s *S3) key(targetPath string) string {
	key := cleanKey(targetPath)
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *S3) Exists(ctx context.Context, targetPath string) (bool, error) {
	key := s.key(targetPath)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, services.Wrap(services.ErrTransfer, component, "exists", key, err)
	}
	return true, nil
}

func (s *S3) Upload(ctx context.Context, localPath, targetPath string) (int64, error) {
	key := s.key(targetPath)
	f, err := os.Open(localPath)
	if err != nil {
		return 0, services.Wrap(services.ErrTransfer, component, "upload", key, fmt.Errorf("open source: %w", err))
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, services.Wrap(services.ErrTransfer, component, "upload", key, fmt.Errorf("stat source: %w", err))
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return 0, services.Wrap(services.ErrTransfer, component, "upload", key, err)
	}
	return info.Size(), nil
}

func (s *S3) Download(ctx context.Context, targetPath, localPath string) (int64, error) {
	key := s.key(targetPath)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, services.Wrap(services.ErrTransfer, component, "download", key, err)
	}
	defer out.Body.Close()

	written, err := fileutil.WriteAtomic(localPath, contextReader{ctx: ctx, r: out.Body}, 0o644)
	if err != nil {
		return written, services.Wrap(services.ErrTransfer, component, "download", key, err)
	}
	return written, nil
}

func (s *S3) Delete(ctx context.Context, targetPath string) error {
	key := s.key(targetPath)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return services.Wrap(services.ErrTransfer, component, "delete", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
