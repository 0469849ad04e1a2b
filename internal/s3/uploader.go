package s3

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"refill-api-server/config"
	"refill-api-server/internal/apperror"
	"refill-api-server/internal/models"
)

// PutObjectAPI is the part of the S3 client the uploader calls.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader stores receipt images in a bucket.
type Uploader struct {
	Client           PutObjectAPI
	Bucket           string
	Region           string
	CloudFrontDomain string
	Prefix           string
}

func NewUploader(ctx context.Context, cfg config.S3Config) (*Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Uploader{
		Client:           s3.NewFromConfig(sdkConfig),
		Bucket:           cfg.Bucket,
		Region:           cfg.Region,
		CloudFrontDomain: cfg.CloudFrontDomain,
		Prefix:           cfg.Prefix,
	}, nil
}

// Store uploads data under <prefix>/<uuid>-<fileName> with a sniffed content
// type and returns where it can be fetched.
func (u *Uploader) Store(ctx context.Context, data []byte, fileName string) (models.FileReference, error) {
	if len(data) == 0 {
		return models.FileReference{}, apperror.NewValidation("receipt file is empty").WithDetail("file", fileName)
	}
	contentType := mimetype.Detect(data).String()
	key := u.objectKey(fileName)

	_, err := u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return models.FileReference{}, apperror.NewTransient(fmt.Errorf("failed to upload %s to S3: %w", key, err))
	}

	return models.FileReference{
		Name:        fileName,
		URL:         u.URL(key),
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

func (u *Uploader) objectKey(fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" {
		base = "receipt"
	}
	return path.Join(u.Prefix, uuid.NewString()+"-"+base)
}

// URL prefers the CloudFront domain and falls back to the bucket endpoint.
func (u *Uploader) URL(key string) string {
	if u.CloudFrontDomain != "" {
		return fmt.Sprintf("https://%s/%s", u.CloudFrontDomain, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.Bucket, u.Region, key)
}
