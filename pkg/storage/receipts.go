// Package storage archives receipt images in S3.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectAPI is the subset of the S3 client the archive uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config holds receipt archive configuration
type Config struct {
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	Bucket             string
}

// ReceiptArchive stores scanned receipt images
type ReceiptArchive struct {
	client ObjectAPI
	bucket string
}

// NewReceiptArchive creates an archive backed by S3. Static credentials are
// used when both keys are set, otherwise the default AWS chain applies.
func NewReceiptArchive(ctx context.Context, cfg Config) (*ReceiptArchive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("receipt bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWSAccessKeyID,
			cfg.AWSSecretAccessKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewReceiptArchiveWithClient(s3.NewFromConfig(awsCfg), cfg.Bucket), nil
}

// NewReceiptArchiveWithClient wraps an existing client
func NewReceiptArchiveWithClient(client ObjectAPI, bucket string) *ReceiptArchive {
	return &ReceiptArchive{client: client, bucket: bucket}
}

// ReceiptKey returns the object key for a scan: receipts/<uid>/<scanId>.<ext>
func ReceiptKey(userID, scanID, ext string) string {
	return path.Join("receipts", userID, scanID+"."+ext)
}

// Put uploads an image under key
func (a *ReceiptArchive) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String(contentType),
		ContentLength:        aws.Int64(int64(len(body))),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("failed to upload receipt to S3: %w", err)
	}
	return nil
}

// Delete removes an archived image
func (a *ReceiptArchive) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete receipt from S3: %w", err)
	}
	return nil
}
