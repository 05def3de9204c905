// Package export uploads rendered deliverables to object storage.
package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader stores rendered deliverables so the dashboard can link to them.
type Uploader interface {
	// Upload writes data under a key derived from the execution id and
	// format, returning the storage location.
	Upload(ctx context.Context, executionID, format, contentType string, data []byte) (string, error)
}

// S3Uploader writes deliverables to an S3-compatible bucket.
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Uploader creates an S3 uploader. If endpoint is non-empty,
// path-style addressing is enabled (for MinIO and similar).
func NewS3Uploader(ctx context.Context, bucket, prefix, region, endpoint string) (*S3Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(cfg, s3opts...)
	return &S3Uploader{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Upload writes one deliverable object keyed by execution id and format.
func (u *S3Uploader) Upload(ctx context.Context, executionID, format, contentType string, data []byte) (string, error) {
	key := fmt.Sprintf("%s%s/%s.%s", u.prefix, executionID, "document", extensionFor(format))
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}

func extensionFor(format string) string {
	switch format {
	case "markdown":
		return "md"
	default:
		return format
	}
}
