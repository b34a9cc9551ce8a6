// Package storage provides the object-storage gateway over the raw and
// processed content buckets.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Default timeout for individual S3 operations.
const DefaultS3Timeout = 30 * time.Second

// Gateway wraps the S3 client with bucket operations used by the pipeline.
type Gateway struct {
	*s3.Client
	presigner *s3.PresignClient
}

// NewGateway creates a Gateway from a loaded AWS config.
func NewGateway(cfg aws.Config) *Gateway {
	client := s3.NewFromConfig(cfg)
	return &Gateway{
		Client:    client,
		presigner: s3.NewPresignClient(client),
	}
}

// PresignUpload issues a pre-signed PUT URL for a raw video upload.
func (g *Gateway) PresignUpload(ctx context.Context, bucket, key, contentType string, lifetime time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultS3Timeout)
	defer cancel()

	req, err := g.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = lifetime
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign request: %w", err)
	}

	return req.URL, nil
}

// ListKeys returns every object key under the given prefix.
func (g *Gateway) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultS3Timeout)
	defer cancel()

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(g.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}

	return keys, nil
}

// ObjectExists reports whether the given key exists in the bucket.
func (g *Gateway) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultS3Timeout)
	defer cancel()

	_, err := g.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head object %s: %w", key, err)
	}

	return true, nil
}
