// Package storage issues upload handles for meal files and reads them back from S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-meal-pipeline/internal/aws"
	"github.com/imrishuroy/go-meal-pipeline/internal/meals"
)

// ErrStorage wraps every upload-handle or fetch failure.
var ErrStorage = errors.New("storage error")

const defaultExpiry = 10 * time.Minute

// Gateway is the S3-backed storage gateway.
type Gateway struct {
	client  aws.S3API
	presign aws.S3PresignAPI
	bucket  string
	expiry  time.Duration
}

// NewGateway returns a Gateway for bucket. expiry bounds the lifetime of
// presigned URLs; zero means ten minutes.
func NewGateway(client aws.S3API, presign aws.S3PresignAPI, bucket string, expiry time.Duration) *Gateway {
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	return &Gateway{
		client:  client,
		presign: presign,
		bucket:  bucket,
		expiry:  expiry,
	}
}

// NewObjectKey returns a fresh key for an upload of fileType, e.g. meals/<uuid>.m4a.
func NewObjectKey(fileType string) (string, error) {
	ext, err := meals.FileExtension(fileType)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("meals/%s.%s", uuid.NewString(), ext), nil
}

// IssueUploadHandle presigns a single-object PUT for key.
func (g *Gateway) IssueUploadHandle(ctx context.Context, key, contentType string) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: &g.bucket,
		Key:    &key,
	}
	if contentType != "" {
		in.ContentType = &contentType
	}

	req, err := g.presign.PresignPutObject(ctx, in, s3.WithPresignExpires(g.expiry))
	if err != nil {
		return "", fmt.Errorf("%w: presign put %s: %w", ErrStorage, key, err)
	}
	return req.URL, nil
}

// ImageURL presigns a GET for key so a vision model can read the image directly.
func (g *Gateway) ImageURL(ctx context.Context, key string) (string, error) {
	req, err := g.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &g.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(g.expiry))
	if err != nil {
		return "", fmt.Errorf("%w: presign get %s: %w", ErrStorage, key, err)
	}
	return req.URL, nil
}

// FetchBytes downloads the whole object stored under key.
func (g *Gateway) FetchBytes(ctx context.Context, key string) ([]byte, error) {
	out, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &g.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get object %s: %w", ErrStorage, key, err)
	}
	if out.Body == nil {
		return nil, fmt.Errorf("%w: get object %s: empty body", ErrStorage, key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read object %s: %w", ErrStorage, key, err)
	}
	return data, nil
}
