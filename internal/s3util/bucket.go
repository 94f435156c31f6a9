// Package s3util stores generated images in S3. A Bucket can act both as a
// file saver (the object key is the saved location) and as an image host
// (a presigned GET URL is the saved location).
package s3util

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// keyPrefix is the folder all generated images are written under.
const keyPrefix = "generated/"

// PresignExpiry is how long hosted image URLs stay valid.
const PresignExpiry = 7 * 24 * time.Hour

// projectTag is the URL-encoded object tagging string for cost allocation.
const projectTag = "Project=beybladez"

// ObjectAPI is the subset of *s3.Client used by Bucket.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Presigner is the subset of *s3.PresignClient used by Bucket.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Bucket uploads PNG images to one S3 bucket.
type Bucket struct {
	client  ObjectAPI
	presign Presigner
	name    string
	newID   func() string
}

// NewBucket creates a Bucket from an S3 client.
func NewBucket(client *s3.Client, name string) *Bucket {
	return newBucket(client, s3.NewPresignClient(client), name)
}

func newBucket(client ObjectAPI, presign Presigner, name string) *Bucket {
	return &Bucket{
		client:  client,
		presign: presign,
		name:    name,
		newID:   uuid.NewString,
	}
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return b.name
}

// Save uploads data and returns its s3:// location.
func (b *Bucket) Save(ctx context.Context, data []byte, name string) (string, error) {
	key, err := b.put(ctx, data, name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", b.name, key), nil
}

// Host uploads data and returns a presigned GET URL valid for PresignExpiry.
func (b *Bucket) Host(ctx context.Context, data []byte, name string) (string, error) {
	key, err := b.put(ctx, data, name)
	if err != nil {
		return "", err
	}
	return GeneratePresignedURL(ctx, b.presign, b.name, key, PresignExpiry)
}

func (b *Bucket) put(ctx context.Context, data []byte, name string) (string, error) {
	key := keyPrefix + b.newID() + "-" + path.Base(name)

	log.Debug().
		Str("bucket", b.name).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("Uploading generated image to S3")

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &b.name,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("image/png"),
		ContentLength: aws.Int64(int64(len(data))),
		Tagging:       aws.String(projectTag),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image to S3: %w", err)
	}

	log.Info().Str("bucket", b.name).Str("key", key).Msg("Generated image uploaded to S3")
	return key, nil
}

// GeneratePresignedURL creates a pre-signed GET URL for an S3 object.
func GeneratePresignedURL(ctx context.Context, presignClient Presigner, bucket, key string, expiry time.Duration) (string, error) {
	result, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return result.URL, nil
}
