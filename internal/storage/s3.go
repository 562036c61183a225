package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the slice of the S3 client used by S3Store, kept narrow so tests
// can substitute fakes without an AWS account.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// s3Presigner matches the presign client's GetObject surface.
type s3Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store implements Store on top of an S3 bucket.
type S3Store struct {
	api       s3API
	presigner s3Presigner
	bucket    string
}

// NewS3Store wraps an S3 client for the given bucket.
func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{
		api:       client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
	}
}

// newS3StoreWithAPI is the test seam.
func newS3StoreWithAPI(api s3API, presigner s3Presigner, bucket string) *S3Store {
	return &S3Store{api: api, presigner: presigner, bucket: bucket}
}

// Put writes body at key.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Get reads the full object at key.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

// List returns up to max objects under prefix, in the store's key order.
func (s *S3Store) List(ctx context.Context, prefix string, max int) ([]Object, error) {
	out, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(int32(max)),
	})
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, prefix, err)
	}
	objs := make([]Object, 0, len(out.Contents))
	for _, c := range out.Contents {
		o := Object{Key: aws.ToString(c.Key)}
		if c.LastModified != nil {
			o.LastModified = *c.LastModified
		}
		objs = append(objs, o)
	}
	return objs, nil
}

// PresignGet returns a time-limited download URL for key.
func (s *S3Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("presign s3://%s/%s: %w", s.bucket, key, err)
	}
	return req.URL, nil
}

// Location renders the s3:// URI for key.
func (s *S3Store) Location(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}
