// Package blob archives opaque payloads in S3-compatible object storage.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Options configures the S3 client.
type Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// PutObjectAPI is the subset of the S3 client the store needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Recorder stores a payload under a namespace and returns the generated key.
type Recorder interface {
	Record(ctx context.Context, namespace string, contentType string, payload []byte) (string, error)
}

// Store writes payloads to a single bucket.
type Store struct {
	client PutObjectAPI
	bucket string
	now    func() time.Time
}

// New builds an S3-backed store from static credentials. An empty endpoint uses
// the default AWS resolver; a custom endpoint switches to path-style addressing.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("platform/blob: bucket required")
	}
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("platform/blob: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, opts.Bucket), nil
}

// NewWithClient wires a store over an existing client.
func NewWithClient(client PutObjectAPI, bucket string) *Store {
	return &Store{client: client, bucket: bucket, now: time.Now}
}

// Record uploads payload as namespace/YYYY/MM/DD/<uuid>.
func (s *Store) Record(ctx context.Context, namespace string, contentType string, payload []byte) (string, error) {
	day := s.now().UTC()
	key := path.Join(namespace, day.Format("2006/01/02"), uuid.NewString())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("platform/blob: put %s: %w", key, err)
	}
	return key, nil
}

// Discard drops payloads; used when no bucket is configured.
type Discard struct{}

// Record implements Recorder.
func (Discard) Record(context.Context, string, string, []byte) (string, error) { return "", nil }
