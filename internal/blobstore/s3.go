package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/rentalpipeline/basiccleaning/internal/logger"
	"github.com/rentalpipeline/basiccleaning/internal/pathutil"
)

const defaultBucketRegion = "us-east-1"

// S3Options configures an S3 backend.
type S3Options struct {
	Bucket         string
	Prefix         string
	Region         string
	Endpoint       string
	Profile        string
	AccessKey      string
	SecretKey      string
	SessionToken   string
	ForcePathStyle bool
}

// S3 stores blobs as objects in one bucket.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 builds an S3 client from the default credential chain, overridden by
// a profile or static keys when given.
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if opts.Region == "" {
		logger.Debug("No region set, using default", "bucket", opts.Bucket, "region", defaultBucketRegion)
		opts.Region = defaultBucketRegion
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, opts.SessionToken)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config, %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})
	return &S3{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

func (s *S3) Name() string { return "s3" }

func (s *S3) Close() error { return nil }

func (s *S3) objectKey(key string) (string, error) {
	if err := pathutil.ValidateKey(key); err != nil {
		return "", err
	}
	return joinKey(s.prefix, key), nil
}

func (s *S3) Put(ctx context.Context, key, localPath string, meta Meta) error {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          f,
		ContentLength: aws.Int64(fi.Size()),
		Metadata:      map[string]string{},
	}
	if meta.SHA256 != "" {
		input.Metadata[metaSHA256] = meta.SHA256
	}
	if meta.ContentType != "" {
		input.ContentType = aws.String(meta.ContentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s, %w", s.bucket, objectKey, err)
	}
	return nil
}

func (s *S3) Get(ctx context.Context, key string, dst io.Writer) error {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isS3NotFound(err) {
			return fmt.Errorf("%w: s3://%s/%s", ErrBlobNotFound, s.bucket, objectKey)
		}
		return fmt.Errorf("failed to download s3://%s/%s, %w", s.bucket, objectKey, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(dst, out.Body); err != nil {
		return fmt.Errorf("failed to read s3://%s/%s, %w", s.bucket, objectKey, err)
	}
	return nil
}

// Stat issues a HeadObject; a successful response means S3 has persisted the object.
func (s *S3) Stat(ctx context.Context, key string) (Info, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return Info{}, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isS3NotFound(err) {
			return Info{}, fmt.Errorf("%w: s3://%s/%s", ErrBlobNotFound, s.bucket, objectKey)
		}
		return Info{}, fmt.Errorf("failed to stat s3://%s/%s, %w", s.bucket, objectKey, err)
	}

	info := Info{Key: key, SHA256: out.Metadata[metaSHA256]}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		info.Updated = *out.LastModified
	}
	return info, nil
}

func isS3NotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == 404
}
