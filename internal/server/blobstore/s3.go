package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/catalogadmin/internal/netx"
)

// maxPresignExpiry is the longest lifetime SigV4 allows for a presigned URL.
const maxPresignExpiry = 7 * 24 * time.Hour

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// S3Options configures an S3Store. AccessKey/SecretKey are static
// credentials (MinIO root user and password in development).
type S3Options struct {
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	BaseEndpoint string
	// PublicBaseURL, when set, makes URL return PublicBaseURL/key instead of
	// a presigned GET URL.
	PublicBaseURL     string
	PresignExpiry     time.Duration
	DownloadURLExpiry time.Duration
	HTTPClient        *http.Client
}

// S3Store uploads through presigned PUT URLs so the transfer can be
// metered byte by byte.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	http    *http.Client
	opts    S3Options
}

// NewS3Store loads the AWS configuration once and builds the S3 and
// presign clients. A non-empty BaseEndpoint switches to path-style
// addressing, as MinIO expects.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	if opts.PresignExpiry <= 0 {
		opts.PresignExpiry = 15 * time.Minute
	}
	if opts.DownloadURLExpiry <= 0 || opts.DownloadURLExpiry > maxPresignExpiry {
		opts.DownloadURLExpiry = maxPresignExpiry
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &S3Store{
		client:  client,
		presign: newS3PresignClient(client),
		http:    hc,
		opts:    opts,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, onProgress netx.ProgressFunc) (Ref, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	req, err := presignPutObject(s.presign, ctx, in, s3.WithPresignExpires(s.opts.PresignExpiry))
	if err != nil {
		return Ref{}, fmt.Errorf("presign put: %w", err)
	}

	pr := netx.NewProgressReader(body, size, onProgress)
	if err := netx.UploadToPresignedURL(ctx, s.http, req.URL, pr, size, req.SignedHeader); err != nil {
		return Ref{}, err
	}

	if onProgress != nil {
		onProgress(size, size)
	}
	return Ref{Key: key, Size: size}, nil
}

func (s *S3Store) URL(ctx context.Context, ref Ref) (string, error) {
	if s.opts.PublicBaseURL != "" {
		return joinURL(s.opts.PublicBaseURL, ref.Key), nil
	}

	req, err := presignGetObject(s.presign, ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(ref.Key),
	}, s3.WithPresignExpires(s.opts.DownloadURLExpiry))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}
