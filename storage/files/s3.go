package files

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/itdsea/coursework/core"
)

// S3Storage keeps payloads in an S3-compatible bucket.
type S3Storage struct {
	api    *s3.Client
	bucket string
}

var _ core.FileStorage = (*S3Storage)(nil) // interface compliance check

func NewS3Storage(ctx context.Context, conf *core.Config) (*S3Storage, error) {
	if conf.S3.Endpoint == "" {
		return nil, errors.New("S3 endpoint is required")
	}
	if conf.S3.AccessKey == "" || conf.S3.SecretKey == "" {
		return nil, errors.New("S3 credentials are required")
	}

	scheme := "https"
	if conf.S3.DisableTLS {
		scheme = "http"
	}
	endpoint := conf.S3.Endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = fmt.Sprintf("%s://%s", scheme, endpoint)
	}

	cfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(conf.S3.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(conf.S3.AccessKey, conf.S3.SecretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "loading S3 config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &S3Storage{api: client, bucket: conf.S3.Bucket}, nil
}

func (st *S3Storage) Save(ctx context.Context, path string, r io.Reader) error {
	_, err := st.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &st.bucket,
		Key:    &path,
		Body:   r,
	})
	return errors.Wrap(err, "putting object")
}

func (st *S3Storage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := st.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &st.bucket,
		Key:    &path,
	})
	if err != nil {
		var notFound *s3types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, core.ErrFileNotFound
		}
		return nil, errors.Wrap(err, "getting object")
	}
	return out.Body, nil
}

func (st *S3Storage) Delete(ctx context.Context, path string) error {
	_, err := st.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &st.bucket,
		Key:    &path,
	})
	return errors.Wrap(err, "deleting object")
}
