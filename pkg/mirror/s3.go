package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/daq-spack/bcpub/pkg/util/console"
)

const defaultS3Region = "us-east-1"

// S3Options configures access to an S3-compatible mirror. Empty credential
// fields fall back to the standard AWS_* environment variables.
type S3Options struct {
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint"`
	Region          string `json:"region,omitempty" yaml:"region"`
	PathStyle       bool   `json:"path_style,omitempty" yaml:"path_style"`
	AccessKeyID     string `json:"-" yaml:"-"`
	SecretAccessKey string `json:"-" yaml:"-"`
	SessionToken    string `json:"-" yaml:"-"`
}

func (o S3Options) withEnvironment() S3Options {
	if o.AccessKeyID == "" {
		o.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if o.SecretAccessKey == "" {
		o.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if o.SessionToken == "" {
		o.SessionToken = os.Getenv("AWS_SESSION_TOKEN")
	}
	if o.Region == "" {
		o.Region = os.Getenv("AWS_REGION")
	}
	if o.Region == "" {
		o.Region = defaultS3Region
	}
	if o.Endpoint == "" {
		o.Endpoint = os.Getenv("AWS_ENDPOINT_URL_S3")
	}
	return o
}

type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store opens the bucket named by an s3://bucket/prefix URL.
func NewS3Store(ctx context.Context, rawURL string, opts S3Options) (*S3Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse mirror URL %s: %w", rawURL, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return nil, fmt.Errorf("Mirror URL %s must be in the form s3://bucket/prefix", rawURL)
	}
	opts = opts.withEnvironment()

	cfg := aws.NewConfig()
	cfg.Region = opts.Region
	if opts.Endpoint != "" {
		cfg.BaseEndpoint = aws.String(opts.Endpoint)
	}
	if opts.AccessKeyID != "" {
		cfg.Credentials = credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     opts.AccessKeyID,
				SecretAccessKey: opts.SecretAccessKey,
				SessionToken:    opts.SessionToken,
			},
		}
	} else {
		console.Debugf("No S3 credentials configured for %s, using anonymous access", rawURL)
		cfg.Credentials = aws.AnonymousCredentials{}
	}
	client := s3.NewFromConfig(*cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.PathStyle
	})

	return &S3Store{
		client: client,
		bucket: u.Host,
		prefix: strings.Trim(u.Path, "/"),
	}, nil
}

func (s *S3Store) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	objectKey := s.objectKey(key)
	console.Debugf("=== S3Store.Stat s3://%s/%s", s.bucket, objectKey)
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return ObjectInfo{}, s.wrapError(key, err)
	}
	info := ObjectInfo{Key: key, Size: aws.ToInt64(out.ContentLength)}
	if out.LastModified != nil {
		info.Modified = *out.LastModified
	}
	return info, nil
}

func (s *S3Store) Read(ctx context.Context, key string) ([]byte, error) {
	objectKey := s.objectKey(key)
	console.Debugf("=== S3Store.Read s3://%s/%s", s.bucket, objectKey)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, s.wrapError(key, err)
	}
	defer out.Body.Close()
	contents, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("Failed to read s3://%s/%s: %w", s.bucket, objectKey, err)
	}
	return contents, nil
}

func (s *S3Store) objectKey(key string) string {
	return path.Join(s.prefix, key)
}

func (s *S3Store) wrapError(key string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
	}
	return fmt.Errorf("Failed to access s3://%s/%s: %w", s.bucket, s.objectKey(key), err)
}
