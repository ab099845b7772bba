package credentials

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Scheme prefixes credential sources stored in S3.
const S3Scheme = "s3://"

// Source yields the raw credential document.
type Source interface {
	fmt.Stringer

	// Open returns a reader over the document. The caller closes it.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FileSource reads credentials from the local filesystem.
type FileSource struct {
	Path string
}

func (s FileSource) Open(_ context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return f, nil
}

func (s FileSource) String() string { return s.Path }

// S3API is the subset of the S3 client used to fetch credential objects.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads credentials from a single S3 object.
type S3Source struct {
	Client S3API
	Bucket string
	Key    string
}

func (s S3Source) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrSourceUnavailable, s, err)
	}
	return out.Body, nil
}

func (s S3Source) String() string { return S3Scheme + s.Bucket + "/" + s.Key }

// IsS3URI reports whether location names an S3 object.
func IsS3URI(location string) bool {
	return strings.HasPrefix(location, S3Scheme)
}

// ParseS3URI splits s3://bucket/key into its parts.
func ParseS3URI(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 URI %q: %w", location, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid S3 URI %q: scheme must be s3", location)
	}

	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 URI %q: expected s3://bucket/key", location)
	}
	return bucket, key, nil
}
