package store

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// maxDeleteBatch is the DeleteObjects per-request key limit.
const maxDeleteBatch = 1000

// S3 is a Store over a bucket prefix.
type S3 struct {
	client   s3iface.S3API
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
}

// NewS3 builds an S3 store. A nil uploader gets the s3manager default for client.
func NewS3(client s3iface.S3API, uploader s3manageriface.UploaderAPI, bucket, prefix string) *S3 {
	if uploader == nil {
		uploader = s3manager.NewUploaderWithClient(client)
	}
	return &S3{client: client, uploader: uploader, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3) String() string { return Location{Scheme: "s3", Bucket: s.bucket, Path: s.prefix}.String() }

func (s *S3) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + "/" + k
}

func (s *S3) rel(k string) string {
	if s.prefix == "" {
		return k
	}
	return strings.TrimPrefix(k, s.prefix+"/")
}

// list returns every key under prefix, relative to the store root.
func (s *S3) list(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.client.ListObjectsV2PagesWithContext(ctx,
		&s3.ListObjectsV2Input{Bucket: aws.String(s.bucket), Prefix: aws.String(s.key(prefix))},
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				keys = append(keys, s.rel(aws.StringValue(obj.Key)))
			}
			return true
		})
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, s.key(prefix), err)
	}
	return keys, nil
}

func (s *S3) Glob(ctx context.Context, pattern string) ([]string, error) {
	if err := validPattern(pattern); err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	all, err := s.list(ctx, literalPrefix(pattern))
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, k := range all {
		ok, err := match(pattern, k)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		if ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, s.key(key), err)
	}
	return out.Body, nil
}

func (s *S3) Put(ctx context.Context, key string, r io.Reader) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", s.bucket, s.key(key), err)
	}
	return nil
}

func (s *S3) RemoveAll(ctx context.Context, prefix string) error {
	if strings.Trim(prefix, "/") == "" {
		return fmt.Errorf("refusing to remove store root %s", s)
	}
	keys, err := s.list(ctx, prefix)
	if err != nil {
		return err
	}
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := start + maxDeleteBatch
		if end > len(keys) {
			end = len(keys)
		}
		objs := make([]*s3.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			objs = append(objs, &s3.ObjectIdentifier{Key: aws.String(s.key(k))})
		}
		out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{Objects: objs, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete under s3://%s/%s: %w", s.bucket, s.key(prefix), err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("delete s3://%s/%s: %s (%d failed)", s.bucket, aws.StringValue(e.Key), aws.StringValue(e.Message), len(out.Errors))
		}
	}
	return nil
}

func (s *S3) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	return nil
}
