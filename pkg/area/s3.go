package area

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/uprent-dev/commutesync/internal/errors"
)

// S3API is the subset of *s3.Client used by the S3 area.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 stores one object per key under a prefix in an S3 bucket.
//
// Example usage:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	remote := area.NewS3(s3.NewFromConfig(cfg), "my-bucket", "commutesync/")
type S3 struct {
	client S3API
	bucket string
	prefix string

	mu       sync.Mutex
	closed   bool
	watchers watchers

	// writeMu orders writes together with their notifications, so
	// every watcher sees changes in the order they were applied.
	writeMu sync.Mutex
}

// NewS3 creates an S3-backed area.
func NewS3(client S3API, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3) objectKey(key string) string {
	return s.prefix + key + ".json"
}

// Get downloads the object for key.
func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("S022")
	}
	value, err := s.get(ctx, key)
	if err != nil {
		return nil, errors.New("S020").WithDetail("s3://" + s.bucket + "/" + s.objectKey(key)).Wrap(err)
	}
	return value, nil
}

func (s *S3) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if stderrors.As(err, &nsk) {
			return nil, nil
		}
		return nil, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// Set uploads value as the object for key.
func (s *S3) Set(ctx context.Context, key string, value []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("S022")
	}
	old, err := s.get(ctx, key)
	if err != nil {
		s.mu.Unlock()
		return errors.New("S021").WithDetail("key " + key).Wrap(err)
	}
	if old != nil && bytes.Equal(old, value) {
		s.mu.Unlock()
		return nil
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/json"),
	})
	s.mu.Unlock()
	if err != nil {
		return errors.New("S021").WithDetail("key " + key).Wrap(err)
	}

	stored := clone(value)
	if stored == nil {
		stored = []byte{}
	}
	s.watchers.notify(Change{Key: key, OldValue: old, NewValue: stored}, "")
	return nil
}

// Remove deletes the object for key.
func (s *S3) Remove(ctx context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("S022")
	}
	old, err := s.get(ctx, key)
	if err != nil {
		s.mu.Unlock()
		return errors.New("S021").WithDetail("key " + key).Wrap(err)
	}
	if old == nil {
		s.mu.Unlock()
		return nil
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	s.mu.Unlock()
	if err != nil {
		return errors.New("S021").WithDetail("key " + key).Wrap(err)
	}

	s.watchers.notify(Change{Key: key, OldValue: old}, "")
	return nil
}

// Watch registers fn for writes made through this area.
func (s *S3) Watch(fn func(Change)) func() {
	return s.watchers.add("", fn)
}

// Close marks the area closed. The S3 client is not closed, as it may be
// shared with other components.
func (s *S3) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.watchers.clear()
	return nil
}
