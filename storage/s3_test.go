package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
	"gotest.tools/v3/assert"

	"github.com/tugasin/tugasin-blog/logger"
	"github.com/tugasin/tugasin-blog/types"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	headErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func TestS3StorePutGet(t *testing.T) {
	fake := newFakeS3()
	store := newS3Store(fake, "blog", "sitemaps/", logger.NewZapWrapper(zap.NewNop()))

	assert.NilError(t, store.Put(context.Background(), "sitemap-post-1.xml", []byte("<urlset/>"), "application/xml"))
	assert.Equal(t, string(fake.objects["sitemaps/sitemap-post-1.xml"]), "<urlset/>")
	assert.Equal(t, fake.types["sitemaps/sitemap-post-1.xml"], "application/xml")

	data, err := store.Get(context.Background(), "/sitemap-post-1.xml")
	assert.NilError(t, err)
	assert.Equal(t, string(data), "<urlset/>")
}

func TestS3StoreGetMissing(t *testing.T) {
	store := newS3Store(newFakeS3(), "blog", "", logger.NewZapWrapper(zap.NewNop()))

	_, err := store.Get(context.Background(), "nope.xml")
	assert.Assert(t, errors.Is(err, types.ErrStorageNotFound))
}

func TestS3StorePing(t *testing.T) {
	fake := newFakeS3()
	store := newS3Store(fake, "blog", "", logger.NewZapWrapper(zap.NewNop()))
	assert.NilError(t, store.Ping(context.Background()))

	fake.headErr = errors.New("forbidden")
	assert.ErrorContains(t, store.Ping(context.Background()), "forbidden")
}

func TestNewS3StoreDisabled(t *testing.T) {
	_, err := NewS3Store(context.Background(), logger.NewZapWrapper(zap.NewNop()), &types.StorageConfig{})
	assert.Assert(t, errors.Is(err, types.ErrStorageIsDisabled))
}
