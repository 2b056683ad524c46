package s3store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
)

type fakeAPI struct {
	objects map[string]string
	putErr  error
	headErr error
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[*in.Bucket+"/"+*in.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func newStore(t *testing.T) (*ObjectStore, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{objects: map[string]string{}}
	store, err := New(api)
	require.NoError(t, err)
	return store, api
}

func TestNewRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	assert.Error(t, err)
}

func TestUploadThenDownload(t *testing.T) {
	t.Parallel()

	store, api := newStore(t)
	require.NoError(t, store.Upload(context.Background(), "laws", "US/TAX/a.txt", strings.NewReader("statute")))
	assert.Equal(t, "statute", api.objects["laws/US/TAX/a.txt"])

	var buf bytes.Buffer
	require.NoError(t, store.Download(context.Background(), "laws", "US/TAX/a.txt", &buf))
	assert.Equal(t, "statute", buf.String())
}

func TestDownloadMissingIsNotFound(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	err := store.Download(context.Background(), "laws", "missing", io.Discard)
	assert.ErrorIs(t, err, crawler.ErrNotFound)
}

func TestUploadErrors(t *testing.T) {
	t.Parallel()

	store, api := newStore(t)
	assert.Error(t, store.Upload(context.Background(), "laws", "", strings.NewReader("x")))

	api.putErr = errors.New("access denied")
	err := store.Upload(context.Background(), "laws", "k", strings.NewReader("x"))
	assert.ErrorContains(t, err, "access denied")
}

func TestExists(t *testing.T) {
	t.Parallel()

	store, api := newStore(t)
	api.objects["laws/present"] = "x"

	ok, err := store.Exists(context.Background(), "laws", "present")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(context.Background(), "laws", "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	api.headErr = &smithy.GenericAPIError{Code: "AccessDenied"}
	_, err = store.Exists(context.Background(), "laws", "present")
	assert.Error(t, err)
}

func TestIsNotFoundGenericCode(t *testing.T) {
	t.Parallel()

	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.False(t, isNotFound(errors.New("timeout")))
}
