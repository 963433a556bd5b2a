package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 scripts HeadObject responses and records mutating calls.
type fakeS3 struct {
	headErr error
	puts    []string
	deletes []string
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, *in.Key)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_Exists(t *testing.T) {
	ctx := context.Background()

	t.Run("present", func(t *testing.T) {
		store := NewS3StoreWithClient(&fakeS3{}, "packs", "")
		ok, err := store.Exists(ctx, "langpacks/abc/abc-1.0.zip")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("not found is absent", func(t *testing.T) {
		store := NewS3StoreWithClient(&fakeS3{headErr: &types.NotFound{}}, "packs", "")
		ok, err := store.Exists(ctx, "langpacks/abc/abc-1.0.zip")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("transient failure propagates", func(t *testing.T) {
		store := NewS3StoreWithClient(&fakeS3{headErr: errors.New("dial tcp: i/o timeout")}, "packs", "")
		_, err := store.Exists(ctx, "langpacks/abc/abc-1.0.zip")
		assert.Error(t, err)
	})
}

// A transient HeadObject failure must abort placement, never fall through to
// the write and overwrite whatever is at the destination.
func TestPlacer_S3ExistenceFailureAbortsPlacement(t *testing.T) {
	fake := &fakeS3{headErr: errors.New("dial tcp: i/o timeout")}
	placer := NewPlacer(NewS3StoreWithClient(fake, "packs", ""))

	err := placer.Place(context.Background(), "langpacks/abc/abc-1.0.zip", []byte("signed"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCollision)
	assert.Empty(t, fake.puts, "no write after a failed existence check")
}
