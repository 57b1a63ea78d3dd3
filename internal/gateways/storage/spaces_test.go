package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	deletes []string
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deletes = append(f.deletes, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestSpacesService_Put(t *testing.T) {
	client := &fakeS3{}
	svc := newSpacesService(client, Options{Bucket: "swapcard", Root: "/market/"}, "https://sgp1.digitaloceanspaces.com")

	url, err := svc.Put(context.Background(), Object{
		Key:         "cards/u1/abc.png",
		ContentType: "image/png",
		Size:        4,
		Body:        strings.NewReader("data"),
	})
	require.NoError(t, err)
	require.Equal(t, "https://sgp1.digitaloceanspaces.com/swapcard/market/cards/u1/abc.png", url)

	require.Len(t, client.puts, 1)
	require.Equal(t, "market/cards/u1/abc.png", aws.ToString(client.puts[0].Key))
	require.Equal(t, "image/png", aws.ToString(client.puts[0].ContentType))
	require.Equal(t, int64(4), aws.ToInt64(client.puts[0].ContentLength))
}

func TestSpacesService_Delete(t *testing.T) {
	client := &fakeS3{}
	svc := newSpacesService(client, Options{Bucket: "swapcard", Root: "market", PublicURL: "https://cdn.example.com/"}, "")

	require.NoError(t, svc.Delete(context.Background(), "market/cards/u1/abc.png"))
	require.NoError(t, svc.Delete(context.Background(), ""))
	require.Equal(t, []string{"market/cards/u1/abc.png"}, client.deletes)
	require.Equal(t, "https://cdn.example.com/market/x.png", svc.URL("market/x.png"))

	client.err = errors.New("access denied")
	require.Error(t, svc.Delete(context.Background(), "cards/u1/abc.png"))
}

func TestImageKeys(t *testing.T) {
	key := ListingImageKey("u1", "Front Photo.JPG")
	require.True(t, strings.HasPrefix(key, "cards/u1/"), key)
	require.True(t, strings.HasSuffix(key, ".jpg"), key)
	require.NotEqual(t, key, ListingImageKey("u1", "Front Photo.JPG"))

	key = ProfilePhotoKey("u2", "avatar")
	require.True(t, strings.HasPrefix(key, "profiles/u2/"), key)
	require.False(t, strings.Contains(key[len("profiles/u2/"):], "."), key)
}
