package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestParseURI(t *testing.T) {
	u, err := ParseURI("gs://bucket/video/abc/clip_1.mp4")
	require.NoError(t, err)
	assert.Equal(t, URI{Scheme: "gs", Bucket: "bucket", Key: "video/abc/clip_1.mp4"}, u)
	assert.Equal(t, "gs://bucket/video/abc/clip_1.mp4", u.String())

	u, err = ParseURI("s3://bucket")
	require.NoError(t, err)
	assert.Equal(t, "", u.Key)
	assert.Equal(t, "s3://bucket", u.String())

	for _, bad := range []string{"", "bucket/key", "gs://", "://x/y"} {
		_, err := ParseURI(bad)
		assert.ErrorIs(t, err, ErrInvalidURI, bad)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFileStore(root, "media")
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(src, []byte("clip-bytes"), 0o644))

	uri, err := store.Upload(ctx, src, "video/job1", "clip_1.mp4", "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "file://media/video/job1/clip_1.mp4", uri)

	info, err := store.Stat(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Size)
	assert.Equal(t, "video/mp4", info.ContentType)

	dst := filepath.Join(t.TempDir(), "nested", "out.mp4")
	require.NoError(t, store.Download(ctx, uri, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "clip-bytes", string(data))

	listed, err := store.List(ctx, "file://media/video/")
	require.NoError(t, err)
	assert.Equal(t, []string{uri}, listed)
}

func TestFileStoreMissingAndTraversal(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), "media")
	require.NoError(t, err)

	err = store.Download(ctx, "file://media/missing.mp4", filepath.Join(t.TempDir(), "x"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Stat(ctx, "file://media/../../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidURI)
}

type recordingStore struct {
	FileStore
	uploads int
}

func (r *recordingStore) Upload(ctx context.Context, localPath, folder, filename, mimeType string) (string, error) {
	r.uploads++
	return "mem://b/" + ObjectKey(folder, filename), nil
}

func TestRouterDispatch(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir(), "media")
	require.NoError(t, err)
	rec := &recordingStore{}

	r := NewRouter("mem")
	r.Register("file", fs)
	r.Register("mem", rec)

	uri, err := r.Upload(ctx, "ignored", "uploads/job", "frame.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "mem://b/uploads/job/frame.jpg", uri)
	assert.Equal(t, 1, rec.uploads)
	assert.Equal(t, "mem://bucket", r.BaseURI("bucket"))

	_, err = r.Stat(ctx, "gs://bucket/x")
	assert.Error(t, err)

	_, err = r.Stat(ctx, "file://media/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGCSStat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/storage/v1/b/bucket/o/uploads/seed.png":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"uploads/seed.png","size":"42","contentType":"image/png","updated":"2024-05-01T10:00:00Z"}`))
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"No such object"}}`))
		}
	}))
	defer srv.Close()

	store, err := NewGCSStore(context.Background(), "bucket",
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)

	info, err := store.Stat(context.Background(), "gs://bucket/uploads/seed.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.ContentType)
	assert.Equal(t, int64(42), info.Size)

	_, err = store.Stat(context.Background(), "gs://bucket/missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
}
