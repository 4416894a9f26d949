package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"

	"github.com/kikiluvv/scenechain/pkg/util"
)

// GCSStore serves gs:// URIs through the Cloud Storage JSON API.
type GCSStore struct {
	svc    *gcs.Service
	bucket string
}

// NewGCSStore creates a store that uploads into bucket. Credentials come
// from Application Default Credentials unless opts override them.
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs store: bucket is required")
	}
	if len(opts) == 0 {
		opts = []option.ClientOption{option.WithScopes(gcs.DevstorageReadWriteScope)}
	}
	svc, err := gcs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage service: %w", err)
	}
	return &GCSStore{svc: svc, bucket: bucket}, nil
}

func (s *GCSStore) Upload(ctx context.Context, localPath, folder, filename, mimeType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if mimeType == "" {
		mimeType = util.ContentType(localPath)
	}
	key := ObjectKey(folder, filename)
	obj := &gcs.Object{Name: key, ContentType: mimeType}
	if _, err := s.svc.Objects.Insert(s.bucket, obj).Media(f, googleapi.ContentType(mimeType)).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("insert object %s: %w", key, err)
	}
	return URI{Scheme: "gs", Bucket: s.bucket, Key: key}.String(), nil
}

func (s *GCSStore) Download(ctx context.Context, uri, localPath string) error {
	u, err := ParseURI(uri)
	if err != nil {
		return err
	}
	resp, err := s.svc.Objects.Get(u.Bucket, u.Key).Context(ctx).Download()
	if err != nil {
		return mapGCSErr(uri, err)
	}
	defer resp.Body.Close()

	if err := util.EnsureDir(filepath.Dir(localPath)); err != nil {
		return err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("download %s: %w", uri, err)
	}
	return f.Close()
}

func (s *GCSStore) List(ctx context.Context, prefixURI string) ([]string, error) {
	u, err := ParseURI(prefixURI)
	if err != nil {
		return nil, err
	}
	var out []string
	err = s.svc.Objects.List(u.Bucket).Prefix(u.Key).Pages(ctx, func(page *gcs.Objects) error {
		for _, obj := range page.Items {
			out = append(out, URI{Scheme: "gs", Bucket: u.Bucket, Key: obj.Name}.String())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefixURI, err)
	}
	return out, nil
}

func (s *GCSStore) Stat(ctx context.Context, uri string) (ObjectInfo, error) {
	u, err := ParseURI(uri)
	if err != nil {
		return ObjectInfo{}, err
	}
	obj, err := s.svc.Objects.Get(u.Bucket, u.Key).Context(ctx).Do()
	if err != nil {
		return ObjectInfo{}, mapGCSErr(uri, err)
	}
	info := ObjectInfo{URI: uri, Size: int64(obj.Size), ContentType: obj.ContentType}
	if t, err := time.Parse(time.RFC3339, obj.Updated); err == nil {
		info.Updated = t
	}
	return info, nil
}

func mapGCSErr(uri string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	return fmt.Errorf("gcs %s: %w", uri, err)
}
