package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kikiluvv/scenechain/pkg/util"
)

// FileStore keeps objects under a local directory, one subdirectory per
// bucket. It backs file:// URIs for development and tests.
type FileStore struct {
	root   string
	bucket string
}

// NewFileStore creates a store rooted at root that uploads into bucket.
func NewFileStore(root, bucket string) (*FileStore, error) {
	if bucket == "" {
		return nil, errors.New("file store: bucket is required")
	}
	if err := util.EnsureDir(filepath.Join(root, bucket)); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return &FileStore{root: root, bucket: bucket}, nil
}

func sanitizeKey(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: key %q escapes bucket", ErrInvalidURI, key)
	}
	return clean, nil
}

func (s *FileStore) localPath(u URI) (string, error) {
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: file store cannot serve %s", ErrInvalidURI, u)
	}
	key, err := sanitizeKey(u.Key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, u.Bucket, key), nil
}

func (s *FileStore) Upload(ctx context.Context, localPath, folder, filename, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	u := URI{Scheme: "file", Bucket: s.bucket, Key: ObjectKey(folder, filename)}
	dst, err := s.localPath(u)
	if err != nil {
		return "", err
	}
	if err := util.EnsureDir(filepath.Dir(dst)); err != nil {
		return "", err
	}
	if err := util.CopyFile(localPath, dst); err != nil {
		return "", fmt.Errorf("upload %s: %w", u, err)
	}
	return u.String(), nil
}

func (s *FileStore) Download(ctx context.Context, uri, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := ParseURI(uri)
	if err != nil {
		return err
	}
	src, err := s.localPath(u)
	if err != nil {
		return err
	}
	if !util.FileExists(src) {
		return fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	if err := util.EnsureDir(filepath.Dir(localPath)); err != nil {
		return err
	}
	return util.CopyFile(src, localPath)
}

func (s *FileStore) List(ctx context.Context, prefixURI string) ([]string, error) {
	u, err := ParseURI(prefixURI)
	if err != nil {
		return nil, err
	}
	base := filepath.Join(s.root, u.Bucket)
	var out []string
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, u.Key) {
			out = append(out, URI{Scheme: "file", Bucket: u.Bucket, Key: key}.String())
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (s *FileStore) Stat(ctx context.Context, uri string) (ObjectInfo, error) {
	u, err := ParseURI(uri)
	if err != nil {
		return ObjectInfo{}, err
	}
	p, err := s.localPath(u)
	if err != nil {
		return ObjectInfo{}, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectInfo{}, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return ObjectInfo{}, err
	}
	return ObjectInfo{
		URI:         uri,
		Size:        fi.Size(),
		ContentType: util.ContentType(p),
		Updated:     fi.ModTime(),
	}, nil
}
