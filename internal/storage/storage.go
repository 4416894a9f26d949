// Package storage moves clips and frames between the local workspace and
// blob storage addressed by scheme://bucket/key URIs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidURI is returned for URIs that are not scheme://bucket/key.
	ErrInvalidURI = errors.New("invalid storage uri")
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	URI         string
	Size        int64
	ContentType string
	Updated     time.Time
}

// Store is a blob store backend.
type Store interface {
	// Upload stores localPath as folder/filename and returns its URI.
	Upload(ctx context.Context, localPath, folder, filename, mimeType string) (string, error)
	Download(ctx context.Context, uri, localPath string) error
	List(ctx context.Context, prefixURI string) ([]string, error)
	Stat(ctx context.Context, uri string) (ObjectInfo, error)
}

// URI is a parsed storage location.
type URI struct {
	Scheme string
	Bucket string
	Key    string
}

func (u URI) String() string {
	if u.Key == "" {
		return u.Scheme + "://" + u.Bucket
	}
	return u.Scheme + "://" + u.Bucket + "/" + u.Key
}

// ParseURI splits scheme://bucket/key. The key may be empty.
func ParseURI(raw string) (URI, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || scheme == "" {
		return URI{}, fmt.Errorf("%w: %q", ErrInvalidURI, raw)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return URI{}, fmt.Errorf("%w: %q has no bucket", ErrInvalidURI, raw)
	}
	return URI{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

// ObjectKey joins a folder and filename into an object key.
func ObjectKey(folder, filename string) string {
	return strings.TrimPrefix(path.Join(folder, filename), "/")
}

// Router dispatches by URI scheme. Uploads go to the default backend.
type Router struct {
	defaultScheme string
	backends      map[string]Store
}

// NewRouter creates a router whose uploads use defaultScheme.
func NewRouter(defaultScheme string) *Router {
	return &Router{defaultScheme: defaultScheme, backends: make(map[string]Store)}
}

// Register attaches a backend for scheme.
func (r *Router) Register(scheme string, s Store) {
	r.backends[scheme] = s
}

func (r *Router) backend(scheme string) (Store, error) {
	s, ok := r.backends[scheme]
	if !ok {
		return nil, fmt.Errorf("no storage backend for scheme %q", scheme)
	}
	return s, nil
}

func (r *Router) forURI(uri string) (Store, error) {
	u, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return r.backend(u.Scheme)
}

func (r *Router) Upload(ctx context.Context, localPath, folder, filename, mimeType string) (string, error) {
	s, err := r.backend(r.defaultScheme)
	if err != nil {
		return "", err
	}
	return s.Upload(ctx, localPath, folder, filename, mimeType)
}

func (r *Router) Download(ctx context.Context, uri, localPath string) error {
	s, err := r.forURI(uri)
	if err != nil {
		return err
	}
	return s.Download(ctx, uri, localPath)
}

func (r *Router) List(ctx context.Context, prefixURI string) ([]string, error) {
	s, err := r.forURI(prefixURI)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, prefixURI)
}

func (r *Router) Stat(ctx context.Context, uri string) (ObjectInfo, error) {
	s, err := r.forURI(uri)
	if err != nil {
		return ObjectInfo{}, err
	}
	return s.Stat(ctx, uri)
}

// BaseURI is where a generator should write outputs for the default backend.
func (r *Router) BaseURI(bucket string) string {
	return URI{Scheme: r.defaultScheme, Bucket: bucket}.String()
}
