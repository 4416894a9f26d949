// Package workspace provides per-job scratch directories that are removed
// when the job finishes unless the caller takes ownership.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Workspace is a scoped temporary directory.
type Workspace struct {
	mu     sync.Mutex
	dir    string
	keep   bool
	closed bool
}

// New creates a unique directory under root (os.TempDir when empty).
func New(root, prefix string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: ensure root: %w", err)
	}
	dir, err := os.MkdirTemp(root, prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("workspace: create: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir is the absolute workspace path.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name under the workspace, rejecting names that escape it.
func (w *Workspace) Path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New("workspace: invalid name " + name)
	}
	return filepath.Join(w.dir, clean), nil
}

// MustPath is Path for names built by the pipeline itself.
func (w *Workspace) MustPath(name string) string {
	p, err := w.Path(name)
	if err != nil {
		panic(err)
	}
	return p
}

// Keep hands the directory to the caller; Close will leave it in place.
func (w *Workspace) Keep() {
	w.mu.Lock()
	w.keep = true
	w.mu.Unlock()
}

// Kept reports whether Keep was called.
func (w *Workspace) Kept() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keep
}

// Close removes the directory unless kept. It is safe to call more than once.
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.keep {
		w.closed = true
		return nil
	}
	w.closed = true
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("workspace: remove %s: %w", w.dir, err)
	}
	return nil
}
