package overlays

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kikiluvv/scenechain/internal/config"
	"github.com/kikiluvv/scenechain/pkg/util"
)

var (
	// ErrAssetMissing is returned when a configured brand asset is not on disk.
	ErrAssetMissing = errors.New("brand asset missing")
	// ErrTrackingFailed wraps every failure of the tracking overlay.
	ErrTrackingFailed = errors.New("motion tracking failed")
	// ErrLogoNoAlpha is returned when the tracked logo has no alpha channel.
	ErrLogoNoAlpha = errors.New("transparent logo must have an alpha channel")
)

// Asset names a brand asset
type Asset string

const (
	AssetLogo            Asset = "logo"
	AssetEndCard         Asset = "end_card"
	AssetTransparentLogo Asset = "transparent_logo"
	AssetReferenceLogo   Asset = "reference_logo"
)

// Registry manages brand asset paths
type Registry struct {
	assets map[Asset]string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		assets: make(map[Asset]string),
	}
}

// RegistryFromConfig registers every asset path set in cfg.
func RegistryFromConfig(cfg config.BrandConfig) *Registry {
	r := NewRegistry()
	r.Register(AssetLogo, cfg.LogoPath)
	r.Register(AssetEndCard, cfg.EndCardPath)
	r.Register(AssetTransparentLogo, cfg.TransparentLogoPath)
	r.Register(AssetReferenceLogo, cfg.ReferenceLogoPath)
	return r
}

// Register adds an asset; empty paths are ignored.
func (r *Registry) Register(name Asset, path string) {
	if path == "" {
		return
	}
	r.assets[name] = path
}

// Get retrieves an asset path by name
func (r *Registry) Get(name Asset) (string, bool) {
	path, ok := r.assets[name]
	return path, ok
}

// Resolve returns the path of an asset that exists on disk.
func (r *Registry) Resolve(name Asset) (string, error) {
	path, ok := r.assets[name]
	if !ok {
		return "", fmt.Errorf("%w: %s not configured", ErrAssetMissing, name)
	}
	if !util.FileExists(path) {
		return "", fmt.Errorf("%w: %s at %s", ErrAssetMissing, name, path)
	}
	return path, nil
}

// List returns all registered assets
func (r *Registry) List() []Asset {
	names := make([]Asset, 0, len(r.assets))
	for name := range r.assets {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
