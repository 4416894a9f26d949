package overlays

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/scenechain/internal/config"
)

func TestRegistryResolve(t *testing.T) {
	dir := t.TempDir()
	logo := filepath.Join(dir, "logo.png")
	require.NoError(t, os.WriteFile(logo, []byte("png"), 0o644))

	r := RegistryFromConfig(config.BrandConfig{
		LogoPath:    logo,
		EndCardPath: filepath.Join(dir, "missing.png"),
	})

	got, err := r.Resolve(AssetLogo)
	require.NoError(t, err)
	assert.Equal(t, logo, got)

	_, err = r.Resolve(AssetEndCard)
	assert.ErrorIs(t, err, ErrAssetMissing)

	_, err = r.Resolve(AssetTransparentLogo)
	assert.ErrorIs(t, err, ErrAssetMissing)

	assert.Equal(t, []Asset{AssetEndCard, AssetLogo}, r.List())
}

func TestCompositeBlends(t *testing.T) {
	// three pixels: opaque, transparent, half
	bg := []byte{
		10, 20, 30,
		10, 20, 30,
		0, 0, 0,
	}
	ov := []byte{
		200, 100, 50, 255,
		200, 100, 50, 0,
		255, 255, 255, 128,
	}
	require.NoError(t, Composite(bg, ov, 3, 1))
	assert.Equal(t, []byte{200, 100, 50}, bg[0:3])
	assert.Equal(t, []byte{10, 20, 30}, bg[3:6])
	assert.Equal(t, []byte{128, 128, 128}, bg[6:9])
}

func TestCompositeRejectsMismatchedBuffers(t *testing.T) {
	assert.Error(t, Composite(make([]byte, 3), make([]byte, 3), 1, 1))
	assert.Error(t, Composite(make([]byte, 2), make([]byte, 4), 1, 1))
	assert.Error(t, Composite(nil, nil, 0, 0))
}

func TestTrackingStats(t *testing.T) {
	var s TrackingStats
	for _, r := range []FrameResult{FrameOverlaid, FrameNoDetection, FrameNoDetection, FrameNoMatch, FrameError} {
		s.Record(r)
	}
	assert.Equal(t, TrackingStats{Frames: 5, Overlaid: 1, NoDetection: 2, NoMatch: 1, Errors: 1}, s)
}
