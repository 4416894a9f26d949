package pipeline

import (
	"context"
	"time"

	"github.com/kikiluvv/scenechain/internal/ai"
	"github.com/kikiluvv/scenechain/internal/ffmpeg"
)

// MediaTool is the part of the ffmpeg executor the pipeline drives.
type MediaTool interface {
	ai.FrameSource
	Concat(ctx context.Context, opts ffmpeg.ConcatOptions) error
	Crossfade(ctx context.Context, opts ffmpeg.CrossfadeOptions) error
	OverlayLogo(ctx context.Context, input, logo, output string, opts ffmpeg.LogoOptions) error
	RenderEndCard(ctx context.Context, image, output string, opts ffmpeg.EndCardOptions) error
	AppendWithCrossfade(ctx context.Context, main, tail, output string, t float64) error
	RecombineAudio(ctx context.Context, silent, source, output string) error
	GenerateThumbnail(ctx context.Context, input, output string, timestamp time.Duration, progressFunc ffmpeg.ProgressFunc) error
}

var _ MediaTool = (*ffmpeg.Executor)(nil)
