package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kikiluvv/scenechain/internal/metrics"
	"github.com/kikiluvv/scenechain/internal/overlays"
	"github.com/kikiluvv/scenechain/internal/storage"
	"github.com/kikiluvv/scenechain/internal/workspace"
)

// Processed holds the artifacts of one post-processing run. URIs are local
// paths when uploading is disabled.
type Processed struct {
	Folder          string
	FinalVideoURI   string
	TrackedVideoURI *string
	ThumbnailURI    *string
}

// PostProcessor turns generated clips into the branded final video.
type PostProcessor struct {
	logger  zerolog.Logger
	store   storage.Store
	media   MediaTool
	assets  *overlays.Registry
	cfg     Config
	metrics *metrics.Metrics
	load    TrackerLoader
}

// NewPostProcessor wires the stage dependencies.
func NewPostProcessor(logger zerolog.Logger, store storage.Store, media MediaTool, assets *overlays.Registry, cfg Config, m *metrics.Metrics, load TrackerLoader) *PostProcessor {
	if m == nil {
		m = metrics.Noop()
	}
	if assets == nil {
		assets = overlays.NewRegistry()
	}
	return &PostProcessor{
		logger:  logger.With().Str("component", "postprocess").Logger(),
		store:   store,
		media:   media,
		assets:  assets,
		cfg:     cfg.withDefaults(),
		metrics: m,
		load:    load,
	}
}

// BuildStages returns the ordered stages enabled by opts.
func (p *PostProcessor) BuildStages(opts ProcessOptions) []Stage {
	stages := []Stage{&assembleStage{
		media:       p.media,
		stitch:      opts.Stitch,
		transitions: opts.Transitions,
		crossfade:   p.cfg.CrossfadeSeconds,
	}}
	if opts.ApplyLogo || opts.ApplyEndCard {
		stages = append(stages, &brandStage{
			media:      p.media,
			assets:     p.assets,
			logo:       opts.ApplyLogo,
			endCard:    opts.ApplyEndCard,
			logoOpts:   p.cfg.Logo,
			cardOpts:   p.cfg.EndCard,
			transition: p.cfg.BrandTransition,
		})
	}
	return stages
}

// BuildVariants returns the best-effort stages enabled by opts.
func (p *PostProcessor) BuildVariants(opts ProcessOptions) []VariantStage {
	var variants []VariantStage
	if opts.MotionTracking {
		variants = append(variants, &trackingStage{
			media:   p.media,
			assets:  p.assets,
			load:    p.load,
			opts:    p.cfg.Tracking,
			metrics: p.metrics,
		})
	}
	return variants
}

// Process downloads uris into ws, runs the stages and publishes the results.
func (p *PostProcessor) Process(ctx context.Context, ws *workspace.Workspace, jobID string, uris []string, opts ProcessOptions) (*Processed, error) {
	return p.process(ctx, ws, jobID, uris, opts, p.BuildStages(opts), p.BuildVariants(opts))
}

func (p *PostProcessor) process(ctx context.Context, ws *workspace.Workspace, jobID string, uris []string, opts ProcessOptions, stages []Stage, variants []VariantStage) (*Processed, error) {
	if len(uris) == 0 {
		return nil, ErrNoClipsGenerated
	}
	out := &Processed{Folder: newFolder()}
	log := p.logger.With().Str("job_id", jobID).Str("folder", out.Folder).Logger()

	files, err := p.download(ctx, ws, uris)
	if err != nil {
		return nil, err
	}

	for _, s := range stages {
		log.Info().Str("stage", s.Name()).Int("inputs", len(files)).Msg("running stage")
		done := p.metrics.ObserveStage(s.Name())
		files, err = s.Run(ctx, ws, files)
		done()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name(), err)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("stages produced no output")
	}
	final := files[0]

	out.FinalVideoURI, err = p.publish(ctx, final, "video/"+out.Folder, "processed_final.mp4", "video/mp4", opts.Upload)
	if err != nil {
		return nil, fmt.Errorf("upload final video: %w", err)
	}
	log.Info().Str("uri", out.FinalVideoURI).Msg("final video ready")

	out.ThumbnailURI = p.thumbnail(ctx, ws, jobID, final, opts.Upload, log)

	for _, v := range variants {
		done := p.metrics.ObserveStage(v.Name())
		produced, err := runVariant(ctx, v, ws, []string{final})
		done()
		if err != nil {
			log.Warn().Err(err).Str("stage", v.Name()).Msg("variant failed, continuing without it")
			continue
		}
		uri, err := p.publish(ctx, produced[0], "video/"+out.Folder, v.ObjectName(), "video/mp4", opts.Upload)
		if err != nil {
			log.Warn().Err(err).Str("stage", v.Name()).Msg("variant upload failed")
			continue
		}
		out.TrackedVideoURI = &uri
		log.Info().Str("uri", uri).Str("stage", v.Name()).Msg("variant ready")
	}

	return out, nil
}

// download fetches uris in parallel; the returned paths keep their order.
func (p *PostProcessor) download(ctx context.Context, ws *workspace.Workspace, uris []string) ([]string, error) {
	files := make([]string, len(uris))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.DownloadWorkers)

	for i, uri := range uris {
		i, uri := i, uri
		files[i] = ws.MustPath(fmt.Sprintf("clip_%d.mp4", i))
		g.Go(func() error {
			if err := p.store.Download(gctx, uri, files[i]); err != nil {
				return fmt.Errorf("download %s: %w", uri, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func (p *PostProcessor) publish(ctx context.Context, local, folder, name, mime string, upload bool) (string, error) {
	if !upload {
		return local, nil
	}
	return p.store.Upload(ctx, local, folder, name, mime)
}

func (p *PostProcessor) thumbnail(ctx context.Context, ws *workspace.Workspace, jobID, final string, upload bool, log zerolog.Logger) *string {
	path := ws.MustPath("thumbnail.jpg")
	if err := p.media.GenerateThumbnail(ctx, final, path, p.cfg.ThumbnailAt, nil); err != nil {
		log.Warn().Err(err).Msg("thumbnail failed")
		return nil
	}
	uri, err := p.publish(ctx, path, "thumbnails/"+jobID, "final.jpg", "image/jpeg", upload)
	if err != nil {
		log.Warn().Err(err).Msg("thumbnail upload failed")
		return nil
	}
	return &uri
}
