package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/scenechain/internal/ai"
	"github.com/kikiluvv/scenechain/internal/config"
	"github.com/kikiluvv/scenechain/internal/ffmpeg"
	"github.com/kikiluvv/scenechain/internal/ledger"
	"github.com/kikiluvv/scenechain/internal/metrics"
	"github.com/kikiluvv/scenechain/internal/overlays"
	"github.com/kikiluvv/scenechain/internal/overlays/tracking"
	"github.com/kikiluvv/scenechain/internal/pipeline"
	"github.com/kikiluvv/scenechain/internal/storage"
	"github.com/kikiluvv/scenechain/internal/veo"
)

// app owns everything a command needs and releases it in Close.
type app struct {
	pipe    *pipeline.Pipeline
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires the pipeline from configuration. withGenerator is false
// for commands that only post-process existing clips.
func buildApp(ctx context.Context, logger zerolog.Logger, cfg *config.Config, withGenerator bool) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	router, err := buildStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	ldg, err := buildLedger(ctx, a, cfg.Ledger)
	if err != nil {
		return nil, err
	}

	exec, err := ffmpeg.New(logger, cfg.FFmpeg.Threads)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}
	exec.WithEncoding(ffmpeg.Encoding{
		Preset:       cfg.FFmpeg.Preset,
		CRF:          cfg.FFmpeg.CRF,
		AudioBitrate: cfg.FFmpeg.AudioBitrate,
		Width:        cfg.FFmpeg.Width,
		Height:       cfg.FFmpeg.Height,
		FPS:          cfg.FFmpeg.FPS,
	})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Listen != "" {
		mctx, cancel := context.WithCancel(ctx)
		a.closers = append(a.closers, cancel)
		go func() {
			if err := metrics.Serve(mctx, logger, cfg.Metrics.Listen, reg); err != nil {
				logger.Warn().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	deps := pipeline.Dependencies{
		Store:    router,
		Ledger:   ldg,
		Media:    exec,
		Assets:   overlays.RegistryFromConfig(cfg.Brand),
		Tracker:  trackerLoader(logger, cfg.Tracking),
		Metrics:  m,
	}
	a.closers = append(a.closers, func() {
		if err := ai.DefaultRegistry().Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to release detectors")
		}
	})

	if withGenerator {
		gen, err := veo.New(ctx, logger, cfg.Veo, veo.WithStatter(router))
		if err != nil {
			return nil, err
		}
		scorer := ai.NewQualityScorer(logger,
			ai.QualityWeights{
				Sharpness:   cfg.Quality.SharpnessWeight,
				Contrast:    cfg.Quality.ContrastWeight,
				Brightness:  cfg.Quality.BrightnessWeight,
				Composition: cfg.Quality.CompositionWeight,
			},
			ai.QualityNorms{
				Sharpness:     cfg.Quality.SharpnessNorm,
				Contrast:      cfg.Quality.ContrastNorm,
				BrightnessMid: cfg.Quality.BrightnessMid,
			})
		deps.Generator = gen
		deps.Selector = ai.NewContinuitySelector(logger, exec, scorer, ai.ContinuityOptions{
			Candidates:       cfg.Continuity.Candidates,
			WindowSeconds:    cfg.Continuity.WindowSeconds,
			QualityWeight:    cfg.Continuity.QualityWeight,
			ContinuityWeight: cfg.Continuity.ContinuityWeight,
		})
	}

	pcfg := pipeline.ConfigFromApp(cfg)
	pcfg.OutputBase = router.BaseURI(cfg.Storage.Bucket)
	a.pipe, err = pipeline.New(logger, pcfg, deps)
	if err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

func buildStorage(ctx context.Context, cfg config.StorageConfig) (*storage.Router, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage.bucket (or SCENECHAIN_BUCKET) is required")
	}
	router := storage.NewRouter(cfg.Scheme)

	switch cfg.Scheme {
	case "gs":
		gcs, err := storage.NewGCSStore(ctx, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		router.Register("gs", gcs)
	case "s3":
		s3, err := storage.NewS3Store(ctx, cfg.Bucket, cfg.S3)
		if err != nil {
			return nil, err
		}
		router.Register("s3", s3)
	}

	// local clips are always readable
	local, err := storage.NewFileStore(cfg.LocalRoot, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	router.Register("file", local)
	return router, nil
}

func buildLedger(ctx context.Context, a *app, cfg config.LedgerConfig) (ledger.Ledger, error) {
	if cfg.DatabaseURL == "" {
		return ledger.NewMemoryLedger(), nil
	}
	pool, err := ledger.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)

	l := ledger.NewPostgresLedger(pool)
	if err := l.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

var _ pipeline.LogoTracker = (*tracking.LogoTracker)(nil)

// trackerLoader defers model loading until a job asks for tracking, and
// shares the loaded session between jobs.
func trackerLoader(logger zerolog.Logger, cfg config.TrackingConfig) pipeline.TrackerLoader {
	dc := ai.DefaultDetectorConfig()
	dc.ModelPath = cfg.ModelPath
	dc.RuntimeLibrary = cfg.RuntimeLibrary
	if len(cfg.Classes) > 0 {
		dc.Classes = cfg.Classes
	}
	if cfg.Confidence > 0 {
		dc.Confidence = cfg.Confidence
	}
	if cfg.NMSThreshold > 0 {
		dc.NMSThreshold = cfg.NMSThreshold
	}

	return func(opts overlays.TrackingOptions) (pipeline.LogoTracker, error) {
		detector, err := ai.DefaultRegistry().GetOrLoad(dc.ModelPath, func() (ai.ObjectDetector, error) {
			d, err := ai.NewYOLODetector(logger, dc)
			if err != nil {
				return nil, err
			}
			return d, nil
		})
		if err != nil {
			return nil, err
		}
		return tracking.NewLogoTracker(logger, detector, opts), nil
	}
}
