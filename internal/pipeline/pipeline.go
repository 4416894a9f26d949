package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/scenechain/internal/ai"
	"github.com/kikiluvv/scenechain/internal/clips"
	"github.com/kikiluvv/scenechain/internal/ledger"
	"github.com/kikiluvv/scenechain/internal/logging"
	"github.com/kikiluvv/scenechain/internal/metrics"
	"github.com/kikiluvv/scenechain/internal/overlays"
	"github.com/kikiluvv/scenechain/internal/storage"
	"github.com/kikiluvv/scenechain/internal/workspace"
)

const ledgerUpdateTimeout = 10 * time.Second

// newFolder returns a storage folder name: a uuid without dashes.
func newFolder() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Dependencies are the collaborators a Pipeline drives.
type Dependencies struct {
	Generator clips.Generator
	Store     storage.Store
	Ledger    ledger.Ledger
	Media     MediaTool
	Selector  *ai.ContinuitySelector
	Assets    *overlays.Registry
	Tracker   TrackerLoader
	Metrics   *metrics.Metrics
}

// Pipeline runs scene-chained generation jobs end to end. It holds no
// per-job state, so jobs may run concurrently.
type Pipeline struct {
	logger  zerolog.Logger
	cfg     Config
	deps    Dependencies
	chain   *Orchestrator
	post    *PostProcessor
	metrics *metrics.Metrics
}

// New creates a new pipeline instance
func New(logger zerolog.Logger, cfg Config, deps Dependencies) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if deps.Media == nil {
		return nil, errors.New("pipeline: media tool is required")
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.NewMemoryLedger()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop()
	}
	cfg = cfg.withDefaults()

	p := &Pipeline{
		logger:  logger.With().Str("component", "pipeline").Logger(),
		cfg:     cfg,
		deps:    deps,
		post:    NewPostProcessor(logger, deps.Store, deps.Media, deps.Assets, cfg, deps.Metrics, deps.Tracker),
		metrics: deps.Metrics,
	}
	if deps.Generator != nil && deps.Selector != nil {
		p.chain = NewOrchestrator(logger, deps.Generator, deps.Store, deps.Selector, deps.Metrics, cfg.OutputBase)
	}
	return p, nil
}

// Generate runs one storyboard: chained generation, post-processing and a
// single terminal ledger update. The returned Result is non-nil whenever
// the job was recorded, including on failure.
func (p *Pipeline) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	if p.chain == nil {
		return nil, errors.New("pipeline: generation requires a generator and a continuity selector")
	}
	if err := clips.ValidateScenes(req.Scenes); err != nil {
		return nil, err
	}
	if err := req.Parameters.Validate(); err != nil {
		return nil, err
	}

	jobID, err := p.deps.Ledger.Create(ctx, ledger.CreateRequest{
		Scenes:     req.Scenes,
		Parameters: req.Parameters,
		SeedImage:  req.SeedImage,
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	start := time.Now()
	folder := newFolder()
	log := logging.WithJob(p.logger, jobID, folder)
	log.Info().Int("scenes", len(req.Scenes)).Msg("job started")

	res := &Result{JobID: jobID, Status: ledger.StatusPending}
	opts := req.Options.process()

	ws, err := workspace.New(p.cfg.WorkDir, "job-"+jobID)
	if err != nil {
		return p.finish(ctx, log, res, start, err)
	}
	defer func() {
		if err := ws.Close(); err != nil {
			log.Warn().Err(err).Msg("workspace cleanup failed")
		}
	}()
	if opts.KeepArtifacts {
		ws.Keep()
		res.OutputDir = ws.Dir()
	}

	res.Clips = p.chain.Run(ctx, ws, folder, req.Scenes, req.Parameters, req.SeedImage)
	if len(res.Clips) == 0 {
		return p.finish(ctx, log, res, start, ErrNoClipsGenerated)
	}
	log.Info().
		Int("generated", len(res.Clips)).
		Int("requested", len(req.Scenes)).
		Msg("scene chain finished")

	processed, err := p.post.Process(ctx, ws, jobID, clips.URIs(res.Clips), opts)
	if err != nil {
		return p.finish(ctx, log, res, start, err)
	}
	res.FinalVideoURI = processed.FinalVideoURI
	res.TrackedVideoURI = processed.TrackedVideoURI
	res.ThumbnailURI = processed.ThumbnailURI
	return p.finish(ctx, log, res, start, nil)
}

// finish records the terminal state of the job. A ledger failure is logged
// and does not change what is returned.
func (p *Pipeline) finish(ctx context.Context, log zerolog.Logger, res *Result, start time.Time, jobErr error) (*Result, error) {
	res.GenerationTime = time.Since(start).Seconds()
	res.Status = ledger.StatusCompleted
	if jobErr != nil {
		res.Status = ledger.StatusFailed
	}

	u := ledger.Update{
		Status:                res.Status,
		ClipURIs:              clips.URIs(res.Clips),
		TrackedVideoURI:       res.TrackedVideoURI,
		ThumbnailURI:          res.ThumbnailURI,
		GenerationTimeSeconds: res.GenerationTime,
	}
	if res.FinalVideoURI != "" {
		final := res.FinalVideoURI
		u.FinalVideoURI = &final
	}
	if jobErr != nil {
		msg := jobErr.Error()
		u.ErrorMessage = &msg
	}
	// the terminal write must land even when the job was cancelled
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerUpdateTimeout)
	defer cancel()
	if err := p.deps.Ledger.Update(uctx, res.JobID, u); err != nil {
		log.Error().Err(err).Msg("ledger update failed")
	}
	p.metrics.RecordJob(string(res.Status))

	if jobErr != nil {
		log.Error().Err(jobErr).Float64("seconds", res.GenerationTime).Msg("job failed")
		return res, jobErr
	}
	log.Info().
		Str("final", res.FinalVideoURI).
		Float64("seconds", res.GenerationTime).
		Msg("job completed")
	return res, nil
}

// ProcessExisting post-processes clips that are already in storage. No
// ledger record is written. An empty jobID gets a fresh one.
func (p *Pipeline) ProcessExisting(ctx context.Context, jobID string, uris []string, opts ProcessOptions) (*Result, error) {
	if len(uris) == 0 {
		return nil, errors.New("at least one clip uri is required")
	}
	if jobID == "" {
		jobID = ledger.NewJobID()
	}
	start := time.Now()

	ws, err := workspace.New(p.cfg.WorkDir, "process-"+jobID)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	res := &Result{JobID: jobID, Status: ledger.StatusPending}
	for i, uri := range uris {
		res.Clips = append(res.Clips, clips.GeneratedClip{SceneID: i + 1, StorageURI: uri})
	}
	// local results must outlive the call
	if opts.KeepArtifacts || !opts.Upload {
		ws.Keep()
		res.OutputDir = ws.Dir()
	}

	processed, err := p.post.Process(ctx, ws, jobID, uris, opts)
	res.GenerationTime = time.Since(start).Seconds()
	if err != nil {
		res.Status = ledger.StatusFailed
		return res, err
	}
	res.Status = ledger.StatusCompleted
	res.FinalVideoURI = processed.FinalVideoURI
	res.TrackedVideoURI = processed.TrackedVideoURI
	res.ThumbnailURI = processed.ThumbnailURI

	p.logger.Info().
		Str("job_id", jobID).
		Str("final", res.FinalVideoURI).
		Msg("processing complete")
	return res, nil
}
