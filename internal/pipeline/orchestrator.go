package pipeline

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/scenechain/internal/ai"
	"github.com/kikiluvv/scenechain/internal/clips"
	"github.com/kikiluvv/scenechain/internal/metrics"
	"github.com/kikiluvv/scenechain/internal/storage"
	"github.com/kikiluvv/scenechain/internal/workspace"
)

// Orchestrator generates scenes in order, seeding each one with the best
// frame of the clip before it.
type Orchestrator struct {
	logger     zerolog.Logger
	generator  clips.Generator
	store      storage.Store
	selector   *ai.ContinuitySelector
	metrics    *metrics.Metrics
	outputBase string
}

// NewOrchestrator wires the scene chain.
func NewOrchestrator(logger zerolog.Logger, generator clips.Generator, store storage.Store, selector *ai.ContinuitySelector, m *metrics.Metrics, outputBase string) *Orchestrator {
	if m == nil {
		m = metrics.Noop()
	}
	return &Orchestrator{
		logger:     logger.With().Str("component", "orchestrator").Logger(),
		generator:  generator,
		store:      store,
		selector:   selector,
		metrics:    m,
		outputBase: strings.TrimSuffix(outputBase, "/"),
	}
}

// chainState is what one step hands to the next.
type chainState struct {
	ws     *workspace.Workspace
	folder string
	params clips.Parameters
	seed   *clips.SeedImage
	prev   image.Image
}

// Run generates every scene until one fails. Clips produced before the
// failure are returned in scene order; an empty result means the first
// scene failed.
func (o *Orchestrator) Run(ctx context.Context, ws *workspace.Workspace, folder string, scenes []clips.Scene, params clips.Parameters, seed *clips.SeedImage) []clips.GeneratedClip {
	state := &chainState{ws: ws, folder: folder, params: params, seed: seed}
	generated := make([]clips.GeneratedClip, 0, len(scenes))

	for i, scene := range scenes {
		if err := ctx.Err(); err != nil {
			o.logger.Warn().Err(err).Int("scene", scene.ID).Msg("chain cancelled")
			break
		}
		step := o.chainStep(ctx, state, scene, i == len(scenes)-1)
		if step.Clip != nil {
			generated = append(generated, *step.Clip)
		}
		if step.Break {
			o.logger.Warn().
				Err(step.Err).
				Int("scene", scene.ID).
				Int("kept", len(generated)).
				Msg("chain stopped")
			break
		}
	}
	return generated
}

func (o *Orchestrator) chainStep(ctx context.Context, st *chainState, scene clips.Scene, last bool) StepResult {
	log := o.logger.With().Int("scene", scene.ID).Logger()
	log.Info().
		Int("duration", scene.Duration).
		Bool("seeded", st.seed != nil).
		Msg("generating scene")

	uri, err := o.generator.Generate(ctx, clips.GenerateRequest{
		Prompt:          scene.Prompt,
		DurationSeconds: scene.Duration,
		Seed:            st.seed,
		Parameters:      st.params,
		OutputURI:       fmt.Sprintf("%s/video/%s/clip_%d.mp4", o.outputBase, st.folder, scene.ID),
	})
	if err != nil {
		o.metrics.RecordScene("failed")
		return StepResult{Break: true, Err: err}
	}
	o.metrics.RecordScene("generated")
	clip := &clips.GeneratedClip{SceneID: scene.ID, StorageURI: uri}
	log.Info().Str("uri", uri).Msg("scene generated")

	if last {
		return StepResult{Clip: clip}
	}

	if err := o.advance(ctx, st, scene, uri); err != nil {
		return StepResult{Clip: clip, Break: true, Err: fmt.Errorf("continuity for scene %d: %w", scene.ID, err)}
	}
	return StepResult{Clip: clip}
}

// advance picks the continuity frame of the clip at uri and makes it the
// seed and reference frame of the next scene.
func (o *Orchestrator) advance(ctx context.Context, st *chainState, scene clips.Scene, uri string) error {
	clipPath := st.ws.MustPath(fmt.Sprintf("clip_%d.mp4", scene.ID))
	if err := o.store.Download(ctx, uri, clipPath); err != nil {
		return fmt.Errorf("download clip: %w", err)
	}

	candidates, err := o.selector.Candidates(ctx, clipPath, st.ws.MustPath(fmt.Sprintf("frames_%d", scene.ID)))
	if err != nil {
		return err
	}
	best, err := o.selector.Select(candidates, st.prev)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("continuity_frame_%d.jpg", scene.ID)
	framePath := st.ws.MustPath(name)
	if err := ai.SaveJPEG(framePath, best.Image); err != nil {
		return err
	}
	frameURI, err := o.store.Upload(ctx, framePath, "uploads/"+st.folder, name, "image/jpeg")
	if err != nil {
		return fmt.Errorf("upload continuity frame: %w", err)
	}

	// the next scene is compared against the frame as encoded, not the
	// lossless extraction
	prev, err := ai.LoadImage(framePath)
	if err != nil {
		return err
	}

	st.seed = &clips.SeedImage{URI: frameURI, MimeType: "image/jpeg"}
	st.prev = prev
	return nil
}
