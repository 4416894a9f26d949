// Package ledger records the lifecycle of generation jobs.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kikiluvv/scenechain/internal/clips"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	ErrNotFound     = errors.New("job not found")
	ErrUpdateFailed = errors.New("ledger update failed")

	// ErrAlreadyTerminal is returned when a completed or failed job is updated again.
	ErrAlreadyTerminal = errors.New("job already in terminal state")
)

// Job is the persisted record of one generation request.
type Job struct {
	ID                    string           `json:"id"`
	Status                Status           `json:"status"`
	Scenes                []clips.Scene    `json:"scenes"`
	Parameters            clips.Parameters `json:"parameters"`
	SeedImage             *clips.SeedImage `json:"seed_image"`
	ClipURIs              []string         `json:"clip_uris"`
	FinalVideoURI         *string          `json:"final_video_uri"`
	TrackedVideoURI       *string          `json:"tracked_video_uri"`
	ThumbnailURI          *string          `json:"thumbnail_uri"`
	ErrorMessage          *string          `json:"error_message"`
	CreatedAt             time.Time        `json:"created_at"`
	CompletedAt           *time.Time       `json:"completed_at"`
	GenerationTimeSeconds float64          `json:"generation_time_seconds"`
}

// CreateRequest opens a new PENDING job.
type CreateRequest struct {
	Scenes     []clips.Scene
	Parameters clips.Parameters
	SeedImage  *clips.SeedImage
}

// Update is the single terminal transition of a job.
type Update struct {
	Status                Status
	ClipURIs              []string
	FinalVideoURI         *string
	TrackedVideoURI       *string
	ThumbnailURI          *string
	ErrorMessage          *string
	GenerationTimeSeconds float64
}

// Ledger persists jobs.
type Ledger interface {
	Create(ctx context.Context, req CreateRequest) (string, error)
	Update(ctx context.Context, id string, u Update) error
	Get(ctx context.Context, id string) (*Job, error)
}

// NewJobID returns a uuid without dashes.
func NewJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func validateUpdate(u Update) error {
	if !u.Status.Terminal() {
		return errors.New("update must move the job to COMPLETED or FAILED")
	}
	return nil
}
