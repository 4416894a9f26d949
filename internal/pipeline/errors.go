package pipeline

import "errors"

var (
	// ErrNoClipsGenerated means the first scene already failed; nothing is post-processed.
	ErrNoClipsGenerated = errors.New("no clips were generated")
	// ErrBrandingFailed wraps logo and end card failures, including missing assets.
	ErrBrandingFailed = errors.New("branding failed")
)
