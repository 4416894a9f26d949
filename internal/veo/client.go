// Package veo generates clips with Vertex AI Veo long-running predictions.
package veo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2/google"

	"github.com/kikiluvv/scenechain/internal/clips"
	"github.com/kikiluvv/scenechain/internal/config"
	"github.com/kikiluvv/scenechain/internal/storage"
	"github.com/kikiluvv/scenechain/pkg/util"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// ErrPollTimeout is returned when an operation is still running after MaxWait.
var ErrPollTimeout = errors.New("generation did not finish within max wait")

// Statter resolves blob metadata; used to fill in a missing seed mime type.
type Statter interface {
	Stat(ctx context.Context, uri string) (storage.ObjectInfo, error)
}

// Client implements clips.Generator against the Vertex AI REST API.
type Client struct {
	logger   zerolog.Logger
	cfg      config.VeoConfig
	http     *http.Client
	endpoint string
	breaker  *gobreaker.CircuitBreaker[any]
	statter  Statter
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the OAuth2 client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithStatter enables seed mime type lookup.
func WithStatter(s Statter) Option {
	return func(cl *Client) { cl.statter = s }
}

// New creates a client. Unless WithHTTPClient is given, credentials come
// from Application Default Credentials.
func New(ctx context.Context, logger zerolog.Logger, cfg config.VeoConfig, opts ...Option) (*Client, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("veo: project id is required")
	}
	c := &Client{
		logger:   logger.With().Str("component", "veo").Logger(),
		cfg:      cfg,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
	}
	if c.endpoint == "" {
		c.endpoint = fmt.Sprintf("https://%s-aiplatform.googleapis.com", cfg.Location)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		hc, err := google.DefaultClient(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("veo: default credentials: %w", err)
		}
		c.http = hc
	}
	c.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "veo",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return c, nil
}

type predictRequest struct {
	Instances  []instance     `json:"instances"`
	Parameters map[string]any `json:"parameters"`
}

type instance struct {
	Prompt string     `json:"prompt"`
	Image  *imageData `json:"image,omitempty"`
}

type imageData struct {
	GCSURI   string `json:"gcsUri"`
	MimeType string `json:"mimeType"`
}

type operation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Error    *operationError `json:"error,omitempty"`
	Response *predictResult  `json:"response,omitempty"`
}

type operationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type predictResult struct {
	RAIMediaFilteredCount   int      `json:"raiMediaFilteredCount"`
	RAIMediaFilteredReasons []string `json:"raiMediaFilteredReasons"`
	Videos                  []struct {
		GCSURI   string `json:"gcsUri"`
		MimeType string `json:"mimeType"`
	} `json:"videos"`
}

// Generate submits a prediction and polls until the clip is written.
func (c *Client) Generate(ctx context.Context, req clips.GenerateRequest) (string, error) {
	if err := req.Parameters.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", clips.ErrGenerationFailed, err)
	}

	inst := instance{Prompt: req.Prompt}
	if req.Seed != nil && req.Seed.URI != "" {
		inst.Image = &imageData{GCSURI: req.Seed.URI, MimeType: c.seedMimeType(ctx, req.Seed)}
	}
	params := req.Parameters.Map()
	params["durationSeconds"] = req.DurationSeconds
	params["storageUri"] = req.OutputURI

	var op operation
	if err := c.call(ctx, "predictLongRunning", predictRequest{Instances: []instance{inst}, Parameters: params}, &op); err != nil {
		return "", fmt.Errorf("%w: submit: %w", clips.ErrGenerationFailed, err)
	}
	c.logger.Info().Str("operation", op.Name).Int("duration", req.DurationSeconds).Msg("generation submitted")

	deadline := time.Now().Add(c.cfg.MaxWait)
	for !op.Done {
		if time.Now().Add(c.cfg.PollInterval).After(deadline) {
			return "", fmt.Errorf("%w: %w (%s)", clips.ErrGenerationFailed, ErrPollTimeout, op.Name)
		}
		timer := time.NewTimer(c.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
		var next operation
		if err := c.call(ctx, "fetchPredictOperation", map[string]string{"operationName": op.Name}, &next); err != nil {
			return "", fmt.Errorf("%w: poll: %w", clips.ErrGenerationFailed, err)
		}
		if next.Name == "" {
			next.Name = op.Name
		}
		op = next
		c.logger.Debug().Str("operation", op.Name).Bool("done", op.Done).Msg("operation polled")
	}

	return resultURI(&op)
}

func resultURI(op *operation) (string, error) {
	if op.Error != nil {
		return "", fmt.Errorf("%w: API Error: %d %s", clips.ErrGenerationFailed, op.Error.Code, op.Error.Message)
	}
	if op.Response == nil {
		return "", fmt.Errorf("%w: operation finished without a response", clips.ErrGenerationFailed)
	}
	if op.Response.RAIMediaFilteredCount > 0 {
		reason := "unspecified"
		if len(op.Response.RAIMediaFilteredReasons) > 0 {
			reason = op.Response.RAIMediaFilteredReasons[0]
		}
		return "", fmt.Errorf("%w: Content Filtered: %s", clips.ErrGenerationFailed, reason)
	}
	if len(op.Response.Videos) == 0 || op.Response.Videos[0].GCSURI == "" {
		return "", fmt.Errorf("%w: no video in response", clips.ErrGenerationFailed)
	}
	return op.Response.Videos[0].GCSURI, nil
}

func (c *Client) seedMimeType(ctx context.Context, seed *clips.SeedImage) string {
	if seed.MimeType != "" {
		return seed.MimeType
	}
	if c.statter != nil {
		info, err := c.statter.Stat(ctx, seed.URI)
		if err == nil && info.ContentType != "" {
			return info.ContentType
		}
		if err != nil {
			c.logger.Warn().Err(err).Str("uri", seed.URI).Msg("seed metadata lookup failed")
		}
	}
	return util.ContentType(seed.URI)
}

func (c *Client) modelURL(method string) string {
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:%s",
		c.endpoint, c.cfg.ProjectID, c.cfg.Location, c.cfg.Model, method)
}

// call posts body to the model method through the circuit breaker.
func (c *Client) call(ctx context.Context, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	_, err = c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.modelURL(method), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%s: status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return nil, json.Unmarshal(data, out)
	})
	return err
}
