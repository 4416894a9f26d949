package veo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/scenechain/internal/clips"
	"github.com/kikiluvv/scenechain/internal/config"
	"github.com/kikiluvv/scenechain/internal/storage"
)

func testConfig(endpoint string) config.VeoConfig {
	return config.VeoConfig{
		ProjectID:    "proj",
		Location:     "us-central1",
		Model:        "veo-3.0-generate-001",
		Endpoint:     endpoint,
		PollInterval: time.Millisecond,
		MaxWait:      time.Second,
	}
}

// fakeVertex answers predictLongRunning and then returns the given
// operation after pendingPolls unfinished polls.
type fakeVertex struct {
	pendingPolls int32
	final        string
	polls        atomic.Int32
	lastPredict  map[string]any
}

func (f *fakeVertex) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, ":predictLongRunning"):
			assert.Equal(t, "/v1/projects/proj/locations/us-central1/publishers/google/models/veo-3.0-generate-001:predictLongRunning", r.URL.Path)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastPredict))
			_, _ = w.Write([]byte(`{"name":"projects/proj/operations/op1"}`))
		case strings.HasSuffix(r.URL.Path, ":fetchPredictOperation"):
			n := f.polls.Add(1)
			if n <= f.pendingPolls {
				_, _ = w.Write([]byte(`{"name":"projects/proj/operations/op1","done":false}`))
				return
			}
			_, _ = w.Write([]byte(f.final))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestClient(t *testing.T, f *fakeVertex, mutate func(*config.VeoConfig), opts ...Option) *Client {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	cfg := testConfig(srv.URL)
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(context.Background(), zerolog.Nop(), cfg, append([]Option{WithHTTPClient(srv.Client())}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestGenerateSucceedsAfterPolling(t *testing.T) {
	f := &fakeVertex{
		pendingPolls: 2,
		final:        `{"name":"projects/proj/operations/op1","done":true,"response":{"videos":[{"gcsUri":"gs://b/video/f/clip_1.mp4","mimeType":"video/mp4"}]}}`,
	}
	c := newTestClient(t, f, nil)

	seed := 7
	uri, err := c.Generate(context.Background(), clips.GenerateRequest{
		Prompt:          "a red car",
		DurationSeconds: 8,
		Seed:            &clips.SeedImage{URI: "gs://b/uploads/f/frame.jpg", MimeType: "image/jpeg"},
		Parameters:      clips.Parameters{Seed: &seed},
		OutputURI:       "gs://b/video/f/clip_1.mp4",
	})
	require.NoError(t, err)
	assert.Equal(t, "gs://b/video/f/clip_1.mp4", uri)
	assert.Equal(t, int32(3), f.polls.Load())

	params := f.lastPredict["parameters"].(map[string]any)
	assert.Equal(t, float64(8), params["durationSeconds"])
	assert.Equal(t, "gs://b/video/f/clip_1.mp4", params["storageUri"])
	assert.Equal(t, float64(7), params["seed"])
	assert.NotContains(t, params, "aspectRatio")

	inst := f.lastPredict["instances"].([]any)[0].(map[string]any)
	img := inst["image"].(map[string]any)
	assert.Equal(t, "image/jpeg", img["mimeType"])
}

func TestGenerateContentFiltered(t *testing.T) {
	f := &fakeVertex{final: `{"done":true,"response":{"raiMediaFilteredCount":1,"raiMediaFilteredReasons":["unsafe"]}}`}
	c := newTestClient(t, f, nil)

	_, err := c.Generate(context.Background(), clips.GenerateRequest{Prompt: "x", DurationSeconds: 4})
	require.ErrorIs(t, err, clips.ErrGenerationFailed)
	assert.Contains(t, err.Error(), "Content Filtered: unsafe")
}

func TestGenerateOperationError(t *testing.T) {
	f := &fakeVertex{final: `{"done":true,"error":{"code":3,"message":"bad prompt"}}`}
	c := newTestClient(t, f, nil)

	_, err := c.Generate(context.Background(), clips.GenerateRequest{Prompt: "x", DurationSeconds: 4})
	require.ErrorIs(t, err, clips.ErrGenerationFailed)
	assert.Contains(t, err.Error(), "API Error")
}

func TestGeneratePollTimeout(t *testing.T) {
	f := &fakeVertex{pendingPolls: 1 << 30}
	c := newTestClient(t, f, func(cfg *config.VeoConfig) {
		cfg.PollInterval = 5 * time.Millisecond
		cfg.MaxWait = 30 * time.Millisecond
	})

	_, err := c.Generate(context.Background(), clips.GenerateRequest{Prompt: "x", DurationSeconds: 4})
	assert.ErrorIs(t, err, ErrPollTimeout)
	assert.ErrorIs(t, err, clips.ErrGenerationFailed)
}

type statter map[string]string

func (s statter) Stat(_ context.Context, uri string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{URI: uri, ContentType: s[uri]}, nil
}

func TestSeedMimeTypeResolution(t *testing.T) {
	f := &fakeVertex{final: `{"done":true,"response":{"videos":[{"gcsUri":"gs://b/out.mp4"}]}}`}
	c := newTestClient(t, f, nil, WithStatter(statter{"gs://b/seed": "image/webp"}))

	_, err := c.Generate(context.Background(), clips.GenerateRequest{
		Prompt:          "x",
		DurationSeconds: 4,
		Seed:            &clips.SeedImage{URI: "gs://b/seed"},
	})
	require.NoError(t, err)
	img := f.lastPredict["instances"].([]any)[0].(map[string]any)["image"].(map[string]any)
	assert.Equal(t, "image/webp", img["mimeType"])

	c.statter = nil
	assert.Equal(t, "image/png", c.seedMimeType(context.Background(), &clips.SeedImage{URI: "gs://b/seed.png"}))
}

func TestNewRequiresProject(t *testing.T) {
	_, err := New(context.Background(), zerolog.Nop(), config.VeoConfig{}, WithHTTPClient(http.DefaultClient))
	assert.Error(t, err)
}
