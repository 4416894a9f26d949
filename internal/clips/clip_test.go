package clips

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestSceneValidate(t *testing.T) {
	assert.NoError(t, Scene{ID: 1, Prompt: "a car on a coast road", Duration: 8}.Validate())
	assert.Error(t, Scene{ID: 1, Prompt: "x", Duration: 0}.Validate())
	assert.Error(t, Scene{ID: 1, Prompt: "x", Duration: 9}.Validate())
	assert.Error(t, Scene{ID: 1, Duration: 4}.Validate())
}

func TestValidateScenes(t *testing.T) {
	assert.Error(t, ValidateScenes(nil))
	assert.Error(t, ValidateScenes([]Scene{
		{ID: 1, Prompt: "a", Duration: 4},
		{ID: 1, Prompt: "b", Duration: 4},
	}))
	assert.NoError(t, ValidateScenes([]Scene{
		{ID: 1, Prompt: "a", Duration: 4},
		{ID: 2, Prompt: "b", Duration: 4},
	}))
}

func TestParametersMapOmitsUnset(t *testing.T) {
	p := Parameters{AspectRatio: ptr("16:9"), GenerateAudio: ptr(false), Seed: ptr(0)}
	m := p.Map()
	assert.Len(t, m, 3)
	assert.Equal(t, "16:9", m["aspectRatio"])
	assert.Equal(t, false, m["generateAudio"])
	assert.Equal(t, 0, m["seed"])

	assert.Empty(t, Parameters{}.Map())
}

func TestParametersValidate(t *testing.T) {
	assert.NoError(t, Parameters{SampleCount: ptr(4)}.Validate())
	assert.Error(t, Parameters{SampleCount: ptr(5)}.Validate())
	assert.Error(t, Parameters{CompressionQuality: ptr("high")}.Validate())
	assert.NoError(t, Parameters{CompressionQuality: ptr("lossless")}.Validate())
}

func TestURIs(t *testing.T) {
	got := URIs([]GeneratedClip{{SceneID: 1, StorageURI: "gs://b/1.mp4"}, {SceneID: 2, StorageURI: "gs://b/2.mp4"}})
	assert.Equal(t, []string{"gs://b/1.mp4", "gs://b/2.mp4"}, got)
}
