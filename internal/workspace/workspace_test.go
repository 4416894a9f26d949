package workspace

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloseRemovesDirectory(t *testing.T) {
	ws, err := New(t.TempDir(), "job")
	require.NoError(t, err)

	p, err := ws.Path("clips/clip_1.mp4")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(ws.MustPath("clips"), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	require.NoError(t, ws.Close())
	_, err = os.Stat(ws.Dir())
	assert.True(t, os.IsNotExist(err))

	// second close is a no-op
	assert.NoError(t, ws.Close())
}

func TestKeepLeavesDirectory(t *testing.T) {
	ws, err := New(t.TempDir(), "job")
	require.NoError(t, err)
	ws.Keep()
	assert.True(t, ws.Kept())

	require.NoError(t, ws.Close())
	_, err = os.Stat(ws.Dir())
	assert.NoError(t, err)
}

func TestPathRejectsTraversal(t *testing.T) {
	ws, err := New(t.TempDir(), "job")
	require.NoError(t, err)
	defer ws.Close()

	for _, name := range []string{"../escape", "/etc/passwd", "", "a/../../b"} {
		_, err := ws.Path(name)
		assert.Error(t, err, name)
	}
}
