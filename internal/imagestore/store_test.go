package imagestore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateful-labs/cookbook-back/internal/config"
)

// 1x1 PNG
const tinyPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(&config.Config{MediaDir: t.TempDir()})
	require.NoError(t, err)
	return store
}

func TestSaveBareBase64(t *testing.T) {
	store := newTestStore(t)

	ref, err := store.Save(tinyPNG)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, ".png"))

	data, err := os.ReadFile(filepath.Join(store.dir, ref))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestSaveDataURI(t *testing.T) {
	store := newTestStore(t)

	ref, err := store.Save("data:image/png;base64," + tinyPNG)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, ".png"))
}

func TestSaveRejectsGarbage(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save("!!! not base64 !!!")
	assert.Error(t, err)

	// valid base64 but not an image
	_, err = store.Save("aGVsbG8gd29ybGQ=")
	assert.Error(t, err)

	_, err = store.Save("data:image/png;base64")
	assert.Error(t, err)
}
