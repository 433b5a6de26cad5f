package uvot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnpack(t *testing.T) {
	t.Parallel()

	dir := makeObservation(t, t.TempDir(), "00012345001", "bb", "w1")

	// Already uncompressed images are never rewritten
	existing := filepath.Join(dir, imageName("00012345001", "w1"))
	require.NoError(t, os.WriteFile(existing, []byte("kept"), 0o644))

	result, err := Unpack(dir)
	require.NoError(t, err)

	b := filepath.Join(dir, imageName("00012345001", "bb"))
	assert.Equal(t, []string{b}, result.Decompressed)
	assert.Equal(t, []string{b, existing}, result.Images)
	assert.Empty(t, result.Corrupt)

	data, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, "raw bb", string(data))

	data, err = os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(data))

	assert.FileExists(t, b+".gz")
	assert.FileExists(t, existing+".gz")

	// Second run finds nothing to do
	result, err = Unpack(dir)
	require.NoError(t, err)
	assert.Empty(t, result.Decompressed)
	assert.Len(t, result.Images, 2)
}

func TestUnpackSkipsCorruptArchive(t *testing.T) {
	t.Parallel()

	dir := makeObservation(t, t.TempDir(), "00012345001", "uu")
	corrupt := filepath.Join(dir, imageName("00012345001", "vv")+".gz")
	require.NoError(t, os.WriteFile(corrupt, []byte("not gzip at all"), 0o644))

	result, err := Unpack(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{corrupt}, result.Corrupt)
	assert.Len(t, result.Images, 1)
	assert.NoFileExists(t, filepath.Join(dir, imageName("00012345001", "vv")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "."), "temp file left behind: %s", e.Name())
	}
}
