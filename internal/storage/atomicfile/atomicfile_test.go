package atomicfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rates.json")

	require.NoError(t, WriteJSON(path, map[string]int{"a": 1}))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", string(raw))

	var got map[string]int
	ok, err := ReadJSON(path, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, got["a"])
}

func TestReadJSON_MissingAndEmpty(t *testing.T) {
	dir := t.TempDir()

	var v []int
	ok, err := ReadJSON(filepath.Join(dir, "absent.json"), &v)
	require.NoError(t, err)
	assert.False(t, ok)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	ok, err = ReadJSON(empty, &v)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadJSON_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var v map[string]any
	_, err := ReadJSON(path, &v)
	assert.Error(t, err)
}
