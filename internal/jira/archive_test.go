package jira

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSplitZips_SingleArchiveIsCopied(t *testing.T) {
	dir := t.TempDir()
	body := zipBytes(t, map[string]string{"app.log": "line"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, LogZipFilename), body, 0o644))

	merged, err := MergeSplitZips(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, MergedZipFilename), merged)

	data, err := os.ReadFile(merged)
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestMergeSplitZips_ConcatenatesPartsInOrder(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write(LogZipFilename, "A")
	write("log.z02", "C")
	write("log.z01", "B")
	write("log.z1", "ignored")
	write("log.zab", "ignored")

	merged, err := MergeSplitZips(dir, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(merged)
	require.NoError(t, err)
	assert.Equal(t, "ABC", string(data))
}

func TestMergeSplitZips_MissingArchive(t *testing.T) {
	_, err := MergeSplitZips(t.TempDir(), nil)
	assert.Error(t, err)
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "a.zip")
	require.NoError(t, os.WriteFile(archive, zipBytes(t, map[string]string{
		"app.log":          "one",
		"nested/trace.txt": "two",
	}), 0o644))

	dest := filepath.Join(dir, "out")
	n, err := ExtractZip(archive, dest)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(filepath.Join(dest, "nested", "trace.txt"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestExtractZip_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	require.NoError(t, os.WriteFile(archive, zipBytes(t, map[string]string{
		"../escape.txt": "gotcha",
	}), 0o644))

	// Depending on the reader, the entry is refused at open or at extraction.
	_, err := ExtractZip(archive, filepath.Join(dir, "out"))
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "escape.txt"))
}
