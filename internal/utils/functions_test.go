package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatBytes(t *testing.T) {
	r := require.New(t)
	r.Equal("512 B", FormatBytes(512))
	r.Equal("1.00 KB", FormatBytes(1024))
	r.Equal("1.50 KB", FormatBytes(1536))
	r.Equal("1.00 MB", FormatBytes(1024*1024))
	r.Equal("2.50 GB", FormatBytes(uint64(2.5*1024*1024*1024)))
}

func TestFormatSpeed(t *testing.T) {
	r := require.New(t)
	r.Equal("0 B/s", FormatSpeed(1024, 0))
	r.Equal("1.00 KB/s", FormatSpeed(1024, 1))
	r.Equal("512 B/s", FormatSpeed(1024, 2))
}

func TestGetRandomUserAgent(t *testing.T) {
	r := require.New(t)
	agent := GetRandomUserAgent()
	r.NotEmpty(agent)
	r.Contains(userAgents, agent)
}

func TestRenewOutputPath(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")
	r.NoError(os.WriteFile(path, []byte("x"), 0644))
	renewed := RenewOutputPath(path)
	r.Equal(filepath.Join(dir, "file-(1).bin"), renewed)
	r.NoError(os.WriteFile(renewed, []byte("x"), 0644))
	r.Equal(filepath.Join(dir, "file-(2).bin"), RenewOutputPath(path))
}

func TestInferOutputPath(t *testing.T) {
	r := require.New(t)
	r.Equal("file.zip", InferOutputPath("https://example.com/a/b/file.zip"))
	r.Equal("file.zip", InferOutputPath("https://example.com/file.zip?key=value"))
	r.Equal("download", InferOutputPath("https://example.com"))
	r.Equal("download", InferOutputPath("https://example.com/"))
	r.Equal("archive.tar.gz", InferOutputPath("s3://bucket/dir/archive.tar.gz"))
}

func TestParseHeaderArgs(t *testing.T) {
	r := require.New(t)
	parsed := ParseHeaderArgs([]string{
		"Authorization: Bearer abc123",
		"X-Custom:value",
		"malformed-header",
	})
	r.Equal(map[string]string{
		"Authorization": "Bearer abc123",
		"X-Custom":      "value",
	}, parsed)
}

func TestReadDownloadList(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "list.yaml")
	content := `downloads:
  - link: https://example.com/one.bin
    op: one.bin
    resume: true
  - link: https://example.com/two.bin
  - op: missing-link.bin
`
	r.NoError(os.WriteFile(path, []byte(content), 0644))
	entries, err := ReadDownloadList(path)
	r.NoError(err)
	r.Len(entries, 2)
	r.Equal("https://example.com/one.bin", entries[0].URL)
	r.Equal("one.bin", entries[0].OutputPath)
	r.True(entries[0].Resume)
	r.Equal("https://example.com/two.bin", entries[1].URL)
	r.False(entries[1].Resume)

	empty := filepath.Join(dir, "empty.yaml")
	r.NoError(os.WriteFile(empty, []byte("downloads: []\n"), 0644))
	_, err = ReadDownloadList(empty)
	r.Error(err)

	_, err = ReadDownloadList(filepath.Join(dir, "missing.yaml"))
	r.Error(err)
}

func TestClean(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()
	keep := filepath.Join(dir, "file.bin")
	stale := filepath.Join(dir, "file.bin"+TempFileSuffix)
	other := filepath.Join(dir, "other"+TempFileSuffix)
	sub := filepath.Join(dir, "sub")
	r.NoError(os.Mkdir(sub, 0755))
	nested := filepath.Join(sub, "nested"+TempFileSuffix)
	for _, p := range []string{keep, stale, other, nested} {
		r.NoError(os.WriteFile(p, []byte("x"), 0644))
	}

	r.NoError(Clean(dir))
	_, err := os.Stat(keep)
	r.NoError(err)
	_, err = os.Stat(stale)
	r.True(os.IsNotExist(err))
	_, err = os.Stat(other)
	r.True(os.IsNotExist(err))
	// Subdirectories are not swept
	_, err = os.Stat(nested)
	r.NoError(err)

	r.NoError(Clean(filepath.Join(sub, "nested")))
	_, err = os.Stat(nested)
	r.True(os.IsNotExist(err))

	r.NoError(Clean(filepath.Join(dir, "absent.bin")))
}
