package logger

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backups(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "vsbridge-") {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestNewRotatingWriter_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "vsbridge.log")

	rw, err := NewRotatingWriter(path, 10, 7, false)
	require.NoError(t, err)
	defer rw.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestRotatingWriter_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vsbridge.log")
	require.NoError(t, os.WriteFile(path, []byte("earlier\n"), 0644))

	rw, err := NewRotatingWriter(path, 10, 7, false)
	require.NoError(t, err)

	_, err = rw.Write([]byte("later\n"))
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "earlier\nlater\n", string(data))
}

func TestRotatingWriter_Rotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vsbridge.log")

	// A zero size limit rotates before every write to a non-empty file
	rw, err := NewRotatingWriter(path, 0, 7, false)
	require.NoError(t, err)

	tick := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rw.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	for _, line := range []string{"one\n", "two\n", "three\n"} {
		_, err := rw.Write([]byte(line))
		require.NoError(t, err)
	}
	require.NoError(t, rw.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "three\n", string(data))

	names := backups(t, dir)
	require.Len(t, names, 2)
	for _, name := range names {
		assert.True(t, strings.HasSuffix(name, ".log"), name)
	}
}

func TestRotatingWriter_CompressesBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vsbridge.log")

	rw, err := NewRotatingWriter(path, 0, 7, true)
	require.NoError(t, err)

	_, err = rw.Write([]byte("first\n"))
	require.NoError(t, err)
	_, err = rw.Write([]byte("second\n"))
	require.NoError(t, err)

	// Close waits for background compression
	require.NoError(t, rw.Close())

	names := backups(t, dir)
	require.Len(t, names, 1)
	require.True(t, strings.HasSuffix(names[0], ".log.gz"), names[0])

	f, err := os.Open(filepath.Join(dir, names[0]))
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	content, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(content))
}

func TestRotatingWriter_PrunesExpiredBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vsbridge.log")

	old := filepath.Join(dir, "vsbridge-20200101T120000.000.log.gz")
	recent := filepath.Join(dir, "vsbridge-20260101T120000.000.log")
	unrelated := filepath.Join(dir, "other.log")
	for _, p := range []string{old, recent, unrelated} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}
	longAgo := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(old, longAgo, longAgo))
	require.NoError(t, os.Chtimes(unrelated, longAgo, longAgo))

	rw, err := NewRotatingWriter(path, 10, 7, false)
	require.NoError(t, err)
	defer rw.Close()

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err), "expired backup removed")
	_, err = os.Stat(recent)
	assert.NoError(t, err)
	_, err = os.Stat(unrelated)
	assert.NoError(t, err, "files that are not backups are left alone")
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "vsbridge.log"), 10, 7, false)
	require.NoError(t, err)

	require.NoError(t, rw.Close())
	assert.NoError(t, rw.Close())

	_, err = rw.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
