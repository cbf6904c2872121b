package logging

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Lines must look like "2025-03-28 14:03:04 GMT some message".
var linePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} GMT .+$`)

func TestPrintfWritesTimestampedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webserver.log")

	log, err := New(path)
	require.NoError(t, err)
	defer log.Close()

	log.Printf("registered job %d of type '%s'", 1, "states_mean")
	log.Printf("computed job %d", 1)
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Regexp(t, linePattern, line)
	}
	assert.Contains(t, lines[0], "registered job 1 of type 'states_mean'")
	assert.Contains(t, lines[1], "computed job 1")
}

func TestNewRemovesPreviousLogFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "webserver.log")

	// Leftovers from an earlier run, including rotated backups.
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0o644))
	require.NoError(t, os.WriteFile(path+".1", []byte("stale backup\n"), 0o644))

	log, err := New(path)
	require.NoError(t, err)
	defer log.Close()

	_, err = os.Stat(path + ".1")
	assert.True(t, os.IsNotExist(err), "rotated backup should be deleted")

	log.Printf("fresh start")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale")
}
