package seen

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock { return &fakeClock{now: baseTime} }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestJSONStoreMissingFileIsEmpty(t *testing.T) {
	s := OpenJSON(filepath.Join(t.TempDir(), "seen.json"))
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Has("123"))
}

func TestJSONStoreRecordPersistsAcrossReopen(t *testing.T) {
	clock := newClock()
	path := filepath.Join(t.TempDir(), "data", "seen.json")

	s := OpenJSON(path, WithClock(clock.Now))
	require.NoError(t, s.Record("1890", clock.Now()))
	assert.True(t, s.Has("1890"))

	reopened := OpenJSON(path, WithClock(clock.Now))
	assert.True(t, reopened.Has("1890"))
	assert.Equal(t, 1, reopened.Len())
}

func TestJSONStoreRejectsEmptyID(t *testing.T) {
	s := OpenJSON(filepath.Join(t.TempDir(), "seen.json"))
	assert.Error(t, s.Record("", baseTime))
}

func TestJSONStoreDropsExpiredOnLoad(t *testing.T) {
	clock := newClock()
	path := filepath.Join(t.TempDir(), "seen.json")
	writeFile(t, path, `{
		"old": "`+baseTime.Add(-25*time.Hour).Format(time.RFC3339)+`",
		"edge": "`+baseTime.Add(-24*time.Hour).Format(time.RFC3339)+`",
		"fresh": "`+baseTime.Add(-23*time.Hour).Format(time.RFC3339)+`"
	}`)

	s := OpenJSON(path, WithClock(clock.Now))

	assert.False(t, s.Has("old"))
	assert.False(t, s.Has("edge"))
	assert.True(t, s.Has("fresh"))
	assert.Equal(t, 1, s.Len())
}

func TestJSONStoreExpiresDuringPass(t *testing.T) {
	clock := newClock()
	s := OpenJSON(filepath.Join(t.TempDir(), "seen.json"), WithClock(clock.Now))
	require.NoError(t, s.Record("77", clock.Now()))

	clock.Advance(23 * time.Hour)
	assert.True(t, s.Has("77"))

	clock.Advance(time.Hour)
	assert.False(t, s.Has("77"), "entry at the retention boundary is eligible again")
}

func TestJSONStoreRetentionOption(t *testing.T) {
	clock := newClock()
	s := OpenJSON(filepath.Join(t.TempDir(), "seen.json"), WithClock(clock.Now), WithRetention(time.Hour))
	require.NoError(t, s.Record("5", clock.Now()))
	clock.Advance(2 * time.Hour)
	assert.False(t, s.Has("5"))
}

func TestJSONStoreLegacyListUpgrade(t *testing.T) {
	clock := newClock()
	path := filepath.Join(t.TempDir(), "seen.json")
	writeFile(t, path, `["111", "222", 333]`)

	s := OpenJSON(path, WithClock(clock.Now))

	for _, id := range []string{"111", "222", "333"} {
		assert.True(t, s.Has(id), "legacy id %s should be seen immediately after load", id)
	}

	// File was rewritten in the object format with "now" stamps.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	entries, legacy, err := decode(data, clock.Now())
	require.NoError(t, err)
	assert.False(t, legacy)
	assert.Equal(t, baseTime, entries["111"].UTC())
}

func TestJSONStoreLegacyIDsExpireAfterWindow(t *testing.T) {
	clock := newClock()
	path := filepath.Join(t.TempDir(), "seen.json")
	writeFile(t, path, `["42"]`)

	OpenJSON(path, WithClock(clock.Now))
	clock.Advance(25 * time.Hour)

	reopened := OpenJSON(path, WithClock(clock.Now))
	assert.False(t, reopened.Has("42"))
}

func TestJSONStoreCorruptFileTreatedAsEmpty(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "truncated object", content: `{"123": "2025-`},
		{name: "garbage", content: `not json at all`},
		{name: "scalar", content: `42`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "seen.json")
			writeFile(t, path, tc.content)

			s := OpenJSON(path)
			assert.Equal(t, 0, s.Len())

			// The next record replaces the corrupt file with a valid one.
			require.NoError(t, s.Record("9", time.Now()))
			assert.True(t, OpenJSON(path).Has("9"))
		})
	}
}

func TestJSONStoreUnreadablePathTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	// A directory where the file should be cannot be read as a file.
	path := filepath.Join(dir, "seen.json")
	require.NoError(t, os.Mkdir(path, 0o755))

	s := OpenJSON(path)
	assert.Equal(t, 0, s.Len())
}

func TestJSONStoreAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seen.json")
	s := OpenJSON(path)
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, s.Record(id, time.Now()))
	}

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "seen.json", files[0].Name())
}

func TestJSONStoreFailedWriteKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seen.json")
	s := OpenJSON(path)
	require.NoError(t, s.Record("1", time.Now()))

	// Make the directory read-only so the temp file cannot be created.
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })
	if f, err := os.CreateTemp(dir, "perm-check"); err == nil {
		// Running as root ignores permissions.
		f.Close()
		t.Skip("directory permissions are not enforced")
	}

	err := s.Record("2", time.Now())
	assert.Error(t, err)
	assert.True(t, s.Has("2"), "in-memory state still blocks a duplicate this pass")

	require.NoError(t, os.Chmod(dir, 0o755))
	reopened := OpenJSON(path)
	assert.True(t, reopened.Has("1"))
	assert.False(t, reopened.Has("2"))
}

func TestJSONStorePrune(t *testing.T) {
	clock := newClock()
	path := filepath.Join(t.TempDir(), "seen.json")
	s := OpenJSON(path, WithClock(clock.Now))
	require.NoError(t, s.Record("old", clock.Now()))
	clock.Advance(12 * time.Hour)
	require.NoError(t, s.Record("new", clock.Now()))
	clock.Advance(13 * time.Hour)

	n, err := s.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries := OpenJSON(path, WithClock(clock.Now)).Entries()
	assert.Contains(t, entries, "new")
	assert.NotContains(t, entries, "old")
}

func TestJSONStorePruneRewritesEntriesExpiredAtLoad(t *testing.T) {
	clock := newClock()
	path := filepath.Join(t.TempDir(), "seen.json")
	writeFile(t, path, `{"old": "`+clock.Now().Add(-30*time.Hour).Format(time.RFC3339)+`", "new": "`+clock.Now().Format(time.RFC3339)+`"}`)

	s := OpenJSON(path, WithClock(clock.Now))
	n, err := s.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "old")

	n, err = s.Prune()
	require.NoError(t, err)
	assert.Zero(t, n)
}
