package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWALReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal_1.log")
	wal, err := OpenWAL(path)
	require.NoError(t, err)

	docs := []Document{
		{ID: "1", Timestamp: 100, Source: "api", Text: "hello world"},
		{ID: "2", Timestamp: 200, Source: "web", Text: `quoted "text"`},
	}
	for _, d := range docs {
		require.NoError(t, wal.Write(d))
	}
	require.NoError(t, wal.Sync())

	got, err := wal.Replay()
	require.NoError(t, err)
	assert.Equal(t, docs, got)

	// writes after a replay still append
	require.NoError(t, wal.Write(Document{ID: "3", Timestamp: 300}))
	require.NoError(t, wal.Close())

	reopened, err := OpenWAL(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err = reopened.Replay()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "3", got[2].ID)
}

func TestWALTruncatedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal_1.log")
	wal, err := OpenWAL(path)
	require.NoError(t, err)
	require.NoError(t, wal.Write(Document{ID: "1", Text: "complete"}))
	require.NoError(t, wal.Close())

	// simulate a crash in the middle of the second record
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{50, 0, 0, 0, '{'})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	wal, err = OpenWAL(path)
	require.NoError(t, err)
	defer wal.Close()

	got, err := wal.Replay()
	assert.Error(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "complete", got[0].Text)
}

func TestWALRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal_1.log")
	wal, err := OpenWAL(path)
	require.NoError(t, err)
	assert.Equal(t, path, wal.Path())

	require.NoError(t, wal.Remove())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
