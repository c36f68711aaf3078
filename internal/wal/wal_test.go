package wal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/gridcache/internal/entry"
	"github.com/vitaliisemenov/gridcache/internal/version"
)

type fakeIndex struct {
	appends []int64
}

func (f *fakeIndex) RecordAppend(segment string, order int64) error {
	f.appends = append(f.appends, order)
	return nil
}

func newTestWAL(t *testing.T, index SegmentIndex) *WAL {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(Config{Filename: path}, index, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestLog_AppendsOneJSONLinePerRecord(t *testing.T) {
	w := newTestWAL(t, nil)

	require.NoError(t, w.Log(entry.DataRecord{Kind: entry.RecordCreate, Key: "a", Value: "v1", Version: version.Version{Order: 1}, Partition: 3}))
	require.NoError(t, w.Log(entry.DataRecord{Kind: entry.RecordUpdate, Key: "a", Value: "v2", Version: version.Version{Order: 2}, Partition: 3}))

	lines := readLines(t, w.cfg.Filename)
	require.Len(t, lines, 2)

	var first line
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, entry.RecordCreate, first.Kind)
	require.Equal(t, "a", first.Key)
}

func TestLog_UpdatesSegmentIndex(t *testing.T) {
	idx := &fakeIndex{}
	w := newTestWAL(t, idx)

	require.NoError(t, w.Log(entry.DataRecord{Kind: entry.RecordCreate, Key: "a", Version: version.Version{Order: 1}}))
	require.NoError(t, w.Log(entry.DataRecord{Kind: entry.RecordDelete, Key: "a", Version: version.Version{Order: 2}}))

	require.Equal(t, []int64{1, 2}, idx.appends)
}

func TestRotate_StartsFreshSegment(t *testing.T) {
	w := newTestWAL(t, nil)
	require.NoError(t, w.Log(entry.DataRecord{Kind: entry.RecordCreate, Key: "a", Version: version.Version{Order: 1}}))
	require.NoError(t, w.Rotate())
	require.NoError(t, w.Log(entry.DataRecord{Kind: entry.RecordCreate, Key: "b", Version: version.Version{Order: 2}}))

	lines := readLines(t, w.cfg.Filename)
	require.Len(t, lines, 1)
	var l line
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &l))
	require.Equal(t, "b", l.Key)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}
