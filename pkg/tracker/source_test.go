package tracker_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/bugflow/pkg/tracker"
)

const sampleRecord = `{"id": 101, "type": "defect", "product": "Core", "component": "DOM",
 "status": "RESOLVED", "severity": "S3",
 "creation_time": "2022-01-01T10:00:00Z", "last_change_time": "2022-01-15T08:30:00Z",
 "history": [{"when": "2022-01-15T08:30:00Z", "changes": [{"field_name": "status", "removed": "NEW", "added": "RESOLVED"}]}],
 "attachments": [{"creation_time": "2022-01-10T00:00:00Z", "is_patch": 1}],
 "flags": [{"name": "needinfo", "requestee": "dev@example.com", "status": "?"}]}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestLoad_JSONArray(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "records.json", "[\n"+sampleRecord+",\n"+strings.Replace(sampleRecord, "101", "102", 1)+"\n]")

	records, err := tracker.Load(context.Background(), path, tracker.LoadOptions{Validate: true})
	require.NoError(t, err)
	require.Len(t, records, 2)

	rec := records[0]
	assert.Equal(t, int64(101), rec.ID)
	assert.Equal(t, "RESOLVED", rec.Status)
	assert.Equal(t, time.Date(2022, 1, 15, 8, 30, 0, 0, time.UTC), rec.LastChangeTime)
	require.Len(t, rec.History, 1)
	assert.Equal(t, tracker.FieldStatus, rec.History[0].Changes[0].FieldName)
	require.Len(t, rec.Attachments, 1)
	assert.True(t, rec.Attachments[0].IsPatch)
	assert.Equal(t, "dev@example.com", rec.Flags[0].Requestee)
	assert.Equal(t, int64(102), records[1].ID)
}

func TestLoad_JSONLines(t *testing.T) {
	t.Parallel()

	content := compact(sampleRecord) + "\n\n" + compact(strings.Replace(sampleRecord, "101", "103", 1)) + "\n"
	path := writeFile(t, "records.jsonl", content)

	records, err := tracker.Load(context.Background(), path, tracker.LoadOptions{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(103), records[1].ID)
}

func TestLoad_LZ4(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	w := lz4.NewWriter(&buf)
	_, err := w.Write([]byte(compact(sampleRecord) + "\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	path := writeFile(t, "records.jsonl.lz4", buf.String())

	records, err := tracker.Load(context.Background(), path, tracker.LoadOptions{Validate: true})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(101), records[0].ID)
}

func TestLoad_Empty(t *testing.T) {
	t.Parallel()

	records, err := tracker.Load(context.Background(), writeFile(t, "empty.json", "  \n"), tracker.LoadOptions{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoad_RecordTooLarge(t *testing.T) {
	t.Parallel()

	line := compact(sampleRecord)
	opts := tracker.LoadOptions{MaxRecordSize: len(line) / 2}

	_, err := tracker.Load(context.Background(), writeFile(t, "big.jsonl", line+"\n"), opts)
	require.ErrorIs(t, err, tracker.ErrRecordTooLarge)
	assert.Contains(t, err.Error(), "line 1")

	_, err = tracker.Load(context.Background(), writeFile(t, "big.json", "["+line+"]"), opts)
	require.ErrorIs(t, err, tracker.ErrRecordTooLarge)
}

func TestLoad_SchemaViolation(t *testing.T) {
	t.Parallel()

	bad := `{"id": "not-a-number", "status": "NEW", "component": "DOM", "creation_time": "2022-01-01T00:00:00Z"}`
	path := writeFile(t, "bad.jsonl", compact(sampleRecord)+"\n"+bad+"\n")

	_, err := tracker.Load(context.Background(), path, tracker.LoadOptions{Validate: true})
	require.ErrorIs(t, err, tracker.ErrSchemaViolation)
	assert.Contains(t, err.Error(), "line 2")

	_, err = tracker.Load(context.Background(), path, tracker.LoadOptions{})
	require.ErrorIs(t, err, tracker.ErrMalformedInput)
}

func TestLoad_InvalidPatchMarker(t *testing.T) {
	t.Parallel()

	doc := strings.Replace(compact(sampleRecord), `"is_patch": 1`, `"is_patch": "yes"`, 1)

	_, err := tracker.Load(context.Background(), writeFile(t, "patch.jsonl", doc), tracker.LoadOptions{})
	require.ErrorIs(t, err, tracker.ErrInvalidPatchMarker)
}

func TestLoad_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tracker.Load(ctx, writeFile(t, "r.jsonl", compact(sampleRecord)), tracker.LoadOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := tracker.Load(context.Background(), filepath.Join(t.TempDir(), "absent.json"), tracker.LoadOptions{})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFiles_PreservesArgumentOrder(t *testing.T) {
	t.Parallel()

	var paths []string

	for _, id := range []string{"7", "3", "5"} {
		doc := compact(strings.Replace(sampleRecord, "101", id, 1))
		paths = append(paths, writeFile(t, "shard"+id+".jsonl", doc+"\n"))
	}

	records, err := tracker.LoadFiles(context.Background(), paths, tracker.LoadOptions{Validate: true})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []int64{7, 3, 5}, []int64{records[0].ID, records[1].ID, records[2].ID})
}

func TestLoadFiles_FirstErrorWins(t *testing.T) {
	t.Parallel()

	good := writeFile(t, "good.jsonl", compact(sampleRecord))
	bad := writeFile(t, "bad.jsonl", "{not json")

	_, err := tracker.LoadFiles(context.Background(), []string{good, bad}, tracker.LoadOptions{})
	require.ErrorIs(t, err, tracker.ErrMalformedInput)
	assert.Contains(t, err.Error(), "bad.jsonl")
}
