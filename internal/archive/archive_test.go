package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wiki_harvester/internal/db"
	"wiki_harvester/internal/models"
)

type recordingArchiver struct {
	files map[string][]byte
	err   error
}

func (r *recordingArchiver) Upload(_ context.Context, name string, rd io.Reader) error {
	if r.err != nil {
		return r.err
	}
	data, err := io.ReadAll(rd)
	if err != nil {
		return err
	}
	if r.files == nil {
		r.files = make(map[string][]byte)
	}
	r.files[name] = data
	return nil
}

func seed(t *testing.T, n int) *db.MemoryStore {
	t.Helper()
	store := db.NewMemoryStore()
	for i := 1; i <= n; i++ {
		key := fmt.Sprintf("en/Crimea/revision/%d", i)
		require.NoError(t, store.Write(context.Background(), key, []models.Revision{{RevID: int64(i), Content: "c"}}))
	}
	require.NoError(t, store.Write(context.Background(), "en/Crimea/timeline", []models.TimelineEntry{{RevID: 1}}))
	return store
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExporter_Export(t *testing.T) {
	store := seed(t, 3)
	arch := &recordingArchiver{}
	tmp := t.TempDir()

	res, err := NewExporter(store, arch, tmp, 100, quietLogger()).Export(context.Background(), "en/Crimea/")
	require.NoError(t, err)
	assert.Equal(t, "en/Crimea", res.Prefix)
	assert.Len(t, res.Files, 3)
	require.Contains(t, arch.files, "en_Crimea_revision_2.json")

	var doc models.RevisionDocument
	require.NoError(t, json.Unmarshal(arch.files["en_Crimea_revision_2.json"], &doc))
	assert.Equal(t, "en/Crimea/revision/2", doc.Key)
	assert.Equal(t, int64(2), doc.Dataset[0].RevID)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch dir should be removed")
}

func TestExporter_Limit(t *testing.T) {
	store := seed(t, 5)
	arch := &recordingArchiver{}

	res, err := NewExporter(store, arch, t.TempDir(), 2, quietLogger()).Export(context.Background(), "en/Crimea")
	require.NoError(t, err)
	assert.Len(t, res.Files, 2)
	assert.Len(t, arch.files, 2)
}

func TestExporter_UploadError(t *testing.T) {
	store := seed(t, 2)
	arch := &recordingArchiver{err: errors.New("remote down")}

	res, err := NewExporter(store, arch, t.TempDir(), 10, quietLogger()).Export(context.Background(), "en/Crimea")
	require.Error(t, err)
	assert.Empty(t, res.Files)
}

func TestDirArchiver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	require.NoError(t, DirArchiver{Dir: dir}.Upload(context.Background(), "a.json", bytes.NewReader([]byte("{}"))))

	data, err := os.ReadFile(filepath.Join(dir, "a.json"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "fr_Crimée_revision_7.json", FileName("fr/Crimée/revision/7"))
}
