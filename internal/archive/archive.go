// Package archive dumps stored revision documents to JSON files and hands
// them to an external archival service.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"wiki_harvester/internal/models"
)

// Archiver accepts one exported file. Implementations own the remote side.
type Archiver interface {
	Upload(ctx context.Context, name string, r io.Reader) error
}

type Finder interface {
	FindRevisions(ctx context.Context, pattern string, limit int) ([]models.RevisionDocument, error)
}

// DirArchiver stores uploads under a local directory.
type DirArchiver struct {
	Dir string
}

func (d DirArchiver) Upload(ctx context.Context, name string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(d.Dir, name))
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type Result struct {
	Prefix string   `json:"prefix"`
	Files  []string `json:"files"`
}

type Exporter struct {
	store    Finder
	archiver Archiver
	tempDir  string
	limit    int
	logger   *slog.Logger
}

func NewExporter(store Finder, archiver Archiver, tempDir string, limit int, logger *slog.Logger) *Exporter {
	return &Exporter{store: store, archiver: archiver, tempDir: tempDir, limit: limit, logger: logger}
}

// FileName maps a store key to a flat file name.
func FileName(key string) string {
	return strings.ReplaceAll(key, "/", "_") + ".json"
}

// Export writes up to the configured limit of revision documents under
// prefix (a "{lang}/{title}" page key) to a scratch directory and uploads
// each file. The scratch directory is removed afterwards.
func (e *Exporter) Export(ctx context.Context, prefix string) (*Result, error) {
	prefix = strings.TrimSuffix(prefix, "/")
	pattern := fmt.Sprintf("^%s/revision/[0-9]+$", regexp.QuoteMeta(prefix))

	docs, err := e.store.FindRevisions(ctx, pattern, e.limit)
	if err != nil {
		return nil, err
	}

	scratch, err := os.MkdirTemp(e.tempDir, "export-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	res := &Result{Prefix: prefix, Files: make([]string, 0, len(docs))}
	for _, doc := range docs {
		name := FileName(doc.Key)
		path := filepath.Join(scratch, name)

		if err := writeJSON(path, doc); err != nil {
			return res, fmt.Errorf("dumping %s: %w", doc.Key, err)
		}
		if err := e.upload(ctx, name, path); err != nil {
			return res, fmt.Errorf("uploading %s: %w", name, err)
		}
		res.Files = append(res.Files, name)
	}

	e.logger.Info("export finished", "prefix", prefix, "files", len(res.Files))
	return res, nil
}

func (e *Exporter) upload(ctx context.Context, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return e.archiver.Upload(ctx, name, f)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
