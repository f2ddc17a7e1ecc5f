// Package timeline rebuilds a page's revision timeline from the revision
// documents already in the store.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"wiki_harvester/internal/models"
	"wiki_harvester/internal/utils"
)

// ErrNoRevisions means no revision document is stored for the page.
var ErrNoRevisions = errors.New("no stored revisions")

type Store interface {
	FindRevisions(ctx context.Context, pattern string, limit int) ([]models.RevisionDocument, error)
	Delete(ctx context.Context, key string) error
	Write(ctx context.Context, key string, dataset interface{}) error
}

// Build projects revision documents onto an ascending timeline. The revision
// id comes from the key, the timestamp from the stored revision. Documents
// whose key does not match pattern are ignored.
func Build(docs []models.RevisionDocument, pattern *regexp.Regexp) ([]models.TimelineEntry, error) {
	entries := make([]models.TimelineEntry, 0, len(docs))
	for _, doc := range docs {
		m := pattern.FindStringSubmatch(doc.Key)
		if m == nil {
			continue
		}
		revID, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("revision id in %s: %w", doc.Key, err)
		}
		if len(doc.Dataset) == 0 {
			return nil, fmt.Errorf("revision document %s has an empty dataset", doc.Key)
		}
		entries = append(entries, models.TimelineEntry{
			Timestamp: doc.Dataset[0].Timestamp,
			RevID:     revID,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp < entries[j].Timestamp
		}
		return entries[i].RevID < entries[j].RevID
	})
	return entries, nil
}

// Rebuild recomputes the timeline of id from every stored revision and
// overwrites {lang}/{title}/timeline with it. Without any stored revision
// the existing timeline is left alone and ErrNoRevisions is returned.
func Rebuild(ctx context.Context, store Store, id models.PageIdentity) ([]models.TimelineEntry, error) {
	expr := utils.RevisionKeyPattern(id)
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}

	docs, err := store.FindRevisions(ctx, expr, 0)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRevisions, utils.PageKey(id))
	}

	entries, err := Build(docs, pattern)
	if err != nil {
		return nil, err
	}

	key := utils.TimelineKey(id)
	if err := store.Delete(ctx, key); err != nil {
		return nil, fmt.Errorf("clearing %s: %w", key, err)
	}
	if err := store.Write(ctx, key, entries); err != nil {
		return nil, fmt.Errorf("writing %s: %w", key, err)
	}
	return entries, nil
}
