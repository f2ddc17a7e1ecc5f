// Package revsync brings a page's stored revisions up to date with the live
// wiki by fetching only what was published after the last timeline entry.
package revsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"wiki_harvester/internal/metrics"
	"wiki_harvester/internal/models"
	"wiki_harvester/internal/tracing"
	"wiki_harvester/internal/utils"
)

var (
	// ErrEmptyTimeline means there is no stored timeline entry to sync from.
	ErrEmptyTimeline = errors.New("stored timeline is empty")
	// ErrInconsistentHistory means the live latest revision moved but the
	// range listing came back empty, typically after an upstream deletion.
	ErrInconsistentHistory = errors.New("inconsistent revision history")
)

// RevisionSource is the live view of one page.
type RevisionSource interface {
	Identity() models.PageIdentity
	LatestRevision(ctx context.Context) (models.Revision, error)
	RevisionsBetween(ctx context.Context, startID, endID int64) ([]models.Revision, error)
}

type Writer interface {
	Write(ctx context.Context, key string, dataset interface{}) error
}

// Result describes one sync run. Stored is empty when nothing changed.
type Result struct {
	Since  int64   `json:"since"`
	Latest int64   `json:"latest"`
	Stored []int64 `json:"stored"`
}

type Syncer struct {
	store  Writer
	logger *slog.Logger
}

func New(store Writer, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{store: store, logger: logger}
}

// Sync persists every revision newer than the last entry of timeline under
// its own revision key. The timeline itself is left untouched.
func (s *Syncer) Sync(ctx context.Context, src RevisionSource, timeline []models.TimelineEntry) (res Result, err error) {
	id := src.Identity()
	ctx, span := tracing.StartSpan(ctx, "revsync.Sync",
		attribute.String("page.language", id.Language),
		attribute.String("page.title", id.Title))
	defer func() { tracing.End(span, err) }()

	if len(timeline) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrEmptyTimeline, utils.PageKey(id))
	}
	known := timeline[len(timeline)-1].RevID

	latest, err := src.LatestRevision(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("latest revision of %s: %w", utils.PageKey(id), err)
	}

	res = Result{Since: known, Latest: latest.RevID, Stored: []int64{}}
	if latest.RevID == known {
		s.logger.Debug("timeline up to date", "page", utils.PageKey(id), "revid", known)
		return res, nil
	}

	fetched, err := src.RevisionsBetween(ctx, known, latest.RevID)
	if err != nil {
		return Result{}, fmt.Errorf("revisions %d..%d of %s: %w", known, latest.RevID, utils.PageKey(id), err)
	}

	fresh := newerThan(fetched, known)
	if len(fresh) == 0 {
		return Result{}, fmt.Errorf("%w: %s latest is %d, known %d, range listing empty",
			ErrInconsistentHistory, utils.PageKey(id), latest.RevID, known)
	}

	for _, rev := range fresh {
		if err := s.store.Write(ctx, utils.RevisionKey(id, rev.RevID), []models.Revision{rev}); err != nil {
			metrics.RecordRevisionsStored("sync", len(res.Stored))
			return res, fmt.Errorf("storing revision %d: %w", rev.RevID, err)
		}
		res.Stored = append(res.Stored, rev.RevID)
	}
	metrics.RecordRevisionsStored("sync", len(res.Stored))

	s.logger.Info("synced revisions", "page", utils.PageKey(id), "since", known, "latest", latest.RevID, "stored", len(res.Stored))
	return res, nil
}

// newerThan drops the boundary and anything older, then orders by
// timestamp and revision id.
func newerThan(revs []models.Revision, known int64) []models.Revision {
	out := make([]models.Revision, 0, len(revs))
	for _, r := range revs {
		if r.RevID > known {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].RevID < out[j].RevID
	})
	return out
}
