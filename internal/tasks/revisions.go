package tasks

import (
	"context"
	"errors"
	"fmt"

	"wiki_harvester/internal/db"
	"wiki_harvester/internal/metrics"
	"wiki_harvester/internal/models"
	"wiki_harvester/internal/revdiff"
	"wiki_harvester/internal/revsync"
	"wiki_harvester/internal/timeline"
	"wiki_harvester/internal/utils"
)

// storeRevisions fetches every revision of a page with its content and
// writes one document per revision.
func storeRevisions(ctx context.Context, env *Env, pageURL string, progress Progress) (interface{}, error) {
	id, err := utils.ParseIdentity(pageURL)
	if err != nil {
		return nil, err
	}

	// Keys follow the requested title, not the redirect target.
	acc := env.Page(id)
	if _, err := acc.Fetch(ctx, nil); err != nil {
		return nil, err
	}
	if resolved := acc.Identity(); resolved != id {
		env.Logger.Debug("title redirected", "requested", id.Title, "resolved", resolved.Title)
	}

	summaries, err := acc.AllRevisions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing revisions of %s: %w", utils.PageKey(id), err)
	}

	total := len(summaries)
	env.Logger.Info("storing revisions", "page", utils.PageKey(id), "total", total)

	stored := 0
	defer func() { metrics.RecordRevisionsStored(StoreRevisions, stored) }()

	for i, summary := range summaries {
		rev, err := acc.RevisionByID(ctx, summary.RevID)
		if err != nil {
			return nil, err
		}
		if err := env.Store.Write(ctx, utils.RevisionKey(id, rev.RevID), []models.Revision{rev}); err != nil {
			return nil, err
		}
		stored++
		if err := progress(i+1, total); err != nil {
			env.Logger.Warn("progress update failed", "error", err)
		}
	}

	return map[string]interface{}{"page": utils.PageKey(id), "stored": stored}, nil
}

// storeLastRevisions runs an incremental sync against the stored timeline.
// arg is a timeline key or page key.
func storeLastRevisions(ctx context.Context, env *Env, key string, _ Progress) (interface{}, error) {
	id, err := utils.IdentityFromKey(key)
	if err != nil {
		return nil, err
	}

	var entries []models.TimelineEntry
	err = env.Store.Read(ctx, utils.TimelineKey(id), &entries)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", revsync.ErrEmptyTimeline, utils.TimelineKey(id))
	}
	if err != nil {
		return nil, err
	}

	res, err := revsync.New(env.Store, env.Logger).Sync(ctx, env.Page(id), entries)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func datasetTimeline(ctx context.Context, env *Env, pageURL string, _ Progress) (interface{}, error) {
	id, err := utils.ParseIdentity(pageURL)
	if err != nil {
		return nil, err
	}

	entries, err := timeline.Rebuild(ctx, env.Store, id)
	if err != nil {
		return nil, err
	}

	env.Logger.Info("timeline rebuilt", "page", utils.PageKey(id), "entries", len(entries))
	return map[string]interface{}{"key": utils.TimelineKey(id), "entries": len(entries)}, nil
}

// datasetDiffs walks the stored timeline of a page and records how many
// words each revision inserted and deleted relative to the one before it.
func datasetDiffs(ctx context.Context, env *Env, pageURL string, progress Progress) (interface{}, error) {
	id, err := utils.ParseIdentity(pageURL)
	if err != nil {
		return nil, err
	}

	var entries []models.TimelineEntry
	if err := env.Store.Read(ctx, utils.TimelineKey(id), &entries); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", revsync.ErrEmptyTimeline, utils.TimelineKey(id))
		}
		return nil, err
	}

	diffs := make([]models.RevisionDiff, 0, len(entries))
	var previous models.Revision
	for i, entry := range entries {
		var dataset []models.Revision
		if err := env.Store.Read(ctx, utils.RevisionKey(id, entry.RevID), &dataset); err != nil {
			return nil, fmt.Errorf("reading revision %d: %w", entry.RevID, err)
		}
		if len(dataset) == 0 {
			return nil, fmt.Errorf("revision %d has an empty dataset", entry.RevID)
		}
		rev := dataset[0]

		stats := revdiff.Words(previous.Content, rev.Content)
		diffs = append(diffs, models.RevisionDiff{
			RevID:     rev.RevID,
			Previous:  previous.RevID,
			Timestamp: entry.Timestamp,
			Inserted:  stats.Inserted,
			Deleted:   stats.Deleted,
			Unchanged: stats.Unchanged,
		})
		previous = rev

		if err := progress(i+1, len(entries)); err != nil {
			env.Logger.Warn("progress update failed", "error", err)
		}
	}

	if err := env.Store.Write(ctx, utils.DiffsKey(id), diffs); err != nil {
		return nil, err
	}
	return map[string]interface{}{"key": utils.DiffsKey(id), "revisions": len(diffs)}, nil
}
