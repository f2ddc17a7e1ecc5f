package timeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wiki_harvester/internal/db"
	"wiki_harvester/internal/models"
	"wiki_harvester/internal/utils"
)

var crimea = models.PageIdentity{Language: "en", Title: "Crimea"}

func TestBuild_SortsAndIsIdempotent(t *testing.T) {
	pattern := regexp.MustCompile(utils.RevisionKeyPattern(crimea))
	docs := []models.RevisionDocument{
		{Key: "en/Crimea/revision/103", Dataset: []models.Revision{{RevID: 103, Timestamp: "2020-01-03T00:00:00Z"}}},
		{Key: "en/Crimea/revision/100", Dataset: []models.Revision{{RevID: 100, Timestamp: "2020-01-01T00:00:00Z"}}},
		{Key: "en/Crimea/revision/102", Dataset: []models.Revision{{RevID: 102, Timestamp: "2020-01-02T00:00:00Z"}}},
		{Key: "en/Crimea/revision/101", Dataset: []models.Revision{{RevID: 101, Timestamp: "2020-01-02T00:00:00Z"}}},
		{Key: "en/Crimea/revision/101/blocks", Dataset: []models.Revision{{}}},
	}

	first, err := Build(docs, pattern)
	require.NoError(t, err)
	assert.Equal(t, []models.TimelineEntry{
		{Timestamp: "2020-01-01T00:00:00Z", RevID: 100},
		{Timestamp: "2020-01-02T00:00:00Z", RevID: 101},
		{Timestamp: "2020-01-02T00:00:00Z", RevID: 102},
		{Timestamp: "2020-01-03T00:00:00Z", RevID: 103},
	}, first)

	reversed := make([]models.RevisionDocument, len(docs))
	for i := range docs {
		reversed[len(docs)-1-i] = docs[i]
	}
	second, err := Build(reversed, pattern)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuild_EmptyDataset(t *testing.T) {
	pattern := regexp.MustCompile(utils.RevisionKeyPattern(crimea))
	_, err := Build([]models.RevisionDocument{{Key: "en/Crimea/revision/1"}}, pattern)
	assert.Error(t, err)
}

func TestRebuild(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()

	for i, ts := range []string{"2020-01-03T00:00:00Z", "2020-01-01T00:00:00Z", "2020-01-02T00:00:00Z"} {
		id := int64(200 + i)
		key := fmt.Sprintf("en/Crimea/revision/%d", id)
		require.NoError(t, store.Write(ctx, key, []models.Revision{{RevID: id, Timestamp: ts}}))
	}
	require.NoError(t, store.Write(ctx, "en/Crimean War/revision/1", []models.Revision{{RevID: 1, Timestamp: "1853"}}))
	require.NoError(t, store.Write(ctx, "en/Crimea/timeline", []models.TimelineEntry{{Timestamp: "stale", RevID: 1}}))

	entries, err := Rebuild(ctx, store, crimea)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(201), entries[0].RevID)
	assert.Equal(t, int64(200), entries[2].RevID)

	var stored []models.TimelineEntry
	require.NoError(t, store.Read(ctx, "en/Crimea/timeline", &stored))
	assert.Equal(t, entries, stored)

	again, err := Rebuild(ctx, store, crimea)
	require.NoError(t, err)
	assert.Equal(t, entries, again)
}

func TestRebuild_NoRevisions(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	previous := []models.TimelineEntry{{Timestamp: "2020-01-01T00:00:00Z", RevID: 1}}
	require.NoError(t, store.Write(ctx, "en/Crimea/timeline", previous))
	require.NoError(t, store.Write(ctx, "en/Krym/revision/1", []models.Revision{{RevID: 1, Timestamp: "2020-01-01T00:00:00Z"}}))

	entries, err := Rebuild(ctx, store, crimea)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoRevisions))
	assert.Nil(t, entries)

	var stored []models.TimelineEntry
	require.NoError(t, store.Read(ctx, "en/Crimea/timeline", &stored))
	assert.Equal(t, previous, stored)

	_, err = Rebuild(ctx, store, models.PageIdentity{Language: "en", Title: "Black Sea"})
	assert.True(t, errors.Is(err, ErrNoRevisions))
	assert.Equal(t, []string{"en/Crimea/timeline", "en/Krym/revision/1"}, store.Keys())
}
