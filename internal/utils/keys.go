package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"wiki_harvester/internal/models"
)

const (
	timelineSuffix = "/timeline"
	blocksSuffix   = "/blocks"
	revisionInfix  = "/revision/"
)

func PageKey(id models.PageIdentity) string {
	return id.Language + "/" + id.Title
}

func TimelineKey(id models.PageIdentity) string {
	return PageKey(id) + timelineSuffix
}

func RevisionKey(id models.PageIdentity, revID int64) string {
	return PageKey(id) + revisionInfix + strconv.FormatInt(revID, 10)
}

func BlocksKey(key string) string {
	return key + blocksSuffix
}

func ContentKey(id models.PageIdentity) string {
	return PageKey(id) + "/content"
}

func DiffsKey(id models.PageIdentity) string {
	return PageKey(id) + "/diffs"
}

// RevisionKeyPattern matches every revision key of a page and captures the id.
func RevisionKeyPattern(id models.PageIdentity) string {
	return fmt.Sprintf("^%s/%s/revision/([0-9]+)$",
		regexp.QuoteMeta(id.Language), regexp.QuoteMeta(id.Title))
}

// IdentityFromKey parses "{lang}/{title}" optionally followed by /timeline.
func IdentityFromKey(key string) (models.PageIdentity, error) {
	key = strings.TrimSuffix(key, timelineSuffix)
	lang, title, found := strings.Cut(key, "/")
	if !found || lang == "" || title == "" {
		return models.PageIdentity{}, fmt.Errorf("malformed page key %q", key)
	}
	return models.PageIdentity{Language: lang, Title: title}, nil
}

// RevisionIDFromKey returns the trailing revision id of a revision key.
func RevisionIDFromKey(key string) (int64, error) {
	i := strings.LastIndex(key, revisionInfix)
	if i < 0 {
		return 0, fmt.Errorf("not a revision key: %q", key)
	}
	return strconv.ParseInt(key[i+len(revisionInfix):], 10, 64)
}

// SplitRevisionKey parses "{lang}/{title}/revision/{revid}".
func SplitRevisionKey(key string) (models.PageIdentity, int64, error) {
	i := strings.LastIndex(key, revisionInfix)
	if i < 0 {
		return models.PageIdentity{}, 0, fmt.Errorf("not a revision key: %q", key)
	}
	id, err := IdentityFromKey(key[:i])
	if err != nil {
		return models.PageIdentity{}, 0, err
	}
	revID, err := strconv.ParseInt(key[i+len(revisionInfix):], 10, 64)
	if err != nil {
		return models.PageIdentity{}, 0, fmt.Errorf("revision id in %q: %w", key, err)
	}
	return id, revID, nil
}
