package utils

import (
	"crypto/md5"
	"fmt"
	"net/url"
	"strings"

	"wiki_harvester/internal/models"
)

func NormalizeURL(urlStr string) string {
	parsed, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return urlStr
	}

	parsed.Fragment = ""
	parsed.Host = strings.TrimPrefix(parsed.Host, "www.")

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}

	return parsed.String()
}

// ParseIdentity extracts the page identity from an article URL such as
// https://en.wikipedia.org/wiki/Crimea: the language is the first host
// label, the title the path segment after /wiki/.
func ParseIdentity(pageURL string) (models.PageIdentity, error) {
	parsed, err := url.Parse(NormalizeURL(pageURL))
	if err != nil {
		return models.PageIdentity{}, fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}

	host := parsed.Hostname()
	lang, _, found := strings.Cut(host, ".")
	if !found || lang == "" {
		return models.PageIdentity{}, fmt.Errorf("no language in host of %q", pageURL)
	}

	segments := strings.Split(strings.Trim(parsed.EscapedPath(), "/"), "/")
	var raw string
	switch {
	case len(segments) >= 2:
		raw = strings.Join(segments[1:], "/")
	case len(segments) == 1:
		raw = segments[0]
	}
	if raw == "" {
		return models.PageIdentity{}, fmt.Errorf("no title in path of %q", pageURL)
	}

	title, err := url.PathUnescape(raw)
	if err != nil {
		return models.PageIdentity{}, fmt.Errorf("bad title escape in %q: %w", pageURL, err)
	}

	return models.PageIdentity{
		Language: lang,
		Title:    strings.ReplaceAll(title, "_", " "),
	}, nil
}

// ArticleURL is the inverse of ParseIdentity.
func ArticleURL(id models.PageIdentity) string {
	title := strings.ReplaceAll(id.Title, " ", "_")
	return fmt.Sprintf("https://%s.wikipedia.org/wiki/%s", id.Language, url.PathEscape(title))
}

func ComputeContentHash(content string) string {
	hash := md5.Sum([]byte(content))
	return fmt.Sprintf("%x", hash)
}
