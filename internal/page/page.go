// Package page wraps a single wiki page identity and exposes the MediaWiki
// queries the harvester needs. Every method is one or more independent API
// round trips; nothing is shared between accessors.
package page

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"wiki_harvester/internal/models"
)

var ErrPageNotFound = errors.New("page not found")

const (
	summaryProps = "user|userid|timestamp|size|ids|sha1"
	contentProps = "user|userid|timestamp|size|ids|sha1|comment|content"
)

// APIClient is the subset of mediawiki.Client the accessor depends on.
type APIClient interface {
	Get(ctx context.Context, lang string, query url.Values, out interface{}) error
	GetURL(ctx context.Context, rawURL string, out interface{}) error
}

type Accessor struct {
	client   APIClient
	identity models.PageIdentity
	info     *models.PageInfo
	content  *goquery.Document

	viewsEndpoint string
	logger        *slog.Logger
}

// Option customises an Accessor.
type Option func(*Accessor)

// WithPageViewsEndpoint sets the base URL of the page view statistics service.
func WithPageViewsEndpoint(endpoint string) Option {
	return func(a *Accessor) {
		a.viewsEndpoint = strings.TrimRight(endpoint, "/")
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Accessor) {
		a.logger = logger
	}
}

func New(client APIClient, identity models.PageIdentity, opts ...Option) *Accessor {
	a := &Accessor{
		client:        client,
		identity:      identity,
		viewsEndpoint: "http://stats.grok.se/json",
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Accessor) Identity() models.PageIdentity {
	return a.identity
}

// Info returns the metadata captured by the last Fetch, or nil.
func (a *Accessor) Info() *models.PageInfo {
	return a.info
}

type apiLink struct {
	NS    int    `json:"ns"`
	Title string `json:"title"`
}

type apiPage struct {
	PageID    int64             `json:"pageid"`
	NS        int               `json:"ns"`
	Title     string            `json:"title"`
	Missing   *string           `json:"missing"`
	Invalid   *string           `json:"invalid"`
	FullURL   string            `json:"fullurl"`
	LastRevID int64             `json:"lastrevid"`
	Length    int64             `json:"length"`
	Touched   string            `json:"touched"`
	Revisions []models.Revision `json:"revisions"`
	LangLinks []models.LangLink `json:"langlinks"`
	PageProps map[string]string `json:"pageprops"`
	Links     []apiLink         `json:"links"`
}

type queryResponse struct {
	Continue map[string]string `json:"continue"`
	Query    struct {
		Pages map[string]apiPage `json:"pages"`
	} `json:"query"`
}

// singlePage extracts the one page object a single-title query returns,
// keyed by its numeric page id.
func (r *queryResponse) singlePage() (apiPage, error) {
	if len(r.Query.Pages) == 0 {
		return apiPage{}, ErrPageNotFound
	}
	if len(r.Query.Pages) > 1 {
		return apiPage{}, fmt.Errorf("expected one page, got %d", len(r.Query.Pages))
	}
	for id, p := range r.Query.Pages {
		if p.Missing != nil || p.Invalid != nil || strings.HasPrefix(id, "-") {
			return apiPage{}, fmt.Errorf("%w: %s", ErrPageNotFound, p.Title)
		}
		return p, nil
	}
	return apiPage{}, ErrPageNotFound
}

func (a *Accessor) baseParams() url.Values {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("titles", a.identity.Title)
	params.Set("redirects", "")
	return params
}

func merge(dst, src url.Values) {
	for k, v := range src {
		dst[k] = append([]string(nil), v...)
	}
}

func (a *Accessor) query(ctx context.Context, params url.Values) (apiPage, map[string]string, error) {
	var resp queryResponse
	if err := a.client.Get(ctx, a.identity.Language, params, &resp); err != nil {
		return apiPage{}, nil, err
	}
	p, err := resp.singlePage()
	if err != nil {
		return apiPage{}, nil, err
	}
	return p, resp.Continue, nil
}

// Fetch issues one action=query call for the page merged with extra and
// records the page metadata. The accessor's title follows redirects and
// normalisation applied by the API.
func (a *Accessor) Fetch(ctx context.Context, extra url.Values) (*models.PageInfo, error) {
	if _, err := a.fetch(ctx, extra); err != nil {
		return nil, err
	}
	return a.info, nil
}

func (a *Accessor) fetch(ctx context.Context, extra url.Values) (apiPage, error) {
	params := a.baseParams()
	params.Set("prop", "info")
	params.Set("inprop", "url")
	merge(params, extra)

	p, _, err := a.query(ctx, params)
	if err != nil {
		return apiPage{}, err
	}

	a.identity.Title = p.Title
	a.info = &models.PageInfo{
		PageID:       p.PageID,
		Title:        p.Title,
		Language:     a.identity.Language,
		FullURL:      p.FullURL,
		LastRevision: p.LastRevID,
		Length:       p.Length,
		Touched:      p.Touched,
	}
	return p, nil
}

// RevisionPages lazily walks the revision listing, following continuation
// tokens until the API stops returning one. Ranging over the sequence again
// restarts from the first page.
func (a *Accessor) RevisionPages(ctx context.Context, extra url.Values) iter.Seq2[[]models.Revision, error] {
	return func(yield func([]models.Revision, error) bool) {
		params := a.baseParams()
		params.Set("prop", "revisions")
		params.Set("rvprop", summaryProps)
		params.Set("rvlimit", "max")
		params.Set("continue", "")
		merge(params, extra)

		for {
			p, cont, err := a.query(ctx, params)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(p.Revisions, nil) {
				return
			}
			if len(cont) == 0 {
				return
			}
			for k, v := range cont {
				params.Set(k, v)
			}
		}
	}
}

func (a *Accessor) collect(ctx context.Context, extra url.Values) ([]models.Revision, error) {
	var all []models.Revision
	for revs, err := range a.RevisionPages(ctx, extra) {
		if err != nil {
			return nil, err
		}
		all = append(all, revs...)
	}
	return all, nil
}

// AllRevisions returns every revision summary (no content) in the order the
// API lists them, newest first by default.
func (a *Accessor) AllRevisions(ctx context.Context) ([]models.Revision, error) {
	return a.collect(ctx, nil)
}

// Revisions fetches revisions with content, applying extra on top of the
// defaults (rvstartid, rvendid, rvdir, rvlimit...).
func (a *Accessor) Revisions(ctx context.Context, extra url.Values) ([]models.Revision, error) {
	params := url.Values{}
	params.Set("rvprop", contentProps)
	merge(params, extra)
	return a.collect(ctx, params)
}

// RevisionByID fetches one revision with content in a single request.
func (a *Accessor) RevisionByID(ctx context.Context, revID int64) (models.Revision, error) {
	params := a.baseParams()
	params.Set("prop", "revisions")
	params.Set("rvprop", contentProps)
	params.Set("rvstartid", strconv.FormatInt(revID, 10))
	params.Set("rvlimit", "1")

	p, _, err := a.query(ctx, params)
	if err != nil {
		return models.Revision{}, err
	}
	if len(p.Revisions) == 0 {
		return models.Revision{}, fmt.Errorf("revision %d of %q not returned", revID, a.identity.Title)
	}
	return p.Revisions[0], nil
}

// LatestRevision returns the most recent revision without range filters.
func (a *Accessor) LatestRevision(ctx context.Context) (models.Revision, error) {
	params := a.baseParams()
	params.Set("prop", "revisions")
	params.Set("rvprop", summaryProps)
	params.Set("rvlimit", "1")

	p, _, err := a.query(ctx, params)
	if err != nil {
		return models.Revision{}, err
	}
	if len(p.Revisions) == 0 {
		return models.Revision{}, fmt.Errorf("%q has no revisions", a.identity.Title)
	}
	return p.Revisions[0], nil
}

// RevisionsBetween lists revisions from startID to endID, oldest first
// as requested from the API, with content. Both bounds are inclusive on the
// API side.
func (a *Accessor) RevisionsBetween(ctx context.Context, startID, endID int64) ([]models.Revision, error) {
	params := url.Values{}
	params.Set("rvstartid", strconv.FormatInt(startID, 10))
	params.Set("rvendid", strconv.FormatInt(endID, 10))
	params.Set("rvdir", "newer")
	return a.Revisions(ctx, params)
}

// RevisionContent returns the rendered HTML of revID (latest when 0) as a
// parsed document. The latest content is cached unless force is set.
func (a *Accessor) RevisionContent(ctx context.Context, revID int64, force bool, extra url.Values) (*goquery.Document, error) {
	if !force && revID == 0 && a.content != nil {
		return a.content, nil
	}

	params := a.baseParams()
	params.Set("prop", "info|revisions")
	params.Set("inprop", "url")
	params.Set("rvparse", "true")
	params.Set("rvprop", "content|ids|timestamp")
	if revID != 0 {
		params.Set("rvstartid", strconv.FormatInt(revID, 10))
		params.Set("rvlimit", "1")
	}
	merge(params, extra)

	p, _, err := a.query(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(p.Revisions) == 0 {
		return nil, fmt.Errorf("no content returned for %q", a.identity.Title)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.Revisions[0].Content))
	if err != nil {
		return nil, fmt.Errorf("parsing content of %q: %w", a.identity.Title, err)
	}

	if !force && revID == 0 {
		a.content = doc
	}
	return doc, nil
}

// LinkTitles returns the distinct title attributes of links in the latest
// rendered content.
func (a *Accessor) LinkTitles(ctx context.Context) ([]string, error) {
	doc, err := a.RevisionContent(ctx, 0, false, nil)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var titles []string
	doc.Find("a[title]").Each(func(_ int, s *goquery.Selection) {
		title, _ := s.Attr("title")
		if title == "" || seen[title] {
			return
		}
		seen[title] = true
		titles = append(titles, title)
	})
	sort.Strings(titles)
	return titles, nil
}

// LangLinks lists translations of the page.
func (a *Accessor) LangLinks(ctx context.Context) ([]models.LangLink, error) {
	params := a.baseParams()
	params.Set("prop", "langlinks")
	params.Set("lllimit", "500")

	p, _, err := a.query(ctx, params)
	if err != nil {
		return nil, err
	}
	if p.LangLinks == nil {
		return []models.LangLink{}, nil
	}
	return p.LangLinks, nil
}
