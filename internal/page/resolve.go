package page

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"wiki_harvester/internal/models"
)

type ResolutionKind int

const (
	NotFound ResolutionKind = iota
	Found
	Ambiguous
)

func (k ResolutionKind) String() string {
	switch k {
	case Found:
		return "found"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// Resolution is the outcome of resolving a free-form title. Page is set for
// Found, Candidates for Ambiguous.
type Resolution struct {
	Kind       ResolutionKind   `json:"-"`
	Problem    string           `json:"problem,omitempty"`
	Page       *models.PageInfo `json:"page,omitempty"`
	Candidates []string         `json:"candidates,omitempty"`
}

// ResolveTitle resolves title through redirects and reports disambiguation
// pages as Ambiguous along with their candidate articles. Missing pages are
// a NotFound value, not an error, so batch callers can skip them.
func ResolveTitle(ctx context.Context, client APIClient, lang, title string, opts ...Option) (Resolution, *Accessor, error) {
	a := New(client, models.PageIdentity{Language: lang, Title: strings.TrimSpace(title)}, opts...)

	extra := url.Values{}
	extra.Set("prop", "info|pageprops|links")
	extra.Set("ppprop", "disambiguation")
	extra.Set("plnamespace", "0")
	extra.Set("pllimit", "max")

	p, err := a.fetch(ctx, extra)
	if errors.Is(err, ErrPageNotFound) {
		return Resolution{Kind: NotFound, Problem: NotFound.String()}, nil, nil
	}
	if err != nil {
		return Resolution{}, nil, err
	}

	if _, ok := p.PageProps["disambiguation"]; ok {
		candidates := make([]string, 0, len(p.Links))
		for _, l := range p.Links {
			candidates = append(candidates, l.Title)
		}
		return Resolution{Kind: Ambiguous, Problem: Ambiguous.String(), Candidates: candidates}, nil, nil
	}

	return Resolution{Kind: Found, Page: a.Info()}, a, nil
}
