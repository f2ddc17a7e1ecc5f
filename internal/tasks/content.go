package tasks

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"wiki_harvester/internal/archive"
	"wiki_harvester/internal/blocks"
	"wiki_harvester/internal/models"
	"wiki_harvester/internal/utils"
)

// datasetBlocks segments one stored revision and writes {key}/blocks.
// Revisions stored as wikitext are rendered through the API first.
func datasetBlocks(ctx context.Context, env *Env, key string, _ Progress) (interface{}, error) {
	var dataset []models.Revision
	if err := env.Store.Read(ctx, key, &dataset); err != nil {
		return nil, err
	}
	if len(dataset) == 0 {
		return nil, fmt.Errorf("%s has an empty dataset", key)
	}

	var doc *goquery.Document
	content := strings.TrimSpace(dataset[0].Content)
	if strings.HasPrefix(content, "<") {
		var err error
		if doc, err = goquery.NewDocumentFromReader(strings.NewReader(content)); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", key, err)
		}
	} else {
		id, revID, err := utils.SplitRevisionKey(key)
		if err != nil {
			return nil, err
		}
		if doc, err = env.Page(id).RevisionContent(ctx, revID, true, nil); err != nil {
			return nil, err
		}
	}

	seg := blocks.Segment(doc)
	if err := env.Store.Write(ctx, utils.BlocksKey(key), []models.Segmentation{seg}); err != nil {
		return nil, err
	}
	return seg, nil
}

func exportArchive(ctx context.Context, env *Env, prefix string, _ Progress) (interface{}, error) {
	if env.Archiver == nil {
		return nil, fmt.Errorf("no archiver configured")
	}
	exp := archive.NewExporter(env.Store, env.Archiver, env.Export.TempDir, env.Export.Limit, env.Logger)
	res, err := exp.Export(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// storePage snapshots the readable text of the latest revision under
// {lang}/{title}/content.
func storePage(ctx context.Context, env *Env, pageURL string, _ Progress) (interface{}, error) {
	id, err := utils.ParseIdentity(pageURL)
	if err != nil {
		return nil, err
	}

	acc := env.Page(id)
	info, err := acc.Fetch(ctx, nil)
	if err != nil {
		return nil, err
	}

	doc, err := acc.RevisionContent(ctx, 0, false, nil)
	if err != nil {
		return nil, err
	}
	html, err := doc.Html()
	if err != nil {
		return nil, err
	}

	article := extractContent(html, info.FullURL, info.Title)
	snapshot := models.PageSnapshot{
		Language:    id.Language,
		Title:       article.Title,
		PageID:      info.PageID,
		URL:         info.FullURL,
		RevID:       info.LastRevision,
		Text:        article.Text,
		Excerpt:     article.Excerpt,
		HTML:        article.HTML,
		ContentHash: utils.ComputeContentHash(article.Text),
		Scraped:     env.now().Unix(),
	}

	if err := env.Store.Write(ctx, utils.ContentKey(id), []models.PageSnapshot{snapshot}); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"key":   utils.ContentKey(id),
		"revid": snapshot.RevID,
		"chars": len(snapshot.Text),
		"hash":  snapshot.ContentHash,
	}, nil
}

// extractContent runs readability over the rendered page and falls back to
// the whole fragment when nothing readable is found.
func extractContent(rawHTML, pageURL, title string) models.ExtractedArticle {
	out := models.ExtractedArticle{Title: title, HTML: rawHTML}

	parsedURL, err := url.Parse(pageURL)
	if err == nil {
		article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
		if err == nil && strings.TrimSpace(article.Content) != "" {
			out.HTML = article.Content
			out.Excerpt = article.Excerpt
			if out.Title == "" {
				out.Title = article.Title
			}
		}
	}

	out.Text = blocks.Text(out.HTML)
	if out.Excerpt == "" {
		out.Excerpt = excerpt(out.Text, 200)
	}
	return out
}

func excerpt(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
