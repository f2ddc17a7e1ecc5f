// Package prefetch downloads page metadata and full revision listings for
// an explicit list of titles into JSON files, using a bounded pool of
// parallel requests.
package prefetch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly"
	"github.com/temoto/robotstxt"

	"wiki_harvester/internal/config"
	"wiki_harvester/internal/metrics"
	"wiki_harvester/internal/models"
)

const (
	kindPage      = "page"
	kindRevisions = "revisions"

	summaryProps = "user|userid|timestamp|size|ids|sha1"
)

type Stats struct {
	Pages     int64 `json:"pages"`
	Revisions int64 `json:"revisions"`
	Errors    int64 `json:"errors"`
	Skipped   int64 `json:"skipped"`
}

type apiResponse struct {
	Continue map[string]string `json:"continue"`
	Error    *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
	Query struct {
		Pages map[string]json.RawMessage `json:"pages"`
	} `json:"query"`
}

type output struct {
	dir  string
	name string
	data interface{}
}

type Prefetcher struct {
	collector *colly.Collector
	endpoint  string
	userAgent string
	outputDir string
	respect   bool
	logger    *slog.Logger

	robots    *robotstxt.Group
	mu        sync.Mutex
	revisions map[string][]models.Revision
	saveChan  chan output
	wgSave    sync.WaitGroup
	stats     Stats
}

func New(cfg config.PrefetchConfig, api config.APIConfig, logger *slog.Logger) (*Prefetcher, error) {
	c := colly.NewCollector(
		colly.UserAgent(api.UserAgent),
		colly.Async(true),
	)
	c.AllowURLRevisit = true
	if api.TimeoutSec > 0 {
		c.SetRequestTimeout(time.Duration(api.TimeoutSec) * time.Second)
	}

	err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Workers,
		Delay:       time.Duration(cfg.DelayMS) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring collector: %w", err)
	}

	p := &Prefetcher{
		collector: c,
		endpoint:  api.Endpoint,
		userAgent: api.UserAgent,
		outputDir: cfg.OutputDir,
		respect:   cfg.RespectRobots,
		logger:    logger,
		revisions: make(map[string][]models.Revision),
	}
	p.setupCollector()
	return p, nil
}

// FileName maps a title to its output file name.
func FileName(title string) string {
	return strings.ReplaceAll(title, "/", "_") + ".json"
}

// Run queues both requests for every title, then waits for all of them,
// including continuation requests, to finish. Results land in
// {output}/pages and {output}/revisions.
func (p *Prefetcher) Run(lang string, titles []string) (Stats, error) {
	for _, sub := range []string{kindPage + "s", kindRevisions} {
		if err := os.MkdirAll(filepath.Join(p.outputDir, sub), 0o755); err != nil {
			return Stats{}, err
		}
	}

	apiURL := strings.ReplaceAll(p.endpoint, "{lang}", lang)
	if p.respect {
		p.initRobotsTxt(apiURL)
	}

	p.startWriter()

	seen := make(map[string]bool)
	for _, title := range titles {
		title = strings.TrimSpace(title)
		if title == "" || seen[title] {
			continue
		}
		seen[title] = true

		if err := p.request(apiURL, kindPage, title, pageQuery(title)); err != nil {
			p.logger.Warn("queueing page request", "title", title, "error", err)
		}
		if err := p.request(apiURL, kindRevisions, title, revisionsQuery(title)); err != nil {
			p.logger.Warn("queueing revisions request", "title", title, "error", err)
		}
	}

	p.collector.Wait()
	close(p.saveChan)
	p.wgSave.Wait()

	stats := Stats{
		Pages:     atomic.LoadInt64(&p.stats.Pages),
		Revisions: atomic.LoadInt64(&p.stats.Revisions),
		Errors:    atomic.LoadInt64(&p.stats.Errors),
		Skipped:   atomic.LoadInt64(&p.stats.Skipped),
	}
	p.logger.Info("prefetch finished", "pages", stats.Pages, "revisions", stats.Revisions,
		"errors", stats.Errors, "skipped", stats.Skipped)
	return stats, nil
}

func pageQuery(title string) url.Values {
	q := url.Values{}
	q.Set("action", "query")
	q.Set("format", "json")
	q.Set("prop", "info")
	q.Set("inprop", "url")
	q.Set("redirects", "")
	q.Set("titles", title)
	return q
}

func revisionsQuery(title string) url.Values {
	q := url.Values{}
	q.Set("action", "query")
	q.Set("format", "json")
	q.Set("prop", "revisions")
	q.Set("rvprop", summaryProps)
	q.Set("rvlimit", "max")
	q.Set("continue", "")
	q.Set("redirects", "")
	q.Set("titles", title)
	return q
}

func (p *Prefetcher) request(apiURL, kind, title string, q url.Values) error {
	ctx := colly.NewContext()
	ctx.Put("kind", kind)
	ctx.Put("title", title)
	return p.collector.Request("GET", apiURL+"?"+q.Encode(), nil, ctx, nil)
}

func (p *Prefetcher) initRobotsTxt(apiURL string) {
	u, err := url.Parse(apiURL)
	if err != nil {
		p.logger.Warn("can't parse url for robots.txt", "error", err)
		return
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(robotsURL)
	if err != nil {
		p.logger.Warn("loading robots.txt, ignoring", "url", robotsURL, "error", err)
		return
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		p.logger.Warn("parsing robots.txt", "error", err)
		return
	}

	p.robots = data.FindGroup(p.userAgent)
	p.logger.Debug("robots.txt loaded", "url", robotsURL)
}

func (p *Prefetcher) allowed(u *url.URL) bool {
	if p.robots == nil {
		return true
	}
	return p.robots.Test(u.Path)
}

func (p *Prefetcher) setupCollector() {
	p.collector.OnRequest(func(r *colly.Request) {
		if !p.allowed(r.URL) {
			atomic.AddInt64(&p.stats.Skipped, 1)
			p.logger.Debug("skipped by robots.txt", "url", r.URL.String())
			r.Abort()
		}
	})

	p.collector.OnResponse(func(r *colly.Response) {
		kind := r.Ctx.Get("kind")
		title := r.Ctx.Get("title")

		if err := p.handle(r, kind, title); err != nil {
			atomic.AddInt64(&p.stats.Errors, 1)
			metrics.RecordPrefetch(kind, false)
			p.logger.Error("prefetch response", "kind", kind, "title", title, "error", err)
			return
		}
		metrics.RecordPrefetch(kind, true)
	})

	p.collector.OnError(func(r *colly.Response, err error) {
		kind := r.Ctx.Get("kind")
		atomic.AddInt64(&p.stats.Errors, 1)
		metrics.RecordPrefetch(kind, false)
		p.logger.Error("prefetch request", "kind", kind, "title", r.Ctx.Get("title"),
			"status", r.StatusCode, "error", err)
	})
}

func (p *Prefetcher) handle(r *colly.Response, kind, title string) error {
	var resp apiResponse
	if err := json.Unmarshal(r.Body, &resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("api error %s: %s", resp.Error.Code, resp.Error.Info)
	}

	var raw json.RawMessage
	for _, v := range resp.Query.Pages {
		raw = v
		break
	}
	if raw == nil {
		return fmt.Errorf("no page in response")
	}

	switch kind {
	case kindPage:
		p.saveChan <- output{dir: kindPage + "s", name: FileName(title), data: raw}
		atomic.AddInt64(&p.stats.Pages, 1)

	case kindRevisions:
		var page struct {
			Revisions []models.Revision `json:"revisions"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return fmt.Errorf("decoding revisions: %w", err)
		}

		p.mu.Lock()
		p.revisions[title] = append(p.revisions[title], page.Revisions...)
		all := p.revisions[title]
		p.mu.Unlock()

		if len(resp.Continue) > 0 {
			next := *r.Request.URL
			q := next.Query()
			for k, v := range resp.Continue {
				q.Set(k, v)
			}
			next.RawQuery = q.Encode()
			return p.collector.Request("GET", next.String(), nil, r.Ctx, nil)
		}

		p.saveChan <- output{dir: kindRevisions, name: FileName(title), data: all}
		atomic.AddInt64(&p.stats.Revisions, 1)

	default:
		return fmt.Errorf("unknown request kind %q", kind)
	}
	return nil
}

// startWriter serialises file writes on one goroutine.
func (p *Prefetcher) startWriter() {
	p.saveChan = make(chan output, 64)
	p.wgSave.Add(1)
	go func() {
		defer p.wgSave.Done()
		for out := range p.saveChan {
			if err := p.write(out); err != nil {
				atomic.AddInt64(&p.stats.Errors, 1)
				p.logger.Error("writing prefetch output", "file", out.name, "error", err)
			}
		}
	}()
}

func (p *Prefetcher) write(out output) error {
	data, err := json.MarshalIndent(out.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(p.outputDir, out.dir, out.name), data, 0o644)
}
