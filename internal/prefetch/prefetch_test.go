package prefetch

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wiki_harvester/internal/config"
	"wiki_harvester/internal/models"
)

type fakeAPI struct {
	robots   string
	apiCalls int32
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/robots.txt" {
		fmt.Fprint(w, f.robots)
		return
	}
	atomic.AddInt32(&f.apiCalls, 1)

	q := r.URL.Query()
	title := q.Get("titles")
	if title == "Broken" {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	switch q.Get("prop") {
	case "info":
		fmt.Fprintf(w, `{"query":{"pages":{"1":{"pageid":1,"title":%q,"fullurl":"https://en.wikipedia.org/wiki/x"}}}}`, title)
	case "revisions":
		if q.Get("rvcontinue") == "" {
			fmt.Fprintf(w, `{"continue":{"rvcontinue":"next","continue":"||"},"query":{"pages":{"1":{"title":%q,"revisions":[{"revid":3},{"revid":2}]}}}}`, title)
			return
		}
		fmt.Fprintf(w, `{"query":{"pages":{"1":{"title":%q,"revisions":[{"revid":1,"minor":"","tags":["mw-reverted"]}]}}}}`, title)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newTestPrefetcher(t *testing.T, api *fakeAPI, respect bool) (*Prefetcher, string) {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	out := t.TempDir()
	cfg := config.PrefetchConfig{Workers: 4, OutputDir: out, RespectRobots: respect}
	apiCfg := config.APIConfig{Endpoint: server.URL + "/w/api.php", UserAgent: "wiki_harvester-test", TimeoutSec: 5}

	p, err := New(cfg, apiCfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return p, out
}

func TestPrefetcher_Run(t *testing.T) {
	api := &fakeAPI{}
	p, out := newTestPrefetcher(t, api, false)

	stats, err := p.Run("en", []string{"Crimea", "AC/DC", "Crimea", " "})
	require.NoError(t, err)
	assert.Equal(t, Stats{Pages: 2, Revisions: 2}, stats)
	assert.Equal(t, int32(6), atomic.LoadInt32(&api.apiCalls))

	data, err := os.ReadFile(filepath.Join(out, "revisions", "AC_DC.json"))
	require.NoError(t, err)
	var revs []models.Revision
	require.NoError(t, json.Unmarshal(data, &revs))
	require.Len(t, revs, 3)
	assert.Equal(t, int64(1), revs[2].RevID)

	var raw []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "", raw[2]["minor"])
	assert.Equal(t, []interface{}{"mw-reverted"}, raw[2]["tags"])

	data, err = os.ReadFile(filepath.Join(out, "pages", "Crimea.json"))
	require.NoError(t, err)
	var page struct {
		PageID int64  `json:"pageid"`
		Title  string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(data, &page))
	assert.Equal(t, "Crimea", page.Title)
}

func TestPrefetcher_CountsErrors(t *testing.T) {
	p, out := newTestPrefetcher(t, &fakeAPI{}, false)

	stats, err := p.Run("en", []string{"Broken", "Crimea"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Errors)
	assert.Equal(t, int64(1), stats.Pages)

	_, err = os.Stat(filepath.Join(out, "pages", "Broken.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestPrefetcher_RespectsRobots(t *testing.T) {
	api := &fakeAPI{robots: "User-agent: *\nDisallow: /w/\n"}
	p, _ := newTestPrefetcher(t, api, true)

	stats, err := p.Run("en", []string{"Crimea"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Skipped)
	assert.Zero(t, stats.Pages)
	assert.Zero(t, atomic.LoadInt32(&api.apiCalls))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "AC_DC.json", FileName("AC/DC"))
}
