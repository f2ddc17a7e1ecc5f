package tasks

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"wiki_harvester/internal/archive"
	"wiki_harvester/internal/config"
	"wiki_harvester/internal/db"
	"wiki_harvester/internal/mediawiki"
	"wiki_harvester/internal/models"
)

// fakeWiki serves one page whose revisions are kept in ascending id order.
type fakeWiki struct {
	title    string
	revs     []models.Revision
	rendered map[int64]string
	pageSize int

	mu    sync.Mutex
	calls int
}

func (f *fakeWiki) latest() models.Revision {
	return f.revs[len(f.revs)-1]
}

func (f *fakeWiki) find(id int64) (models.Revision, bool) {
	for _, r := range f.revs {
		if r.RevID == id {
			return r, true
		}
	}
	return models.Revision{}, false
}

func (f *fakeWiki) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeWiki) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	q := r.URL.Query()
	withContent := strings.Contains(q.Get("rvprop"), "content")
	strip := func(rev models.Revision) models.Revision {
		if !withContent {
			rev.Content = ""
		}
		return rev
	}

	page := map[string]interface{}{
		"pageid":    7,
		"ns":        0,
		"title":     f.title,
		"fullurl":   "https://en.wikipedia.org/wiki/" + strings.ReplaceAll(f.title, " ", "_"),
		"lastrevid": f.latest().RevID,
	}
	var cont map[string]string

	start, _ := strconv.ParseInt(q.Get("rvstartid"), 10, 64)
	end, _ := strconv.ParseInt(q.Get("rvendid"), 10, 64)

	switch {
	case q.Get("rvparse") != "":
		id := f.latest().RevID
		if start != 0 {
			id = start
		}
		page["revisions"] = []map[string]interface{}{{"revid": id, "*": f.rendered[id]}}

	case q.Get("prop") == "revisions" && start != 0 && end != 0:
		var out []models.Revision
		for _, rev := range f.revs {
			if rev.RevID >= start && rev.RevID <= end {
				out = append(out, strip(rev))
			}
		}
		page["revisions"] = out

	case q.Get("prop") == "revisions" && q.Get("rvlimit") == "1":
		rev := f.latest()
		if start != 0 {
			rev, _ = f.find(start)
		}
		page["revisions"] = []models.Revision{strip(rev)}

	case q.Get("prop") == "revisions":
		newest := make([]models.Revision, 0, len(f.revs))
		for i := len(f.revs) - 1; i >= 0; i-- {
			newest = append(newest, strip(f.revs[i]))
		}
		offset, _ := strconv.Atoi(q.Get("rvcontinue"))
		size := f.pageSize
		if size == 0 {
			size = len(newest)
		}
		stop := offset + size
		if stop < len(newest) {
			cont = map[string]string{"rvcontinue": strconv.Itoa(stop), "continue": "||"}
		} else {
			stop = len(newest)
		}
		page["revisions"] = newest[offset:stop]
	}

	resp := map[string]interface{}{
		"query": map[string]interface{}{"pages": map[string]interface{}{"7": page}},
	}
	if cont != nil {
		resp["continue"] = cont
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(resp)
}

func newFakeWiki() *fakeWiki {
	return &fakeWiki{
		title: "Crimea",
		revs: []models.Revision{
			{RevID: 1, Timestamp: "2020-01-01T00:00:00Z", User: "a", Content: "'''Crimea''' v1"},
			{RevID: 2, Timestamp: "2020-01-02T00:00:00Z", User: "b", Content: "'''Crimea''' v2"},
			{RevID: 3, Timestamp: "2020-01-03T00:00:00Z", User: "c", Content: "'''Crimea''' v3"},
		},
		rendered: map[int64]string{
			2: `<div class="mw-parser-output"><p>Second version.</p><h2 id="History">History</h2><p>Old times.</p></div>`,
			3: `<div class="mw-parser-output">` +
				`<p><b>Crimea</b> is a peninsula on the northern coast of the <a href="/wiki/Black_Sea" title="Black Sea">Black Sea</a> in Eastern Europe, almost entirely surrounded by the Black Sea and the smaller Sea of Azov.</p>` +
				`<p>The peninsula has been inhabited since antiquity. Greek colonies were founded along its coast, and later it was ruled by a long series of empires and khanates.</p>` +
				`<p>Its landscape combines steppe in the north with a mountainous southern coast that has long been a popular resort area for visitors.</p>` +
				`</div>`,
		},
		pageSize: 2,
	}
}

type testEnv struct {
	env     *Env
	store   *db.MemoryStore
	wiki    *fakeWiki
	archive string
}

func newTestEnv(t *testing.T, wiki *fakeWiki) *testEnv {
	t.Helper()
	server := httptest.NewServer(wiki)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	cfg.Export.TempDir = t.TempDir()
	cfg.Export.Limit = 100

	archiveDir := t.TempDir()
	store := db.NewMemoryStore()
	client := mediawiki.NewClient(server.URL, "test", 5*time.Second, logger)

	env := NewEnv(cfg, store, client, archive.DirArchiver{Dir: archiveDir}, logger)
	env.now = func() time.Time { return time.Unix(1700000000, 0) }

	return &testEnv{env: env, store: store, wiki: wiki, archive: archiveDir}
}
