package mediawiki

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_Get(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"batchcomplete":"","query":{"pages":{"42":{"pageid":42,"title":"Crimea"}}}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-agent", 5*time.Second, testLogger())

	var out struct {
		Query struct {
			Pages map[string]struct {
				PageID int    `json:"pageid"`
				Title  string `json:"title"`
			} `json:"pages"`
		} `json:"query"`
	}
	query := url.Values{"action": {"query"}, "titles": {"Crimea"}}
	require.NoError(t, client.Get(context.Background(), "en", query, &out))

	assert.Equal(t, "json", gotQuery.Get("format"))
	assert.Equal(t, "query", gotQuery.Get("action"))
	assert.Equal(t, "Crimea", gotQuery.Get("titles"))
	assert.Equal(t, "Crimea", out.Query.Pages["42"].Title)
	// caller's query must not be mutated
	assert.Empty(t, query.Get("format"))
}

func TestClient_Endpoint(t *testing.T) {
	client := NewClient("https://{lang}.wikipedia.org/w/api.php", "ua", time.Second, testLogger())
	assert.Equal(t, "https://fr.wikipedia.org/w/api.php", client.Endpoint("fr"))
}

func TestClient_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "ua", 5*time.Second, testLogger())

	var out map[string]interface{}
	err := client.Get(context.Background(), "en", url.Values{"action": {"query"}}, &out)
	require.Error(t, err)
	assert.True(t, IsDecode(err))
	assert.False(t, IsNetwork(err))
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":"badvalue","info":"Unrecognized value for parameter \"prop\"."}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "ua", 5*time.Second, testLogger())

	var out map[string]interface{}
	err := client.Get(context.Background(), "en", url.Values{"action": {"query"}}, &out)
	require.Error(t, err)
	require.True(t, IsAPI(err))
	assert.Contains(t, err.Error(), "badvalue")
}

func TestClient_NetworkErrors(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewClient(server.URL, "ua", 5*time.Second, testLogger())
		var out map[string]interface{}
		err := client.Get(context.Background(), "en", url.Values{}, &out)
		require.Error(t, err)
		assert.True(t, IsNetwork(err))
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("connection refused", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		endpoint := server.URL
		server.Close()

		client := NewClient(endpoint, "ua", 5*time.Second, testLogger())
		var out map[string]interface{}
		err := client.Get(context.Background(), "en", url.Values{}, &out)
		require.Error(t, err)
		assert.True(t, IsNetwork(err))
	})
}

func TestClient_Latin1Body(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=iso-8859-1")
		// "Orléans" with é as a single latin-1 byte
		_, _ = w.Write([]byte("{\"title\":\"Orl\xe9ans\"}"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "ua", 5*time.Second, testLogger())
	var out struct {
		Title string `json:"title"`
	}
	require.NoError(t, client.Get(context.Background(), "fr", url.Values{}, &out))
	assert.Equal(t, "Orléans", out.Title)
}
