package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, cache Cache) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Options{
		Token:  "secret",
		APIURL: srv.URL,
		RawURL: srv.URL + "/raw",
		Cache:  cache,
	}), srv
}

func TestUserSendsTokenAndDecodes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/octocat", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		fmt.Fprint(w, `{"login":"octocat","name":"The Octocat","node_id":"abc","public_repos":8}`)
	})

	c, _ := newTestClient(t, mux, nil)

	user, err := c.User(context.Background(), "octocat")
	require.NoError(t, err)
	assert.Equal(t, "octocat", user.Login)
	assert.Equal(t, 8, user.PublicRepos)
}

func TestRepositoriesPaging(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/octocat/repos", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "owner", q.Get("type"))
		assert.Equal(t, "full_name", q.Get("sort"))
		assert.Equal(t, "2", q.Get("per_page"))

		switch q.Get("page") {
		case "1":
			w.Header().Set("Link", `<https://api.github.com/user/1/repos?page=2>; rel="next"`)
			fmt.Fprint(w, `[{"full_name":"octocat/a","default_branch":"main"},{"full_name":"octocat/b","fork":true,"description":null}]`)
		default:
			fmt.Fprint(w, `[{"full_name":"octocat/c","stargazers_count":3,"language":"Go"}]`)
		}
	})

	c, _ := newTestClient(t, mux, nil)

	repos, next, err := c.Repositories(context.Background(), "octocat", 1, 2)
	require.NoError(t, err)
	assert.True(t, next)
	require.Len(t, repos, 2)
	assert.Equal(t, "main", repos[0].DefaultBranch)
	assert.True(t, repos[1].Fork)
	assert.Empty(t, repos[1].Description)

	repos, next, err = c.Repositories(context.Background(), "octocat", 2, 2)
	require.NoError(t, err)
	assert.False(t, next)
	require.Len(t, repos, 1)
	assert.Equal(t, 3, repos[0].Stars)
	assert.Equal(t, "Go", repos[0].Language)
}

func TestNonOKIsAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/ghost", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})

	c, _ := newTestClient(t, mux, nil)

	_, err := c.User(context.Background(), "ghost")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Not Found")
}

func TestTreeAndDownloadAreCached(t *testing.T) {
	var treeCalls, rawCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/a/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		treeCalls.Add(1)
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		fmt.Fprint(w, `{"tree":[{"path":"src","type":"tree"},{"path":"src/main.go","type":"blob","size":42}]}`)
	})
	mux.HandleFunc("/raw/octocat/a/main/src/main.go", func(w http.ResponseWriter, r *http.Request) {
		rawCalls.Add(1)
		fmt.Fprint(w, "package main\n")
	})

	cache, err := NewLRUCache(16)
	require.NoError(t, err)

	c, _ := newTestClient(t, mux, cache)

	for range 2 {
		entries, err := c.Tree(context.Background(), "octocat/a", "main")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, EntryBlob, entries[1].Type)
		assert.Equal(t, int64(42), entries[1].Size)

		text, err := c.Download(context.Background(), c.DownloadURL("octocat/a", "main", "src/main.go"))
		require.NoError(t, err)
		assert.Equal(t, "package main\n", text)
	}

	assert.Equal(t, int32(1), treeCalls.Load())
	assert.Equal(t, int32(1), rawCalls.Load())
	assert.Equal(t, 2, cache.Len())
}

func TestRateLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rate_limit", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resources":{"core":{"limit":5000,"used":12,"remaining":4988,"reset":1700000000}}}`)
	})

	c, _ := newTestClient(t, mux, nil)

	rl, err := c.RateLimit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5000, rl.Limit)
	assert.Equal(t, 4988, rl.Remaining)
	assert.Equal(t, int64(1700000000), rl.Reset.Unix())
}

func TestURLs(t *testing.T) {
	c := New(Options{})

	assert.Equal(t, "https://raw.githubusercontent.com/octocat/a/main/dir/my%20file.go", c.DownloadURL("octocat/a", "main", "dir/my file.go"))
	assert.Equal(t, "https://github.com/octocat/a/blob/main/x.go", VisitURL("https://github.com/octocat/a/", "main", "x.go"))
	assert.Empty(t, VisitURL("", "main", "x.go"))
}
