/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Seednode/gitgame/internal/metrics"
)

const (
	DefaultAPIURL = "https://api.github.com"
	DefaultRawURL = "https://raw.githubusercontent.com"

	MaxPerPage = 100

	maxBodySize  = 8 << 20
	maxErrorBody = 1024
)

type Options struct {
	Token             string
	APIURL            string
	RawURL            string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	Cache             Cache
	HTTPClient        *http.Client
	Logf              func(format string, args ...any)
}

// Client talks to the GitHub REST API and raw content host.
type Client struct {
	http    *http.Client
	token   string
	apiURL  string
	rawURL  string
	limiter *rate.Limiter
	cache   Cache
	logf    func(format string, args ...any)
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	rawURL := opts.RawURL
	if rawURL == "" {
		rawURL = DefaultRawURL
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	return &Client{
		http:    httpClient,
		token:   strings.TrimSpace(opts.Token),
		apiURL:  strings.TrimRight(apiURL, "/"),
		rawURL:  strings.TrimRight(rawURL, "/"),
		limiter: rate.NewLimiter(limit, burst),
		cache:   opts.Cache,
		logf:    logf,
	}
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// DownloadURL is the raw content location of a file on a branch.
func (c *Client) DownloadURL(fullName, branch, filePath string) string {
	return c.rawURL + "/" + escapePath(fullName) + "/" + url.PathEscape(branch) + "/" + escapePath(filePath)
}

// VisitURL is the human-facing page of a file on a branch.
func VisitURL(repoURL, branch, filePath string) string {
	if repoURL == "" {
		return ""
	}
	return strings.TrimRight(repoURL, "/") + "/blob/" + url.PathEscape(branch) + "/" + escapePath(filePath)
}

func (c *Client) get(ctx context.Context, endpoint, rawURL string, api, cacheable bool) ([]byte, http.Header, error) {
	if cacheable && c.cache != nil {
		if data, ok := c.cache.Get(ctx, rawURL); ok {
			return data, nil, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}
	if api {
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	startTime := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, nil, err
	}
	defer resp.Body.Close()

	metrics.ProviderRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, nil, &APIError{
			Endpoint:   rawURL,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, nil, err
	}

	c.logf("GITHUB: GET %s (%d B) in %s", rawURL, len(data), time.Since(startTime).Round(time.Millisecond))

	if cacheable && c.cache != nil {
		c.cache.Set(ctx, rawURL, data)
	}

	return data, resp.Header, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, cacheable bool, v any) (http.Header, error) {
	data, header, err := c.get(ctx, endpoint, rawURL, true, cacheable)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", rawURL, err)
	}

	return header, nil
}

func (c *Client) User(ctx context.Context, login string) (*User, error) {
	var user User

	_, err := c.getJSON(ctx, "user", c.apiURL+"/users/"+url.PathEscape(login), false, &user)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// Repositories returns one page of repositories owned by login, ordered by
// full name so that page boundaries are stable between calls. The boolean
// reports whether the provider advertised a next page.
func (c *Client) Repositories(ctx context.Context, login string, page, perPage int) ([]Repository, bool, error) {
	if perPage <= 0 || perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if page < 1 {
		page = 1
	}

	params := url.Values{
		"type":      {"owner"},
		"sort":      {"full_name"},
		"direction": {"asc"},
		"per_page":  {strconv.Itoa(perPage)},
		"page":      {strconv.Itoa(page)},
	}

	var repos []Repository

	header, err := c.getJSON(ctx, "repos", c.apiURL+"/users/"+url.PathEscape(login)+"/repos?"+params.Encode(), false, &repos)
	if err != nil {
		return nil, false, err
	}

	return repos, strings.Contains(header.Get("Link"), `rel="next"`), nil
}

// Tree returns every entry of a branch, recursively.
func (c *Client) Tree(ctx context.Context, fullName, branch string) ([]TreeEntry, error) {
	var t tree

	endpoint := c.apiURL + "/repos/" + escapePath(fullName) + "/git/trees/" + url.PathEscape(branch) + "?recursive=1"

	_, err := c.getJSON(ctx, "tree", endpoint, true, &t)
	if err != nil {
		return nil, err
	}

	if t.Truncated {
		c.logf("GITHUB: Tree for %s@%s was truncated at %d entries", fullName, branch, len(t.Tree))
	}

	return t.Tree, nil
}

func (c *Client) Download(ctx context.Context, downloadURL string) (string, error) {
	data, _, err := c.get(ctx, "raw", downloadURL, false, true)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func (c *Client) RateLimit(ctx context.Context) (*RateLimit, error) {
	var r rateLimitResponse

	_, err := c.getJSON(ctx, "rate_limit", c.apiURL+"/rate_limit", false, &r)
	if err != nil {
		return nil, err
	}

	core := r.Resources.Core

	return &RateLimit{
		Limit:     core.Limit,
		Used:      core.Used,
		Remaining: core.Remaining,
		Reset:     time.Unix(core.Reset, 0),
	}, nil
}
