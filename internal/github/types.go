package github

import (
	"fmt"
	"time"
)

type User struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	NodeID      string `json:"node_id"`
	PublicRepos int    `json:"public_repos"`
}

type Repository struct {
	FullName      string    `json:"full_name"`
	HTMLURL       string    `json:"html_url"`
	Stars         int       `json:"stargazers_count"`
	Language      string    `json:"language"`
	Description   string    `json:"description"`
	DefaultBranch string    `json:"default_branch"`
	Fork          bool      `json:"fork"`
	Size          int       `json:"size"`
	PushedAt      time.Time `json:"pushed_at"`
}

const (
	EntryBlob = "blob"
	EntryTree = "tree"
)

type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

type tree struct {
	Tree      []TreeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

type RateLimit struct {
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

type rateLimitResponse struct {
	Resources struct {
		Core struct {
			Limit     int   `json:"limit"`
			Used      int   `json:"used"`
			Remaining int   `json:"remaining"`
			Reset     int64 `json:"reset"`
		} `json:"core"`
	} `json:"resources"`
}

// APIError is returned for any non-200 provider response.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github request to %q resulted in %d: %q", e.Endpoint, e.StatusCode, e.Body)
}
