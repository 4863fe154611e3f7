/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package file

import (
	"context"
	"fmt"

	"github.com/Seednode/gitgame/internal/github"
)

// Source lazily produces batches of files for a single author.
type Source interface {
	Setup(ctx context.Context) error
	IsSetup() bool
	CanGetFiles() bool
	NextFiles(ctx context.Context) ([]File, error)
}

// Provider is the part of the code-hosting client a GithubSource needs.
type Provider interface {
	Downloader
	User(ctx context.Context, login string) (*github.User, error)
	Repositories(ctx context.Context, login string, page, perPage int) ([]github.Repository, bool, error)
	Tree(ctx context.Context, fullName, branch string) ([]github.TreeEntry, error)
	DownloadURL(fullName, branch, filePath string) string
}

type SourceOptions struct {
	// MaxLoadableRepos is the number of non-empty repositories consumed per
	// call to NextFiles.
	MaxLoadableRepos int
	PerPage          int
	Rand             Rand
	Logf             func(format string, args ...any)
}

// GithubSource walks an author's public repositories in a random order
// fixed at setup, fetching listing pages only when an index lands on them.
type GithubSource struct {
	provider Provider
	rule     Rule
	author   string
	maxRepos int
	perPage  int
	rand     Rand
	logf     func(format string, args ...any)

	setup   bool
	indices []int
	pages   map[int][]github.Repository
}

func NewGithubSource(provider Provider, rule Rule, author string, opts SourceOptions) *GithubSource {
	maxRepos := opts.MaxLoadableRepos
	if maxRepos <= 0 {
		maxRepos = 1
	}

	perPage := opts.PerPage
	if perPage <= 0 || perPage > github.MaxPerPage {
		perPage = github.MaxPerPage
	}

	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	return &GithubSource{
		provider: provider,
		rule:     rule,
		author:   author,
		maxRepos: maxRepos,
		perPage:  perPage,
		rand:     opts.Rand,
		logf:     logf,
		pages:    make(map[int][]github.Repository),
	}
}

// Setup shuffles the author's repository indices. Calls after the first
// successful one do nothing.
func (s *GithubSource) Setup(ctx context.Context) error {
	if s.setup {
		return nil
	}

	user, err := s.provider.User(ctx, s.author)
	if err != nil {
		return fmt.Errorf("setup source for %s: %w", s.author, err)
	}

	s.indices = s.rand.Perm(user.PublicRepos)
	s.setup = true

	s.logf("FILES: Author [%s]; randomly shuffled %d public repos", s.author, user.PublicRepos)

	return nil
}

func (s *GithubSource) IsSetup() bool {
	return s.setup
}

func (s *GithubSource) CanGetFiles() bool {
	return s.setup && len(s.indices) > 0
}

func (s *GithubSource) pop() int {
	last := len(s.indices) - 1
	i := s.indices[last]
	s.indices = s.indices[:last]
	return i
}

// repoAt returns nil without error when the index lies past the end of the
// listing, which happens when repositories are deleted after setup.
func (s *GithubSource) repoAt(ctx context.Context, index int) (*github.Repository, error) {
	page := index/s.perPage + 1

	repos, ok := s.pages[page]
	if !ok {
		var err error
		repos, _, err = s.provider.Repositories(ctx, s.author, page, s.perPage)
		if err != nil {
			return nil, err
		}
		s.pages[page] = repos
	}

	offset := index % s.perPage
	if offset >= len(repos) {
		return nil, nil
	}

	return &repos[offset], nil
}

// NextFiles consumes repositories until MaxLoadableRepos of them have
// contributed files or none are left. Repositories that fail to list or
// contribute nothing are consumed without counting toward the quota.
func (s *GithubSource) NextFiles(ctx context.Context) ([]File, error) {
	var files []File

	picked := 0
	for s.CanGetFiles() && picked < s.maxRepos {
		if err := ctx.Err(); err != nil {
			return files, err
		}

		repo, err := s.repoAt(ctx, s.pop())
		if err != nil {
			s.logf("FILES: Author [%s]; unable to list repos: %v", s.author, err)
			continue
		}
		if repo == nil || repo.Fork || repo.Size == 0 {
			continue
		}

		s.logf("FILES: Author [%s]; considering non-forked repo %s", s.author, repo.FullName)

		entries, err := s.provider.Tree(ctx, repo.FullName, repo.DefaultBranch)
		if err != nil {
			s.logf("FILES: Author [%s]; unable to get tree for repo %s: %v", s.author, repo.FullName, err)
			continue
		}

		meta := &Repository{
			Name:          repo.FullName,
			URL:           repo.HTMLURL,
			Stars:         repo.Stars,
			Language:      repo.Language,
			Description:   repo.Description,
			DefaultBranch: repo.DefaultBranch,
		}

		added := 0
		for _, entry := range entries {
			if entry.Type != github.EntryBlob {
				continue
			}

			f := NewNetworkFile(
				s.author,
				entry.Path,
				entry.Size,
				meta,
				s.provider.DownloadURL(repo.FullName, repo.DefaultBranch, entry.Path),
				s.provider,
			)

			if s.rule.Valid(f) {
				files = append(files, f)
				added++
			}
		}

		if added == 0 {
			s.logf("FILES: Author [%s]; repo %s didn't add any files, choosing another repo", s.author, repo.FullName)
			continue
		}

		picked++
	}

	return files, nil
}
