/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package file

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Repository is static metadata about the repository a file came from.
// It is shared read-only by every file drawn from it.
type Repository struct {
	Name          string `json:"name"`
	URL           string `json:"url"`
	Stars         int    `json:"stars"`
	Language      string `json:"language,omitempty"`
	Description   string `json:"description,omitempty"`
	DefaultBranch string `json:"default_branch"`
}

// File is a candidate source file contributed by one author.
type File interface {
	Author() string
	Path() string
	Filename() string
	Size() int64
	Repo() *Repository
	ReadLines(ctx context.Context) ([]string, error)
}

// Downloader fetches the text behind a download URL.
type Downloader interface {
	Download(ctx context.Context, downloadURL string) (string, error)
}

// NetworkFile is a File whose contents are downloaded on demand.
type NetworkFile struct {
	author      string
	path        string
	size        int64
	repo        *Repository
	downloadURL string
	downloader  Downloader
}

func NewNetworkFile(author, filePath string, size int64, repo *Repository, downloadURL string, downloader Downloader) *NetworkFile {
	return &NetworkFile{
		author:      author,
		path:        filePath,
		size:        size,
		repo:        repo,
		downloadURL: downloadURL,
		downloader:  downloader,
	}
}

func (f *NetworkFile) Author() string {
	return f.author
}

func (f *NetworkFile) Path() string {
	return f.path
}

func (f *NetworkFile) Filename() string {
	return path.Base(f.path)
}

func (f *NetworkFile) Size() int64 {
	return f.size
}

func (f *NetworkFile) Repo() *Repository {
	return f.repo
}

func (f *NetworkFile) DownloadURL() string {
	return f.downloadURL
}

func (f *NetworkFile) String() string {
	if f.repo == nil {
		return f.path
	}
	return f.repo.Name + " : " + f.path
}

func (f *NetworkFile) ReadLines(ctx context.Context) ([]string, error) {
	text, err := f.downloader.Download(ctx, f.downloadURL)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", f, err)
	}

	return SplitLines(text), nil
}

// SplitLines splits text on newlines, dropping carriage returns and a single
// trailing newline.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}

	return strings.Split(text, "\n")
}
