package file

import (
	"context"
	"fmt"
)

type fakeFile struct {
	author string
	path   string
	size   int64
}

func (f *fakeFile) Author() string    { return f.author }
func (f *fakeFile) Path() string      { return f.path }
func (f *fakeFile) Filename() string  { return f.path }
func (f *fakeFile) Size() int64       { return f.size }
func (f *fakeFile) Repo() *Repository { return nil }

func (f *fakeFile) ReadLines(context.Context) ([]string, error) {
	return []string{f.path}, nil
}

// fakeSource hands out total files in batches of batch.
type fakeSource struct {
	author   string
	total    int
	batch    int
	setupErr error

	setup      bool
	setupCalls int
	nextCalls  int
	sent       int
}

func (s *fakeSource) Setup(context.Context) error {
	s.setupCalls++
	if s.setupErr != nil {
		return s.setupErr
	}
	s.setup = true
	return nil
}

func (s *fakeSource) IsSetup() bool {
	return s.setup
}

func (s *fakeSource) CanGetFiles() bool {
	return s.setup && s.sent < s.total
}

func (s *fakeSource) NextFiles(context.Context) ([]File, error) {
	s.nextCalls++

	n := min(s.batch, s.total-s.sent)
	files := make([]File, 0, n)
	for range n {
		files = append(files, &fakeFile{author: s.author, path: fmt.Sprintf("%s/%d.go", s.author, s.sent)})
		s.sent++
	}
	return files, nil
}

// firstRand always picks index zero and never shuffles.
type firstRand struct{}

func (firstRand) IntN(int) int { return 0 }

func (firstRand) Perm(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return p
}
