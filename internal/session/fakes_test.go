package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Seednode/gitgame/internal/chunk"
	"github.com/Seednode/gitgame/internal/file"
)

type fakeConn struct {
	mu     sync.Mutex
	msgs   []any
	closed bool
	code   int
}

func (c *fakeConn) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("connection closed")
	}

	c.msgs = append(c.msgs, msg)

	return nil
}

func (c *fakeConn) Close(code int, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.code = code

	return nil
}

func (c *fakeConn) closeCode() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.code, c.closed
}

func messagesOf[T any](c *fakeConn) []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []T
	for _, m := range c.msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}

	return out
}

func lastOf[T any](c *fakeConn) (T, bool) {
	msgs := messagesOf[T](c)
	if len(msgs) == 0 {
		var zero T
		return zero, false
	}

	return msgs[len(msgs)-1], true
}

type fakeFile struct {
	author  string
	path    string
	lines   []string
	readErr error
}

func (f *fakeFile) Author() string   { return f.author }
func (f *fakeFile) Path() string     { return f.path }
func (f *fakeFile) Filename() string { return f.path }
func (f *fakeFile) Size() int64      { return int64(len(f.lines)) }

func (f *fakeFile) Repo() *file.Repository {
	return &file.Repository{
		Name:          f.author + "/project",
		URL:           "https://github.com/" + f.author + "/project",
		DefaultBranch: "main",
	}
}

func (f *fakeFile) ReadLines(context.Context) ([]string, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.lines, nil
}

func codeFile(author, path string, n int) *fakeFile {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("x := %d", i)
	}

	return &fakeFile{author: author, path: path, lines: lines}
}

// fakeSource hands out all of its files in one batch.
type fakeSource struct {
	files []file.File
	setup bool
	sent  bool
}

func (s *fakeSource) Setup(context.Context) error {
	s.setup = true
	return nil
}

func (s *fakeSource) IsSetup() bool {
	return s.setup
}

func (s *fakeSource) CanGetFiles() bool {
	return s.setup && !s.sent
}

func (s *fakeSource) NextFiles(context.Context) ([]file.File, error) {
	s.sent = true
	return s.files, nil
}

// fixedRand always picks index zero and never reorders.
type fixedRand struct{}

func (fixedRand) IntN(int) int { return 0 }

func (fixedRand) Perm(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return p
}

func (fixedRand) Shuffle(int, func(i, j int)) {}

type panicFetcher struct{}

func (panicFetcher) PickStartingChunk(context.Context, chunk.Readable) (*chunk.Chunk, error) {
	panic("fetcher exploded")
}

func (panicFetcher) Chunk() *chunk.Chunk { return nil }
func (panicFetcher) CanPeekAbove() bool  { return false }
func (panicFetcher) CanPeekBelow() bool  { return false }
func (panicFetcher) PeekAbove() bool     { return false }
func (panicFetcher) PeekBelow() bool     { return false }
func (panicFetcher) RemainingPeeks() int { return 0 }
