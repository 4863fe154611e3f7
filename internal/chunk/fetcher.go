/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package chunk

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultStartingSize = 20
	DefaultPeekSize     = 10
	DefaultPeeks        = 10
)

var ErrEmptyFile = errors.New("file has no non-blank lines")

// Readable is the part of a file the fetcher needs.
type Readable interface {
	Filename() string
	ReadLines(ctx context.Context) ([]string, error)
}

// Fetcher picks an excerpt of a file and widens it on request.
type Fetcher interface {
	PickStartingChunk(ctx context.Context, f Readable) (*Chunk, error)
	Chunk() *Chunk
	CanPeekAbove() bool
	CanPeekBelow() bool
	PeekAbove() bool
	PeekBelow() bool
	RemainingPeeks() int
}

// WindowFetcher starts from the window of StartingSize lines with the most
// non-whitespace characters, then grows by PeekSize lines per peek until
// its peek budget is spent.
type WindowFetcher struct {
	startingSize int
	peekSize     int
	maxPeeks     int

	lines     []string
	chunk     *Chunk
	remaining int

	logf func(format string, args ...any)
}

func NewWindowFetcher(startingSize, peekSize, peeks int, logf func(string, ...any)) *WindowFetcher {
	if startingSize <= 0 {
		startingSize = DefaultStartingSize
	}
	if peekSize <= 0 {
		peekSize = DefaultPeekSize
	}
	if peeks < 0 {
		peeks = 0
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}

	return &WindowFetcher{
		startingSize: startingSize,
		peekSize:     peekSize,
		maxPeeks:     peeks,
		logf:         logf,
	}
}

func lineSize(line string) int {
	return len(strings.TrimSpace(line))
}

// PickStartingChunk reads f and replaces any previous chunk. On error the
// fetcher holds no chunk.
func (w *WindowFetcher) PickStartingChunk(ctx context.Context, f Readable) (*Chunk, error) {
	w.chunk = nil
	w.lines = nil
	w.remaining = 0

	lines, err := f.ReadLines(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Filename(), err)
	}

	window := min(len(lines), w.startingSize)

	sum := 0
	for i := 0; i < window; i++ {
		sum += lineSize(lines[i])
	}

	total := sum
	best, bestStart := sum, 0
	for i := w.startingSize; i < len(lines); i++ {
		sum -= lineSize(lines[i-w.startingSize])
		sum += lineSize(lines[i])
		total += lineSize(lines[i])

		// ties move the window down the file
		if sum >= best {
			best = sum
			bestStart = i - w.startingSize + 1
		}
	}

	if total == 0 {
		return nil, fmt.Errorf("%s: %w", f.Filename(), ErrEmptyFile)
	}

	end := bestStart + window
	w.lines = lines
	w.remaining = w.maxPeeks
	w.chunk = &Chunk{
		FileName: f.Filename(),
		Start:    bestStart,
		End:      end,
		Lines:    append([]string(nil), lines[bestStart:end]...),
	}

	w.logf("CHUNK: Picked lines [%d, %d) of %d in %s", bestStart, end, len(lines), f.Filename())

	return w.chunk, nil
}

func (w *WindowFetcher) Chunk() *Chunk {
	return w.chunk
}

func (w *WindowFetcher) RemainingPeeks() int {
	return w.remaining
}

func (w *WindowFetcher) canPeek() bool {
	return w.chunk != nil && w.remaining > 0
}

func (w *WindowFetcher) CanPeekAbove() bool {
	return w.canPeek() && w.chunk.Start > 0
}

func (w *WindowFetcher) CanPeekBelow() bool {
	return w.canPeek() && w.chunk.End < len(w.lines)
}

// PeekAbove reports whether the chunk was widened.
func (w *WindowFetcher) PeekAbove() bool {
	if !w.CanPeekAbove() {
		return false
	}

	start := w.chunk.Start
	above := max(start-w.peekSize, 0)

	w.chunk.Merge(&Chunk{
		FileName: w.chunk.FileName,
		Start:    above,
		End:      start,
		Lines:    append([]string(nil), w.lines[above:start]...),
	})
	w.remaining--

	w.logf("CHUNK: Peeked above in %s, %d peeks remaining", w.chunk.FileName, w.remaining)

	return true
}

// PeekBelow reports whether the chunk was widened.
func (w *WindowFetcher) PeekBelow() bool {
	if !w.CanPeekBelow() {
		return false
	}

	end := w.chunk.End
	below := min(end+w.peekSize, len(w.lines))

	w.chunk.Merge(&Chunk{
		FileName: w.chunk.FileName,
		Start:    end,
		End:      below,
		Lines:    append([]string(nil), w.lines[end:below]...),
	})
	w.remaining--

	w.logf("CHUNK: Peeked below in %s, %d peeks remaining", w.chunk.FileName, w.remaining)

	return true
}
