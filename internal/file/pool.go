package file

import (
	"context"
)

// Pool draws files across many authors from one Picker and tops up an
// author's supply from their Source once it runs dry.
type Pool struct {
	picker  *Picker
	counts  map[string]int
	sources map[string]Source
	authors []string
	logf    func(format string, args ...any)
}

func NewPool(picker *Picker, logf func(string, ...any)) *Pool {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	return &Pool{
		picker:  picker,
		counts:  make(map[string]int),
		sources: make(map[string]Source),
		logf:    logf,
	}
}

// AddAuthor registers src for author and fetches its first batch. The
// source stays registered when that fetch fails, so a later Replenish can
// retry it.
func (p *Pool) AddAuthor(ctx context.Context, author string, src Source) error {
	if _, ok := p.sources[author]; ok {
		return nil
	}

	p.sources[author] = src
	p.authors = append(p.authors, author)

	return p.fill(ctx, author)
}

func (p *Pool) HasAuthor(author string) bool {
	_, ok := p.sources[author]
	return ok
}

// Authors returns every registered author in registration order.
func (p *Pool) Authors() []string {
	return append([]string(nil), p.authors...)
}

func (p *Pool) fill(ctx context.Context, author string) error {
	src := p.sources[author]

	if !src.IsSetup() {
		if err := src.Setup(ctx); err != nil {
			return err
		}
	}

	if !src.CanGetFiles() {
		p.logf("FILES: Author [%s]; no more files can be fetched", author)
		return nil
	}

	files, err := src.NextFiles(ctx)
	p.picker.AddFiles(files)
	p.counts[author] += len(files)

	p.logf("FILES: Author [%s]; fetched %d files", author, len(files))

	return err
}

func (p *Pool) CanPick() bool {
	return p.picker.CanPick()
}

// Pick removes a random file. When that leaves its author with no files in
// the picker, the author's source is asked for another batch.
func (p *Pool) Pick(ctx context.Context) (File, error) {
	f, err := p.picker.Pick()
	if err != nil {
		return nil, err
	}

	author := f.Author()

	p.counts[author]--
	if p.counts[author] <= 0 {
		p.counts[author] = 0

		if _, ok := p.sources[author]; ok {
			p.logf("FILES: Author [%s]; exhausted files from pool, trying to fetch more", author)

			if err := p.fill(ctx, author); err != nil {
				p.logf("FILES: Author [%s]; unable to fetch more files: %v", author, err)
			}
		}
	}

	return f, nil
}

// Replenish retries every author with nothing in the picker whose source
// may still produce files, and reports whether anything can be picked.
func (p *Pool) Replenish(ctx context.Context) bool {
	for _, author := range p.authors {
		if p.counts[author] > 0 {
			continue
		}

		src := p.sources[author]
		if src.IsSetup() && !src.CanGetFiles() {
			continue
		}

		if err := p.fill(ctx, author); err != nil {
			p.logf("FILES: Author [%s]; unable to replenish: %v", author, err)
		}
	}

	return p.CanPick()
}

// Exhausted reports whether every source is set up and drained and the
// picker is empty.
func (p *Pool) Exhausted() bool {
	if p.picker.CanPick() {
		return false
	}

	for _, src := range p.sources {
		if !src.IsSetup() || src.CanGetFiles() {
			return false
		}
	}

	return true
}
