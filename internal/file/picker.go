package file

import (
	"errors"
)

var ErrNoFiles = errors.New("no files to pick")

// Rand is the subset of math/rand/v2 used for picking and shuffling.
type Rand interface {
	IntN(n int) int
	Perm(n int) []int
}

// Picker is an unordered bag of files with O(1) random removal.
type Picker struct {
	files []File
	rand  Rand
}

func NewPicker(r Rand) *Picker {
	return &Picker{rand: r}
}

func (p *Picker) AddFiles(files []File) {
	p.files = append(p.files, files...)
}

func (p *Picker) CanPick() bool {
	return len(p.files) > 0
}

func (p *Picker) Len() int {
	return len(p.files)
}

// Pick removes and returns a uniformly random file.
func (p *Picker) Pick() (File, error) {
	if len(p.files) == 0 {
		return nil, ErrNoFiles
	}

	i := p.rand.IntN(len(p.files))
	last := len(p.files) - 1

	p.files[i], p.files[last] = p.files[last], p.files[i]
	picked := p.files[last]
	p.files[last] = nil
	p.files = p.files[:last]

	return picked, nil
}
