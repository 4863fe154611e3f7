package file

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickerRemovesEachFileOnce(t *testing.T) {
	p := NewPicker(rand.New(rand.NewPCG(1, 2)))

	var files []File
	for i := range 50 {
		files = append(files, &fakeFile{author: "a", path: string(rune('a' + i))})
	}
	p.AddFiles(files)

	seen := make(map[File]bool)
	for p.CanPick() {
		f, err := p.Pick()
		require.NoError(t, err)
		require.False(t, seen[f], "picked %s twice", f.Path())
		seen[f] = true
	}

	assert.Len(t, seen, len(files))
	assert.Equal(t, 0, p.Len())
}

func TestPickerSwapsWithLast(t *testing.T) {
	p := NewPicker(firstRand{})

	a, b, c := &fakeFile{path: "a"}, &fakeFile{path: "b"}, &fakeFile{path: "c"}
	p.AddFiles([]File{a, b, c})

	f, err := p.Pick()
	require.NoError(t, err)
	assert.Same(t, a, f)

	f, err = p.Pick()
	require.NoError(t, err)
	assert.Same(t, c, f)
}

func TestPickerEmpty(t *testing.T) {
	p := NewPicker(firstRand{})

	assert.False(t, p.CanPick())

	_, err := p.Pick()
	assert.ErrorIs(t, err, ErrNoFiles)
}
