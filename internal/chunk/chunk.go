/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package chunk

// Chunk is a contiguous excerpt of a file covering lines [Start, End).
type Chunk struct {
	FileName string
	Start    int
	End      int
	Lines    []string
}

// Line is a single numbered line of a chunk, as sent to clients.
type Line struct {
	Number  int    `json:"number"`
	Content string `json:"content"`
}

// View is the wire form of a chunk.
type View struct {
	FileName string `json:"file_name"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Lines    []Line `json:"lines"`
}

func (c *Chunk) Len() int {
	return c.End - c.Start
}

// Merge folds an adjacent chunk into c. Chunks ending at or before c.Start
// are prepended, all others appended. Overlapping ranges are not detected.
func (c *Chunk) Merge(other *Chunk) {
	if other == nil || other.Start == other.End {
		return
	}

	merged := make([]string, 0, len(c.Lines)+len(other.Lines))
	if other.End <= c.Start {
		merged = append(merged, other.Lines...)
		merged = append(merged, c.Lines...)
	} else {
		merged = append(merged, c.Lines...)
		merged = append(merged, other.Lines...)
	}

	c.Lines = merged
	c.Start = min(c.Start, other.Start)
	c.End = max(c.End, other.End)
}

// View returns a copy of the chunk suitable for broadcasting. Line numbers
// are 1-based.
func (c *Chunk) View() View {
	lines := make([]Line, len(c.Lines))
	for i, content := range c.Lines {
		lines[i] = Line{
			Number:  c.Start + i + 1,
			Content: content,
		}
	}

	return View{
		FileName: c.FileName,
		Start:    c.Start,
		End:      c.End,
		Lines:    lines,
	}
}
