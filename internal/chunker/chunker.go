// Package chunker splits file content into overlapping line windows for
// full-text indexing.
package chunker

import (
	"iter"
	"strings"

	"codescope/internal/parser"
)

const (
	DefaultLines   = 50
	DefaultOverlap = 10
)

// Chunk is a line range of a file. Lines are 1-based and inclusive.
type Chunk struct {
	StartLine int
	EndLine   int
	Content   string
	// Symbol is the outermost top-level symbol the chunk starts in, if any.
	Symbol string
}

// normalize clamps window parameters to usable values. Overlap is at most
// half the window so an overlapped line lands in exactly two chunks.
func normalize(size, overlap int) (int, int) {
	if size < 1 {
		size = DefaultLines
	}
	if overlap < 0 {
		overlap = 0
	}
	if 2*overlap > size {
		overlap = size / 2
	}
	return size, overlap
}

// splitLines splits content into lines. A trailing newline does not
// produce an extra empty line.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}

// Split yields windows of size lines, each starting overlap lines before
// the previous window's end. Content shorter than one window yields a single
// chunk; empty content yields none. Windows holding only whitespace are
// skipped.
func Split(content string, size, overlap int) iter.Seq[Chunk] {
	size, overlap = normalize(size, overlap)
	return func(yield func(Chunk) bool) {
		lines := splitLines(content)
		for i := 0; i < len(lines); i += size - overlap {
			end := min(i+size, len(lines))
			c := Chunk{
				StartLine: i + 1,
				EndLine:   end,
				Content:   strings.Join(lines[i:end], "\n"),
			}
			if strings.TrimSpace(c.Content) != "" && !yield(c) {
				return
			}
			if end >= len(lines) {
				return
			}
		}
	}
}

// Collect materializes Split into a slice.
func Collect(content string, size, overlap int) []Chunk {
	var out []Chunk
	for c := range Split(content, size, overlap) {
		out = append(out, c)
	}
	return out
}

// Tag labels each chunk with the name of the outline span containing its
// first line. Outline spans are top-level and do not nest.
func Tag(chunks []Chunk, outline []parser.Span) {
	if len(outline) == 0 {
		return
	}
	for i := range chunks {
		for _, s := range outline {
			if chunks[i].StartLine >= s.StartLine && chunks[i].StartLine <= s.EndLine {
				chunks[i].Symbol = s.Name
				break
			}
		}
	}
}
