package ingestion

import "strings"

// Chunker splits text into fixed word windows. Given the same text and
// settings it always produces the same chunk boundaries, so re-indexing
// an unchanged document yields identical chunk IDs.
type Chunker struct {
	window  int
	overlap int
}

func NewChunker(window, overlap int) *Chunker {
	return &Chunker{window: window, overlap: overlap}
}

// Chunk walks the word list with stride window-overlap. The final
// chunk may be shorter than the window.
func (c *Chunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	stride := c.window - c.overlap

	var chunks []string
	for start := 0; start < len(words); start += stride {
		end := start + c.window
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}

	return chunks
}
