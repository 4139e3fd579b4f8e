package ingest

import "strings"

// separators, tried in order, for recursive text splitting. Paragraph
// breaks first, then lines, then sentence punctuation, then words, then a
// hard character split as the last resort.
var separators = []string{"\n\n", "\n", ".", "!", "?", ",", " ", ""}

// SplitText splits text into chunks of at most size characters with
// roughly overlap characters of shared context between consecutive chunks.
// Splits prefer natural boundaries: a chunk is only cut mid-word when no
// coarser separator produces pieces that fit.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap >= size {
		overlap = size / 2
	}

	pieces := splitRecursive(text, size, 0)
	return mergePieces(pieces, size, overlap)
}

// splitRecursive cuts text into pieces no longer than size, descending
// through the separator hierarchy only when needed.
func splitRecursive(text string, size, sepIndex int) []string {
	if len(text) <= size {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	if sepIndex >= len(separators) {
		return nil
	}

	sep := separators[sepIndex]
	if sep == "" {
		// Hard split by characters.
		var out []string
		for len(text) > size {
			out = append(out, text[:size])
			text = text[size:]
		}
		if text != "" {
			out = append(out, text)
		}
		return out
	}

	var out []string
	parts := strings.SplitAfter(text, sep)
	for _, part := range parts {
		if len(part) <= size {
			if part != "" {
				out = append(out, part)
			}
			continue
		}
		out = append(out, splitRecursive(part, size, sepIndex+1)...)
	}
	return out
}

// mergePieces packs consecutive pieces into chunks up to size, carrying an
// overlap tail from each chunk into the next.
func mergePieces(pieces []string, size, overlap int) []string {
	var chunks []string
	var current strings.Builder

	flush := func() string {
		chunk := strings.TrimSpace(current.String())
		current.Reset()
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		return chunk
	}

	carried := 0
	for _, piece := range pieces {
		if current.Len()+len(piece) > size && current.Len() > carried {
			chunk := flush()
			carried = 0
			if overlap > 0 && len(chunk) > overlap {
				current.WriteString(chunk[len(chunk)-overlap:])
				carried = current.Len()
			}
		}
		// A piece that does not fit alongside the carried overlap wins
		// over the overlap; never emit a chunk that is pure overlap.
		if carried > 0 && current.Len() == carried && current.Len()+len(piece) > size {
			current.Reset()
			carried = 0
		}
		current.WriteString(piece)
	}
	flush()
	return chunks
}
