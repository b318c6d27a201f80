package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/nikhilbhutani/schoolrag/pkg/tokenizer"
)

const (
	DefaultMaxTokens     = 512
	DefaultOverlapTokens = 32
)

type Options struct {
	MaxTokens     int // upper bound per chunk, estimated via tokenizer.EstimateTokens
	OverlapTokens int // trailing context repeated at the start of the next chunk
}

type TextChunk struct {
	Content    string
	Index      int
	TokenCount int
}

func DefaultOptions() Options {
	return Options{
		MaxTokens:     DefaultMaxTokens,
		OverlapTokens: DefaultOverlapTokens,
	}
}

// separators are tried in order: paragraph, line, sentence, word.
var separators = []string{"\n\n", "\n", ". ", " "}

// Chunk splits text on the coarsest natural boundary that keeps every chunk
// within opts.MaxTokens. Whitespace-only input yields no chunks.
func Chunk(text string, opts Options) []TextChunk {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.OverlapTokens < 0 || opts.OverlapTokens >= opts.MaxTokens {
		opts.OverlapTokens = 0
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	maxChars := tokenizer.CharsForTokens(opts.MaxTokens)
	overlapChars := tokenizer.CharsForTokens(opts.OverlapTokens)
	units := splitUnits(text, separators, maxChars)

	var (
		chunks  []TextChunk
		current []string
		size    int
	)
	flush := func() {
		content := strings.TrimSpace(strings.Join(current, ""))
		if content == "" {
			return
		}
		chunks = append(chunks, TextChunk{
			Content:    content,
			Index:      len(chunks),
			TokenCount: tokenizer.EstimateTokens(content),
		})
	}

	for _, u := range units {
		n := utf8.RuneCountInString(u)
		if size+n > maxChars && len(current) > 0 {
			flush()
			current, size = overlapTail(current, overlapChars, maxChars-n)
		}
		current = append(current, u)
		size += n
	}
	if len(current) > 0 {
		flush()
	}
	return chunks
}

// overlapTail keeps the last units of a flushed chunk, up to limit characters
// and never more than room, so the next chunk stays within bounds.
func overlapTail(units []string, limit, room int) ([]string, int) {
	if limit <= 0 || room <= 0 {
		return nil, 0
	}
	if room < limit {
		limit = room
	}
	size := 0
	start := len(units)
	for i := len(units) - 1; i >= 0; i-- {
		n := utf8.RuneCountInString(units[i])
		if size+n > limit {
			break
		}
		size += n
		start = i
	}
	tail := make([]string, len(units)-start)
	copy(tail, units[start:])
	return tail, size
}

// splitUnits breaks text into pieces no longer than maxChars runes, keeping the
// separator attached to the end of each piece so joining restores the text.
func splitUnits(text string, seps []string, maxChars int) []string {
	if utf8.RuneCountInString(text) <= maxChars {
		return []string{text}
	}
	if len(seps) == 0 {
		return hardSplit(text, maxChars)
	}

	var out []string
	for _, part := range strings.SplitAfter(text, seps[0]) {
		if part == "" {
			continue
		}
		out = append(out, splitUnits(part, seps[1:], maxChars)...)
	}
	return out
}

func hardSplit(text string, maxChars int) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += maxChars {
		end := min(start+maxChars, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}
