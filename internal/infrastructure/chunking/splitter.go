package chunking

import (
	"regexp"
	"strings"
)

const (
	defaultChunkSize = 500
	defaultOverlap   = 100
	defaultMinSize   = 50
)

var (
	// Section headings such as "§ 2113. Bank robbery and incidental crimes".
	sectionHeader = regexp.MustCompile(`(?m)^[ \t]*§ \d+[A-Za-z]?\.`)
	sentenceEnd   = regexp.MustCompile(`[.;:!?]["')\]]?\s+`)
)

// Splitter cuts statute text at section headings first, then packs sentences
// into chunks of at most ChunkSize runes. Consecutive chunks of one section
// share Overlap runes and fragments shorter than MinSize are dropped.
type Splitter struct {
	ChunkSize int
	Overlap   int
	MinSize   int
}

func NewSplitter(chunkSize, overlap, minSize int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	if minSize < 0 {
		minSize = 0
	}
	if minSize > chunkSize {
		minSize = defaultMinSize
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
		MinSize:   minSize,
	}
}

func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	out := make([]string, 0, 8)
	for _, section := range splitSections(text) {
		out = append(out, s.splitSection(section)...)
	}
	return out
}

func splitSections(text string) []string {
	starts := sectionHeader.FindAllStringIndex(text, -1)
	if len(starts) == 0 {
		return []string{text}
	}

	out := make([]string, 0, len(starts)+1)
	prev := 0
	for _, loc := range starts {
		if loc[0] > prev {
			out = append(out, text[prev:loc[0]])
		}
		prev = loc[0]
	}
	out = append(out, text[prev:])
	return out
}

func (s *Splitter) splitSection(section string) []string {
	section = strings.TrimSpace(section)
	if section == "" {
		return nil
	}
	if runeLen(section) <= s.ChunkSize {
		if runeLen(section) < s.MinSize {
			return nil
		}
		return []string{section}
	}

	packed := make([]string, 0, 4)
	var current strings.Builder
	flush := func() {
		chunk := strings.TrimSpace(current.String())
		current.Reset()
		if runeLen(chunk) >= s.MinSize {
			packed = append(packed, chunk)
		}
	}

	for _, sentence := range splitSentences(section) {
		if runeLen(sentence) > s.ChunkSize {
			flush()
			for _, piece := range s.window(sentence) {
				if runeLen(piece) >= s.MinSize {
					packed = append(packed, piece)
				}
			}
			continue
		}
		if current.Len() > 0 && runeLen(current.String())+1+runeLen(sentence) > s.ChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	flush()

	return s.addOverlap(packed)
}

// window is the fixed rune-window fallback for sentences longer than a chunk.
func (s *Splitter) window(text string) []string {
	runes := []rune(text)
	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

func (s *Splitter) addOverlap(chunks []string) []string {
	if s.Overlap == 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]string, 0, len(chunks))
	out = append(out, chunks[0])
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		size := s.Overlap
		if size > len(prev) {
			size = len(prev)
		}
		tail := strings.TrimSpace(string(prev[len(prev)-size:]))
		out = append(out, strings.TrimSpace(tail+" "+chunks[i]))
	}
	return out
}

func splitSentences(text string) []string {
	ends := sentenceEnd.FindAllStringIndex(text, -1)
	out := make([]string, 0, len(ends)+1)
	prev := 0
	for _, loc := range ends {
		sentence := strings.TrimSpace(text[prev:loc[1]])
		if sentence != "" {
			out = append(out, sentence)
		}
		prev = loc[1]
	}
	if tail := strings.TrimSpace(text[prev:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
