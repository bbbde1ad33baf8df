package textsplitter

import (
	"fmt"
	"strings"

	"github.com/datakita/querybridge/config"
)

// TextSplitter cuts a document into bounded chunks for embedding.
type TextSplitter interface {
	SplitText(text string) ([]string, error)
}

// NewTextSplitter creates a splitter from configuration.
func NewTextSplitter(cfg *config.SplitterConfig) (TextSplitter, error) {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 500
	}
	overlap := cfg.ChunkOverlap
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	switch strings.ToLower(cfg.Provider) {
	case "", "recursive":
		return &RecursiveCharacterSplitter{
			ChunkSize:    chunkSize,
			ChunkOverlap: overlap,
			Separators:   []string{"\n\n", "\n", " ", ""},
		}, nil
	case "token":
		return NewTokenSplitter(chunkSize, overlap)
	default:
		return nil, fmt.Errorf("unknown splitter provider: %s", cfg.Provider)
	}
}

// RecursiveCharacterSplitter splits on progressively finer separators until
// every chunk fits the size budget.
type RecursiveCharacterSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

func (s *RecursiveCharacterSplitter) SplitText(text string) ([]string, error) {
	return s.split(text, s.Separators), nil
}

func (s *RecursiveCharacterSplitter) split(text string, separators []string) []string {
	if len(text) <= s.ChunkSize {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}
	if len(separators) == 0 {
		return s.windows(text)
	}

	sep := separators[0]
	rest := separators[1:]
	if sep == "" {
		return s.windows(text)
	}

	parts := strings.Split(text, sep)
	var chunks []string
	var current strings.Builder
	flush := func() {
		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" {
			if len(trimmed) > s.ChunkSize {
				chunks = append(chunks, s.split(trimmed, rest)...)
			} else {
				chunks = append(chunks, trimmed)
			}
		}
		current.Reset()
	}
	for _, part := range parts {
		if current.Len() > 0 && current.Len()+len(sep)+len(part) > s.ChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(part)
	}
	flush()
	return chunks
}

// windows is the last resort: fixed-size character windows with overlap.
func (s *RecursiveCharacterSplitter) windows(text string) []string {
	step := s.ChunkSize - s.ChunkOverlap
	if step <= 0 {
		step = s.ChunkSize
	}
	var out []string
	for start := 0; start < len(text); start += step {
		end := start + s.ChunkSize
		if end > len(text) {
			end = len(text)
		}
		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			out = append(out, piece)
		}
		if end == len(text) {
			break
		}
	}
	return out
}

// Piece is a chunk annotated with the structural heading it fell under.
type Piece struct {
	Text    string
	Heading string
}

// SplitWithHeadings sections the text by markdown-style headings, splits each
// section, and carries the section heading onto every resulting chunk.
func SplitWithHeadings(ts TextSplitter, text string) ([]Piece, error) {
	type section struct {
		heading string
		body    strings.Builder
	}

	sections := []*section{{}}
	for _, line := range strings.Split(text, "\n") {
		if h := headingOf(line); h != "" {
			sections = append(sections, &section{heading: h})
			continue
		}
		cur := sections[len(sections)-1]
		cur.body.WriteString(line)
		cur.body.WriteString("\n")
	}

	var pieces []Piece
	for _, sec := range sections {
		body := strings.TrimSpace(sec.body.String())
		if body == "" {
			continue
		}
		chunks, err := ts.SplitText(body)
		if err != nil {
			return nil, err
		}
		for _, chunk := range chunks {
			pieces = append(pieces, Piece{Text: chunk, Heading: sec.heading})
		}
	}
	return pieces, nil
}

func headingOf(line string) string {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return ""
	}
	return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
}
