package textsplitter

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenSplitter cuts text into windows of a fixed token count, matching the
// budget the embedding model sees rather than a character estimate.
type TokenSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	enc          *tiktoken.Tiktoken
}

func NewTokenSplitter(chunkSize, overlap int) (*TokenSplitter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load token encoding: %w", err)
	}
	return &TokenSplitter{ChunkSize: chunkSize, ChunkOverlap: overlap, enc: enc}, nil
}

func (s *TokenSplitter) SplitText(text string) ([]string, error) {
	tokens := s.enc.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil, nil
	}

	step := s.ChunkSize - s.ChunkOverlap
	if step <= 0 {
		step = s.ChunkSize
	}

	var out []string
	for start := 0; start < len(tokens); start += step {
		end := start + s.ChunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, s.enc.Decode(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}
	return out, nil
}
