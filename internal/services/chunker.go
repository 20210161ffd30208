package services

import (
	"fmt"
	"iter"
	"math"
	"regexp"
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
)

const (
	DefaultWindowTokens    = 512
	DefaultOverlapFraction = 0.20
)

var (
	hyphenBreakRe   = regexp.MustCompile(`(\w)-\n(\w)`)
	horizontalWSRe  = regexp.MustCompile(`[ \t\f\v]+`)
	excessNewlineRe = regexp.MustCompile(`\n{3,}`)
)

// ChunkerConfig sets the window size and the fraction of it shared between
// consecutive chunks
type ChunkerConfig struct {
	WindowTokens    int
	OverlapFraction float64
}

// Token is a token of the cleaned text with its byte span
type Token struct {
	Text  string
	Start int
	End   int
}

// Chunk is one window of the token stream
type Chunk struct {
	Index      int    `json:"index"`
	TokenStart int    `json:"token_start"`
	TokenEnd   int    `json:"token_end"` // exclusive
	ByteStart  int    `json:"byte_start"`
	ByteEnd    int    `json:"byte_end"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// Chunker splits extracted text into fixed-size overlapping token windows
type Chunker struct {
	window  int
	overlap int
}

// NewChunker validates the config. Zero values take the defaults.
func NewChunker(cfg ChunkerConfig) (*Chunker, error) {
	if cfg.WindowTokens == 0 {
		cfg.WindowTokens = DefaultWindowTokens
	}
	if cfg.OverlapFraction == 0 {
		cfg.OverlapFraction = DefaultOverlapFraction
	}
	if cfg.WindowTokens < 1 {
		return nil, fmt.Errorf("window must be at least 1 token, got %d", cfg.WindowTokens)
	}
	if cfg.OverlapFraction < 0 || cfg.OverlapFraction >= 1 {
		return nil, fmt.Errorf("overlap fraction must be in [0,1), got %v", cfg.OverlapFraction)
	}

	// the epsilon keeps exact products like 10*0.2 from rounding up
	overlap := int(math.Ceil(float64(cfg.WindowTokens)*cfg.OverlapFraction - 1e-9))
	if overlap >= cfg.WindowTokens {
		return nil, fmt.Errorf("overlap of %d tokens leaves no progress in a %d token window", overlap, cfg.WindowTokens)
	}

	return &Chunker{window: cfg.WindowTokens, overlap: overlap}, nil
}

// Window returns the maximum tokens per chunk
func (c *Chunker) Window() int { return c.window }

// Overlap returns the tokens shared by consecutive chunks
func (c *Chunker) Overlap() int { return c.overlap }

// Step returns the distance in tokens between consecutive chunk starts
func (c *Chunker) Step() int { return c.window - c.overlap }

// Split cleans and tokenizes text. It fails with ErrEmptyContent when no
// tokens remain.
func (c *Chunker) Split(text string) (*ChunkSequence, error) {
	cleaned := CleanText(text)
	tokens, err := Tokenize(cleaned)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrValidation, "chunk_text", "tokenization failed", err)
	}
	if len(tokens) == 0 {
		return nil, apperrors.New(apperrors.ErrEmptyContent, "chunk_text", "text has no tokens", nil)
	}

	return &ChunkSequence{
		text:   cleaned,
		tokens: tokens,
		window: c.window,
		step:   c.Step(),
	}, nil
}

// CleanText joins hyphenated line breaks, collapses runs of horizontal
// whitespace and limits blank lines to one.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = hyphenBreakRe.ReplaceAllString(text, "$1$2")
	text = horizontalWSRe.ReplaceAllString(text, " ")
	text = excessNewlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Tokenize splits text into word and punctuation tokens and locates each in text
func Tokenize(text string) ([]Token, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, err
	}

	raw := doc.Tokens()
	tokens := make([]Token, 0, len(raw))
	cursor := 0
	for _, tok := range raw {
		if tok.Text == "" {
			continue
		}
		idx := strings.Index(text[cursor:], tok.Text)
		if idx < 0 {
			// normalized by the tokenizer; keep it with an empty span
			tokens = append(tokens, Token{Text: tok.Text, Start: cursor, End: cursor})
			continue
		}
		start := cursor + idx
		end := start + len(tok.Text)
		tokens = append(tokens, Token{Text: tok.Text, Start: start, End: end})
		cursor = end
	}
	return tokens, nil
}

// ChunkSequence is the lazily built set of windows over one text. Iterating
// it again yields the same chunks.
type ChunkSequence struct {
	text   string
	tokens []Token
	window int
	step   int
}

// Len returns the number of chunks the sequence yields
func (s *ChunkSequence) Len() int {
	n := len(s.tokens)
	if n <= s.window {
		return 1
	}
	return 1 + (n-s.window+s.step-1)/s.step
}

// TokenCount returns the number of tokens in the cleaned text
func (s *ChunkSequence) TokenCount() int {
	return len(s.tokens)
}

// Tokens returns a copy of the token stream
func (s *ChunkSequence) Tokens() []Token {
	out := make([]Token, len(s.tokens))
	copy(out, s.tokens)
	return out
}

// All yields chunks in order. Iteration stops after the first window that
// reaches the end of the token stream.
func (s *ChunkSequence) All() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		n := len(s.tokens)
		for index, start := 0, 0; start < n; index, start = index+1, start+s.step {
			end := min(start+s.window, n)
			if !yield(s.chunk(index, start, end)) {
				return
			}
			if end == n {
				return
			}
		}
	}
}

// Collect materializes the sequence
func (s *ChunkSequence) Collect() []Chunk {
	chunks := make([]Chunk, 0, s.Len())
	for c := range s.All() {
		chunks = append(chunks, c)
	}
	return chunks
}

func (s *ChunkSequence) chunk(index, start, end int) Chunk {
	byteStart := s.tokens[start].Start
	byteEnd := s.tokens[end-1].End
	return Chunk{
		Index:      index,
		TokenStart: start,
		TokenEnd:   end,
		ByteStart:  byteStart,
		ByteEnd:    byteEnd,
		Text:       s.text[byteStart:byteEnd],
		TokenCount: end - start,
	}
}
