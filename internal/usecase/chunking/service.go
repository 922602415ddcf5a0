// Package chunking splits raw document text into ordered, bounded chunks.
// Two strategies are available: a fixed-size sliding window with overlap,
// and sentence-bounded aggregation up to a character budget.
package chunking

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/chunk"
)

// Strategy selects the chunking algorithm.
type Strategy string

const (
	// StrategyFixedWindow slides a fixed-size character window with overlap.
	StrategyFixedWindow Strategy = "fixed_window"
	// StrategySentenceBound aggregates whole sentences up to a character budget.
	StrategySentenceBound Strategy = "sentence_bound"
)

// Default parameters, tuned for short-paragraph corpora.
const (
	DefaultChunkSize = 200
	DefaultOverlap   = 50
	DefaultMaxChars  = 300
)

// Params carries the per-strategy knobs. FixedWindow reads ChunkSize and
// Overlap; SentenceBound reads MaxChars.
type Params struct {
	ChunkSize int
	Overlap   int
	MaxChars  int
}

// DefaultParams returns the default knobs for both strategies.
func DefaultParams() Params {
	return Params{
		ChunkSize: DefaultChunkSize,
		Overlap:   DefaultOverlap,
		MaxChars:  DefaultMaxChars,
	}
}

// Service chunks documents with a strategy fixed at construction.
type Service struct {
	strategy Strategy
	params   Params
}

// New creates a chunking service. Parameters are validated up front so a
// misconfigured pipeline fails at startup, not on the first document.
func New(strategy Strategy, params Params) (*Service, error) {
	switch strategy {
	case StrategyFixedWindow:
		if err := validateWindow(params.ChunkSize, params.Overlap); err != nil {
			return nil, err
		}
	case StrategySentenceBound:
		if err := validateMaxChars(params.MaxChars); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q: %w", strategy, domain.ErrInvalidParameter)
	}
	return &Service{strategy: strategy, params: params}, nil
}

// Strategy returns the configured strategy name.
func (s *Service) Strategy() Strategy { return s.strategy }

// Chunk splits text using the configured strategy. Empty or whitespace-only
// input yields zero chunks and no error.
func (s *Service) Chunk(text string) ([]chunk.Chunk, error) {
	switch s.strategy {
	case StrategySentenceBound:
		return SentenceBound(text, s.params.MaxChars)
	default:
		return FixedWindow(text, s.params.ChunkSize, s.params.Overlap)
	}
}

// FixedWindow slides a chunkSize-character window across text, each window
// after the first starting overlap characters before the previous one ended.
// The final window is kept even when shorter than chunkSize. Windows that
// trim to nothing are skipped so chunk sequence indexes stay gap-free.
func FixedWindow(text string, chunkSize, overlap int) ([]chunk.Chunk, error) {
	if err := validateWindow(chunkSize, overlap); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	step := chunkSize - overlap
	chunks := make([]chunk.Chunk, 0, (len(runes)+step-1)/step)

	seq := 0
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		window := strings.TrimSpace(string(runes[start:end]))
		if window == "" {
			continue
		}
		c, err := chunk.New(seq, window)
		if err != nil {
			return nil, fmt.Errorf("build chunk %d: %w", seq, err)
		}
		chunks = append(chunks, c)
		seq++
	}
	return chunks, nil
}

// sentenceBoundary matches sentence-terminating punctuation followed by
// whitespace. The capture group marks where the sentence text ends so the
// punctuation stays attached to its sentence.
var sentenceBoundary = regexp.MustCompile(`([.!?]+)\s+`)

// SentenceBound splits text into sentences and greedily packs consecutive
// sentences into chunks of at most maxChars characters. A sentence that
// would overflow the running buffer starts a new one; a single sentence
// longer than maxChars becomes an oversized chunk of its own. The trailing
// buffer is emitted even when under budget.
func SentenceBound(text string, maxChars int) ([]chunk.Chunk, error) {
	if err := validateMaxChars(maxChars); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	sentences := splitSentences(text)

	var chunks []chunk.Chunk
	var buf strings.Builder
	bufLen := 0

	flush := func() error {
		if bufLen == 0 {
			return nil
		}
		c, err := chunk.New(len(chunks), buf.String())
		if err != nil {
			return fmt.Errorf("build chunk %d: %w", len(chunks), err)
		}
		chunks = append(chunks, c)
		buf.Reset()
		bufLen = 0
		return nil
	}

	for _, sentence := range sentences {
		sentLen := utf8.RuneCountInString(sentence)
		// +1 accounts for the joining space.
		if bufLen > 0 && bufLen+sentLen+1 > maxChars {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		if bufLen > 0 {
			buf.WriteByte(' ')
			bufLen++
		}
		buf.WriteString(sentence)
		bufLen += sentLen
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// splitSentences cuts text at sentence boundaries, keeping the terminating
// punctuation with its sentence and dropping whitespace-only remainders.
func splitSentences(text string) []string {
	matches := sentenceBoundary.FindAllStringSubmatchIndex(text, -1)
	sentences := make([]string, 0, len(matches)+1)

	prev := 0
	for _, m := range matches {
		// m[3] is the end of the punctuation group.
		s := strings.TrimSpace(text[prev:m[3]])
		if s != "" {
			sentences = append(sentences, s)
		}
		prev = m[1]
	}
	if tail := strings.TrimSpace(text[prev:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func validateWindow(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d: %w", chunkSize, domain.ErrInvalidParameter)
	}
	if overlap < 0 {
		return fmt.Errorf("overlap must be non-negative, got %d: %w", overlap, domain.ErrInvalidParameter)
	}
	if overlap >= chunkSize {
		return fmt.Errorf("overlap %d must be smaller than chunk size %d: %w", overlap, chunkSize, domain.ErrInvalidParameter)
	}
	return nil
}

func validateMaxChars(maxChars int) error {
	if maxChars <= 0 {
		return fmt.Errorf("max chars must be positive, got %d: %w", maxChars, domain.ErrInvalidParameter)
	}
	return nil
}
