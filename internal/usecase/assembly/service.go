// Package assembly builds the grounded prompt payload: grounding
// instructions first, then retrieved chunks in rank order, then the
// conversation history and the current query. When the payload exceeds the
// character budget, the lowest-ranked chunks are dropped first; the
// instructions, history and query are never cut.
package assembly

import (
	"fmt"
	"unicode/utf8"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/prompt"
	domret "github.com/kailas-cloud/ragdex/internal/domain/retrieval"
	"github.com/kailas-cloud/ragdex/internal/domain/turn"
)

// DefaultBudgetChars bounds the assembled payload size. Roughly 1500 tokens
// for latin text, small enough for any chat model in the wild.
const DefaultBudgetChars = 6000

// chunkJoinLen is the blank line between rendered context chunks.
const chunkJoinLen = 2

// Service assembles prompt payloads.
type Service struct {
	instructions string
	budgetChars  int
}

// New creates an assembly service. Empty instructions fall back to the
// built-in grounding preamble; budgetChars <= 0 disables the budget.
func New(instructions string, budgetChars int) *Service {
	if instructions == "" {
		instructions = prompt.DefaultInstructions
	}
	return &Service{instructions: instructions, budgetChars: budgetChars}
}

// Assemble builds the payload for one query. retrieved must already be in
// rank order; instructions overrides the service default when non-empty.
// The returned payload reports how many chunks were dropped to fit the
// budget.
func (s *Service) Assemble(query string, retrieved []domret.RetrievedChunk, history []turn.Turn, instructions string) (prompt.Payload, error) {
	if query == "" {
		return prompt.Payload{}, fmt.Errorf("query is required: %w", domain.ErrInvalidParameter)
	}
	if instructions == "" {
		instructions = s.instructions
	}

	contexts := make([]prompt.ContextChunk, len(retrieved))
	chunkSizes := make([]int, len(retrieved))
	total := utf8.RuneCountInString(instructions) + utf8.RuneCountInString(query)
	for _, t := range history {
		total += utf8.RuneCountInString(t.Content())
	}
	for i := range retrieved {
		c := retrieved[i].Chunk()
		contexts[i] = prompt.NewContextChunk(c.SequenceIndex(), c.Text())
		chunkSizes[i] = utf8.RuneCountInString(contexts[i].Tagged()) + chunkJoinLen
		total += chunkSizes[i]
	}

	dropped := 0
	if s.budgetChars > 0 {
		for total > s.budgetChars && len(contexts) > 0 {
			last := len(contexts) - 1
			total -= chunkSizes[last]
			contexts = contexts[:last]
			chunkSizes = chunkSizes[:last]
			dropped++
		}
	}

	return prompt.New(instructions, contexts, history, query, dropped), nil
}
