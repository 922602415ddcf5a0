package prompt

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/turn"
)

// DefaultInstructions is the grounding preamble used when the caller does
// not supply one.
const DefaultInstructions = "You are an assistant that answers questions using ONLY the provided context. " +
	"If the answer is not in the context, say you do not have that information. " +
	"Cite the chunk numbers you used."

// chunkTag is the citation tag format for a context chunk.
const chunkTag = "[Chunk %d]: %s"

// ContextChunk is a retrieved chunk placed in the context section, tagged
// with its sequence index so the answer can cite it.
type ContextChunk struct {
	seqIndex int
	text     string
}

// NewContextChunk creates a context section entry.
func NewContextChunk(seqIndex int, text string) ContextChunk {
	return ContextChunk{seqIndex: seqIndex, text: text}
}

// SequenceIndex returns the chunk's position in its source document.
func (c ContextChunk) SequenceIndex() int { return c.seqIndex }

// Text returns the chunk text.
func (c ContextChunk) Text() string { return c.text }

// Tagged returns the chunk rendered with its citation tag.
func (c ContextChunk) Tagged() string { return fmt.Sprintf(chunkTag, c.seqIndex, c.text) }

// Payload is an assembled grounded prompt (immutable value object).
// Sections hold a fixed order: grounding instructions, ranked context
// chunks, windowed history, current query.
type Payload struct {
	instructions  string
	contexts      []ContextChunk
	history       []turn.Turn
	query         string
	droppedChunks int
}

// New creates a Payload.
func New(instructions string, contexts []ContextChunk, history []turn.Turn, query string, dropped int) Payload {
	return Payload{
		instructions:  instructions,
		contexts:      contexts,
		history:       history,
		query:         query,
		droppedChunks: dropped,
	}
}

// Instructions returns the grounding instructions.
func (p *Payload) Instructions() string { return p.instructions }

// Contexts returns the context chunks in rank order.
func (p *Payload) Contexts() []ContextChunk { return p.contexts }

// History returns the windowed conversation history.
func (p *Payload) History() []turn.Turn { return p.history }

// Query returns the current user query.
func (p *Payload) Query() string { return p.query }

// DroppedChunks returns how many retrieved chunks were dropped to fit the
// assembly budget.
func (p *Payload) DroppedChunks() int { return p.droppedChunks }

// ContextSection renders the tagged chunks joined by blank lines.
func (p *Payload) ContextSection() string {
	parts := make([]string, len(p.contexts))
	for i, c := range p.contexts {
		parts[i] = c.Tagged()
	}
	return strings.Join(parts, "\n\n")
}

// Messages renders the payload as an ordered chat message sequence:
// a system message (instructions + context), the history turns, then the
// query as the final user message.
func (p *Payload) Messages() []domain.Message {
	msgs := make([]domain.Message, 0, len(p.history)+2)

	system := p.instructions
	if len(p.contexts) > 0 {
		system += "\n\nCONTEXT:\n" + p.ContextSection()
	}
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: system})

	for _, t := range p.history {
		msgs = append(msgs, domain.Message{Role: string(t.Role()), Content: t.Content()})
	}

	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: p.query})
	return msgs
}
