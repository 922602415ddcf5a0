package ragdex

import (
	"context"
	"fmt"

	domret "github.com/kailas-cloud/ragdex/internal/domain/retrieval"
	chatuc "github.com/kailas-cloud/ragdex/internal/usecase/chat"
)

// Answer is one completed exchange.
type Answer struct {
	SessionID          string
	Text               string
	Cited              []Retrieved
	DroppedChunks      int
	FewerThanRequested bool
	PromptTokens       int
	CompletionTokens   int
}

// AskBuilder is a fluent builder for one grounded question.
type AskBuilder struct {
	api *ChatAPI

	query   string
	session string
	index   string
	topK    int

	filters      []filterCond
	instructions string
}

type filterCond struct {
	key   string
	value string
}

// Session continues an existing conversation. Empty starts a new one.
func (b *AskBuilder) Session(id string) *AskBuilder {
	b.session = id
	return b
}

// Index names the index to ground against. Empty uses the client default.
func (b *AskBuilder) Index(name string) *AskBuilder {
	b.index = name
	return b
}

// TopK sets how many context chunks to retrieve for this question.
func (b *AskBuilder) TopK(k int) *AskBuilder {
	b.topK = k
	return b
}

// Where restricts retrieval to chunks whose tag matches exactly.
// Multiple conditions combine with AND.
func (b *AskBuilder) Where(key, value string) *AskBuilder {
	b.filters = append(b.filters, filterCond{key: key, value: value})
	return b
}

// Instructions replaces the grounding preamble for this question only.
func (b *AskBuilder) Instructions(text string) *AskBuilder {
	b.instructions = text
	return b
}

// Do asks the question and returns the completed exchange.
func (b *AskBuilder) Do(ctx context.Context) (Answer, error) {
	filter, err := b.buildFilter()
	if err != nil {
		return Answer{}, fmt.Errorf("ask: %w", err)
	}

	ans, err := b.api.c.chatSvc.Ask(ctx, chatuc.Question{
		SessionID:    b.session,
		Index:        b.index,
		Query:        b.query,
		TopK:         b.topK,
		Filter:       filter,
		Instructions: b.instructions,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("ask: %w", err)
	}

	return Answer{
		SessionID:          ans.SessionID,
		Text:               ans.Text,
		Cited:              fromRetrieved(ans.Cited),
		DroppedChunks:      ans.DroppedChunks,
		FewerThanRequested: ans.FewerThanRequested,
		PromptTokens:       ans.PromptTokens,
		CompletionTokens:   ans.CompletionTokens,
	}, nil
}

func (b *AskBuilder) buildFilter() (domret.Filter, error) {
	if len(b.filters) == 0 {
		return domret.Filter{}, nil
	}
	matches := make([]domret.Match, len(b.filters))
	for i, f := range b.filters {
		m, err := domret.NewMatch(f.key, f.value)
		if err != nil {
			return domret.Filter{}, fmt.Errorf("filter %q: %w", f.key, err)
		}
		matches[i] = m
	}
	return domret.NewFilter(matches...)
}
