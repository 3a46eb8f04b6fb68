// Package mock provides a test double for [llm.Provider].
//
// Responses are consumed from Replies in order; once exhausted the last
// reply repeats. Example:
//
//	p := &mock.Provider{Replies: []mock.Reply{
//	    {Content: "not json"},
//	    {Content: `{"visit_summary": "..."}`},
//	}}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/medsift/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Reply is one scripted Complete outcome.
type Reply struct {
	Content string
	Err     error
}

// Provider is a mock implementation of [llm.Provider].
type Provider struct {
	mu sync.Mutex

	// Replies is consumed front to back.
	Replies []Reply

	calls []llm.CompletionRequest
	next  int
}

// Complete records req and returns the next scripted reply. With no replies
// configured it returns an empty response.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req.Messages = slices.Clone(req.Messages)
	p.calls = append(p.calls, req)
	if len(p.Replies) == 0 {
		return &llm.CompletionResponse{}, nil
	}
	r := p.Replies[min(p.next, len(p.Replies)-1)]
	p.next++
	if r.Err != nil {
		return nil, r.Err
	}
	return &llm.CompletionResponse{Content: r.Content}, nil
}

// Calls returns a copy of every request received.
func (p *Provider) Calls() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}
