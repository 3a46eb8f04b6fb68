// Package mock provides a test double for [stt.Transcriber].
//
// Results are served from a queue so a test can script a sequence of chunk
// transcriptions; once the queue is empty Result is returned.
//
// Example:
//
//	tr := &mock.Transcriber{Queue: []mock.Response{
//	    {Result: types.Transcription{DurationSeconds: 2, Segments: ...}},
//	    {Err: errors.New("boom")},
//	}}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/medsift/pkg/provider/stt"
	"github.com/MrWong99/medsift/pkg/types"
)

var _ stt.Transcriber = (*Transcriber)(nil)

// Response is one scripted Transcribe outcome.
type Response struct {
	Result types.Transcription
	Err    error
}

// Transcriber is a mock implementation of [stt.Transcriber].
type Transcriber struct {
	mu sync.Mutex

	// Queue is consumed front to back, one entry per call.
	Queue []Response

	// Result and Err are returned once Queue is exhausted.
	Result types.Transcription
	Err    error

	// Block, when non-nil, is received from before returning. Lets tests
	// hold a call in flight.
	Block chan struct{}

	calls [][]byte
}

// Transcribe records the call and returns the next scripted response.
func (m *Transcriber) Transcribe(ctx context.Context, audio []byte) (types.Transcription, error) {
	m.mu.Lock()
	m.calls = append(m.calls, slices.Clone(audio))
	resp := Response{Result: m.Result, Err: m.Err}
	if len(m.Queue) > 0 {
		resp = m.Queue[0]
		m.Queue = m.Queue[1:]
	}
	block := m.Block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return types.Transcription{}, ctx.Err()
		}
	}
	resp.Result.Segments = slices.Clone(resp.Result.Segments)
	return resp.Result, resp.Err
}

// Calls returns a copy of the audio passed to every call.
func (m *Transcriber) Calls() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallCount returns the number of Transcribe calls.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
