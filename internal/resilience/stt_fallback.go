package resilience

import (
	"context"

	"github.com/MrWong99/medsift/pkg/provider/stt"
	"github.com/MrWong99/medsift/pkg/types"
)

// TranscriberFallback is an [stt.Transcriber] that fails over across several
// transcription backends.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

var _ stt.Transcriber = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a TranscriberFallback preferring primary.
func NewTranscriberFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another transcriber.
func (f *TranscriberFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Available reports whether any backend is accepting calls.
func (f *TranscriberFallback) Available() bool { return f.group.Available() }

// Transcribe runs on the first healthy backend. Empty audio is rejected up
// front so it does not count against any breaker.
func (f *TranscriberFallback) Transcribe(ctx context.Context, audio []byte) (types.Transcription, error) {
	if len(audio) == 0 {
		return types.Transcription{}, stt.ErrEmptyAudio
	}
	return ExecuteWithResult(ctx, f.group, func(t stt.Transcriber) (types.Transcription, error) {
		return t.Transcribe(ctx, audio)
	})
}
