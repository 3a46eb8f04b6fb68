// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A Transcriber turns one self-contained audio buffer into a list of
// timestamped segments. Timestamps are relative to the start of the buffer;
// callers that stitch several buffers together (the live session pipeline)
// shift them by their own running offset.
//
// Audio is either a RIFF/WAV file or raw 16-bit signed little-endian PCM. Use
// [DecodeAudio] to normalise both into PCM plus format, and [EncodeWAV] to
// wrap PCM for backends that want a file upload.
//
// Implementations must be safe for concurrent use: several live sessions may
// transcribe at the same time.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/medsift/pkg/types"
)

// ErrEmptyAudio is returned when Transcribe is called with no audio data.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Transcriber is the abstraction over any batch speech-to-text backend.
type Transcriber interface {
	// Transcribe converts audio into segments. It may block for several
	// seconds and must honour ctx cancellation. Any error is chunk-level:
	// callers treat it as a failed chunk, not a failed session.
	Transcribe(ctx context.Context, audio []byte) (types.Transcription, error)
}

// Finish fills in derived fields of a transcription: segment ends earlier
// than their starts are clamped, and a missing duration falls back to
// fallback, then to the end of the last segment.
func Finish(t types.Transcription, fallback float64) types.Transcription {
	for i := range t.Segments {
		if t.Segments[i].End < t.Segments[i].Start {
			t.Segments[i].End = t.Segments[i].Start
		}
	}
	if t.DurationSeconds <= 0 {
		t.DurationSeconds = fallback
	}
	if t.DurationSeconds <= 0 && len(t.Segments) > 0 {
		t.DurationSeconds = t.Segments[len(t.Segments)-1].End
	}
	if t.Segments == nil {
		t.Segments = []types.Segment{}
	}
	return t
}
