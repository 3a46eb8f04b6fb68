// This file contains the NativeTranscriber backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/medsift/pkg/provider/stt"
	"github.com/MrWong99/medsift/pkg/types"
)

var _ stt.Transcriber = (*NativeTranscriber)(nil)

// NativeTranscriber implements [stt.Transcriber] using the whisper.cpp Go
// bindings. The model is loaded once and shared; each call creates its own
// whisper context.
type NativeTranscriber struct {
	model    whisperlib.Model
	language string
	format   stt.Format

	// sem bounds concurrent inferences; whisper.cpp is CPU bound.
	sem chan struct{}

	closeOnce sync.Once
}

// NativeOption is a functional option for configuring a NativeTranscriber.
type NativeOption func(*NativeTranscriber)

// WithNativeLanguage sets the language code for transcription. Defaults to
// "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(n *NativeTranscriber) { n.language = lang }
}

// WithNativeFormat sets the format assumed for raw PCM input.
func WithNativeFormat(f stt.Format) NativeOption {
	return func(n *NativeTranscriber) { n.format = f }
}

// WithNativeConcurrency caps the number of simultaneous inferences.
// Defaults to 2.
func WithNativeConcurrency(n int) NativeOption {
	return func(t *NativeTranscriber) {
		if n > 0 {
			t.sem = make(chan struct{}, n)
		}
	}
}

// NewNative loads the whisper.cpp model at modelPath. The caller must call
// Close when done.
func NewNative(modelPath string, opts ...NativeOption) (*NativeTranscriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	n := &NativeTranscriber{
		model:    model,
		language: defaultLanguage,
		format:   stt.DefaultFormat,
		sem:      make(chan struct{}, 2),
	}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Close releases the whisper model.
func (n *NativeTranscriber) Close() error {
	var err error
	n.closeOnce.Do(func() {
		if n.model != nil {
			err = n.model.Close()
		}
	})
	return err
}

// Transcribe implements [stt.Transcriber].
func (n *NativeTranscriber) Transcribe(ctx context.Context, audio []byte) (types.Transcription, error) {
	if len(audio) == 0 {
		return types.Transcription{}, stt.ErrEmptyAudio
	}
	pcm, f, ok := stt.DecodeAudio(audio, n.format)
	if !ok {
		return types.Transcription{}, errors.New("whisper: unsupported audio: need 16-bit PCM or WAV")
	}

	select {
	case n.sem <- struct{}{}:
		defer func() { <-n.sem }()
	case <-ctx.Done():
		return types.Transcription{}, fmt.Errorf("whisper: %w", ctx.Err())
	}

	samples := resample(pcmToFloat32Mono(pcm, f.Channels), f.SampleRate, whisperSampleRate)

	// Contexts are not thread-safe; the model is.
	wctx, err := n.model.NewContext()
	if err != nil {
		return types.Transcription{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(n.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", n.language, "error", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return types.Transcription{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	out := types.Transcription{Language: n.language}
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return types.Transcription{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		out.Segments = append(out.Segments, types.Segment{
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
			Text:  text,
		})
	}
	return stt.Finish(out, f.Duration(pcm)), nil
}
