// Package whisper provides whisper.cpp-backed transcribers.
//
// [Transcriber] talks to a running whisper-server binary over its REST API
// (POST /inference) and requests verbose_json output so that per-segment
// timestamps are available. [NativeTranscriber] links the whisper.cpp library
// directly through its Go bindings and needs no server.
//
// Usage:
//
//	t, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	)
//	tr, err := t.Transcribe(ctx, wavBytes)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/medsift/pkg/provider/stt"
	"github.com/MrWong99/medsift/pkg/types"
)

const defaultLanguage = "en"

var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with.
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) {
		t.language = lang
	}
}

// WithFormat sets the format assumed for raw PCM input. WAV input carries its
// own format. Defaults to 16 kHz mono.
func WithFormat(f stt.Format) Option {
	return func(t *Transcriber) {
		t.format = f
	}
}

// WithHTTPClient replaces the default client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transcriber) {
		t.httpClient = c
	}
}

// Transcriber implements [stt.Transcriber] against a whisper.cpp HTTP server.
type Transcriber struct {
	serverURL  string
	model      string
	language   string
	format     stt.Format
	httpClient *http.Client
}

// New creates a Transcriber for the whisper.cpp server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Transcriber, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	t := &Transcriber{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		format:     stt.DefaultFormat,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// verboseResponse is the subset of whisper.cpp's verbose_json we use.
type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe implements [stt.Transcriber]. Raw PCM is wrapped in a WAV
// container before upload; WAV input is sent unchanged.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (types.Transcription, error) {
	if len(audio) == 0 {
		return types.Transcription{}, stt.ErrEmptyAudio
	}

	wav := audio
	var measured float64
	if pcm, f, ok := stt.DecodeAudio(audio, t.format); ok {
		measured = f.Duration(pcm)
		if !stt.IsWAV(audio) {
			wav = stt.EncodeWAV(pcm, f)
		}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return types.Transcription{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return types.Transcription{}, fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"response_format": "verbose_json",
		"language":        t.language,
		"model":           t.model,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return types.Transcription{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return types.Transcription{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverURL+"/inference", &body)
	if err != nil {
		return types.Transcription{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return types.Transcription{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Transcription{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Transcription{}, fmt.Errorf("whisper: read response body: %w", err)
	}

	var vr verboseResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return types.Transcription{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	out := types.Transcription{Language: vr.Language, DurationSeconds: vr.Duration}
	if out.Language == "" {
		out.Language = t.language
	}
	for _, s := range vr.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		out.Segments = append(out.Segments, types.Segment{Start: s.Start, End: s.End, Text: text})
	}
	// Servers without verbose_json support only return text.
	if len(out.Segments) == 0 {
		if text := strings.TrimSpace(vr.Text); text != "" {
			out.Segments = []types.Segment{{Start: 0, End: measured, Text: text}}
		}
	}
	return stt.Finish(out, measured), nil
}
