// Package deepgram provides a Deepgram-backed [stt.Transcriber] using the
// pre-recorded REST API (POST /v1/listen).
//
// Utterance segmentation is requested so each returned utterance maps onto
// one segment. When the response carries no utterances the channel transcript
// becomes a single segment spanning the word timings.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/medsift/pkg/provider/stt"
	"github.com/MrWong99/medsift/pkg/types"
)

const (
	defaultBaseURL  = "https://api.deepgram.com"
	defaultModel    = "nova-3-medical"
	defaultLanguage = "en"
)

var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring the Deepgram Transcriber.
type Option func(*Transcriber)

// WithModel sets the Deepgram model (e.g., "nova-3", "nova-3-medical").
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithLanguage sets the language code for recognition.
func WithLanguage(language string) Option {
	return func(t *Transcriber) {
		t.language = language
	}
}

// WithBaseURL overrides the API host. Used by tests and proxies.
func WithBaseURL(u string) Option {
	return func(t *Transcriber) {
		t.baseURL = strings.TrimRight(u, "/")
	}
}

// WithFormat sets the format assumed for raw PCM input.
func WithFormat(f stt.Format) Option {
	return func(t *Transcriber) {
		t.format = f
	}
}

// Transcriber implements [stt.Transcriber] backed by Deepgram.
type Transcriber struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	format     stt.Format
	httpClient *http.Client
}

// New creates a Deepgram Transcriber. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	t := &Transcriber{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		language:   defaultLanguage,
		format:     stt.DefaultFormat,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// listenResponse is the subset of the pre-recorded response we read.
type listenResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string `json:"transcript"`
				Words      []struct {
					Start float64 `json:"start"`
					End   float64 `json:"end"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Transcript string  `json:"transcript"`
		} `json:"utterances"`
	} `json:"results"`
}

// Transcribe implements [stt.Transcriber].
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (types.Transcription, error) {
	if len(audio) == 0 {
		return types.Transcription{}, stt.ErrEmptyAudio
	}

	body := audio
	var measured float64
	if pcm, f, ok := stt.DecodeAudio(audio, t.format); ok {
		measured = f.Duration(pcm)
		if !stt.IsWAV(audio) {
			body = stt.EncodeWAV(pcm, f)
		}
	}

	u, err := url.Parse(t.baseURL + "/v1/listen")
	if err != nil {
		return types.Transcription{}, fmt.Errorf("deepgram: build URL: %w", err)
	}
	q := u.Query()
	q.Set("model", t.model)
	q.Set("language", t.language)
	q.Set("punctuate", "true")
	q.Set("utterances", "true")
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return types.Transcription{}, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+t.apiKey)
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return types.Transcription{}, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.Transcription{}, fmt.Errorf("deepgram: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var lr listenResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return types.Transcription{}, fmt.Errorf("deepgram: parse JSON response: %w", err)
	}

	out := types.Transcription{Language: t.language, DurationSeconds: lr.Metadata.Duration}
	for _, u := range lr.Results.Utterances {
		if text := strings.TrimSpace(u.Transcript); text != "" {
			out.Segments = append(out.Segments, types.Segment{Start: u.Start, End: u.End, Text: text})
		}
	}
	if len(lr.Results.Channels) > 0 {
		ch := lr.Results.Channels[0]
		if ch.DetectedLanguage != "" {
			out.Language = ch.DetectedLanguage
		}
		if len(out.Segments) == 0 && len(ch.Alternatives) > 0 {
			alt := ch.Alternatives[0]
			if text := strings.TrimSpace(alt.Transcript); text != "" {
				seg := types.Segment{Text: text, End: measured}
				if n := len(alt.Words); n > 0 {
					seg.Start, seg.End = alt.Words[0].Start, alt.Words[n-1].End
				}
				out.Segments = []types.Segment{seg}
			}
		}
	}
	return stt.Finish(out, measured), nil
}
