package deepgram_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/medsift/pkg/provider/stt"
	"github.com/MrWong99/medsift/pkg/provider/stt/deepgram"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := deepgram.New(""); err == nil {
		t.Fatal("New(\"\"): want error, got nil")
	}
}

func TestTranscribe_Utterances(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/listen" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Token secret" {
			t.Errorf("Authorization = %q, want %q", got, "Token secret")
		}
		if got := r.URL.Query().Get("utterances"); got != "true" {
			t.Errorf("utterances = %q, want true", got)
		}
		body, _ := io.ReadAll(r.Body)
		if !stt.IsWAV(body) {
			t.Error("request body is not WAV")
		}
		_, _ = io.WriteString(w, `{
			"metadata": {"duration": 3.0},
			"results": {
				"channels": [{"alternatives": [{"transcript": "hi doctor thanks for coming"}]}],
				"utterances": [
					{"start": 0.1, "end": 0.9, "transcript": "hi doctor"},
					{"start": 2.0, "end": 2.9, "transcript": "thanks for coming"}
				]
			}
		}`)
	}))
	defer srv.Close()

	tr, err := deepgram.New("secret", deepgram.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := tr.Transcribe(context.Background(), make([]byte, 96000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(got.Segments) != 2 || got.Segments[1].Text != "thanks for coming" {
		t.Errorf("Segments = %+v", got.Segments)
	}
	if got.DurationSeconds != 3 {
		t.Errorf("DurationSeconds = %v, want 3", got.DurationSeconds)
	}
}

func TestTranscribe_AlternativeFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results": {"channels": [{"alternatives": [{
			"transcript": "take it with food",
			"words": [{"start": 0.5, "end": 0.7}, {"start": 1.0, "end": 1.4}]
		}]}]}}`)
	}))
	defer srv.Close()

	tr, _ := deepgram.New("k", deepgram.WithBaseURL(srv.URL))
	got, err := tr.Transcribe(context.Background(), make([]byte, 64000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(got.Segments) != 1 || got.Segments[0].Start != 0.5 || got.Segments[0].End != 1.4 {
		t.Errorf("Segments = %+v", got.Segments)
	}
	if got.DurationSeconds != 2 {
		t.Errorf("DurationSeconds = %v, want 2 (measured)", got.DurationSeconds)
	}
}

func TestTranscribe_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr, _ := deepgram.New("k", deepgram.WithBaseURL(srv.URL))
	if _, err := tr.Transcribe(context.Background(), []byte{0, 0}); err == nil {
		t.Fatal("Transcribe: want error on HTTP 429, got nil")
	}
}
