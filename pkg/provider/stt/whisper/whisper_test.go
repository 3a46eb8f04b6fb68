package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/medsift/pkg/provider/stt"
	"github.com/MrWong99/medsift/pkg/provider/stt/whisper"
)

// newMockServer answers POST /inference with body and records the form
// fields of the last request.
func newMockServer(t *testing.T, status int, body any, fields *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		if !stt.IsWAV(data) {
			http.Error(w, "not wav", http.StatusBadRequest)
			return
		}
		if fields != nil {
			got := map[string]string{}
			for k, v := range r.MultipartForm.Value {
				got[k] = v[0]
			}
			fields.Store(got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// pcmSeconds returns silent 16 kHz mono PCM of the given length.
func pcmSeconds(sec float64) []byte {
	return make([]byte, int(sec*32000))
}

func TestNew_EmptyServerURL(t *testing.T) {
	t.Parallel()

	if _, err := whisper.New(""); err == nil {
		t.Fatal("New(\"\"): want error, got nil")
	}
}

func TestTranscribe_VerboseJSON(t *testing.T) {
	t.Parallel()

	var fields atomic.Value
	srv := newMockServer(t, http.StatusOK, map[string]any{
		"text":     "hello there. how are you",
		"language": "en",
		"duration": 2.0,
		"segments": []map[string]any{
			{"start": 0.0, "end": 1.0, "text": " hello there."},
			{"start": 1.2, "end": 1.9, "text": " how are you"},
			{"start": 1.9, "end": 2.0, "text": "  "},
		},
	}, &fields)

	tr, err := whisper.New(srv.URL, whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := tr.Transcribe(context.Background(), pcmSeconds(2))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(got.Segments) != 2 {
		t.Fatalf("Segments = %+v, want 2", got.Segments)
	}
	if got.Segments[0].Text != "hello there." || got.Segments[1].Start != 1.2 {
		t.Errorf("Segments = %+v", got.Segments)
	}
	if got.DurationSeconds != 2 {
		t.Errorf("DurationSeconds = %v, want 2", got.DurationSeconds)
	}

	f := fields.Load().(map[string]string)
	if f["response_format"] != "verbose_json" || f["model"] != "base.en" || f["language"] != "en" {
		t.Errorf("form fields = %v", f)
	}
}

func TestTranscribe_TextOnlyResponse(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, http.StatusOK, map[string]string{"text": " just text "}, nil)
	tr, _ := whisper.New(srv.URL)

	got, err := tr.Transcribe(context.Background(), pcmSeconds(1.5))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(got.Segments) != 1 || got.Segments[0].Text != "just text" {
		t.Fatalf("Segments = %+v", got.Segments)
	}
	if got.Segments[0].End != 1.5 || got.DurationSeconds != 1.5 {
		t.Errorf("End, Duration = %v, %v; want 1.5, 1.5", got.Segments[0].End, got.DurationSeconds)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, http.StatusInternalServerError, map[string]string{}, nil)
	tr, _ := whisper.New(srv.URL)
	if _, err := tr.Transcribe(context.Background(), pcmSeconds(1)); err == nil {
		t.Fatal("Transcribe: want error on HTTP 500, got nil")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()

	tr, _ := whisper.New("http://127.0.0.1:1")
	if _, err := tr.Transcribe(context.Background(), nil); err != stt.ErrEmptyAudio {
		t.Errorf("Transcribe(nil) err = %v, want ErrEmptyAudio", err)
	}
}
