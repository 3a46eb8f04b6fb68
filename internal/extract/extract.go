// Package extract turns a de-identified visit transcript into structured
// clinical records using a language model.
//
// Models return loosely formatted JSON. [RecoverJSON] digs the object out of
// a response, and an [Extractor] retries a bounded number of times with a
// corrective prompt when the response cannot be parsed or has the wrong
// shape. Every decoded record goes through the clinical normalisation before
// it is returned.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/medsift/internal/clinical"
	"github.com/MrWong99/medsift/internal/observe"
	"github.com/MrWong99/medsift/pkg/provider/llm"
)

// Defaults for a new [Extractor].
const (
	DefaultMaxRetries  = 2
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 4096
)

var (
	// ErrEmptyTranscript is returned for blank input.
	ErrEmptyTranscript = errors.New("extract: empty transcript")

	// ErrUnavailable wraps failures of the language model itself.
	ErrUnavailable = errors.New("extract: model unavailable")

	// ErrMalformed is returned when no attempt produced a usable record.
	ErrMalformed = errors.New("extract: malformed model output")

	// ErrNoJSON is returned by [RecoverJSON] when the text holds no JSON
	// object.
	ErrNoJSON = errors.New("extract: no JSON object in response")
)

var (
	fenceOpen  = regexp.MustCompile("^```(?:json)?\\s*\\n?")
	fenceClose = regexp.MustCompile("\\n?```\\s*$")
)

// RecoverJSON returns the JSON object held in raw. It tries the whole text,
// then the text with markdown code fences removed, then the span from the
// first '{' to the last '}'.
func RecoverJSON(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if json.Valid([]byte(raw)) && strings.HasPrefix(raw, "{") {
		return []byte(raw), nil
	}

	cleaned := fenceOpen.ReplaceAllString(raw, "")
	cleaned = strings.TrimSpace(fenceClose.ReplaceAllString(cleaned, ""))
	if json.Valid([]byte(cleaned)) && strings.HasPrefix(cleaned, "{") {
		return []byte(cleaned), nil
	}

	first := strings.IndexByte(raw, '{')
	last := strings.LastIndexByte(raw, '}')
	if first >= 0 && last > first {
		if span := []byte(raw[first : last+1]); json.Valid(span) {
			return span, nil
		}
	}
	return nil, ErrNoJSON
}

// Option configures an [Extractor].
type Option func(*Extractor)

// WithMaxRetries sets how many times a failed parse is retried. Negative
// values are treated as zero.
func WithMaxRetries(n int) Option {
	return func(e *Extractor) {
		e.maxRetries = max(n, 0)
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(e *Extractor) {
		e.temperature = t
	}
}

// WithMaxTokens caps each completion.
func WithMaxTokens(n int) Option {
	return func(e *Extractor) {
		e.maxTokens = n
	}
}

// WithMetrics records extraction latency and provider outcomes under name.
func WithMetrics(m *observe.Metrics, name string) Option {
	return func(e *Extractor) {
		e.metrics = m
		e.name = name
	}
}

// Extractor produces clinical records from transcripts. It is safe for
// concurrent use.
type Extractor struct {
	llm         llm.Provider
	maxRetries  int
	temperature float64
	maxTokens   int
	metrics     *observe.Metrics
	name        string
}

// New creates an Extractor backed by p.
func New(p llm.Provider, opts ...Option) *Extractor {
	e := &Extractor{
		llm:         p,
		maxRetries:  DefaultMaxRetries,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		name:        "llm",
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// PatientSummary extracts the patient-facing summary of transcript.
func (e *Extractor) PatientSummary(ctx context.Context, transcript string) (clinical.PatientSummary, error) {
	var out clinical.PatientSummary
	err := e.extract(ctx, "summary", patientSummaryPrompt, transcript, func(data []byte) error {
		s, err := clinical.DecodePatientSummary(data)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}

// ClinicianNote extracts the SOAP note of transcript.
func (e *Extractor) ClinicianNote(ctx context.Context, transcript string) (clinical.ClinicianNote, error) {
	var out clinical.ClinicianNote
	err := e.extract(ctx, "note", clinicianNotePrompt, transcript, func(data []byte) error {
		n, err := clinical.DecodeClinicianNote(data)
		if err != nil {
			return err
		}
		out = n
		return nil
	})
	return out, err
}

func (e *Extractor) extract(ctx context.Context, kind, system, transcript string, decode func([]byte) error) error {
	if strings.TrimSpace(transcript) == "" {
		return ErrEmptyTranscript
	}

	ctx, span := observe.StartSpan(ctx, "extract."+kind)
	defer span.End()
	if e.metrics != nil {
		start := time.Now()
		defer func() {
			e.metrics.ExtractionDuration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(observe.Attr("kind", kind)))
		}()
	}

	original := "Here is the patient-doctor conversation transcript:\n\n" + transcript
	prompt := original
	log := observe.Logger(ctx)

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: system,
			Messages:     []llm.Message{{Role: llm.RoleUser, Content: prompt}},
			Temperature:  e.temperature,
			MaxTokens:    e.maxTokens,
		})
		if e.metrics != nil {
			e.metrics.RecordProviderCall(ctx, e.name, "llm", err)
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		data, err := RecoverJSON(resp.Content)
		if err != nil {
			lastErr = err
			log.Warn("extract: response is not JSON",
				"kind", kind, "attempt", attempt+1, "max_attempts", e.maxRetries+1)
			prompt = "Your previous response was not valid JSON. " +
				"Return ONLY a valid JSON object. No markdown code fences. " +
				"No explanation before or after. Just the raw JSON.\n\n" +
				"Original request:\n" + original
			continue
		}

		if err := decode(data); err != nil {
			lastErr = err
			log.Warn("extract: response has the wrong shape",
				"kind", kind, "attempt", attempt+1, "max_attempts", e.maxRetries+1, "err", err)
			prompt = fmt.Sprintf("Your previous response did not match the required structure: %s. "+
				"Fix the JSON structure and return ONLY valid JSON.\n\n"+
				"Original request:\n%s", shapeHint(err), original)
			continue
		}
		return nil
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrMalformed, e.maxRetries+1, lastErr)
}

// shapeHint condenses a decode error into something a model can act on.
func shapeHint(err error) string {
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		field := te.Field
		if field == "" {
			field = "the top-level value"
		}
		return fmt.Sprintf("field %q must be %s, got %s", field, te.Type.String(), te.Value)
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
