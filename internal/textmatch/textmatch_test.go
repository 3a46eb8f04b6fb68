package textmatch_test

import (
	"math"
	"testing"

	"github.com/MrWong99/medsift/internal/textmatch"
)

func TestStem(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"immobilization", "immobiliz"},
		{"Treatment", "treat"},
		{"walking", "walk"},
		{"sing", "sing"},
		{"pills", "pill"},
		{"has", "has"},
		{"dizziness", "dizzi"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := textmatch.Stem(tt.in); got != tt.want {
				t.Errorf("Stem(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStem_OnlyOneSuffixStripped(t *testing.T) {
	t.Parallel()

	// "ations" ends in "s"; only the trailing "s" goes.
	if got := textmatch.Stem("medications"); got != "medication" {
		t.Errorf("Stem(%q) = %q, want %q", "medications", got, "medication")
	}
}

func TestWords_Unicode(t *testing.T) {
	t.Parallel()

	got := textmatch.Words("Médication für Übelkeit, 5mg x2")
	want := []string{"médication", "für", "übelkeit", "5mg"}
	if len(got) != len(want) {
		t.Errorf("Words() = %v, want %q", got, want)
	}
	for _, w := range want {
		if _, ok := got[w]; !ok {
			t.Errorf("Words() missing %q, got %v", w, got)
		}
	}
}

func TestWordOverlap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		corpus string
		want   float64
	}{
		{"empty text", "", "anything here", 0},
		{"empty corpus", "metformin", "", 0},
		{"short words only", "to be or", "to be or not", 0},
		{"full overlap", "Metformin twice daily", "start metformin 500 mg twice daily", 1},
		{"half overlap", "knee brace", "wear the knee support", 0.5},
		{"synonym rehab", "rehab", "begin rehabilitation next week", 1},
		{"synonym exam", "examination", "physical exam was normal", 1},
		{"accented word", "Médication", "la médication habituelle", 1},
		{"accented word not split", "médication", "dication prescrite", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := textmatch.WordOverlap(tt.text, tt.corpus)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("WordOverlap(%q, %q) = %v, want %v", tt.text, tt.corpus, got, tt.want)
			}
		})
	}
}

func TestFuzzySubstring(t *testing.T) {
	t.Parallel()

	transcript := "Doctor: I'm going to start you on metformin 500 milligrams twice a day with meals."

	t.Run("exact", func(t *testing.T) {
		t.Parallel()
		if got := textmatch.FuzzySubstring("METFORMIN 500 milligrams", transcript); got != 1 {
			t.Errorf("FuzzySubstring exact = %v, want 1", got)
		}
	})

	t.Run("near", func(t *testing.T) {
		t.Parallel()
		got := textmatch.FuzzySubstring("start you on metformin 500 miligrams", transcript)
		if got < 0.7 || got >= 1 {
			t.Errorf("FuzzySubstring near = %v, want in [0.7,1)", got)
		}
	})

	t.Run("unrelated", func(t *testing.T) {
		t.Parallel()
		got := textmatch.FuzzySubstring("patient denies chest pain", transcript)
		if got > 0.4 {
			t.Errorf("FuzzySubstring unrelated = %v, want <= 0.4", got)
		}
	})

	t.Run("needle longer than haystack", func(t *testing.T) {
		t.Parallel()
		got := textmatch.FuzzySubstring("metformin twice daily with meals", "metformin")
		want := textmatch.WordOverlap("metformin twice daily with meals", "metformin")
		if got != want {
			t.Errorf("FuzzySubstring long needle = %v, want WordOverlap %v", got, want)
		}
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		if got := textmatch.FuzzySubstring("", transcript); got != 0 {
			t.Errorf("FuzzySubstring(\"\", ...) = %v, want 0", got)
		}
		if got := textmatch.FuzzySubstring("x", ""); got != 0 {
			t.Errorf("FuzzySubstring(..., \"\") = %v, want 0", got)
		}
	})
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	if got := textmatch.Similarity("", ""); got != 1 {
		t.Errorf("Similarity(empty, empty) = %v, want 1", got)
	}
	if got := textmatch.Similarity("abcd", "abcf"); got != 0.75 {
		t.Errorf("Similarity(abcd, abcf) = %v, want 0.75", got)
	}
}
