package feedback_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/MrWong99/medsift/internal/feedback"
	"github.com/MrWong99/medsift/pkg/store"
	storemock "github.com/MrWong99/medsift/pkg/store/mock"
	"github.com/MrWong99/medsift/pkg/types"
)

func TestExtractKeywords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		title string
		want  []string
	}{
		{"", nil},
		{"A systematic review of metformin in type-2 diabetes", []string{"metformin", "type", "diabetes"}},
		{"Metformin and METFORMIN: a case report", []string{"metformin"}},
		{"BP in HTN", []string{"htn"}},
	}
	for _, tt := range tests {
		if got := feedback.ExtractKeywords(tt.title); !slices.Equal(got, tt.want) {
			t.Errorf("ExtractKeywords(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		rec   types.FeedbackRecord
		valid bool
	}{
		{"extraction correct", types.FeedbackRecord{Type: types.FeedbackExtractionAccuracy, Rating: types.RatingCorrect, ItemValue: "metformin"}, true},
		{"literature relevant", types.FeedbackRecord{Type: types.FeedbackLiteratureRelevance, Rating: types.RatingRelevant, ItemValue: "A paper"}, true},
		{"unknown type", types.FeedbackRecord{Type: "mood", Rating: types.RatingCorrect, ItemValue: "x"}, false},
		{"rating for other type", types.FeedbackRecord{Type: types.FeedbackExtractionAccuracy, Rating: types.RatingRelevant, ItemValue: "x"}, false},
		{"empty item", types.FeedbackRecord{Type: types.FeedbackLiteratureRelevance, Rating: types.RatingNotRelevant, ItemValue: " "}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := feedback.Validate(tt.rec)
			if tt.valid && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.valid && !errors.Is(err, feedback.ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestSubmit_UpdatesBoosts(t *testing.T) {
	t.Parallel()

	boosts := &storemock.BoostStore{}
	svc := feedback.NewService(store.NewMemStore(), boosts)
	ctx := context.Background()

	rec, err := svc.Submit(ctx, types.FeedbackRecord{
		VisitID:   "v1",
		Type:      types.FeedbackLiteratureRelevance,
		ItemType:  "paper",
		ItemValue: "Lisinopril for hypertension",
		Rating:    types.RatingRelevant,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.ID == "" || rec.Timestamp.IsZero() {
		t.Errorf("Submit did not assign id/timestamp: %+v", rec)
	}

	_, err = svc.Submit(ctx, types.FeedbackRecord{
		Type:      types.FeedbackLiteratureRelevance,
		ItemValue: "Unrelated dermatology",
		Rating:    types.RatingNotRelevant,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	calls := boosts.UpdateCalls()
	if len(calls) != 2 {
		t.Fatalf("UpdateBoosts calls = %d, want 2", len(calls))
	}
	if !calls[0].Positive || !slices.Equal(calls[0].Keywords, []string{"lisinopril", "hypertension"}) {
		t.Errorf("first update = %+v", calls[0])
	}
	if calls[1].Positive {
		t.Error("not_relevant rating produced a positive update")
	}
}

func TestSubmit_ExtractionFeedbackDoesNotBoost(t *testing.T) {
	t.Parallel()

	boosts := &storemock.BoostStore{}
	svc := feedback.NewService(store.NewMemStore(), boosts)
	_, err := svc.Submit(context.Background(), types.FeedbackRecord{
		Type:      types.FeedbackExtractionAccuracy,
		ItemType:  "medication",
		ItemValue: "Metformin",
		Rating:    types.RatingCorrect,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if n := len(boosts.UpdateCalls()); n != 0 {
		t.Errorf("UpdateBoosts calls = %d, want 0", n)
	}
}

func TestSubmit_BoostFailureKeepsRecord(t *testing.T) {
	t.Parallel()

	mem := store.NewMemStore()
	svc := feedback.NewService(mem, &storemock.BoostStore{UpdateErr: errors.New("db down")})
	if _, err := svc.Submit(context.Background(), types.FeedbackRecord{
		Type: types.FeedbackLiteratureRelevance, ItemValue: "Asthma inhalers", Rating: types.RatingRelevant,
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	all, _ := mem.ListFeedback(context.Background())
	if len(all) != 1 {
		t.Errorf("stored records = %d, want 1", len(all))
	}
}

func TestSubmit_Invalid(t *testing.T) {
	t.Parallel()

	svc := feedback.NewService(store.NewMemStore(), &storemock.BoostStore{})
	_, err := svc.Submit(context.Background(), types.FeedbackRecord{Type: "bogus"})
	if !errors.Is(err, feedback.ErrInvalid) {
		t.Errorf("Submit() = %v, want ErrInvalid", err)
	}
}

func TestAnalytics(t *testing.T) {
	t.Parallel()

	mem := store.NewMemStore()
	svc := feedback.NewService(mem, mem)
	ctx := context.Background()

	submit := func(typ types.FeedbackType, itemType, value, rating string) {
		t.Helper()
		if _, err := svc.Submit(ctx, types.FeedbackRecord{Type: typ, ItemType: itemType, ItemValue: value, Rating: rating}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	submit(types.FeedbackExtractionAccuracy, "medication", "metformin", types.RatingCorrect)
	submit(types.FeedbackExtractionAccuracy, "medication", "aspirin", types.RatingIncorrect)
	submit(types.FeedbackExtractionAccuracy, "test", "a1c", types.RatingCorrect)
	submit(types.FeedbackExtractionAccuracy, "test", "lipids", types.RatingMissing)
	submit(types.FeedbackLiteratureRelevance, "paper", "Metformin trial", types.RatingRelevant)
	submit(types.FeedbackLiteratureRelevance, "paper", "Metformin trial", types.RatingRelevant)
	submit(types.FeedbackLiteratureRelevance, "paper", "Dermatology atlas", types.RatingNotRelevant)

	a, err := svc.Analytics(ctx)
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if a.TotalFeedbackCount != 7 {
		t.Errorf("TotalFeedbackCount = %d, want 7", a.TotalFeedbackCount)
	}
	if a.ExtractionAccuracyRate != 0.5 {
		t.Errorf("ExtractionAccuracyRate = %v, want 0.5", a.ExtractionAccuracyRate)
	}
	if a.AccuracyByItemType["medication"] != 0.5 || a.AccuracyByItemType["test"] != 0.5 {
		t.Errorf("AccuracyByItemType = %v", a.AccuracyByItemType)
	}
	if want := 2.0 / 3.0; a.LiteratureRelevanceRate != want {
		t.Errorf("LiteratureRelevanceRate = %v, want %v", a.LiteratureRelevanceRate, want)
	}
	if len(a.MostRelevantPapers) != 2 || a.MostRelevantPapers[0].Title != "Metformin trial" || a.MostRelevantPapers[0].PositiveVotes != 2 {
		t.Errorf("MostRelevantPapers = %+v", a.MostRelevantPapers)
	}
	if len(a.MostUsefulKeywords) == 0 || a.MostUsefulKeywords[0] != "metformin" {
		t.Errorf("MostUsefulKeywords = %v, want metformin first", a.MostUsefulKeywords)
	}
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()

	a := feedback.Summarize(nil)
	if a.TotalFeedbackCount != 0 || a.ExtractionAccuracyRate != 0 || a.LiteratureRelevanceRate != 0 {
		t.Errorf("Summarize(nil) = %+v", a)
	}
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	fs := feedback.NewFileStore(path)
	ctx := context.Background()

	got, err := fs.ListFeedback(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("ListFeedback(missing file) = %v, %v", got, err)
	}

	for _, v := range []string{"first", "second"} {
		if _, err := fs.SaveFeedback(ctx, types.FeedbackRecord{
			Type: types.FeedbackExtractionAccuracy, ItemValue: v, Rating: types.RatingCorrect,
		}); err != nil {
			t.Fatalf("SaveFeedback: %v", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("{not json\n")
	_ = f.Close()

	got, err = fs.ListFeedback(ctx)
	if err != nil {
		t.Fatalf("ListFeedback: %v", err)
	}
	if len(got) != 2 || got[0].ItemValue != "first" || got[1].ItemValue != "second" {
		t.Errorf("ListFeedback = %+v, want first and second", got)
	}
	if got[0].ID == "" || got[0].ID == got[1].ID {
		t.Errorf("ids not assigned uniquely: %q %q", got[0].ID, got[1].ID)
	}
}
