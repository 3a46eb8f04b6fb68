package grounding

import (
	"math"
	"strings"

	"github.com/MrWong99/medsift/internal/clinical"
)

// Report aggregates the grounding of a whole extraction.
type Report struct {
	OverallScore  int    `json:"overall_score"`
	OverallFlag   Flag   `json:"overall_flag"`
	TotalItems    int    `json:"total_items"`
	GroundedCount int    `json:"grounded_count"`
	FlaggedCount  int    `json:"flagged_count"`
	Items         []Item `json:"items"`
}

// BuildReport scores every item of summary and note against transcript.
// Items are visited in a fixed order: medications, tests, follow-ups,
// lifestyle, red flags, subjective findings, assessment findings, plan
// findings, action items. Either record may be nil.
func BuildReport(summary *clinical.PatientSummary, note *clinical.ClinicianNote, transcript string) Report {
	var items []Item
	add := func(cat Category, idx int, claim, evidence string) {
		it := Score(cat, claim, evidence, transcript)
		it.Index = idx
		items = append(items, it)
	}

	if summary != nil {
		for i, m := range summary.Medications {
			claim := strings.TrimSpace(m.Name + " " + m.Dose + " " + m.Frequency)
			add(CategoryMedication, i, claim, m.Evidence)
			items[len(items)-1].Claim = m.Name
		}
		for i, t := range summary.TestsOrdered {
			add(CategoryTestOrdered, i, t.TestName, t.Evidence)
		}
		for i, f := range summary.FollowUpPlan {
			add(CategoryFollowUp, i, f.Action, f.Evidence)
		}
		for i, r := range summary.LifestyleRecommendations {
			add(CategoryLifestyle, i, r.Recommendation, r.Evidence)
		}
		for i, r := range summary.RedFlagsForPatient {
			add(CategoryRedFlag, i, r.Warning, r.Evidence)
		}
	}
	if note != nil {
		soap := note.SOAPNote
		for i, f := range soap.Subjective.Findings {
			add(CategorySOAPSubjective, i, f, "")
		}
		for i, f := range soap.Assessment.Findings {
			add(CategorySOAPAssessment, i, f, "")
		}
		for i, f := range soap.Plan.Findings {
			add(CategorySOAPPlan, i, f, "")
		}
		for i, a := range note.ActionItems {
			add(CategoryActionItem, i, a.Action, a.Evidence)
		}
	}
	return Summarize(items)
}

// Summarize computes the overall score and counts for a list of already
// scored items. An empty list yields score 0 with [FlagUncertain].
func Summarize(items []Item) Report {
	if len(items) == 0 {
		return Report{OverallFlag: FlagUncertain, Items: []Item{}}
	}
	r := Report{TotalItems: len(items), Items: items}
	sum := 0
	for _, it := range items {
		sum += it.Score
		switch it.Flag {
		case FlagGrounded, FlagLikelyGrounded:
			r.GroundedCount++
		default:
			r.FlaggedCount++
		}
	}
	r.OverallScore = int(math.Round(float64(sum) / float64(len(items))))
	r.OverallFlag = FlagFor(r.OverallScore)
	return r
}
