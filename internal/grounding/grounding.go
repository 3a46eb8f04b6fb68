// Package grounding scores how well each extracted claim is supported by the
// transcript it was extracted from, and flags claims that look invented.
//
// Every item gets two signals:
//
//   - evidence match: [textmatch.FuzzySubstring] of the quoted evidence
//     against the transcript (0 when no evidence was quoted).
//   - claim support: [textmatch.WordOverlap] of the claim itself.
//
// With evidence the score is round(40*evidence + 60*claim). Without evidence
// it is round(min(100*claim, 85)), so an unquoted claim can never reach full
// confidence. Scores map onto [Flag] values with fixed inclusive thresholds.
//
// Everything in this package is pure and deterministic.
package grounding

import (
	"math"
	"strings"

	"github.com/MrWong99/medsift/internal/textmatch"
)

// Flag is the grounding verdict for a score.
type Flag string

const (
	FlagGrounded           Flag = "grounded"
	FlagLikelyGrounded     Flag = "likely_grounded"
	FlagUncertain          Flag = "uncertain"
	FlagLikelyHallucinated Flag = "likely_hallucinated"
)

// Category names the part of the extraction an item came from.
type Category string

const (
	CategoryMedication     Category = "medication"
	CategoryTestOrdered    Category = "test_ordered"
	CategoryFollowUp       Category = "follow_up"
	CategoryLifestyle      Category = "lifestyle"
	CategoryRedFlag        Category = "red_flag"
	CategorySOAPSubjective Category = "soap_subjective"
	CategorySOAPAssessment Category = "soap_assessment"
	CategorySOAPPlan       Category = "soap_plan"
	CategoryActionItem     Category = "action_item"
)

const (
	evidenceWeight    = 40
	claimWeight       = 60
	noEvidenceCap     = 85
	groundedMin       = 75
	likelyGroundedMin = 50
	uncertainMin      = 30
)

// Item is the grounding result for a single extracted claim.
type Item struct {
	Category      Category `json:"category"`
	Claim         string   `json:"item"`
	Index         int      `json:"index"`
	Score         int      `json:"score"`
	EvidenceMatch float64  `json:"evidence_match"`
	ClaimSupport  float64  `json:"claim_support"`
	HasEvidence   bool     `json:"has_evidence"`
	Flag          Flag     `json:"flag"`
}

// FlagFor maps a 0-100 score onto its flag.
func FlagFor(score int) Flag {
	switch {
	case score >= groundedMin:
		return FlagGrounded
	case score >= likelyGroundedMin:
		return FlagLikelyGrounded
	case score >= uncertainMin:
		return FlagUncertain
	default:
		return FlagLikelyHallucinated
	}
}

// Score grades a single claim against transcript. evidence may be empty.
func Score(category Category, claim, evidence, transcript string) Item {
	it := Item{
		Category:    category,
		Claim:       claim,
		HasEvidence: strings.TrimSpace(evidence) != "",
	}

	var ev float64
	if it.HasEvidence {
		ev = textmatch.FuzzySubstring(evidence, transcript)
	}
	cs := textmatch.WordOverlap(claim, transcript)
	it.EvidenceMatch = round3(ev)
	it.ClaimSupport = round3(cs)

	var combined float64
	if it.HasEvidence {
		combined = ev*evidenceWeight + cs*claimWeight
	} else {
		combined = min(cs*100, noEvidenceCap)
	}
	it.Score = max(0, min(100, int(math.Round(combined))))
	it.Flag = FlagFor(it.Score)
	return it
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
