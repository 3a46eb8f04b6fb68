package clinical

import "strings"

// looseMatchRatio is the fraction of evidence words that must occur in the
// transcript for a non-verbatim quote to count as verified.
const looseMatchRatio = 0.6

// EvidenceFound reports whether evidence is grounded in transcript: either as
// a case-insensitive substring, or with at least 60% of its words longer than
// three characters appearing somewhere in the transcript.
func EvidenceFound(evidence, transcript string) bool {
	ev := strings.ToLower(strings.TrimSpace(evidence))
	if ev == "" {
		return false
	}
	tr := strings.ToLower(transcript)
	if strings.Contains(tr, ev) {
		return true
	}

	var words []string
	for _, w := range strings.Fields(ev) {
		if len(w) > 3 {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return false
	}
	hits := 0
	for _, w := range words {
		if strings.Contains(tr, w) {
			hits++
		}
	}
	return float64(hits)/float64(len(words)) >= looseMatchRatio
}

// VerifySummary normalises s and sets Verified on every item according to
// [EvidenceFound]. It returns the number of verified items and the total.
func VerifySummary(s *PatientSummary, transcript string) (verified, total int) {
	if s == nil {
		return 0, 0
	}
	NormalizeSummary(s)
	mark := func(v *bool, evidence string) {
		*v = EvidenceFound(evidence, transcript)
		total++
		if *v {
			verified++
		}
	}
	for i := range s.Medications {
		mark(&s.Medications[i].Verified, s.Medications[i].Evidence)
	}
	for i := range s.TestsOrdered {
		mark(&s.TestsOrdered[i].Verified, s.TestsOrdered[i].Evidence)
	}
	for i := range s.FollowUpPlan {
		mark(&s.FollowUpPlan[i].Verified, s.FollowUpPlan[i].Evidence)
	}
	for i := range s.LifestyleRecommendations {
		mark(&s.LifestyleRecommendations[i].Verified, s.LifestyleRecommendations[i].Evidence)
	}
	for i := range s.RedFlagsForPatient {
		mark(&s.RedFlagsForPatient[i].Verified, s.RedFlagsForPatient[i].Evidence)
	}
	for i := range s.QuestionsAndAnswers {
		mark(&s.QuestionsAndAnswers[i].Verified, s.QuestionsAndAnswers[i].Evidence)
	}
	return verified, total
}

// VerifyNote normalises n and marks its action items.
func VerifyNote(n *ClinicianNote, transcript string) (verified, total int) {
	if n == nil {
		return 0, 0
	}
	NormalizeNote(n)
	for i := range n.ActionItems {
		ok := EvidenceFound(n.ActionItems[i].Evidence, transcript)
		n.ActionItems[i].Verified = ok
		total++
		if ok {
			verified++
		}
	}
	return verified, total
}
